package models

import (
	"time"

	"gorm.io/gorm"
)

// Archetype selects one of the two mutually exclusive stat profiles.
type Archetype string

const (
	ArchetypeSpirit Archetype = "spirit" // qi cultivators
	ArchetypeBody   Archetype = "body"   // vitality cultivators
)

// Valid reports whether a is a known archetype.
func (a Archetype) Valid() bool {
	return a == ArchetypeSpirit || a == ArchetypeBody
}

// BusyState is the long-running activity a player is locked into.
type BusyState string

const (
	StateIdle        BusyState = ""
	StateCultivating BusyState = "cultivating"
	StateExploring   BusyState = "exploring"
)

// Player is the progression aggregate. ID is the chat identity of the player.
type Player struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Archetype Archetype `gorm:"type:varchar(16);not null" json:"archetype"`
	Level     int       `gorm:"not null;default:0" json:"level"`

	// Primary resource (qi or vitality)
	Resource    int64 `gorm:"not null;default:0" json:"resource"`
	MaxResource int64 `gorm:"not null;default:0" json:"max_resource"`

	// Combat stats
	PhysicalDamage  int64 `gorm:"not null;default:0" json:"physical_damage"`
	MagicDamage     int64 `gorm:"not null;default:0" json:"magic_damage"`
	PhysicalDefense int64 `gorm:"not null;default:0" json:"physical_defense"`
	MagicDefense    int64 `gorm:"not null;default:0" json:"magic_defense"`
	MentalPower     int64 `gorm:"not null;default:0" json:"mental_power"`

	Lifespan   int64 `gorm:"not null;default:0" json:"lifespan"`
	Experience int64 `gorm:"not null;default:0" json:"experience"`
	Currency   int64 `gorm:"not null;default:0" json:"currency"`

	// Busy-state flag with its scheduled completion
	State          BusyState  `gorm:"type:varchar(16);not null;default:''" json:"state"`
	StateStartedAt *time.Time `json:"state_started_at,omitempty"`
	StateUntil     *time.Time `json:"state_until,omitempty"`

	EquippedWeapon string `gorm:"type:varchar(128)" json:"equipped_weapon,omitempty"`
	EquippedArmor  string `gorm:"type:varchar(128)" json:"equipped_armor,omitempty"`
	Ring           string `gorm:"type:varchar(64);not null" json:"ring"`

	LastBreakthroughAt *time.Time `json:"last_breakthrough_at,omitempty"`

	Timestamps
}

// Busy reports whether the player is locked into a long-running activity.
func (p *Player) Busy() bool {
	return p.State != StateIdle
}

// Clamp restores the aggregate invariants after arithmetic on its fields.
func (p *Player) Clamp() {
	if p.MaxResource < 0 {
		p.MaxResource = 0
	}
	if p.Resource > p.MaxResource {
		p.Resource = p.MaxResource
	}
	if p.Resource < 0 {
		p.Resource = 0
	}
	if p.Lifespan < 0 {
		p.Lifespan = 0
	}
	if p.Experience < 0 {
		p.Experience = 0
	}
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
