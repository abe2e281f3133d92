package models

import "time"

// EffectDeltas are the per-minute ticks of a temporary effect.
type EffectDeltas struct {
	ResourceRegen int64 `yaml:"resource_regen" json:"resource_regen,omitempty"`
	ResourceCost  int64 `yaml:"resource_cost" json:"resource_cost,omitempty"`
	LifespanRegen int64 `yaml:"lifespan_regen" json:"lifespan_regen,omitempty"`
	LifespanCost  int64 `yaml:"lifespan_cost" json:"lifespan_cost,omitempty"`
}

// IsZero reports whether the effect ticks nothing.
func (d EffectDeltas) IsZero() bool {
	return d == EffectDeltas{}
}

// Resource is the net resource change per minute.
func (d EffectDeltas) Resource() int64 { return d.ResourceRegen - d.ResourceCost }

// LifespanNet is the net lifespan change per minute.
func (d EffectDeltas) LifespanNet() int64 { return d.LifespanRegen - d.LifespanCost }

// EffectModifiers are additive fractions folded into multiplicative modifiers
// (1 + sum). A value of 0.3 means +30%.
type EffectModifiers struct {
	Damage           float64 `yaml:"damage" json:"damage,omitempty"`
	Defense          float64 `yaml:"defense" json:"defense,omitempty"`
	CultivationSpeed float64 `yaml:"cultivation_speed" json:"cultivation_speed,omitempty"`
}

// ActivePillEffect is a time-bounded consumable effect resolved lazily.
type ActivePillEffect struct {
	ID       string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PlayerID string `gorm:"type:varchar(64);index;not null" json:"player_id"`
	PillName string `gorm:"not null" json:"pill_name"`

	StartedAt      time.Time  `gorm:"not null" json:"started_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"` // nil = no expiry
	LastResolvedAt time.Time  `gorm:"not null" json:"last_resolved_at"`

	Deltas    Blob[EffectDeltas]    `json:"deltas"`
	Modifiers Blob[EffectModifiers] `json:"modifiers"`

	// Additive breakthrough bonus; non-zero marks the effect as
	// breakthrough-related so a successful breakthrough consumes it.
	BreakthroughBonus float64 `gorm:"not null;default:0" json:"breakthrough_bonus"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Horizon is min(now, expiry).
func (e *ActivePillEffect) Horizon(now time.Time) time.Time {
	if e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
		return *e.ExpiresAt
	}
	return now
}

// Expired reports whether now has reached the expiry.
func (e *ActivePillEffect) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// Attribute names a permanently boostable attribute.
type Attribute string

const (
	AttrMaxResource      Attribute = "max_resource"
	AttrPhysicalDamage   Attribute = "physical_damage"
	AttrMagicDamage      Attribute = "magic_damage"
	AttrPhysicalDefense  Attribute = "physical_defense"
	AttrMagicDefense     Attribute = "magic_defense"
	AttrMentalPower      Attribute = "mental_power"
	AttrLifespan         Attribute = "lifespan"
	AttrCultivationSpeed Attribute = "cultivation_speed"
	AttrDeathProtection  Attribute = "death_protection"
)

// PermanentPillGain is the cumulative gain on one attribute bought with
// permanent consumables while the player sat at a given level.
type PermanentPillGain struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PlayerID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_gain_player_level_attr" json:"player_id"`
	Level     int       `gorm:"not null;uniqueIndex:idx_gain_player_level_attr" json:"level"`
	Attribute Attribute `gorm:"type:varchar(32);not null;uniqueIndex:idx_gain_player_level_attr" json:"attribute"`
	Amount    float64   `gorm:"not null;default:0" json:"amount"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
