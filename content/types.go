package content

import "cultivation-core/models"

// Stats is a bundle of additive attribute values. It is used for breakthrough
// gains, permanent pill gains, item bonuses and seed-stat ranges.
type Stats struct {
	MaxResource     int64 `yaml:"max_resource" json:"max_resource,omitempty"`
	PhysicalDamage  int64 `yaml:"physical_damage" json:"physical_damage,omitempty"`
	MagicDamage     int64 `yaml:"magic_damage" json:"magic_damage,omitempty"`
	PhysicalDefense int64 `yaml:"physical_defense" json:"physical_defense,omitempty"`
	MagicDefense    int64 `yaml:"magic_defense" json:"magic_defense,omitempty"`
	MentalPower     int64 `yaml:"mental_power" json:"mental_power,omitempty"`
	Lifespan        int64 `yaml:"lifespan" json:"lifespan,omitempty"`
}

// StatAttributes lists the integer attributes carried by Stats.
var StatAttributes = []models.Attribute{
	models.AttrMaxResource,
	models.AttrPhysicalDamage,
	models.AttrMagicDamage,
	models.AttrPhysicalDefense,
	models.AttrMagicDefense,
	models.AttrMentalPower,
	models.AttrLifespan,
}

// Get returns the value of one attribute.
func (s Stats) Get(a models.Attribute) int64 {
	switch a {
	case models.AttrMaxResource:
		return s.MaxResource
	case models.AttrPhysicalDamage:
		return s.PhysicalDamage
	case models.AttrMagicDamage:
		return s.MagicDamage
	case models.AttrPhysicalDefense:
		return s.PhysicalDefense
	case models.AttrMagicDefense:
		return s.MagicDefense
	case models.AttrMentalPower:
		return s.MentalPower
	case models.AttrLifespan:
		return s.Lifespan
	}
	return 0
}

// ApplyTo adds s onto the player's attributes, scaled by sign (+1 or -1).
func (s Stats) ApplyTo(p *models.Player, sign int64) {
	p.MaxResource += sign * s.MaxResource
	p.PhysicalDamage += sign * s.PhysicalDamage
	p.MagicDamage += sign * s.MagicDamage
	p.PhysicalDefense += sign * s.PhysicalDefense
	p.MagicDefense += sign * s.MagicDefense
	p.MentalPower += sign * s.MentalPower
	p.Lifespan += sign * s.Lifespan
}

// Level is one row of the level table, keyed by its index.
type Level struct {
	Name         string           `yaml:"name"`
	ExpRequired  int64            `yaml:"exp_required"`
	SuccessRate  float64          `yaml:"success_rate"`
	ExpPerMinute int64            `yaml:"exp_per_minute"`
	Gains        map[string]Stats `yaml:"gains"` // by archetype
}

// GainsFor returns the breakthrough gains for an archetype.
func (l Level) GainsFor(a models.Archetype) Stats {
	return l.Gains[string(a)]
}

// PillKind selects how a consumable is applied.
type PillKind string

const (
	PillTemporary    PillKind = "temporary"
	PillInstant      PillKind = "instant"
	PillPermanent    PillKind = "permanent"
	PillReset        PillKind = "reset"
	PillBreakthrough PillKind = "breakthrough"
)

// Pill is a consumable definition.
type Pill struct {
	Kind          PillKind `yaml:"kind"`
	RequiredLevel int      `yaml:"required_level"`

	// temporary
	DurationMinutes   int                    `yaml:"duration_minutes"`
	PerMinute         models.EffectDeltas    `yaml:"per_minute"`
	Modifiers         models.EffectModifiers `yaml:"modifiers"`
	BreakthroughBonus float64                `yaml:"breakthrough_bonus"`

	// breakthrough consumable
	TargetLevel int     `yaml:"target_level"`
	RateBonus   float64 `yaml:"rate_bonus"`
	RateCeiling float64 `yaml:"rate_ceiling"`

	// instant
	RestoreResource int64 `yaml:"restore_resource"`
	RestoreLifespan int64 `yaml:"restore_lifespan"`

	// permanent
	Gains            Stats   `yaml:"gains"`
	CultivationSpeed float64 `yaml:"cultivation_speed"`
	DeathProtection  float64 `yaml:"death_protection"`
}

// Item is a non-consumable (equipment or material).
type Item struct {
	Type          string `yaml:"type"` // weapon, armor, material
	RequiredLevel int    `yaml:"required_level"`
	Bonus         Stats  `yaml:"bonus"`
}

// ShopEntry is a default shop listing used on restock.
type ShopEntry struct {
	Item  string `yaml:"item"`
	Price int64  `yaml:"price"`
	Stock int    `yaml:"stock"`
}

// LoanProduct describes one loan subtype.
type LoanProduct struct {
	DailyRate float64 `yaml:"daily_rate"`
	TermDays  int     `yaml:"term_days"`
	MinAmount int64   `yaml:"min_amount"`
	MaxAmount int64   `yaml:"max_amount"`
}

// ArchetypeProfile is the seed-stat profile of a cultivation path.
type ArchetypeProfile struct {
	Resource string `yaml:"resource"` // qi or vitality
	BaseMin  Stats  `yaml:"base_min"`
	BaseMax  Stats  `yaml:"base_max"`
	Lifespan int64  `yaml:"lifespan"`
}

// TribulationKind is one flavour of tribulation with its damage ratio.
type TribulationKind struct {
	Name  string  `yaml:"name"`
	Ratio float64 `yaml:"ratio"`
}

// TribulationConfig tunes the tribulation resolver.
type TribulationConfig struct {
	Threshold             int               `yaml:"threshold"`
	BaseWaves             int               `yaml:"base_waves"`
	LevelsPerExtraWave    int               `yaml:"levels_per_extra_wave"`
	MaxWaves              int               `yaml:"max_waves"`
	Kinds                 []TribulationKind `yaml:"kinds"`
	BaseDifficulty        float64           `yaml:"base_difficulty"`
	DifficultyGrowth      float64           `yaml:"difficulty_growth"`
	Jitter                float64           `yaml:"jitter"`
	PerfectBlockChance    float64           `yaml:"perfect_block_chance"`
	ResistancePerDefense  float64           `yaml:"resistance_per_defense"`
	SurviveExpBonus       float64           `yaml:"survive_exp_bonus"`
	SurviveLifespanBonus  int64             `yaml:"survive_lifespan_bonus"`
	SurviveAttributeBonus float64           `yaml:"survive_attribute_bonus"`
	FailExpPenalty        float64           `yaml:"fail_exp_penalty"`
}

// BreakthroughConfig tunes the ordinary breakthrough path.
type BreakthroughConfig struct {
	FailureExpPenalty float64 `yaml:"failure_exp_penalty"`
	PermanentGainCap  float64 `yaml:"permanent_gain_cap"`
	// Absolute cap on permanent cultivation-speed and death-protection
	// multipliers per level.
	MultiplierCap float64 `yaml:"multiplier_cap"`
}

// Tables is the raw content document.
type Tables struct {
	Levels       []Level                     `yaml:"levels"`
	Archetypes   map[string]ArchetypeProfile `yaml:"archetypes"`
	Pills        map[string]Pill             `yaml:"pills"`
	Items        map[string]Item             `yaml:"items"`
	Shop         []ShopEntry                 `yaml:"shop"`
	Rings        map[string]int              `yaml:"rings"`
	DefaultRing  string                      `yaml:"default_ring"`
	Loans        map[string]LoanProduct      `yaml:"loans"`
	Tribulation  TribulationConfig           `yaml:"tribulation"`
	Breakthrough BreakthroughConfig          `yaml:"breakthrough"`
	// Actions a busy player may still run.
	BusyAllowList []string `yaml:"busy_allow_list"`
}
