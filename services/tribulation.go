// services/tribulation.go
package services

import (
	"math"

	"cultivation-core/content"
	"cultivation-core/models"
)

// TribulationWave is one strike of a tribulation.
type TribulationWave struct {
	Kind         string `json:"kind"`
	Damage       int64  `json:"damage"`
	PerfectBlock bool   `json:"perfect_block,omitempty"`
}

// TribulationReport is the outcome of the nested resolver.
type TribulationReport struct {
	Waves         []TribulationWave `json:"waves"`
	TotalDamage   int64             `json:"total_damage"`
	Endurance     int64             `json:"endurance"`
	Survived      bool              `json:"survived"`
	ExpDelta      int64             `json:"exp_delta"`
	LifespanBonus int64             `json:"lifespan_bonus,omitempty"`
}

// TribulationTriggered reports whether reaching target summons a tribulation.
func TribulationTriggered(cfg content.TribulationConfig, target int) bool {
	return cfg.Threshold > 0 && target >= cfg.Threshold
}

// TribulationWaves is the number of waves for a target level.
func TribulationWaves(cfg content.TribulationConfig, target int) int {
	per := max(cfg.LevelsPerExtraWave, 1)
	waves := cfg.BaseWaves + (target-cfg.Threshold)/per
	if cfg.MaxWaves > 0 && waves > cfg.MaxWaves {
		waves = cfg.MaxWaves
	}
	return max(waves, 1)
}

// ResolveTribulation strikes p with every wave. Draws per wave, in order:
// kind (IntN), jitter (Float64), perfect block (Float64). Resolution stops at
// the first wave that exhausts the player's endurance. protection is the
// death-protection fraction and scales every wave down.
func ResolveTribulation(cfg content.TribulationConfig, target int, p *models.Player, protection float64, r Roller) TribulationReport {
	rep := TribulationReport{Endurance: p.MaxResource, Survived: true}
	if len(cfg.Kinds) == 0 {
		return rep
	}

	difficulty := cfg.BaseDifficulty * (1 + cfg.DifficultyGrowth*float64(target-cfg.Threshold))
	resistance := cfg.ResistancePerDefense * float64(p.PhysicalDefense+p.MagicDefense)
	protection = math.Min(math.Max(protection, 0), 1)

	for i := 0; i < TribulationWaves(cfg, target); i++ {
		kind := cfg.Kinds[r.IntN(len(cfg.Kinds))]
		jitter := 1 + (r.Float64()*2-1)*cfg.Jitter
		raw := float64(p.MaxResource) * kind.Ratio * difficulty * jitter
		dmg := math.Max(raw-resistance, 0) * (1 - protection)

		wave := TribulationWave{Kind: kind.Name}
		if r.Float64() < cfg.PerfectBlockChance {
			dmg /= 2
			wave.PerfectBlock = true
		}
		wave.Damage = int64(math.Floor(dmg))
		rep.Waves = append(rep.Waves, wave)
		rep.TotalDamage += wave.Damage

		if rep.TotalDamage >= rep.Endurance {
			rep.Survived = false
			break
		}
	}
	return rep
}

// applySurvival grants the survival bonuses to p.
func applySurvival(cfg content.TribulationConfig, p *models.Player, rep *TribulationReport) {
	bonus := int64(math.Floor(float64(p.Experience) * cfg.SurviveExpBonus))
	p.Experience += bonus
	p.Lifespan += cfg.SurviveLifespanBonus
	rep.ExpDelta = bonus
	rep.LifespanBonus = cfg.SurviveLifespanBonus

	grow := func(v int64) int64 { return v + int64(math.Floor(float64(v)*cfg.SurviveAttributeBonus)) }
	p.MaxResource = grow(p.MaxResource)
	p.PhysicalDamage = grow(p.PhysicalDamage)
	p.MagicDamage = grow(p.MagicDamage)
	p.PhysicalDefense = grow(p.PhysicalDefense)
	p.MagicDefense = grow(p.MagicDefense)
	p.MentalPower = grow(p.MentalPower)
	p.Resource = p.MaxResource
}
