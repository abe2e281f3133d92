// services/breakthrough.go
package services

import (
	"context"
	"fmt"
	"log"
	"math"

	"gorm.io/gorm"

	"cultivation-core/apperr"
	"cultivation-core/content"
	"cultivation-core/models"
	"cultivation-core/store"
)

// Stage is a state of the breakthrough machine.
type Stage string

const (
	StageEligible            Stage = "eligible"
	StageRateComputed        Stage = "rate_computed"
	StageResolved            Stage = "resolved"
	StageTribulationCheck    Stage = "tribulation_check"
	StageTribulationResolved Stage = "tribulation_resolved"
)

// BreakthroughService runs the breakthrough and tribulation state machine.
type BreakthroughService struct {
	Store   *store.Store
	Catalog *content.Catalog
	Clock   Clock
	Roller  Roller
	Ledger  *LedgerService
}

func NewBreakthroughService(st *store.Store, cat *content.Catalog, clock Clock, roller Roller, ledger *LedgerService) *BreakthroughService {
	return &BreakthroughService{Store: st, Catalog: cat, Clock: clock, Roller: roller, Ledger: ledger}
}

// Outcome is the terminal state of one breakthrough attempt.
type Outcome struct {
	Stage       Stage              `json:"stage"`
	FromLevel   int                `json:"from_level"`
	ToLevel     int                `json:"to_level"`
	LevelName   string             `json:"level_name"`
	Rate        float64            `json:"rate"`
	Draw        float64            `json:"draw"`
	Success     bool               `json:"success"`
	ExpLost     int64              `json:"exp_lost,omitempty"`
	Gains       content.Stats      `json:"gains"`
	Consumable  string             `json:"consumable,omitempty"`
	Tribulation *TribulationReport `json:"tribulation,omitempty"`
	Loan        *LoanSettlement    `json:"loan,omitempty"`
	Player      models.Player      `json:"player"`
}

// ComputeRate combines the bonuses as min(base+temp+consumable, ceiling) and
// clamps into [0, 1]. A ceiling of 0 means no ceiling.
func ComputeRate(base, temp, consumable, ceiling float64) float64 {
	if ceiling <= 0 || ceiling > 1 {
		ceiling = 1
	}
	rate := math.Min(base+temp+consumable, ceiling)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return math.Min(rate, 1)
}

// Attempt runs one breakthrough for playerID, optionally with a breakthrough
// consumable from the ring.
func (s *BreakthroughService) Attempt(ctx context.Context, playerID, consumable string) (res Result[Outcome], err error) {
	ctx, span := startSpan(ctx, "progression.Breakthrough", playerID)
	defer func() { finish(span, res, err) }()

	var out Outcome
	keys := []string{store.PlayerKey(playerID), store.InventoryKey(playerID)}
	err = s.Store.Exclusive(ctx, keys, func(tx *gorm.DB) error {
		var e error
		out, e = s.attemptTx(tx, playerID, consumable)
		return e
	})
	if err != nil {
		return settle("", out, err)
	}

	// The player row is committed; settlement runs in its own scope.
	if out.Success {
		settlement, serr := s.Ledger.SettleBreakthroughLoan(ctx, playerID)
		switch {
		case serr != nil:
			log.Printf("⚠️  [BREAKTHROUGH] Loan settlement failed for %s: %v", playerID, serr)
		case settlement.Success && settlement.Data.Attempted:
			out.Loan = &settlement.Data
		case !settlement.Success:
			log.Printf("⚠️  [BREAKTHROUGH] Loan settlement for %s: %s", playerID, settlement.Message)
		}
	}
	return Ok(describe(out), out), nil
}

func (s *BreakthroughService) attemptTx(tx *gorm.DB, playerID, consumable string) (Outcome, error) {
	now := s.Clock.Now()
	p, err := loadPlayer(tx, playerID)
	if err != nil {
		return Outcome{}, err
	}

	// Eligible
	out := Outcome{Stage: StageEligible, FromLevel: p.Level, ToLevel: p.Level}
	if p.Level >= s.Catalog.MaxLevel() {
		return out, apperr.New(apperr.CodeMaxLevel, "You stand at the peak of the known realms.")
	}
	target := p.Level + 1
	next, _ := s.Catalog.Level(target)
	if p.Experience < next.ExpRequired {
		return out, apperr.WithMetadata(apperr.CodeInsufficientExperience,
			fmt.Sprintf("Insufficient experience for %s: %s/%s.", next.Name, amount(p.Experience), amount(next.ExpRequired)),
			map[string]string{"required": fmt.Sprint(next.ExpRequired)})
	}

	var bonus, ceiling float64
	if consumable != "" {
		pill, ok := s.Catalog.Pill(consumable)
		if !ok || pill.Kind != content.PillBreakthrough || pill.TargetLevel != target {
			return out, apperr.WithMetadata(apperr.CodeWrongConsumable,
				fmt.Sprintf("%s cannot aid a breakthrough to %s.", consumable, next.Name),
				map[string]string{"item": consumable})
		}
		bonus, ceiling = pill.RateBonus, pill.RateCeiling
	}

	if _, err := resolveTx(tx, p, now); err != nil {
		return out, err
	}
	mods, err := loadModifiers(tx, p, now)
	if err != nil {
		return out, err
	}

	// RateComputed
	out.Stage = StageRateComputed
	out.Rate = ComputeRate(next.SuccessRate, mods.BreakthroughBonus, bonus, ceiling)
	if consumable != "" {
		if _, err := removeItemTx(tx, now, playerID, consumable, 1, models.TxItemRetrieve); err != nil {
			return out, err
		}
		out.Consumable = consumable
	}

	// Resolved
	out.Stage = StageResolved
	out.Draw = s.Roller.Float64()
	out.Success = out.Draw < out.Rate
	if !out.Success {
		out.ExpLost = int64(math.Floor(float64(p.Experience) * s.Catalog.Breakthrough().FailureExpPenalty))
		p.Experience -= out.ExpLost
		p.Clamp()
		log.Printf("💥 [BREAKTHROUGH] %s failed %s (draw %.3f ≥ rate %.3f), lost %d exp", p.ID, next.Name, out.Draw, out.Rate, out.ExpLost)
		out.Player = *p
		return out, tx.Save(p).Error
	}

	snapshot := *p
	out.Gains = next.GainsFor(p.Archetype)
	out.Gains.ApplyTo(p, 1)
	p.Level = target
	p.Resource = p.MaxResource
	p.LastBreakthroughAt = &now
	p.Clamp()
	out.ToLevel = target
	out.LevelName = next.Name

	if err := tx.Where("player_id = ? AND breakthrough_bonus > 0", p.ID).Delete(&models.ActivePillEffect{}).Error; err != nil {
		return out, err
	}

	// TribulationCheck
	trib := s.Catalog.Tribulation()
	if TribulationTriggered(trib, target) {
		out.Stage = StageTribulationCheck
		rep := ResolveTribulation(trib, target, p, mods.DeathProtection, s.Roller)
		if rep.Survived {
			applySurvival(trib, p, &rep)
			log.Printf("⚡ [BREAKTHROUGH] %s survived the %d-wave tribulation of %s", p.ID, len(rep.Waves), next.Name)
		} else {
			*p = snapshot
			lost := int64(math.Floor(float64(p.Experience) * trib.FailExpPenalty))
			p.Experience -= lost
			p.Clamp()
			rep.ExpDelta = -lost
			out.ToLevel = p.Level
			out.Gains = content.Stats{}
			log.Printf("⚡ [BREAKTHROUGH] %s fell to the tribulation of %s, reverted and lost %d exp", p.ID, next.Name, lost)
		}
		out.Tribulation = &rep
		out.Stage = StageTribulationResolved
	}

	if out.Tribulation == nil || out.Tribulation.Survived {
		log.Printf("✅ [BREAKTHROUGH] %s reached %s (draw %.3f < rate %.3f)", p.ID, next.Name, out.Draw, out.Rate)
	}
	out.Player = *p
	return out, tx.Save(p).Error
}

func describe(o Outcome) string {
	switch {
	case !o.Success:
		return fmt.Sprintf("Your breakthrough failed (%.0f%% chance). You lost %s experience.", o.Rate*100, amount(o.ExpLost))
	case o.Tribulation != nil && !o.Tribulation.Survived:
		return fmt.Sprintf("You broke through, but the heavenly tribulation struck you back down. You lost %s experience.", amount(-o.Tribulation.ExpDelta))
	case o.Tribulation != nil:
		return fmt.Sprintf("You endured %d waves of tribulation and ascended to %s!", len(o.Tribulation.Waves), o.LevelName)
	default:
		return fmt.Sprintf("Breakthrough! You have reached %s.", o.LevelName)
	}
}
