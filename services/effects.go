// services/effects.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"

	"cultivation-core/content"
	"cultivation-core/models"
	"cultivation-core/store"
)

// EffectService resolves active pill effects lazily and reports modifiers.
type EffectService struct {
	Store   *store.Store
	Catalog *content.Catalog
	Clock   Clock
}

func NewEffectService(st *store.Store, cat *content.Catalog, clock Clock) *EffectService {
	return &EffectService{Store: st, Catalog: cat, Clock: clock}
}

// ResolveReport summarizes one lazy resolution pass.
type ResolveReport struct {
	Minutes       int64    `json:"minutes"`
	ResourceDelta int64    `json:"resource_delta"`
	LifespanDelta int64    `json:"lifespan_delta"`
	Expired       []string `json:"expired,omitempty"`
	Active        int      `json:"active"`
}

// Resolve applies every whole elapsed minute of the player's effects.
func (s *EffectService) Resolve(ctx context.Context, playerID string) (res Result[ResolveReport], err error) {
	ctx, span := startSpan(ctx, "effects.Resolve", playerID)
	defer func() { finish(span, res, err) }()

	var out ResolveReport
	err = s.Store.Exclusive(ctx, []string{store.PlayerKey(playerID)}, func(tx *gorm.DB) error {
		p, err := loadPlayer(tx, playerID)
		if err != nil {
			return err
		}
		out, err = resolveTx(tx, p, s.Clock.Now())
		if err != nil {
			return err
		}
		return savePlayerVitals(tx, p)
	})
	return settle(fmt.Sprintf("Resolved %d minute(s) of effects.", out.Minutes), out, err)
}

// resolveTx applies ticks to p in memory and persists effect bookkeeping.
// The caller persists p. Every pending tick of every effect is applied in
// timestamp order (ties go to the earlier effect) with a clamp after each
// one, so a call consumes a prefix of one fixed tick sequence and the totals
// do not depend on how often it runs. LastResolvedAt advances by whole
// minutes only; the fractional remainder carries to the next call.
func resolveTx(tx *gorm.DB, p *models.Player, now time.Time) (ResolveReport, error) {
	var effects []models.ActivePillEffect
	if err := tx.Where("player_id = ?", p.ID).Order("started_at, id").Find(&effects).Error; err != nil {
		return ResolveReport{}, err
	}

	type tick struct {
		at     time.Time
		effect int
	}
	var (
		rep     ResolveReport
		ticks   []tick
		pending = make([]int64, len(effects))
	)
	for i := range effects {
		e := &effects[i]
		if e.Deltas.Corrupt {
			log.Printf("⚠️  [EFFECTS] Effect %s of %s has corrupt deltas; ticking nothing", e.ID, p.ID)
		}
		pending[i] = int64(e.Horizon(now).Sub(e.LastResolvedAt) / time.Minute)
		for k := int64(1); k <= pending[i]; k++ {
			ticks = append(ticks, tick{at: e.LastResolvedAt.Add(time.Duration(k) * time.Minute), effect: i})
		}
		rep.Minutes += max(pending[i], 0)
	}
	sort.SliceStable(ticks, func(a, b int) bool { return ticks[a].at.Before(ticks[b].at) })

	beforeRes, beforeLife := p.Resource, p.Lifespan
	for _, t := range ticks {
		d := effects[t.effect].Deltas.Data
		p.Resource += d.Resource()
		p.Lifespan += d.LifespanNet()
		p.Clamp()
	}
	rep.ResourceDelta = p.Resource - beforeRes
	rep.LifespanDelta = p.Lifespan - beforeLife

	for i := range effects {
		e := &effects[i]
		if pending[i] > 0 {
			e.LastResolvedAt = e.LastResolvedAt.Add(time.Duration(pending[i]) * time.Minute)
		}
		if e.Expired(now) {
			if err := tx.Delete(e).Error; err != nil {
				return rep, err
			}
			rep.Expired = append(rep.Expired, e.PillName)
			continue
		}
		if pending[i] > 0 {
			if err := tx.Model(e).Update("last_resolved_at", e.LastResolvedAt).Error; err != nil {
				return rep, err
			}
		}
		rep.Active++
	}
	return rep, nil
}

func savePlayerVitals(tx *gorm.DB, p *models.Player) error {
	return tx.Model(p).Updates(map[string]any{
		"resource": p.Resource,
		"lifespan": p.Lifespan,
	}).Error
}

// Modifiers is the aggregate of every non-temporal modifier.
type Modifiers struct {
	Damage            float64 `json:"damage"`
	Defense           float64 `json:"defense"`
	CultivationSpeed  float64 `json:"cultivation_speed"`
	DeathProtection   float64 `json:"death_protection"`
	BreakthroughBonus float64 `json:"breakthrough_bonus"`
}

// ComputeModifiers folds unexpired effects and the current level's permanent
// gains into multipliers. Each multiplier is floored at 0.
func ComputeModifiers(level int, effects []models.ActivePillEffect, gains []models.PermanentPillGain, now time.Time) Modifiers {
	m := Modifiers{Damage: 1, Defense: 1, CultivationSpeed: 1}
	for _, e := range effects {
		if e.Expired(now) {
			continue
		}
		mod := e.Modifiers.Data
		m.Damage += mod.Damage
		m.Defense += mod.Defense
		m.CultivationSpeed += mod.CultivationSpeed
		m.BreakthroughBonus += e.BreakthroughBonus
	}
	for _, g := range gains {
		if g.Level != level {
			continue
		}
		switch g.Attribute {
		case models.AttrCultivationSpeed:
			m.CultivationSpeed += g.Amount
		case models.AttrDeathProtection:
			m.DeathProtection += g.Amount
		}
	}
	m.Damage = max(m.Damage, 0)
	m.Defense = max(m.Defense, 0)
	m.CultivationSpeed = max(m.CultivationSpeed, 0)
	m.DeathProtection = max(m.DeathProtection, 0)
	m.BreakthroughBonus = max(m.BreakthroughBonus, 0)
	return m
}

func loadModifiers(db *gorm.DB, p *models.Player, now time.Time) (Modifiers, error) {
	var effects []models.ActivePillEffect
	if err := db.Where("player_id = ?", p.ID).Find(&effects).Error; err != nil {
		return Modifiers{}, err
	}
	var gains []models.PermanentPillGain
	if err := db.Where("player_id = ? AND level = ?", p.ID, p.Level).Find(&gains).Error; err != nil {
		return Modifiers{}, err
	}
	return ComputeModifiers(p.Level, effects, gains, now), nil
}

// Modifiers reports the player's current modifiers without side effects.
func (s *EffectService) Modifiers(ctx context.Context, playerID string) (res Result[Modifiers], err error) {
	ctx, span := startSpan(ctx, "effects.Modifiers", playerID)
	defer func() { finish(span, res, err) }()

	db := s.Store.DB.WithContext(ctx)
	var p models.Player
	if err := db.Select("id", "level").First(&p, "id = ?", playerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Failure[Modifiers](errNoPlayer()), nil
		}
		return settle("", Modifiers{}, err)
	}
	m, err := loadModifiers(db, &p, s.Clock.Now())
	return settle(fmt.Sprintf("Damage ×%.2f, defense ×%.2f, cultivation ×%.2f.", m.Damage, m.Defense, m.CultivationSpeed), m, err)
}
