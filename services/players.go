// services/players.go
package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cultivation-core/apperr"
	"cultivation-core/content"
	"cultivation-core/models"
	"cultivation-core/store"
)

// PlayerService creates players and runs the actions that mutate their
// attributes outside a breakthrough: consumables and cultivation sessions.
type PlayerService struct {
	Store   *store.Store
	Catalog *content.Catalog
	Clock   Clock
	Roller  Roller
}

func NewPlayerService(st *store.Store, cat *content.Catalog, clock Clock, roller Roller) *PlayerService {
	return &PlayerService{Store: st, Catalog: cat, Clock: clock, Roller: roller}
}

// MaxCultivationMinutes bounds a single cultivation session.
const MaxCultivationMinutes = 24 * 60

// CreatePlayer rolls seed stats within the archetype's profile.
func (s *PlayerService) CreatePlayer(ctx context.Context, id, name string, archetype models.Archetype) (res Result[models.Player], err error) {
	ctx, span := startSpan(ctx, "players.Create", id)
	defer func() { finish(span, res, err) }()

	profile, ok := s.Catalog.Archetype(archetype)
	if !archetype.Valid() || !ok {
		return Failure[models.Player](apperr.New(apperr.CodeInvalidArchetype, "Choose the spirit or body path.")), nil
	}
	if name == "" {
		name = id
	}

	var out models.Player
	err = s.Store.Exclusive(ctx, []string{store.PlayerKey(id)}, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Player{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.New(apperr.CodePlayerExists, "You already walk the path of cultivation.")
		}

		roll := func(a models.Attribute) int64 {
			lo, hi := profile.BaseMin.Get(a), profile.BaseMax.Get(a)
			if hi <= lo {
				return lo
			}
			return lo + int64(s.Roller.IntN(int(hi-lo+1)))
		}
		out = models.Player{
			ID:              id,
			Name:            name,
			Archetype:       archetype,
			MaxResource:     roll(models.AttrMaxResource),
			PhysicalDamage:  roll(models.AttrPhysicalDamage),
			MagicDamage:     roll(models.AttrMagicDamage),
			PhysicalDefense: roll(models.AttrPhysicalDefense),
			MagicDefense:    roll(models.AttrMagicDefense),
			MentalPower:     roll(models.AttrMentalPower),
			Lifespan:        profile.Lifespan,
			Ring:            s.Catalog.DefaultRing(),
		}
		out.Resource = out.MaxResource
		return tx.Create(&out).Error
	})
	if err == nil {
		log.Printf("✅ [PLAYERS] %s began the %s path", id, archetype)
	}
	return settle(fmt.Sprintf("%s begins cultivating the %s path.", name, archetype), out, err)
}

// Status is a player's resolved view.
type Status struct {
	Player      models.Player `json:"player"`
	LevelName   string        `json:"level_name"`
	NextLevel   string        `json:"next_level,omitempty"`
	ExpRequired int64         `json:"exp_required,omitempty"`
	Resource    string        `json:"resource"`
	Effects     ResolveReport `json:"effects"`
}

// Status resolves pending effects and returns the player.
func (s *PlayerService) Status(ctx context.Context, id string) (res Result[Status], err error) {
	ctx, span := startSpan(ctx, "players.Status", id)
	defer func() { finish(span, res, err) }()

	var out Status
	err = s.Store.Exclusive(ctx, []string{store.PlayerKey(id)}, func(tx *gorm.DB) error {
		p, err := loadPlayer(tx, id)
		if err != nil {
			return err
		}
		if out.Effects, err = resolveTx(tx, p, s.Clock.Now()); err != nil {
			return err
		}
		if err := savePlayerVitals(tx, p); err != nil {
			return err
		}
		out.Player = *p
		return nil
	})
	if err != nil {
		return settle("", out, err)
	}

	if l, ok := s.Catalog.Level(out.Player.Level); ok {
		out.LevelName = l.Name
	}
	if l, ok := s.Catalog.Level(out.Player.Level + 1); ok {
		out.NextLevel, out.ExpRequired = l.Name, l.ExpRequired
	}
	if prof, ok := s.Catalog.Archetype(out.Player.Archetype); ok {
		out.Resource = prof.Resource
	}
	return Ok(fmt.Sprintf("%s, %s. %s: %s/%s.", out.Player.Name, out.LevelName, out.Resource,
		amount(out.Player.Resource), amount(out.Player.MaxResource)), out), nil
}

// PillReport describes what a consumable did.
type PillReport struct {
	Pill      string                       `json:"pill"`
	Kind      content.PillKind             `json:"kind"`
	Applied   map[models.Attribute]float64 `json:"applied,omitempty"`
	Discarded map[models.Attribute]float64 `json:"discarded,omitempty"`
	Effect    *models.ActivePillEffect     `json:"effect,omitempty"`
	Player    models.Player                `json:"player"`
}

// UsePill consumes one pill from the ring and applies it.
func (s *PlayerService) UsePill(ctx context.Context, id, name string) (res Result[PillReport], err error) {
	ctx, span := startSpan(ctx, "players.UsePill", id)
	defer func() { finish(span, res, err) }()

	pill, ok := s.Catalog.Pill(name)
	if !ok {
		if s.Catalog.Known(name) {
			return Failure[PillReport](apperr.New(apperr.CodeWrongConsumable, fmt.Sprintf("%s is not a consumable.", name))), nil
		}
		return Failure[PillReport](apperr.New(apperr.CodeUnknownItem, fmt.Sprintf("There is no such thing as %q.", name))), nil
	}
	if pill.Kind == content.PillBreakthrough {
		return Failure[PillReport](apperr.New(apperr.CodeWrongConsumable, fmt.Sprintf("%s is taken during a breakthrough.", name))), nil
	}

	out := PillReport{Pill: name, Kind: pill.Kind}
	keys := []string{store.PlayerKey(id), store.InventoryKey(id)}
	err = s.Store.Exclusive(ctx, keys, func(tx *gorm.DB) error {
		now := s.Clock.Now()
		p, err := loadPlayer(tx, id)
		if err != nil {
			return err
		}
		if p.Level < pill.RequiredLevel {
			return levelRequirement(s.Catalog, name, pill.RequiredLevel)
		}
		if _, err := resolveTx(tx, p, now); err != nil {
			return err
		}
		if _, err := removeItemTx(tx, now, id, name, 1, models.TxItemRetrieve); err != nil {
			return err
		}

		switch pill.Kind {
		case content.PillTemporary:
			eff := models.ActivePillEffect{
				ID:                uuid.NewString(),
				PlayerID:          id,
				PillName:          name,
				StartedAt:         now,
				LastResolvedAt:    now,
				Deltas:            models.NewBlob(pill.PerMinute),
				Modifiers:         models.NewBlob(pill.Modifiers),
				BreakthroughBonus: pill.BreakthroughBonus,
			}
			if pill.DurationMinutes > 0 {
				exp := now.Add(time.Duration(pill.DurationMinutes) * time.Minute)
				eff.ExpiresAt = &exp
			}
			if err := tx.Create(&eff).Error; err != nil {
				return err
			}
			out.Effect = &eff

		case content.PillInstant:
			p.Resource += pill.RestoreResource
			p.Lifespan += pill.RestoreLifespan
			p.Clamp()

		case content.PillPermanent:
			if err := s.applyPermanentTx(tx, p, pill, &out); err != nil {
				return err
			}

		case content.PillReset:
			if err := s.resetGainsTx(tx, p, &out); err != nil {
				return err
			}
		}

		out.Player = *p
		return tx.Save(p).Error
	})
	if err != nil {
		return settle("", out, err)
	}
	return Ok(describePill(out), out), nil
}

// applyPermanentTx adds capped gains for the player's current level. The cap
// per attribute is a fraction of that level's breakthrough gain; excess is
// discarded.
func (s *PlayerService) applyPermanentTx(tx *gorm.DB, p *models.Player, pill content.Pill, out *PillReport) error {
	tune := s.Catalog.Breakthrough()
	level, _ := s.Catalog.Level(p.Level)
	baseline := level.GainsFor(p.Archetype)

	wanted := map[models.Attribute]float64{}
	caps := map[models.Attribute]float64{}
	for _, a := range content.StatAttributes {
		if v := pill.Gains.Get(a); v != 0 {
			wanted[a] = float64(v)
			caps[a] = math.Floor(float64(baseline.Get(a)) * tune.PermanentGainCap)
		}
	}
	if pill.CultivationSpeed != 0 {
		wanted[models.AttrCultivationSpeed] = pill.CultivationSpeed
		caps[models.AttrCultivationSpeed] = tune.MultiplierCap
	}
	if pill.DeathProtection != 0 {
		wanted[models.AttrDeathProtection] = pill.DeathProtection
		caps[models.AttrDeathProtection] = tune.MultiplierCap
	}

	var rows []models.PermanentPillGain
	if err := tx.Where("player_id = ? AND level = ?", p.ID, p.Level).Find(&rows).Error; err != nil {
		return err
	}
	current := map[models.Attribute]float64{}
	for _, r := range rows {
		current[r.Attribute] = r.Amount
	}

	out.Applied = map[models.Attribute]float64{}
	out.Discarded = map[models.Attribute]float64{}
	for a, want := range wanted {
		room := math.Max(caps[a]-current[a], 0)
		got := math.Min(want, room)
		if got < want {
			out.Discarded[a] = want - got
		}
		if got <= 0 {
			continue
		}
		out.Applied[a] = got
		if a != models.AttrCultivationSpeed && a != models.AttrDeathProtection {
			addStat(p, a, int64(got))
		}
		row := models.PermanentPillGain{
			ID:        uuid.NewString(),
			PlayerID:  p.ID,
			Level:     p.Level,
			Attribute: a,
			Amount:    current[a] + got,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_id"}, {Name: "level"}, {Name: "attribute"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return err
		}
	}
	p.Clamp()
	return nil
}

// resetGainsTx removes every permanent gain of the current level and takes
// the attribute gains back off the player.
func (s *PlayerService) resetGainsTx(tx *gorm.DB, p *models.Player, out *PillReport) error {
	var rows []models.PermanentPillGain
	if err := tx.Where("player_id = ? AND level = ?", p.ID, p.Level).Find(&rows).Error; err != nil {
		return err
	}
	out.Applied = map[models.Attribute]float64{}
	for _, r := range rows {
		out.Applied[r.Attribute] = -r.Amount
		if r.Attribute != models.AttrCultivationSpeed && r.Attribute != models.AttrDeathProtection {
			addStat(p, r.Attribute, -int64(r.Amount))
		}
	}
	if err := tx.Where("player_id = ? AND level = ?", p.ID, p.Level).Delete(&models.PermanentPillGain{}).Error; err != nil {
		return err
	}
	p.Clamp()
	return nil
}

func addStat(p *models.Player, a models.Attribute, v int64) {
	switch a {
	case models.AttrMaxResource:
		p.MaxResource += v
	case models.AttrPhysicalDamage:
		p.PhysicalDamage += v
	case models.AttrMagicDamage:
		p.MagicDamage += v
	case models.AttrPhysicalDefense:
		p.PhysicalDefense += v
	case models.AttrMagicDefense:
		p.MagicDefense += v
	case models.AttrMentalPower:
		p.MentalPower += v
	case models.AttrLifespan:
		p.Lifespan += v
	}
}

func describePill(r PillReport) string {
	switch r.Kind {
	case content.PillTemporary:
		if r.Effect != nil && r.Effect.ExpiresAt != nil {
			return fmt.Sprintf("You swallow the %s. Its effect lasts until %s.", r.Pill, r.Effect.ExpiresAt.Format(time.TimeOnly))
		}
		return fmt.Sprintf("You swallow the %s.", r.Pill)
	case content.PillPermanent:
		if len(r.Applied) == 0 {
			return fmt.Sprintf("The %s has no further effect at this realm; its essence dissipates.", r.Pill)
		}
		if len(r.Discarded) > 0 {
			return fmt.Sprintf("You refine the %s. Part of its essence exceeds what this realm can hold and is lost.", r.Pill)
		}
		return fmt.Sprintf("You refine the %s into your foundation.", r.Pill)
	case content.PillReset:
		return fmt.Sprintf("The %s washes away the refinements of this realm.", r.Pill)
	default:
		return fmt.Sprintf("You swallow the %s and feel restored.", r.Pill)
	}
}

// CultivationReport summarizes a finished session.
type CultivationReport struct {
	Minutes    int64         `json:"minutes"`
	Speed      float64       `json:"speed"`
	Experience int64         `json:"experience"`
	Effects    ResolveReport `json:"effects"`
	Player     models.Player `json:"player"`
}

// StartCultivation locks the player into a cultivation session.
func (s *PlayerService) StartCultivation(ctx context.Context, id string, minutes int) (res Result[models.Player], err error) {
	ctx, span := startSpan(ctx, "players.StartCultivation", id)
	defer func() { finish(span, res, err) }()

	if minutes <= 0 || minutes > MaxCultivationMinutes {
		return Failure[models.Player](apperr.New(apperr.CodeInvalidAmount,
			fmt.Sprintf("A session lasts between 1 and %d minutes.", MaxCultivationMinutes))), nil
	}

	var out models.Player
	err = s.Store.Exclusive(ctx, []string{store.PlayerKey(id)}, func(tx *gorm.DB) error {
		now := s.Clock.Now()
		p, err := loadPlayer(tx, id)
		if err != nil {
			return err
		}
		if p.Busy() {
			return apperr.New(apperr.CodeBusy, fmt.Sprintf("You are already %s.", p.State))
		}
		until := now.Add(time.Duration(minutes) * time.Minute)
		p.State, p.StateStartedAt, p.StateUntil = models.StateCultivating, &now, &until
		out = *p
		return tx.Model(p).Updates(map[string]any{
			"state":            p.State,
			"state_started_at": now,
			"state_until":      until,
		}).Error
	})
	return settle(fmt.Sprintf("You sit down to cultivate for %d minutes.", minutes), out, err)
}

// EndCultivation resolves effects, then grants experience for the minutes
// spent, up to the scheduled end.
func (s *PlayerService) EndCultivation(ctx context.Context, id string) (res Result[CultivationReport], err error) {
	ctx, span := startSpan(ctx, "players.EndCultivation", id)
	defer func() { finish(span, res, err) }()

	var out CultivationReport
	err = s.Store.Exclusive(ctx, []string{store.PlayerKey(id)}, func(tx *gorm.DB) error {
		now := s.Clock.Now()
		p, err := loadPlayer(tx, id)
		if err != nil {
			return err
		}
		if p.State != models.StateCultivating || p.StateStartedAt == nil {
			return apperr.New(apperr.CodeNotBusy, "You are not cultivating.")
		}
		if out.Effects, err = resolveTx(tx, p, now); err != nil {
			return err
		}
		mods, err := loadModifiers(tx, p, now)
		if err != nil {
			return err
		}

		end := now
		if p.StateUntil != nil && p.StateUntil.Before(end) {
			end = *p.StateUntil
		}
		out.Minutes = int64(end.Sub(*p.StateStartedAt) / time.Minute)
		out.Speed = mods.CultivationSpeed
		level, _ := s.Catalog.Level(p.Level)
		out.Experience = int64(math.Floor(float64(out.Minutes*level.ExpPerMinute) * mods.CultivationSpeed))

		p.Experience += out.Experience
		p.State, p.StateStartedAt, p.StateUntil = models.StateIdle, nil, nil
		p.Clamp()
		out.Player = *p
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		return record(tx, now, models.LedgerTransaction{
			PlayerID:     id,
			Aggregate:    models.AggregatePlayer,
			Type:         models.TxCultivationXP,
			Delta:        out.Experience,
			BalanceAfter: p.Experience,
			Description:  fmt.Sprintf("Cultivated %d minute(s)", out.Minutes),
			Metadata:     datatypes.JSONMap{"speed": out.Speed},
		})
	})
	return settle(fmt.Sprintf("You cultivated for %d minutes and gained %s experience.", out.Minutes, amount(out.Experience)), out, err)
}
