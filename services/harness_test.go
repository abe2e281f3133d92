package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cultivation-core/config"
	"cultivation-core/content"
	"cultivation-core/models"
	"cultivation-core/store"
	"cultivation-core/store/storetest"
)

var epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

const minute = time.Minute

type harness struct {
	t       *testing.T
	ctx     context.Context
	store   *store.Store
	catalog *content.Catalog
	clock   *FakeClock
	roller  *ScriptedRoller
	core    *Core
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, content.Default())
}

func newHarnessWith(t *testing.T, cat *content.Catalog) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		ctx:     context.Background(),
		store:   storetest.New(t),
		catalog: cat,
		clock:   NewFakeClock(epoch),
		roller:  NewScriptedRoller(),
	}
	bank := config.Bank{DepositCap: 1_000_000, DailyInterest: 0.01}
	h.core = NewCore(h.store, cat, bank, h.clock, h.roller)
	return h
}

// seed inserts a player; mutate adjusts the defaults first.
func (h *harness) seed(id string, mutate func(p *models.Player)) *models.Player {
	h.t.Helper()
	p := &models.Player{
		ID:              id,
		Name:            id,
		Archetype:       models.ArchetypeBody,
		Resource:        100,
		MaxResource:     200,
		PhysicalDamage:  10,
		MagicDamage:     5,
		PhysicalDefense: 10,
		MagicDefense:    5,
		MentalPower:     5,
		Lifespan:        100,
		Ring:            "basic_ring",
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(h.t, h.store.DB.Create(p).Error)
	return p
}

func (h *harness) player(id string) models.Player {
	h.t.Helper()
	var p models.Player
	require.NoError(h.t, h.store.DB.First(&p, "id = ?", id).Error)
	return p
}

func (h *harness) give(id, item string, n int) {
	h.t.Helper()
	res, err := h.core.Ledger.StoreItem(h.ctx, id, item, n)
	require.NoError(h.t, err)
	require.True(h.t, res.Success, res.Message)
}

func (h *harness) txCount(playerID string, kind models.TxType) int64 {
	h.t.Helper()
	var n int64
	require.NoError(h.t, h.store.DB.Model(&models.LedgerTransaction{}).
		Where("player_id = ? AND type = ?", playerID, kind).Count(&n).Error)
	return n
}

func (h *harness) restock() {
	h.t.Helper()
	res, err := h.core.Ledger.RestockShop(h.ctx)
	require.NoError(h.t, err)
	require.True(h.t, res.Success, res.Message)
}

// addEffect inserts an active effect started at the current fake time.
func (h *harness) addEffect(playerID, pill string, duration time.Duration, deltas models.EffectDeltas, mods models.EffectModifiers, bonus float64) models.ActivePillEffect {
	h.t.Helper()
	now := h.clock.Now()
	e := models.ActivePillEffect{
		ID:                pill + "-" + playerID,
		PlayerID:          playerID,
		PillName:          pill,
		StartedAt:         now,
		LastResolvedAt:    now,
		Deltas:            models.NewBlob(deltas),
		Modifiers:         models.NewBlob(mods),
		BreakthroughBonus: bonus,
	}
	if duration > 0 {
		exp := now.Add(duration)
		e.ExpiresAt = &exp
	}
	require.NoError(h.t, h.store.DB.Create(&e).Error)
	return e
}
