package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cultivation-core/apperr"
	"cultivation-core/content"
	"cultivation-core/models"
)

func TestCreatePlayer(t *testing.T) {
	h := newHarness(t)
	h.roller.PushInts(40)

	res, err := h.core.Players.CreatePlayer(h.ctx, "p1", "Han Li", models.ArchetypeSpirit)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	p := h.player("p1")
	assert.Equal(t, int64(120), p.MaxResource, "first draw lands on the top of the range")
	assert.Equal(t, p.MaxResource, p.Resource)
	assert.Equal(t, int64(3), p.PhysicalDamage)
	assert.Equal(t, int64(80), p.Lifespan)
	assert.Equal(t, "basic_ring", p.Ring)
	assert.Zero(t, p.Level)

	res, err = h.core.Players.CreatePlayer(h.ctx, "p1", "Again", models.ArchetypeBody)
	require.NoError(t, err)
	assert.Equal(t, apperr.CodePlayerExists, res.Code)

	res, err = h.core.Players.CreatePlayer(h.ctx, "p2", "", models.Archetype("demon"))
	require.NoError(t, err)
	assert.Equal(t, apperr.CodeInvalidArchetype, res.Code)
}

func TestStatusResolvesEffects(t *testing.T) {
	h := newHarness(t)
	h.seed("p1", func(p *models.Player) { p.Archetype = models.ArchetypeSpirit; p.Resource = 0 })
	h.addEffect("p1", "Spirit Gathering Pill", time.Hour, models.EffectDeltas{ResourceRegen: 5}, models.EffectModifiers{}, 0)
	h.clock.Advance(4 * minute)

	res, err := h.core.Players.Status(h.ctx, "p1")
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Mortal", res.Data.LevelName)
	assert.Equal(t, "Qi Refining Early", res.Data.NextLevel)
	assert.Equal(t, "qi", res.Data.Resource)
	assert.Equal(t, int64(20), res.Data.Player.Resource)
	assert.Equal(t, int64(20), h.player("p1").Resource)

	res, err = h.core.Players.Status(h.ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, apperr.CodePlayerNotFound, res.Code)
}

func TestUsePillKinds(t *testing.T) {
	t.Run("temporary starts an effect", func(t *testing.T) {
		h := newHarness(t)
		h.seed("p1", nil)
		h.give("p1", "Spirit Gathering Pill", 1)

		res, err := h.core.Players.UsePill(h.ctx, "p1", "Spirit Gathering Pill")
		require.NoError(t, err)
		require.True(t, res.Success, res.Message)
		require.NotNil(t, res.Data.Effect)
		require.NotNil(t, res.Data.Effect.ExpiresAt)
		assert.Equal(t, epoch.Add(time.Hour), *res.Data.Effect.ExpiresAt)

		mods, err := h.core.Effects.Modifiers(h.ctx, "p1")
		require.NoError(t, err)
		assert.InDelta(t, 1.5, mods.Data.CultivationSpeed, 1e-9)
	})

	t.Run("instant restores and clamps", func(t *testing.T) {
		h := newHarness(t)
		h.seed("p1", func(p *models.Player) { p.Resource = 100; p.MaxResource = 200 })
		h.give("p1", "Qi Recovery Pill", 1)

		res, err := h.core.Players.UsePill(h.ctx, "p1", "Qi Recovery Pill")
		require.NoError(t, err)
		require.True(t, res.Success, res.Message)
		assert.Equal(t, int64(200), h.player("p1").Resource)
	})

	t.Run("level requirement keeps the pill", func(t *testing.T) {
		h := newHarness(t)
		h.seed("p1", func(p *models.Player) { p.Level = 1 })
		h.give("p1", "Longevity Pill", 1)

		res, err := h.core.Players.UsePill(h.ctx, "p1", "Longevity Pill")
		require.NoError(t, err)
		assert.Equal(t, apperr.CodeLevelRequirement, res.Code)

		inv, err := h.core.Ledger.Inventory(h.ctx, "p1")
		require.NoError(t, err)
		assert.Len(t, inv.Data.Items, 1)
	})

	t.Run("refusals", func(t *testing.T) {
		h := newHarness(t)
		h.seed("p1", nil)

		res, err := h.core.Players.UsePill(h.ctx, "p1", "Foundation Pill")
		require.NoError(t, err)
		assert.Equal(t, apperr.CodeWrongConsumable, res.Code)

		res, err = h.core.Players.UsePill(h.ctx, "p1", "Iron Sword")
		require.NoError(t, err)
		assert.Equal(t, apperr.CodeWrongConsumable, res.Code)

		res, err = h.core.Players.UsePill(h.ctx, "p1", "Dragon Egg")
		require.NoError(t, err)
		assert.Equal(t, apperr.CodeUnknownItem, res.Code)

		res, err = h.core.Players.UsePill(h.ctx, "p1", "Qi Recovery Pill")
		require.NoError(t, err)
		assert.Equal(t, apperr.CodeNotFound, res.Code)
	})
}

func TestPermanentGainsAreCappedPerLevel(t *testing.T) {
	h := newHarness(t)
	h.seed("p1", func(p *models.Player) { p.Level = 1; p.MaxResource = 200 })
	h.give("p1", "Marrow Washing Pill", 2)
	h.give("p1", "Reversal Pill", 1)

	// Level 1 body gains 60 max resource, so the cap is 18.
	first, err := h.core.Players.UsePill(h.ctx, "p1", "Marrow Washing Pill")
	require.NoError(t, err)
	require.True(t, first.Success, first.Message)
	assert.Equal(t, 10.0, first.Data.Applied[models.AttrMaxResource])
	assert.InDelta(t, 0.02, first.Data.Applied[models.AttrCultivationSpeed], 1e-9)
	assert.Equal(t, 1.0, first.Data.Discarded[models.AttrMagicDefense], "a zero cap discards everything")

	second, err := h.core.Players.UsePill(h.ctx, "p1", "Marrow Washing Pill")
	require.NoError(t, err)
	require.True(t, second.Success)
	assert.Equal(t, 8.0, second.Data.Applied[models.AttrMaxResource])
	assert.Equal(t, 2.0, second.Data.Discarded[models.AttrMaxResource])
	assert.Equal(t, int64(218), h.player("p1").MaxResource)

	mods, err := h.core.Effects.Modifiers(h.ctx, "p1")
	require.NoError(t, err)
	assert.InDelta(t, 1.04, mods.Data.CultivationSpeed, 1e-9)

	reset, err := h.core.Players.UsePill(h.ctx, "p1", "Reversal Pill")
	require.NoError(t, err)
	require.True(t, reset.Success, reset.Message)
	assert.Equal(t, content.PillReset, reset.Data.Kind)
	assert.Equal(t, int64(200), h.player("p1").MaxResource)

	var n int64
	require.NoError(t, h.store.DB.Model(&models.PermanentPillGain{}).Where("player_id = ?", "p1").Count(&n).Error)
	assert.Zero(t, n)
}

func TestPermanentGainsAtMortalLevel(t *testing.T) {
	h := newHarness(t)
	h.seed("p1", func(p *models.Player) { p.Level = 0; p.MaxResource = 200 })
	h.give("p1", "Marrow Washing Pill", 2)

	// Mortal body baseline is 40 max resource, so the cap is 12.
	first, err := h.core.Players.UsePill(h.ctx, "p1", "Marrow Washing Pill")
	require.NoError(t, err)
	require.True(t, first.Success, first.Message)
	assert.Equal(t, 10.0, first.Data.Applied[models.AttrMaxResource])

	second, err := h.core.Players.UsePill(h.ctx, "p1", "Marrow Washing Pill")
	require.NoError(t, err)
	require.True(t, second.Success, second.Message)
	assert.Equal(t, 2.0, second.Data.Applied[models.AttrMaxResource])
	assert.Equal(t, 8.0, second.Data.Discarded[models.AttrMaxResource])
	assert.Equal(t, int64(212), h.player("p1").MaxResource)
}

func TestCultivationSession(t *testing.T) {
	h := newHarness(t)
	h.seed("p1", func(p *models.Player) { p.Level = 2; p.Experience = 300 })

	res, err := h.core.Players.StartCultivation(h.ctx, "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, apperr.CodeInvalidAmount, res.Code)

	end, err := h.core.Players.EndCultivation(h.ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, apperr.CodeNotBusy, end.Code)

	res, err = h.core.Players.StartCultivation(h.ctx, "p1", 30)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, models.StateCultivating, res.Data.State)

	res, err = h.core.Players.StartCultivation(h.ctx, "p1", 30)
	require.NoError(t, err)
	assert.Equal(t, apperr.CodeBusy, res.Code)

	h.addEffect("p1", "Spirit Gathering Pill", 2*time.Hour, models.EffectDeltas{}, models.EffectModifiers{CultivationSpeed: 0.5}, 0)
	h.clock.Advance(45 * minute)

	end, err = h.core.Players.EndCultivation(h.ctx, "p1")
	require.NoError(t, err)
	require.True(t, end.Success, end.Message)
	assert.Equal(t, int64(30), end.Data.Minutes, "capped at the scheduled end")
	assert.InDelta(t, 1.5, end.Data.Speed, 1e-9)
	assert.Equal(t, int64(135), end.Data.Experience)

	p := h.player("p1")
	assert.Equal(t, int64(435), p.Experience)
	assert.False(t, p.Busy())
	assert.Equal(t, int64(1), h.txCount("p1", models.TxCultivationXP))
}
