package services

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cultivation-core/apperr"
	"cultivation-core/content"
	"cultivation-core/models"
)

func TestComputeRateStaysInBounds(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 2_000; i++ {
		base := r.Float64()*3 - 1
		temp := r.Float64()*2 - 1
		consumable := r.Float64()*2 - 1
		ceiling := r.Float64()*1.5 - 0.25

		got := ComputeRate(base, temp, consumable, ceiling)
		require.GreaterOrEqual(t, got, 0.0)
		require.LessOrEqual(t, got, 1.0)
		if ceiling > 0 && ceiling <= 1 {
			require.LessOrEqual(t, got, ceiling)
		}
	}

	assert.InDelta(t, 0.9, ComputeRate(0.75, 0, 0.2, 0.9), 1e-9)
	assert.InDelta(t, 0.7, ComputeRate(0.5, 0.05, 0.15, 0), 1e-9)
	assert.Equal(t, 0.0, ComputeRate(-0.5, 0, 0, 0))
}

func TestBreakthroughInsufficientExperience(t *testing.T) {
	h := newHarness(t)
	before := h.seed("p1", func(p *models.Player) { p.Level = 5; p.Experience = 1_000 })
	h.roller.PushFloats(0.0)

	res, err := h.core.Breakthrough.Attempt(h.ctx, "p1", "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, apperr.CodeInsufficientExperience, res.Code)
	assert.Equal(t, "Insufficient experience for Foundation Establishment Late: 1,000/1,500.", res.Message)

	after := h.player("p1")
	assert.Equal(t, before.Level, after.Level)
	assert.Equal(t, before.Experience, after.Experience)
	assert.Equal(t, before.MaxResource, after.MaxResource)
	assert.Equal(t, 0.0, h.roller.Float64(), "no draw was consumed")
}

func TestBreakthroughSuccessAppliesLevelGains(t *testing.T) {
	h := newHarness(t)
	before := h.seed("p1", func(p *models.Player) { p.Level = 5; p.Experience = 1_500; p.Resource = 20 })
	h.roller.PushFloats(0.40)

	res, err := h.core.Breakthrough.Attempt(h.ctx, "p1", "")
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	require.True(t, res.Data.Success)
	assert.InDelta(t, 0.5, res.Data.Rate, 1e-9)
	assert.Equal(t, StageResolved, res.Data.Stage)

	lvl, ok := h.catalog.Level(6)
	require.True(t, ok)
	gains := lvl.GainsFor(models.ArchetypeBody)
	assert.Equal(t, gains, res.Data.Gains)

	after := h.player("p1")
	assert.Equal(t, 6, after.Level)
	assert.Equal(t, before.MaxResource+gains.MaxResource, after.MaxResource)
	assert.Equal(t, before.PhysicalDamage+gains.PhysicalDamage, after.PhysicalDamage)
	assert.Equal(t, before.MagicDamage+gains.MagicDamage, after.MagicDamage)
	assert.Equal(t, before.PhysicalDefense+gains.PhysicalDefense, after.PhysicalDefense)
	assert.Equal(t, before.MagicDefense+gains.MagicDefense, after.MagicDefense)
	assert.Equal(t, before.MentalPower+gains.MentalPower, after.MentalPower)
	assert.Equal(t, before.Lifespan+gains.Lifespan, after.Lifespan)
	assert.Equal(t, after.MaxResource, after.Resource, "resource refills")
	assert.Equal(t, int64(1_500), after.Experience, "experience is not spent")
	require.NotNil(t, after.LastBreakthroughAt)
}

func TestBreakthroughFailureCostsExperience(t *testing.T) {
	h := newHarness(t)
	h.seed("p1", func(p *models.Player) { p.Level = 5; p.Experience = 1_500 })
	h.roller.PushFloats(0.60)

	res, err := h.core.Breakthrough.Attempt(h.ctx, "p1", "")
	require.NoError(t, err)
	require.True(t, res.Success, "a failed roll is still a completed attempt")
	assert.False(t, res.Data.Success)
	assert.Equal(t, int64(150), res.Data.ExpLost)

	after := h.player("p1")
	assert.Equal(t, 5, after.Level)
	assert.Equal(t, int64(1_350), after.Experience)
}

func TestBreakthroughAtPeak(t *testing.T) {
	h := newHarness(t)
	h.seed("p1", func(p *models.Player) { p.Level = h.catalog.MaxLevel(); p.Experience = 1 << 40 })

	res, err := h.core.Breakthrough.Attempt(h.ctx, "p1", "")
	require.NoError(t, err)
	assert.Equal(t, apperr.CodeMaxLevel, res.Code)
}

func TestBreakthroughConsumable(t *testing.T) {
	t.Run("rate is capped by the ceiling and the pill is spent", func(t *testing.T) {
		h := newHarness(t)
		h.seed("p1", func(p *models.Player) { p.Level = 3; p.Experience = 800 })
		h.give("p1", "Foundation Pill", 2)
		h.roller.PushFloats(0.95)

		res, err := h.core.Breakthrough.Attempt(h.ctx, "p1", "Foundation Pill")
		require.NoError(t, err)
		require.True(t, res.Success, res.Message)
		assert.InDelta(t, 0.9, res.Data.Rate, 1e-9)
		assert.False(t, res.Data.Success)
		assert.Equal(t, "Foundation Pill", res.Data.Consumable)

		inv, err := h.core.Ledger.Inventory(h.ctx, "p1")
		require.NoError(t, err)
		require.Len(t, inv.Data.Items, 1)
		assert.Equal(t, 1, inv.Data.Items[0].Count)
	})

	t.Run("pill for another realm is refused", func(t *testing.T) {
		h := newHarness(t)
		h.seed("p1", func(p *models.Player) { p.Level = 3; p.Experience = 800 })
		h.give("p1", "Core Pill", 1)

		res, err := h.core.Breakthrough.Attempt(h.ctx, "p1", "Core Pill")
		require.NoError(t, err)
		assert.Equal(t, apperr.CodeWrongConsumable, res.Code)

		inv, err := h.core.Ledger.Inventory(h.ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, inv.Data.Items[0].Count)
	})

	t.Run("missing pill rolls back", func(t *testing.T) {
		h := newHarness(t)
		h.seed("p1", func(p *models.Player) { p.Level = 3; p.Experience = 800 })
		h.roller.PushFloats(0.0)

		res, err := h.core.Breakthrough.Attempt(h.ctx, "p1", "Foundation Pill")
		require.NoError(t, err)
		assert.Equal(t, apperr.CodeNotFound, res.Code)
		assert.Equal(t, 3, h.player("p1").Level)
	})
}

func TestBreakthroughConsumesBonusEffects(t *testing.T) {
	h := newHarness(t)
	h.seed("p1", func(p *models.Player) { p.Level = 5; p.Experience = 1_500 })
	h.addEffect("p1", "Clarity Incense", 2*time.Hour, models.EffectDeltas{}, models.EffectModifiers{}, 0.05)
	h.addEffect("p1", "Spirit Gathering Pill", time.Hour, models.EffectDeltas{}, models.EffectModifiers{CultivationSpeed: 0.5}, 0)
	h.roller.PushFloats(0.52)

	res, err := h.core.Breakthrough.Attempt(h.ctx, "p1", "")
	require.NoError(t, err)
	require.True(t, res.Data.Success, res.Message)
	assert.InDelta(t, 0.55, res.Data.Rate, 1e-9)

	var names []string
	require.NoError(t, h.store.DB.Model(&models.ActivePillEffect{}).Where("player_id = ?", "p1").Pluck("pill_name", &names).Error)
	assert.Equal(t, []string{"Spirit Gathering Pill"}, names)
}

func TestTribulation(t *testing.T) {
	seedNearSoul := func(h *harness, defense int64) *models.Player {
		return h.seed("p1", func(p *models.Player) {
			p.Level = 9
			p.Experience = 10_000
			p.MaxResource = 20_000
			p.PhysicalDefense = defense
			p.MagicDefense = 0
		})
	}

	t.Run("survived", func(t *testing.T) {
		h := newHarness(t)
		before := seedNearSoul(h, 1_000_000)
		h.roller.PushFloats(0.0)

		res, err := h.core.Breakthrough.Attempt(h.ctx, "p1", "")
		require.NoError(t, err)
		require.True(t, res.Data.Success, res.Message)
		require.NotNil(t, res.Data.Tribulation)
		assert.Equal(t, StageTribulationResolved, res.Data.Stage)
		assert.True(t, res.Data.Tribulation.Survived)
		assert.Len(t, res.Data.Tribulation.Waves, 3)
		assert.Zero(t, res.Data.Tribulation.TotalDamage)

		after := h.player("p1")
		assert.Equal(t, 10, after.Level)
		assert.Equal(t, int64(11_000), after.Experience)
		lvl, _ := h.catalog.Level(10)
		assert.Equal(t, before.Lifespan+lvl.GainsFor(models.ArchetypeBody).Lifespan+100, after.Lifespan)
	})

	t.Run("failed reverts the level", func(t *testing.T) {
		h := newHarness(t)
		before := seedNearSoul(h, 0)
		h.roller.PushFloats(0.0)

		res, err := h.core.Breakthrough.Attempt(h.ctx, "p1", "")
		require.NoError(t, err)
		require.True(t, res.Success)
		require.True(t, res.Data.Success, "the roll itself succeeded")
		require.NotNil(t, res.Data.Tribulation)
		assert.False(t, res.Data.Tribulation.Survived)
		assert.Equal(t, int64(-2_000), res.Data.Tribulation.ExpDelta)
		assert.Equal(t, 9, res.Data.ToLevel)

		after := h.player("p1")
		assert.Equal(t, 9, after.Level)
		assert.Equal(t, before.MaxResource, after.MaxResource)
		assert.Equal(t, int64(8_000), after.Experience)
	})

	t.Run("waves scale with level", func(t *testing.T) {
		cfg := content.Default().Tribulation()
		assert.False(t, TribulationTriggered(cfg, 9))
		assert.True(t, TribulationTriggered(cfg, 10))
		assert.Equal(t, 3, TribulationWaves(cfg, 10))
		assert.Equal(t, 5, TribulationWaves(cfg, 12))
	})

	t.Run("death protection softens every wave", func(t *testing.T) {
		cfg := content.Default().Tribulation()
		p := &models.Player{MaxResource: 1_000}
		bare := ResolveTribulation(cfg, 10, p, 0, NewScriptedRoller())
		guarded := ResolveTribulation(cfg, 10, p, 0.5, NewScriptedRoller())
		require.NotEmpty(t, bare.Waves)
		assert.Equal(t, int64(350), bare.Waves[0].Damage)
		assert.Equal(t, int64(175), guarded.Waves[0].Damage)
	})
}

func TestBreakthroughSettlesLinkedLoan(t *testing.T) {
	h := newHarness(t)
	h.seed("p1", func(p *models.Player) { p.Level = 5; p.Experience = 1_500; p.Currency = 500 })
	loan, err := h.core.Ledger.Borrow(h.ctx, "p1", BorrowRequest{Amount: 5_000, BreakthroughLinked: true})
	require.NoError(t, err)
	require.True(t, loan.Success)
	h.roller.PushFloats(0.1)

	res, err := h.core.Breakthrough.Attempt(h.ctx, "p1", "")
	require.NoError(t, err)
	require.True(t, res.Data.Success)
	require.NotNil(t, res.Data.Loan)
	assert.True(t, res.Data.Loan.Repaid)
	assert.Equal(t, int64(450), h.player("p1").Currency)
}
