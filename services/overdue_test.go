package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cultivation-core/apperr"
	"cultivation-core/models"
)

func TestSweepWithoutLoan(t *testing.T) {
	h := newHarness(t)
	h.seed("p1", nil)

	res, err := h.core.Sweeper.Check(h.ctx, "p1")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.False(t, res.Data.Terminated)
	assert.Nil(t, res.Data.Reminder)
}

func TestSweepRemindsBeforeDue(t *testing.T) {
	h := newHarness(t)
	h.seed("p1", nil)
	_, err := h.core.Ledger.Borrow(h.ctx, "p1", BorrowRequest{Amount: 10_000})
	require.NoError(t, err)

	h.clock.Advance(day)
	res, err := h.core.Sweeper.Check(h.ctx, "p1")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotNil(t, res.Data.Reminder)
	assert.Equal(t, int64(10_100), res.Data.Reminder.AmountDue)
	assert.Equal(t, 6*day, res.Data.Reminder.Remaining)
	assert.Contains(t, res.Message, "10,100")

	// Exactly at the due instant the loan is still not overdue.
	h.clock.Advance(6 * day)
	res, err = h.core.Sweeper.Check(h.ctx, "p1")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.NotNil(t, res.Data.Reminder)
	assert.Equal(t, 1, countPlayers(t, h, "p1"))
}

func TestSweepTerminatesExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.seed("p1", func(p *models.Player) { p.Currency = 50_000 })
	h.give("p1", "Spirit Herb", 4)
	h.addEffect("p1", "Spirit Gathering Pill", time.Hour, models.EffectDeltas{ResourceRegen: 1}, models.EffectModifiers{}, 0)
	_, err := h.core.Ledger.Deposit(h.ctx, "p1", 20_000)
	require.NoError(t, err)
	_, err = h.core.Ledger.Borrow(h.ctx, "p1", BorrowRequest{Amount: 10_000})
	require.NoError(t, err)
	h.seed("bystander", nil)

	h.clock.Advance(7*day + time.Second)

	const callers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		terminated int
		quiet      int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.core.Sweeper.Check(context.Background(), "p1")
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case res.Code == apperr.CodeTerminated:
				assert.True(t, res.Data.Terminated)
				terminated++
			case res.Success && !res.Data.Terminated:
				quiet++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, terminated)
	assert.Equal(t, callers-1, quiet)

	assert.Zero(t, countPlayers(t, h, "p1"))
	for _, model := range []any{&models.InventoryItem{}, &models.ActivePillEffect{}, &models.BankAccount{}, &models.PermanentPillGain{}} {
		var n int64
		require.NoError(t, h.store.DB.Model(model).Where("player_id = ?", "p1").Count(&n).Error)
		assert.Zero(t, n, "%T rows remain", model)
	}

	var loan models.Loan
	require.NoError(t, h.store.DB.First(&loan, "player_id = ?", "p1").Error)
	assert.Equal(t, models.LoanOverdue, loan.Status)
	assert.Equal(t, int64(1), h.txCount("p1", models.TxLoanOverdue))

	assert.Equal(t, 1, countPlayers(t, h, "bystander"))
}

func TestGate(t *testing.T) {
	t.Run("busy players may only use allow-listed actions", func(t *testing.T) {
		h := newHarness(t)
		h.seed("p1", nil)
		_, err := h.core.Players.StartCultivation(h.ctx, "p1", 60)
		require.NoError(t, err)

		adm, err := h.core.Gate.Admit(h.ctx, "p1", "breakthrough")
		require.NoError(t, err)
		assert.Equal(t, apperr.CodeBusy, adm.Code)

		adm, err = h.core.Gate.Admit(h.ctx, "p1", "status")
		require.NoError(t, err)
		assert.True(t, adm.Success)
	})

	t.Run("guarded op is skipped when refused", func(t *testing.T) {
		h := newHarness(t)
		called := false
		res, reminder, err := Guarded(h.ctx, h.core.Gate, "ghost", "status", func(ctx context.Context) (Result[int], error) {
			called = true
			return Ok("", 1), nil
		})
		require.NoError(t, err)
		assert.False(t, called)
		assert.Nil(t, reminder)
		assert.Equal(t, apperr.CodePlayerNotFound, res.Code)
	})

	t.Run("reminder rides along", func(t *testing.T) {
		h := newHarness(t)
		h.seed("p1", nil)
		_, err := h.core.Ledger.Borrow(h.ctx, "p1", BorrowRequest{Amount: 1_000})
		require.NoError(t, err)

		res, reminder, err := Guarded(h.ctx, h.core.Gate, "p1", "status", statusOf(h, "p1"))
		require.NoError(t, err)
		require.True(t, res.Success)
		require.NotNil(t, reminder)
		assert.Equal(t, int64(1_010), reminder.AmountDue)
	})

	t.Run("overdue sweep runs before the action", func(t *testing.T) {
		h := newHarness(t)
		h.seed("p1", nil)
		_, err := h.core.Ledger.Borrow(h.ctx, "p1", BorrowRequest{Amount: 1_000, Subtype: models.LoanExpedited})
		require.NoError(t, err)
		h.clock.Advance(4 * day)

		res, _, err := Guarded(h.ctx, h.core.Gate, "p1", "status", statusOf(h, "p1"))
		require.NoError(t, err)
		assert.Equal(t, apperr.CodeTerminated, res.Code)

		res, _, err = Guarded(h.ctx, h.core.Gate, "p1", "status", statusOf(h, "p1"))
		require.NoError(t, err)
		assert.Equal(t, apperr.CodePlayerNotFound, res.Code)
	})
}

func countPlayers(t *testing.T, h *harness, id string) int {
	t.Helper()
	var n int64
	require.NoError(t, h.store.DB.Unscoped().Model(&models.Player{}).Where("id = ?", id).Count(&n).Error)
	return int(n)
}

func statusOf(h *harness, id string) func(context.Context) (Result[Status], error) {
	return func(ctx context.Context) (Result[Status], error) {
		return h.core.Players.Status(ctx, id)
	}
}
