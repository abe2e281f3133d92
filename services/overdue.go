// services/overdue.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cultivation-core/apperr"
	"cultivation-core/models"
	"cultivation-core/store"
)

// OverdueSweeper terminates players whose loan is past due.
type OverdueSweeper struct {
	Store *store.Store
	Clock Clock
}

func NewOverdueSweeper(st *store.Store, clock Clock) *OverdueSweeper {
	return &OverdueSweeper{Store: st, Clock: clock}
}

// Reminder is the non-blocking notice for an active, not yet due loan.
type Reminder struct {
	LoanID    string        `json:"loan_id"`
	AmountDue int64         `json:"amount_due"`
	DueAt     time.Time     `json:"due_at"`
	Remaining time.Duration `json:"remaining"`
	Message   string        `json:"message"`
}

// SweepResult is what the sweeper found.
type SweepResult struct {
	Terminated bool      `json:"terminated"`
	LoanID     string    `json:"loan_id,omitempty"`
	Reminder   *Reminder `json:"reminder,omitempty"`
}

// Check runs before every player action. A past-due loan is re-validated
// under the player's exclusive scope; only the caller that still finds it
// active performs the cascade, later callers find nothing to do.
func (s *OverdueSweeper) Check(ctx context.Context, playerID string) (res Result[SweepResult], err error) {
	ctx, span := startSpan(ctx, "sweeper.Check", playerID)
	defer func() { finish(span, res, err) }()

	var loan models.Loan
	err = s.Store.DB.WithContext(ctx).
		Where("player_id = ? AND status = ?", playerID, models.LoanActive).
		First(&loan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Ok("", SweepResult{}), nil
	}
	if err != nil {
		return settle("", SweepResult{}, err)
	}

	now := s.Clock.Now()
	if !now.After(loan.DueAt) {
		r := &Reminder{
			LoanID:    loan.ID,
			AmountDue: AmountDue(&loan, now),
			DueAt:     loan.DueAt,
			Remaining: loan.DueAt.Sub(now),
		}
		r.Message = fmt.Sprintf("Reminder: you owe %s spirit stones, due in %s.", amount(r.AmountDue), r.Remaining.Round(time.Minute))
		return Ok(r.Message, SweepResult{Reminder: r}), nil
	}

	var out SweepResult
	keys := []string{store.PlayerKey(playerID), store.BankKey(playerID), store.InventoryKey(playerID)}
	err = s.Store.Exclusive(ctx, keys, func(tx *gorm.DB) error {
		var current models.Loan
		err := store.ForUpdate(tx).
			Where("id = ? AND status = ?", loan.ID, models.LoanActive).
			First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := terminateTx(tx, now, &current); err != nil {
			return err
		}
		out = SweepResult{Terminated: true, LoanID: current.ID}
		return nil
	})
	if err != nil {
		return settle("", SweepResult{}, err)
	}
	if !out.Terminated {
		return Ok("", out), nil
	}

	log.Printf("💀 [SWEEPER] %s terminated: loan %s overdue since %s", playerID, loan.ID, loan.DueAt.Format(time.DateTime))
	r := Failure[SweepResult](apperr.New(apperr.CodeTerminated,
		"Your loan went unpaid past its due date. The bank's enforcers have ended your cultivation."))
	r.Data = out
	return r, nil
}

// terminateTx writes the audit entry, then deletes the player's progression
// state and marks the loan overdue, all in tx.
func terminateTx(tx *gorm.DB, now time.Time, loan *models.Loan) error {
	due := AmountDue(loan, now)
	if err := record(tx, now, models.LedgerTransaction{
		PlayerID:     loan.PlayerID,
		Aggregate:    models.AggregateBank,
		Type:         models.TxLoanOverdue,
		Delta:        0,
		BalanceAfter: 0,
		Description:  fmt.Sprintf("Loan %s overdue; cultivation terminated", loan.ID),
		Metadata: datatypes.JSONMap{
			"loan_id":    loan.ID,
			"principal":  loan.Principal,
			"amount_due": due,
			"due_at":     loan.DueAt.Format(time.RFC3339),
		},
	}); err != nil {
		return err
	}

	pid := loan.PlayerID
	for _, model := range []any{
		&models.ActivePillEffect{},
		&models.PermanentPillGain{},
		&models.InventoryItem{},
		&models.BankAccount{},
	} {
		if err := tx.Where("player_id = ?", pid).Delete(model).Error; err != nil {
			return err
		}
	}
	if err := tx.Unscoped().Where("id = ?", pid).Delete(&models.Player{}).Error; err != nil {
		return err
	}
	return tx.Model(loan).Updates(map[string]any{"status": models.LoanOverdue, "closed_at": now}).Error
}
