// services/bank.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cultivation-core/apperr"
	"cultivation-core/models"
	"cultivation-core/store"
)

const day = 24 * time.Hour

// AmountDue is principal + floor(principal × rate × max(1, whole days elapsed)).
func AmountDue(loan *models.Loan, now time.Time) int64 {
	days := int64(now.Sub(loan.BorrowedAt) / day)
	if days < 1 {
		days = 1
	}
	interest := math.Floor(float64(loan.Principal) * loan.DailyRate * float64(days))
	return loan.Principal + int64(interest)
}

// LoanView is a loan with its current amount due.
type LoanView struct {
	models.Loan
	AmountDue int64         `json:"amount_due"`
	Remaining time.Duration `json:"remaining"`
}

// BankStatement is a player's bank view.
type BankStatement struct {
	Balance  int64     `json:"balance"`
	Currency int64     `json:"currency"`
	Interest int64     `json:"interest_settled"`
	Loan     *LoanView `json:"loan,omitempty"`
}

func ensureAccount(tx *gorm.DB, playerID string, now time.Time) (*models.BankAccount, error) {
	var acct models.BankAccount
	err := store.ForUpdate(tx).First(&acct, "player_id = ?", playerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		acct = models.BankAccount{PlayerID: playerID, LastInterestAt: now}
		if err := tx.Create(&acct).Error; err != nil {
			return nil, err
		}
		return &acct, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// settleInterestTx credits whole days of deposit interest, capped at the
// deposit ceiling. LastInterestAt advances by whole days only.
func (s *LedgerService) settleInterestTx(tx *gorm.DB, acct *models.BankAccount, now time.Time) (int64, error) {
	days := int64(now.Sub(acct.LastInterestAt) / day)
	if days < 1 {
		return 0, nil
	}
	interest := int64(math.Floor(float64(acct.Balance) * s.BankConfig.DailyInterest * float64(days)))
	if room := s.BankConfig.DepositCap - acct.Balance; interest > room {
		interest = max(room, 0)
	}
	acct.Balance += interest
	acct.LastInterestAt = acct.LastInterestAt.Add(time.Duration(days) * day)
	if err := tx.Model(acct).Updates(map[string]any{
		"balance":          acct.Balance,
		"last_interest_at": acct.LastInterestAt,
	}).Error; err != nil {
		return 0, err
	}
	if interest == 0 {
		return 0, nil
	}
	return interest, record(tx, now, models.LedgerTransaction{
		PlayerID:     acct.PlayerID,
		Aggregate:    models.AggregateBank,
		Type:         models.TxInterest,
		Delta:        interest,
		BalanceAfter: acct.Balance,
		Description:  fmt.Sprintf("Interest for %d day(s)", days),
	})
}

func activeLoan(tx *gorm.DB, playerID string) (*models.Loan, error) {
	var loan models.Loan
	err := store.ForUpdate(tx).Where("player_id = ? AND status = ?", playerID, models.LoanActive).First(&loan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func bankKeys(playerID string) []string {
	return []string{store.PlayerKey(playerID), store.BankKey(playerID)}
}

// Bank settles interest and returns the player's statement.
func (s *LedgerService) Bank(ctx context.Context, playerID string) (res Result[BankStatement], err error) {
	ctx, span := startSpan(ctx, "ledger.Bank", playerID)
	defer func() { finish(span, res, err) }()

	var out BankStatement
	err = s.Store.Exclusive(ctx, bankKeys(playerID), func(tx *gorm.DB) error {
		now := s.Clock.Now()
		p, err := loadPlayer(tx, playerID)
		if err != nil {
			return err
		}
		acct, err := ensureAccount(tx, playerID, now)
		if err != nil {
			return err
		}
		if out.Interest, err = s.settleInterestTx(tx, acct, now); err != nil {
			return err
		}
		out.Balance, out.Currency = acct.Balance, p.Currency

		loan, err := activeLoan(tx, playerID)
		if err != nil || loan == nil {
			return err
		}
		out.Loan = &LoanView{Loan: *loan, AmountDue: AmountDue(loan, now), Remaining: loan.DueAt.Sub(now)}
		return nil
	})
	return settle(fmt.Sprintf("Bank balance: %s spirit stones.", amount(out.Balance)), out, err)
}

// Deposit moves amount from the player's purse into the bank.
func (s *LedgerService) Deposit(ctx context.Context, playerID string, amt int64) (res Result[BankStatement], err error) {
	ctx, span := startSpan(ctx, "ledger.Deposit", playerID)
	defer func() { finish(span, res, err) }()

	if amt <= 0 {
		return Failure[BankStatement](apperr.New(apperr.CodeInvalidAmount, "Amount must be positive.")), nil
	}

	var out BankStatement
	err = s.Store.Exclusive(ctx, bankKeys(playerID), func(tx *gorm.DB) error {
		now := s.Clock.Now()
		p, err := loadPlayer(tx, playerID)
		if err != nil {
			return err
		}
		acct, err := ensureAccount(tx, playerID, now)
		if err != nil {
			return err
		}
		if out.Interest, err = s.settleInterestTx(tx, acct, now); err != nil {
			return err
		}
		if p.Currency < amt {
			return apperr.New(apperr.CodeInsufficientFunds,
				fmt.Sprintf("You only carry %s spirit stones.", amount(p.Currency)))
		}
		if acct.Balance+amt > s.BankConfig.DepositCap {
			return apperr.New(apperr.CodeCapExceeded,
				fmt.Sprintf("Deposits are capped at %s spirit stones.", amount(s.BankConfig.DepositCap)))
		}

		p.Currency -= amt
		acct.Balance += amt
		if err := tx.Model(p).Update("currency", p.Currency).Error; err != nil {
			return err
		}
		if err := tx.Model(acct).Update("balance", acct.Balance).Error; err != nil {
			return err
		}
		out.Balance, out.Currency = acct.Balance, p.Currency
		return record(tx, now, models.LedgerTransaction{
			PlayerID:     playerID,
			Aggregate:    models.AggregateBank,
			Type:         models.TxDeposit,
			Delta:        amt,
			BalanceAfter: acct.Balance,
			Description:  fmt.Sprintf("Deposited %d", amt),
		})
	})
	return settle(fmt.Sprintf("Deposited %s spirit stones.", amount(amt)), out, err)
}

// Withdraw moves amount from the bank into the player's purse.
func (s *LedgerService) Withdraw(ctx context.Context, playerID string, amt int64) (res Result[BankStatement], err error) {
	ctx, span := startSpan(ctx, "ledger.Withdraw", playerID)
	defer func() { finish(span, res, err) }()

	if amt <= 0 {
		return Failure[BankStatement](apperr.New(apperr.CodeInvalidAmount, "Amount must be positive.")), nil
	}

	var out BankStatement
	err = s.Store.Exclusive(ctx, bankKeys(playerID), func(tx *gorm.DB) error {
		now := s.Clock.Now()
		p, err := loadPlayer(tx, playerID)
		if err != nil {
			return err
		}
		acct, err := ensureAccount(tx, playerID, now)
		if err != nil {
			return err
		}
		if out.Interest, err = s.settleInterestTx(tx, acct, now); err != nil {
			return err
		}
		if acct.Balance < amt {
			return apperr.New(apperr.CodeInsufficientFunds,
				fmt.Sprintf("Your bank balance is only %s spirit stones.", amount(acct.Balance)))
		}

		p.Currency += amt
		acct.Balance -= amt
		if err := tx.Model(p).Update("currency", p.Currency).Error; err != nil {
			return err
		}
		if err := tx.Model(acct).Update("balance", acct.Balance).Error; err != nil {
			return err
		}
		out.Balance, out.Currency = acct.Balance, p.Currency
		return record(tx, now, models.LedgerTransaction{
			PlayerID:     playerID,
			Aggregate:    models.AggregateBank,
			Type:         models.TxWithdraw,
			Delta:        -amt,
			BalanceAfter: acct.Balance,
			Description:  fmt.Sprintf("Withdrew %d", amt),
		})
	})
	return settle(fmt.Sprintf("Withdrew %s spirit stones.", amount(amt)), out, err)
}

// BorrowRequest opens a loan.
type BorrowRequest struct {
	Amount  int64              `json:"amount"`
	Subtype models.LoanSubtype `json:"subtype"`
	// Repay automatically after the next successful breakthrough.
	BreakthroughLinked bool `json:"breakthrough_linked"`
}

// Borrow creates a loan and credits the player's purse in one step.
func (s *LedgerService) Borrow(ctx context.Context, playerID string, req BorrowRequest) (res Result[LoanView], err error) {
	ctx, span := startSpan(ctx, "ledger.Borrow", playerID)
	defer func() { finish(span, res, err) }()

	if req.Subtype == "" {
		req.Subtype = models.LoanNormal
	}
	product, ok := s.Catalog.LoanProduct(req.Subtype)
	if !ok {
		return Failure[LoanView](apperr.New(apperr.CodeNotFound, fmt.Sprintf("There is no %q loan.", req.Subtype))), nil
	}
	if req.Amount < product.MinAmount || req.Amount > product.MaxAmount {
		return Failure[LoanView](apperr.New(apperr.CodeAmountOutOfRange,
			fmt.Sprintf("A %s loan must be between %s and %s spirit stones.", req.Subtype, amount(product.MinAmount), amount(product.MaxAmount)))), nil
	}

	var out LoanView
	err = s.Store.Exclusive(ctx, bankKeys(playerID), func(tx *gorm.DB) error {
		now := s.Clock.Now()
		p, err := loadPlayer(tx, playerID)
		if err != nil {
			return err
		}
		existing, err := activeLoan(tx, playerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.New(apperr.CodeActiveLoanExists, "You must repay your current loan first.")
		}

		loan := models.Loan{
			ID:                 uuid.NewString(),
			PlayerID:           playerID,
			Principal:          req.Amount,
			DailyRate:          product.DailyRate,
			BorrowedAt:         now,
			DueAt:              now.Add(time.Duration(product.TermDays) * day),
			Status:             models.LoanActive,
			Subtype:            req.Subtype,
			BreakthroughLinked: req.BreakthroughLinked,
		}
		if err := tx.Create(&loan).Error; err != nil {
			return err
		}
		p.Currency += req.Amount
		if err := tx.Model(p).Update("currency", p.Currency).Error; err != nil {
			return err
		}
		out = LoanView{Loan: loan, AmountDue: AmountDue(&loan, now), Remaining: loan.DueAt.Sub(now)}
		return record(tx, now, models.LedgerTransaction{
			PlayerID:     playerID,
			Aggregate:    models.AggregateWallet,
			Type:         models.TxBorrow,
			Delta:        req.Amount,
			BalanceAfter: p.Currency,
			Description:  fmt.Sprintf("Borrowed %d (%s)", req.Amount, req.Subtype),
			Metadata:     datatypes.JSONMap{"loan_id": loan.ID, "subtype": string(req.Subtype)},
		})
	})
	return settle(fmt.Sprintf("You borrowed %s spirit stones. Repay before %s.", amount(req.Amount), out.DueAt.Format(time.DateTime)), out, err)
}

// Repay closes the active loan.
func (s *LedgerService) Repay(ctx context.Context, playerID string) (res Result[LoanView], err error) {
	ctx, span := startSpan(ctx, "ledger.Repay", playerID)
	defer func() { finish(span, res, err) }()

	var out LoanView
	err = s.Store.Exclusive(ctx, bankKeys(playerID), func(tx *gorm.DB) error {
		now := s.Clock.Now()
		p, err := loadPlayer(tx, playerID)
		if err != nil {
			return err
		}
		loan, err := activeLoan(tx, playerID)
		if err != nil {
			return err
		}
		if loan == nil {
			return apperr.New(apperr.CodeNoActiveLoan, "You have no outstanding loan.")
		}
		out, err = repayTx(tx, now, p, loan, models.TxRepay)
		return err
	})
	return settle(fmt.Sprintf("Loan repaid: %s spirit stones.", amount(out.AmountDue)), out, err)
}

func repayTx(tx *gorm.DB, now time.Time, p *models.Player, loan *models.Loan, kind models.TxType) (LoanView, error) {
	due := AmountDue(loan, now)
	if p.Currency < due {
		return LoanView{}, apperr.WithMetadata(apperr.CodeInsufficientFunds,
			fmt.Sprintf("You owe %s spirit stones but carry only %s.", amount(due), amount(p.Currency)),
			map[string]string{"amount_due": fmt.Sprint(due)})
	}

	p.Currency -= due
	if err := tx.Model(p).Update("currency", p.Currency).Error; err != nil {
		return LoanView{}, err
	}
	loan.Status = models.LoanClosed
	loan.ClosedAt = &now
	if err := tx.Model(loan).Updates(map[string]any{"status": loan.Status, "closed_at": now}).Error; err != nil {
		return LoanView{}, err
	}
	if err := record(tx, now, models.LedgerTransaction{
		PlayerID:     p.ID,
		Aggregate:    models.AggregateWallet,
		Type:         kind,
		Delta:        -due,
		BalanceAfter: p.Currency,
		Description:  fmt.Sprintf("Repaid loan %s", loan.ID),
		Metadata:     datatypes.JSONMap{"loan_id": loan.ID, "principal": loan.Principal},
	}); err != nil {
		return LoanView{}, err
	}
	logLedger("%s repaid loan %s (%d)", p.ID, loan.ID, due)
	return LoanView{Loan: *loan, AmountDue: due}, nil
}

// LoanSettlement reports the breakthrough-linked repayment attempt.
type LoanSettlement struct {
	Attempted bool   `json:"attempted"`
	Repaid    bool   `json:"repaid"`
	AmountDue int64  `json:"amount_due,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// SettleBreakthroughLoan repays an active breakthrough-linked loan when the
// purse covers it. Shortfalls are reported as a warning, never a failure.
func (s *LedgerService) SettleBreakthroughLoan(ctx context.Context, playerID string) (res Result[LoanSettlement], err error) {
	ctx, span := startSpan(ctx, "ledger.SettleBreakthroughLoan", playerID)
	defer func() { finish(span, res, err) }()

	var out LoanSettlement
	err = s.Store.Exclusive(ctx, bankKeys(playerID), func(tx *gorm.DB) error {
		now := s.Clock.Now()
		loan, err := activeLoan(tx, playerID)
		if err != nil || loan == nil || !loan.BreakthroughLinked {
			return err
		}
		p, err := loadPlayer(tx, playerID)
		if err != nil {
			return err
		}
		out.Attempted = true
		out.AmountDue = AmountDue(loan, now)
		if p.Currency < out.AmountDue {
			out.Warning = fmt.Sprintf("Your breakthrough loan of %s spirit stones is still outstanding; you carry only %s.",
				amount(out.AmountDue), amount(p.Currency))
			log.Printf("⚠️  [LEDGER] Auto-repay skipped for %s: %d < %d", playerID, p.Currency, out.AmountDue)
			return nil
		}
		if _, err := repayTx(tx, now, p, loan, models.TxAutoRepay); err != nil {
			return err
		}
		out.Repaid = true
		return nil
	})

	msg := "No breakthrough loan to settle."
	switch {
	case out.Repaid:
		msg = fmt.Sprintf("Your breakthrough loan was repaid automatically (%s spirit stones).", amount(out.AmountDue))
	case out.Warning != "":
		msg = out.Warning
	}
	return settle(msg, out, err)
}
