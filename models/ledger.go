// models/ledger.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

// InventoryItem is one distinct key of a player's storage ring. Each row
// occupies one slot regardless of Count.
type InventoryItem struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"-"`
	PlayerID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_inventory_player_name" json:"-"`
	Name      string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_inventory_player_name" json:"name"`
	Count     int       `gorm:"not null" json:"count"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ShopItem is one listing of the shared shop. Position keeps the list ordered.
type ShopItem struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"name"`
	Slug      string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"slug"`
	Price     int64     `gorm:"not null" json:"price"`
	Stock     int       `gorm:"not null;default:0" json:"stock"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BankAccount holds a player's deposits.
type BankAccount struct {
	PlayerID       string    `gorm:"primaryKey;type:varchar(64)" json:"player_id"`
	Balance        int64     `gorm:"not null;default:0" json:"balance"`
	LastInterestAt time.Time `gorm:"not null" json:"last_interest_at"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// LoanStatus indicates the lifecycle stage of a loan
type LoanStatus string

const (
	LoanActive  LoanStatus = "active"
	LoanClosed  LoanStatus = "closed"
	LoanOverdue LoanStatus = "overdue"
)

// LoanSubtype selects the loan product.
type LoanSubtype string

const (
	LoanNormal    LoanSubtype = "normal"
	LoanExpedited LoanSubtype = "expedited"
)

// Loan is a currency loan. At most one per player is active.
type Loan struct {
	ID                 string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PlayerID           string      `gorm:"type:varchar(64);index;not null" json:"player_id"`
	Principal          int64       `gorm:"not null" json:"principal"`
	DailyRate          float64     `gorm:"not null" json:"daily_rate"`
	BorrowedAt         time.Time   `gorm:"not null" json:"borrowed_at"`
	DueAt              time.Time   `gorm:"not null;index" json:"due_at"`
	Status             LoanStatus  `gorm:"type:varchar(16);not null;index" json:"status"`
	Subtype            LoanSubtype `gorm:"type:varchar(16);not null" json:"subtype"`
	BreakthroughLinked bool        `gorm:"not null;default:false" json:"breakthrough_linked"`
	ClosedAt           *time.Time  `json:"closed_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

// TxType classifies a ledger transaction.
type TxType string

const (
	TxItemStore     TxType = "item_store"
	TxItemRetrieve  TxType = "item_retrieve"
	TxItemDiscard   TxType = "item_discard"
	TxStockReserve  TxType = "stock_reserve"
	TxStockRelease  TxType = "stock_release"
	TxStockRestock  TxType = "stock_restock"
	TxPurchase      TxType = "purchase"
	TxDeposit       TxType = "deposit"
	TxWithdraw      TxType = "withdraw"
	TxInterest      TxType = "interest"
	TxBorrow        TxType = "borrow"
	TxRepay         TxType = "repay"
	TxAutoRepay     TxType = "auto_repay"
	TxLoanOverdue   TxType = "loan_overdue"
	TxCultivationXP TxType = "cultivation_exp"
)

// Ledger aggregates a transaction can belong to.
const (
	AggregateInventory = "inventory"
	AggregateShop      = "shop"
	AggregateBank      = "bank"
	AggregateWallet    = "wallet"
	AggregatePlayer    = "player"
)

// LedgerTransaction is an immutable audit row written in the same
// transaction as the mutation it records.
type LedgerTransaction struct {
	ID           string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PlayerID     string            `gorm:"type:varchar(64);index" json:"player_id,omitempty"`
	Aggregate    string            `gorm:"type:varchar(16);not null" json:"aggregate"`
	Type         TxType            `gorm:"type:varchar(32);not null" json:"type"`
	Delta        int64             `gorm:"not null" json:"delta"`
	BalanceAfter int64             `gorm:"not null" json:"balance_after"`
	Description  string            `gorm:"type:text" json:"description"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;index" json:"created_at"`
}

// All returns every table owned by the service, in migration order.
func All() []any {
	return []any{
		&Player{},
		&ActivePillEffect{},
		&PermanentPillGain{},
		&InventoryItem{},
		&ShopItem{},
		&BankAccount{},
		&Loan{},
		&LedgerTransaction{},
	}
}
