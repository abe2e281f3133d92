// Package store opens the database and provides the exclusive write scope
// that every ledger aggregate is mutated under.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"cultivation-core/apperr"
	"cultivation-core/models"
)

// Aggregate keys. A scope may hold several; they are acquired in sorted order.
const ShopKey = "shop"

func PlayerKey(id string) string    { return "player:" + id }
func InventoryKey(id string) string { return "inventory:" + id }
func BankKey(id string) string      { return "bank:" + id }

// Store wraps the database with per-aggregate serialization.
type Store struct {
	DB    *gorm.DB
	locks *Locker
}

func New(db *gorm.DB) *Store {
	return &Store{DB: db, locks: NewLocker()}
}

// Open connects to postgres or sqlite.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	switch driver {
	case "postgres":
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return db, nil
	case "sqlite":
		if !strings.Contains(dsn, "busy_timeout") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=busy_timeout(5000)"
		}
		db, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer; a single connection keeps transactions
		// from tripping over each other.
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Exclusive runs fn in one transaction while holding the in-process locks of
// every key. Domain errors returned by fn roll the transaction back and are
// returned unchanged; database serialization failures become CONFLICT.
func (s *Store) Exclusive(ctx context.Context, keys []string, fn func(tx *gorm.DB) error) error {
	unlock := s.locks.Lock(keys...)
	defer unlock()

	err := s.DB.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if IsConflict(err) {
		log.Printf("⚠️  [STORE] Conflict on %v, rolled back: %v", keys, err)
		return apperr.Wrap(apperr.CodeConflict, "The world shifted beneath you. Please retry.", err)
	}
	return err
}

// ForUpdate adds a row lock to the next query. SQLite ignores it; the
// in-process locks cover that case.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// IsConflict reports whether err is a retryable serialization failure.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
