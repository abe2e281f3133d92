package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cultivation-core/apperr"
	"cultivation-core/models"
	"cultivation-core/store"
	"cultivation-core/store/storetest"
)

func TestExclusiveCommitsAndRollsBack(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	err := s.Exclusive(ctx, []string{store.PlayerKey("p1")}, func(tx *gorm.DB) error {
		return tx.Create(&models.Player{ID: "p1", Name: "Lin", Archetype: models.ArchetypeSpirit, Ring: "basic_ring"}).Error
	})
	require.NoError(t, err)

	err = s.Exclusive(ctx, []string{store.PlayerKey("p1")}, func(tx *gorm.DB) error {
		if err := tx.Model(&models.Player{}).Where("id = ?", "p1").Update("currency", 500).Error; err != nil {
			return err
		}
		return apperr.New(apperr.CodeInsufficientFunds, "nope")
	})
	assert.Equal(t, apperr.CodeInsufficientFunds, apperr.CodeOf(err))

	var p models.Player
	require.NoError(t, s.DB.First(&p, "id = ?", "p1").Error)
	assert.Zero(t, p.Currency)
}

func TestExclusiveRollsBackSerializationFailure(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	serialization := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}

	err := s.Exclusive(ctx, []string{store.PlayerKey("p1")}, func(tx *gorm.DB) error {
		if err := tx.Create(&models.Player{ID: "p1", Name: "Lin", Archetype: models.ArchetypeSpirit, Ring: "basic_ring"}).Error; err != nil {
			return err
		}
		return serialization
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	assert.True(t, apperr.CodeConflict.Retryable())

	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr), "cause stays reachable")
	assert.Equal(t, "40001", pgErr.Code)

	var n int64
	require.NoError(t, s.DB.Unscoped().Model(&models.Player{}).Where("id = ?", "p1").Count(&n).Error)
	assert.Zero(t, n)
}

func TestExclusiveSerializesSameKey(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	require.NoError(t, s.DB.Create(&models.Player{ID: "p1", Name: "Lin", Archetype: models.ArchetypeBody, Ring: "basic_ring"}).Error)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Exclusive(ctx, []string{store.PlayerKey("p1")}, func(tx *gorm.DB) error {
				var p models.Player
				if err := store.ForUpdate(tx).First(&p, "id = ?", "p1").Error; err != nil {
					return err
				}
				return tx.Model(&p).Update("currency", p.Currency+1).Error
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var p models.Player
	require.NoError(t, s.DB.First(&p, "id = ?", "p1").Error)
	assert.Equal(t, int64(workers), p.Currency)
}

func TestLockerOrdersKeysAndCleansUp(t *testing.T) {
	l := store.NewLocker()

	done := make(chan struct{})
	unlockA := l.Lock("b", "a")
	go func() {
		unlockB := l.Lock("a", "b", "a")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Lock acquired while keys were held")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-done
	assert.Zero(t, l.Len())
}

func TestIsConflict(t *testing.T) {
	assert.True(t, store.IsConflict(&pgconn.PgError{Code: "40001"}))
	assert.True(t, store.IsConflict(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, store.IsConflict(&pgconn.PgError{Code: "23505"}))
	assert.True(t, store.IsConflict(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, store.IsConflict(errors.New("record not found")))
	assert.False(t, store.IsConflict(nil))
}
