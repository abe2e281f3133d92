// services/scheduler.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"cultivation-core/models"
)

// Archiver stores an audit archive object.
type Archiver interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// ArchiveDay uploads every ledger transaction of the UTC day containing day
// as JSON lines. It returns the number of rows archived.
func (s *LedgerService) ArchiveDay(ctx context.Context, day time.Time, archiver Archiver) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var rows []models.LedgerTransaction
	if err := s.Store.DB.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at").
		Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("load ledger day: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return 0, err
		}
	}

	key := fmt.Sprintf("ledger/%s.jsonl", start.Format(time.DateOnly))
	if err := archiver.Upload(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("upload %s: %w", key, err)
	}
	return len(rows), nil
}

// StartScheduler runs the world-level jobs: periodic shop restock and, when
// an archiver is configured, the daily upload of yesterday's ledger.
func (s *LedgerService) StartScheduler(ctx context.Context, restockEvery time.Duration, archiver Archiver) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(restockEvery),
		gocron.NewTask(func() {
			if res, err := s.RestockShop(ctx); err != nil || !res.Success {
				log.Printf("[SCHEDULER] Restock failed: %s %v", res.Message, err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule restock: %w", err)
	}

	if archiver != nil {
		_, err = sched.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 10, 0))),
			gocron.NewTask(func() {
				yesterday := s.Clock.Now().Add(-24 * time.Hour)
				n, err := s.ArchiveDay(ctx, yesterday, archiver)
				if err != nil {
					log.Printf("[SCHEDULER] Ledger archive failed: %v", err)
					return
				}
				log.Printf("✅ [SCHEDULER] Archived %d ledger rows for %s", n, yesterday.Format(time.DateOnly))
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule archive: %w", err)
		}
	}

	sched.Start()
	return sched, nil
}
