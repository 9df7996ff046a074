package worker

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/lib/pq"
)

// =============================================================================
// EVENT RETENTION WORKER: Trims The Persisted Event Log
// =============================================================================
// Every build, import, and backfill appends to event_log. Rows older than the
// retention window are deleted in batches so a long backlog never holds a
// single large transaction.

const (
	DefaultRetentionInterval = 6 * time.Hour
	DefaultEventRetention    = 90 * 24 * time.Hour

	retentionBatchSize = 5000
)

// EventRetentionWorker periodically deletes old event_log rows.
type EventRetentionWorker struct {
	db        *sql.DB
	interval  time.Duration
	retention time.Duration
	pause     time.Duration
}

// NewEventRetentionWorker creates a worker with the default schedule. A
// non-positive retention uses DefaultEventRetention.
func NewEventRetentionWorker(db *sql.DB, retention time.Duration) *EventRetentionWorker {
	if retention <= 0 {
		retention = DefaultEventRetention
	}
	return &EventRetentionWorker{
		db:        db,
		interval:  DefaultRetentionInterval,
		retention: retention,
		pause:     100 * time.Millisecond,
	}
}

// Start begins the loop. It blocks until ctx is cancelled.
func (w *EventRetentionWorker) Start(ctx context.Context) {
	log.Printf("[EventRetention] Starting (interval=%s, retention=%s)", w.interval, w.retention)

	w.Cleanup(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[EventRetention] Stopping")
			return
		case <-ticker.C:
			w.Cleanup(ctx)
		}
	}
}

// Cleanup runs one retention pass and returns the number of rows removed.
func (w *EventRetentionWorker) Cleanup(ctx context.Context) int64 {
	cutoff := time.Now().Add(-w.retention).UTC()
	var total int64

	for ctx.Err() == nil {
		queryCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		res, err := w.db.ExecContext(queryCtx, `
			DELETE FROM event_log
			WHERE id IN (
				SELECT id FROM event_log
				WHERE occurred_at < $1
				LIMIT $2
			)
		`, cutoff, retentionBatchSize)
		cancel()

		if err != nil {
			if isUndefinedTable(err) {
				log.Println("[EventRetention] Table event_log does not exist, skipping")
			} else {
				log.Printf("[EventRetention] Error deleting from event_log: %v", err)
			}
			break
		}

		affected, _ := res.RowsAffected()
		if affected == 0 {
			break
		}
		total += affected
		time.Sleep(w.pause)
	}

	if total > 0 {
		log.Printf("[EventRetention] Removed %d events older than %s", total, cutoff.Format(time.DateOnly))
	}
	return total
}

// isUndefinedTable reports a Postgres undefined_table error, which happens
// when the worker starts before migrations have run.
func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}
