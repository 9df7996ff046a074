// Package eventlog is the append-only progress log of builds, imports and
// repairs. Entries are observational; nothing in the pipeline reads them
// back.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/order-reconciler/internal/pkg/logger"
)

// Event is one human-readable progress line.
type Event struct {
	Time    time.Time      `json:"time"`
	Source  string         `json:"source"`
	RunID   string         `json:"runId,omitempty"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Sink receives events.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

// LoggerSink writes events as INFO log entries.
type LoggerSink struct{ log *logger.Logger }

func NewLoggerSink(l *logger.Logger) *LoggerSink {
	if l == nil {
		l = logger.Default()
	}
	return &LoggerSink{log: l}
}

func (s *LoggerSink) Append(ctx context.Context, e Event) error {
	fields := make([]any, 0, 4+2*len(e.Fields))
	fields = append(fields, "source", e.Source)
	if e.RunID != "" {
		fields = append(fields, "run_id", e.RunID)
	}
	for k, v := range e.Fields {
		fields = append(fields, k, v)
	}
	s.log.Info(e.Message, fields...)
	return nil
}

// PostgresSink appends events to the event_log table.
type PostgresSink struct{ db *sql.DB }

func NewPostgresSink(db *sql.DB) *PostgresSink { return &PostgresSink{db: db} }

func (s *PostgresSink) Append(ctx context.Context, e Event) error {
	var fields []byte
	if len(e.Fields) > 0 {
		var err error
		if fields, err = json.Marshal(e.Fields); err != nil {
			return fmt.Errorf("encode event fields: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_log (occurred_at, source, run_id, message, fields)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	`, e.Time, e.Source, e.RunID, e.Message, fields)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// MemorySink keeps events in process.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Append(ctx context.Context, e Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

// Events returns a copy of everything appended so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Append(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(context.Context, Event) error { return nil }
