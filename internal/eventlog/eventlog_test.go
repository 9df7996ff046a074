package eventlog

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/order-reconciler/internal/pkg/logger"
)

type failingSink struct{ err error }

func (f failingSink) Append(context.Context, Event) error { return f.err }

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	mem := &MemorySink{}
	boom := errors.New("boom")
	m := Multi{mem, nil, failingSink{err: boom}}

	err := m.Append(context.Background(), Event{Source: "cleanmaster", Message: "paused"})
	assert.ErrorIs(t, err, boom)
	require.Len(t, mem.Events(), 1)
	assert.Equal(t, "paused", mem.Events()[0].Message)

	assert.NoError(t, Multi{mem}.Append(context.Background(), Event{}))
	assert.NoError(t, Discard.Append(context.Background(), Event{}))
}

func TestLoggerSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLoggerSink(logger.New(&buf, logger.INFO))

	require.NoError(t, sink.Append(context.Background(), Event{
		Source:  "cleanmaster",
		RunID:   "r-1",
		Message: "Clean master complete",
		Fields:  map[string]any{"written": 12},
	}))

	out := buf.String()
	assert.Contains(t, out, `"msg":"Clean master complete"`)
	assert.Contains(t, out, `"run_id":"r-1"`)
	assert.Contains(t, out, `"written":12`)
}

func TestPostgresSink(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	when := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO event_log`).
		WithArgs(when, "importer", "", "appended rows", []byte(`{"rows":4}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewPostgresSink(db).Append(context.Background(), Event{
		Time:    when,
		Source:  "importer",
		Message: "appended rows",
		Fields:  map[string]any{"rows": 4},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
