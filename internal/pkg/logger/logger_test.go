package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(&buf, level)
	l.sink.now = func() time.Time { return time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC) }
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_LevelsAndFields(t *testing.T) {
	l, buf := newTestLogger(INFO)

	l.Debug("hidden")
	l.Info("chunk written", "rows", 1500, "phase", "platformA", "paused", false)
	l.Error("build failed", "err", errors.New("boom"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-03-09T14:30:00Z", lines[0]["time"])
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "chunk written", lines[0]["msg"])
	assert.Equal(t, 1500.0, lines[0]["rows"])
	assert.Equal(t, "platformA", lines[0]["phase"])
	assert.Equal(t, false, lines[0]["paused"])
	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["err"])
}

func TestLogger_WithAddsFieldsToChildOnly(t *testing.T) {
	l, buf := newTestLogger(DEBUG)
	child := l.With("run_id", "r-1")

	child.Info("started")
	l.Info("parent")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "r-1", lines[0]["run_id"])
	_, ok := lines[1]["run_id"]
	assert.False(t, ok)
}

func TestLogger_RedactsCustomerData(t *testing.T) {
	l, buf := newTestLogger(INFO)

	l.Info("lookup",
		"customer_email", "john.doe@example.com",
		"customer_name", "Jane Doe",
		"detail", "contact ab@example.org now",
		"sheet", "Platform A Orders",
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "jo***@example.com", lines[0]["customer_email"])
	assert.Equal(t, "J*** D***", lines[0]["customer_name"])
	assert.Equal(t, "contact ***@example.org now", lines[0]["detail"])
	assert.Equal(t, "Platform A Orders", lines[0]["sheet"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"", INFO, false},
		{"warning", WARN, false},
		{" error ", ERROR, false},
		{"verbose", INFO, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}
