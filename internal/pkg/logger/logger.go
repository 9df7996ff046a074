// Package logger writes structured JSON log lines with PII redaction.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel maps "debug", "info", "warn"/"warning", "error" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// sink is shared by a logger and every child created with With.
type sink struct {
	mu        sync.Mutex
	out       io.Writer
	level     Level
	redactPII bool
	now       func() time.Time
}

// Logger provides structured JSON logging with optional PII redaction.
type Logger struct {
	sink   *sink
	fields []any
}

// New returns a logger writing to out at the given minimum level.
func New(out io.Writer, level Level) *Logger {
	return &Logger{sink: &sink{out: out, level: level, redactPII: true, now: time.Now}}
}

var defaultLogger = New(os.Stderr, INFO)

// Default returns the process-wide logger.
func Default() *Logger { return defaultLogger }

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) {
	defaultLogger.sink.mu.Lock()
	defaultLogger.sink.level = l
	defaultLogger.sink.mu.Unlock()
}

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	defaultLogger.sink.mu.Lock()
	defaultLogger.sink.redactPII = r
	defaultLogger.sink.mu.Unlock()
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...any) *Logger {
	merged := make([]any, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{sink: l.sink, fields: merged}
}

func (l *Logger) Debug(msg string, fields ...any) { l.log(DEBUG, msg, fields) }
func (l *Logger) Info(msg string, fields ...any)  { l.log(INFO, msg, fields) }
func (l *Logger) Warn(msg string, fields ...any)  { l.log(WARN, msg, fields) }
func (l *Logger) Error(msg string, fields ...any) { l.log(ERROR, msg, fields) }

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...any) { defaultLogger.log(DEBUG, msg, fields) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...any) { defaultLogger.log(INFO, msg, fields) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...any) { defaultLogger.log(WARN, msg, fields) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...any) { defaultLogger.log(ERROR, msg, fields) }

func (l *Logger) log(level Level, msg string, fields []any) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}

	entry := map[string]any{
		"time":  s.now().UTC().Format(time.RFC3339),
		"level": level.String(),
		"msg":   msg,
	}
	addFields(entry, l.fields, s.redactPII)
	addFields(entry, fields, s.redactPII)

	data, err := json.Marshal(entry)
	if err != nil {
		data, _ = json.Marshal(map[string]any{"level": "ERROR", "msg": "unencodable log entry", "orig": msg})
	}
	fmt.Fprintln(s.out, string(data))
}

// addFields copies key/value pairs into entry. Numbers and bools stay
// typed; everything else is rendered as text and redacted.
func addFields(entry map[string]any, fields []any, redact bool) {
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		switch v := fields[i+1].(type) {
		case int, int32, int64, uint, uint32, uint64, float32, float64, bool:
			entry[key] = v
		case error:
			entry[key] = redactValue(key, v.Error(), redact)
		case time.Duration:
			entry[key] = v.String()
		default:
			entry[key] = redactValue(key, fmt.Sprintf("%v", v), redact)
		}
	}
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactValue(key, val string, redact bool) string {
	if !redact {
		return val
	}
	key = strings.ToLower(key)
	if strings.Contains(key, "email") || strings.Contains(key, "customer") {
		if strings.Contains(val, "@") {
			return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
		}
		return RedactName(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
