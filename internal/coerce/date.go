// Package coerce turns loosely typed spreadsheet cells into typed values.
//
// Every function in this package is total: malformed input degrades to a zero
// value (or ok=false) and never panics, so a single bad cell can never abort a
// build.
package coerce

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// serialEpoch is day zero of spreadsheet serial dates.
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const (
	// Numbers above this are treated as epoch milliseconds.
	epochMillisFloor = 1e11
	// 9999-12-31 as a spreadsheet serial.
	maxSerialDay = 2958465
)

// layouts are tried in order against trimmed string cells.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Mon Jan 2 2006 15:04:05 GMT-0700",
}

// jsDateZone strips the "(Pacific Daylight Time)" suffix of JavaScript date strings.
var jsDateZone = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// Date resolves a cell into a time. It accepts native times, epoch
// milliseconds, spreadsheet serial days, and strings in the layouts above.
// The first interpretation that yields a valid time wins.
func Date(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		return dateFromString(t)
	case []byte:
		return dateFromString(string(t))
	}
	if f, ok := number(v); ok {
		return dateFromNumber(f)
	}
	return time.Time{}, false
}

func dateFromString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return dateFromNumber(f)
	}
	s = jsDateZone.ReplaceAllString(s, "")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func dateFromNumber(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, false
	}
	if f >= epochMillisFloor {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	if f > maxSerialDay {
		return time.Time{}, false
	}
	whole := math.Floor(f)
	frac := f - whole
	t := serialEpoch.AddDate(0, 0, int(whole))
	t = t.Add(time.Duration(math.Round(frac*86400)) * time.Second)
	return t, true
}

// number extracts a float from native numeric kinds.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
