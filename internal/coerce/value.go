package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// IsBlank reports whether a cell carries no value at all.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []byte:
		return strings.TrimSpace(string(t)) == ""
	}
	return false
}

// String renders a cell as trimmed text. Whole floats print without a
// decimal part so numeric order ids survive the round trip.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case time.Time:
		return t.Format(time.RFC3339)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	if f, ok := number(v); ok {
		return String(f)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Float parses a money or quantity cell. Currency symbols, thousands
// separators, and whitespace are ignored; "(12.50)" is negative. Anything
// unparseable is zero.
func Float(v any) float64 {
	if f, ok := number(v); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	s, ok := v.(string)
	if !ok {
		if b, isBytes := v.([]byte); isBytes {
			s = string(b)
		} else {
			return 0
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == 'e', r == 'E', r == '+':
			b.WriteRune(r)
		}
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if negative {
		f = -math.Abs(f)
	}
	return f
}

// HasNumber reports whether a cell holds a parseable, non-blank number.
// It distinguishes an explicit 0 from a missing value.
func HasNumber(v any) bool {
	if IsBlank(v) {
		return false
	}
	if _, ok := number(v); ok {
		return true
	}
	s := strings.TrimSpace(String(v))
	s = strings.Trim(s, "()$€£ ")
	s = strings.ReplaceAll(s, ",", "")
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// Bool reads yes/no style flags.
func Bool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	if f, ok := number(v); ok {
		return f != 0
	}
	switch strings.ToLower(String(v)) {
	case "true", "yes", "y", "1", "t", "x":
		return true
	default:
		return false
	}
}
