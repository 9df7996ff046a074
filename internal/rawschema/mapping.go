package rawschema

import (
	"fmt"
	"strings"
	"time"

	"github.com/ignite/order-reconciler/internal/coerce"
)

// DateField names the order date in MissingColumnError.
const DateField = "order_date"

// MissingColumnError reports a required logical column with none of its
// accepted header names present.
type MissingColumnError struct {
	Sheet    string
	Field    string
	Accepted []string
}

func (e *MissingColumnError) Error() string {
	quoted := make([]string, len(e.Accepted))
	for i, a := range e.Accepted {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return fmt.Sprintf("sheet %q: missing required column %s (accepted headers: %s)",
		e.Sheet, e.Field, strings.Join(quoted, ", "))
}

// Mapping is a schema resolved against one concrete header row.
type Mapping struct {
	Sheet  string
	Schema *Schema

	index [fieldCount]int
	dates []int
}

// Resolve binds schema to header. Header names match case- and
// whitespace-insensitively; the first accepted name present wins. Missing
// optional fields read as nil. A missing required field, or a header with
// no date source at all, fails with *MissingColumnError.
func Resolve(sheetName string, schema *Schema, header []string) (*Mapping, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		n := normalizeHeader(h)
		if n == "" {
			continue
		}
		if _, dup := positions[n]; !dup {
			positions[n] = i
		}
	}

	m := &Mapping{Sheet: sheetName, Schema: schema}
	for i := range m.index {
		m.index[i] = -1
	}

	for _, fs := range schema.Fields {
		for _, name := range fs.Accepted {
			if idx, ok := positions[normalizeHeader(name)]; ok {
				m.index[fs.Field] = idx
				break
			}
		}
		if fs.Required && m.index[fs.Field] < 0 {
			return nil, &MissingColumnError{Sheet: sheetName, Field: fs.Field.String(), Accepted: fs.Accepted}
		}
	}

	for _, name := range schema.DateSources {
		if idx, ok := positions[normalizeHeader(name)]; ok {
			m.dates = append(m.dates, idx)
		}
	}
	if len(m.dates) == 0 {
		return nil, &MissingColumnError{Sheet: sheetName, Field: DateField, Accepted: schema.DateSources}
	}
	return m, nil
}

// Index returns the zero-based column of f, or -1 when absent.
func (m *Mapping) Index(f Field) int {
	if f < 0 || f >= fieldCount {
		return -1
	}
	return m.index[f]
}

// Has reports whether f resolved to a column.
func (m *Mapping) Has(f Field) bool { return m.Index(f) >= 0 }

// Get returns the raw cell of f in row, or nil when the column is absent or
// the row is short.
func (m *Mapping) Get(row []any, f Field) any {
	idx := m.Index(f)
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func (m *Mapping) Text(row []any, f Field) string { return coerce.String(m.Get(row, f)) }

func (m *Mapping) Float(row []any, f Field) float64 { return coerce.Float(m.Get(row, f)) }

// Present reports whether row has a numeric value for f. It separates an
// explicit zero from a blank cell.
func (m *Mapping) Present(row []any, f Field) bool { return coerce.HasNumber(m.Get(row, f)) }

// OrderDate tries the date sources in schema order and returns the first
// that parses. A row with no parseable date yields nil.
func (m *Mapping) OrderDate(row []any) *time.Time {
	for _, idx := range m.dates {
		if idx >= len(row) {
			continue
		}
		if t, ok := coerce.Date(row[idx]); ok {
			return &t
		}
	}
	return nil
}

// DateIndex returns the column of the first date source present in the
// header. Resolve guarantees there is one.
func (m *Mapping) DateIndex() int { return m.dates[0] }
