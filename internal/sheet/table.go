// Package sheet provides header-addressed tabular stores. Row 1 of every
// table is its header; data starts at row 2. Row numbers are one-based.
package sheet

import (
	"context"
	"errors"
)

// ErrTableNotFound is returned when a table has no header row.
var ErrTableNotFound = errors.New("table not found")

// Row is one table row. Cells hold strings, float64s, bools, times, or nil.
type Row []any

// Table is a read-only view of a tabular store.
type Table interface {
	Name() string
	Header(ctx context.Context) ([]string, error)
	// LastRow is the highest populated row number: 0 for an empty table, 1
	// for a header-only table.
	LastRow(ctx context.Context) (int, error)
	// ReadRows returns up to count rows starting at row start. Missing rows
	// inside the range come back as nil; the slice may be shorter than
	// count when the table ends.
	ReadRows(ctx context.Context, start, count int) ([]Row, error)
}

// WritableTable is a Table that accepts bulk writes.
type WritableTable interface {
	Table
	// Reset truncates the table and writes header as row 1.
	Reset(ctx context.Context, header []string) error
	// WriteRows writes rows contiguously from row start, replacing
	// whatever was there.
	WriteRows(ctx context.Context, start int, rows []Row) error
	// UpdateCells sets column col (zero-based) of each row in values.
	UpdateCells(ctx context.Context, col int, values map[int]any) error
	ApplyFormat(ctx context.Context, f Format) error
}

// Format is presentation metadata attached to a table.
type Format struct {
	BoldHeader bool `json:"boldHeader"`
	FrozenRows int  `json:"frozenRows"`
	// NumberFormats maps header names to display patterns such as
	// "#,##0.00" or "yyyy-mm-dd".
	NumberFormats map[string]string `json:"numberFormats,omitempty"`
}

// ColumnIndex returns the zero-based position of name in header, or -1.
func ColumnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
