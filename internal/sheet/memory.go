package sheet

import (
	"context"
	"fmt"
	"sync"
)

// MemoryTable is an in-process table, used for CSV inputs and in tests.
type MemoryTable struct {
	mu     sync.RWMutex
	name   string
	header []string
	rows   []Row // rows[0] is row 2
	format *Format
}

// NewMemoryTable returns a table with the given header and data rows. A nil
// header makes a table that does not exist yet until Reset is called.
func NewMemoryTable(name string, header []string, rows ...Row) *MemoryTable {
	t := &MemoryTable{name: name}
	if header != nil {
		t.header = append([]string(nil), header...)
	}
	for _, r := range rows {
		t.rows = append(t.rows, cloneRow(r))
	}
	return t
}

func (t *MemoryTable) Name() string { return t.name }

func (t *MemoryTable) Header(ctx context.Context) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.header == nil {
		return nil, fmt.Errorf("%s: %w", t.name, ErrTableNotFound)
	}
	return append([]string(nil), t.header...), nil
}

func (t *MemoryTable) LastRow(ctx context.Context) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.header == nil {
		return 0, nil
	}
	return len(t.rows) + 1, nil
}

func (t *MemoryTable) ReadRows(ctx context.Context, start, count int) ([]Row, error) {
	if start < 2 || count < 0 {
		return nil, fmt.Errorf("%s: invalid range start=%d count=%d", t.name, start, count)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	from := start - 2
	if from >= len(t.rows) {
		return nil, nil
	}
	to := from + count
	if to > len(t.rows) {
		to = len(t.rows)
	}
	out := make([]Row, 0, to-from)
	for _, r := range t.rows[from:to] {
		out = append(out, cloneRow(r))
	}
	return out, nil
}

func (t *MemoryTable) Reset(ctx context.Context, header []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.header = append([]string(nil), header...)
	t.rows = nil
	t.format = nil
	return nil
}

func (t *MemoryTable) WriteRows(ctx context.Context, start int, rows []Row) error {
	if start < 2 {
		return fmt.Errorf("%s: cannot write data at row %d", t.name, start)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	from := start - 2
	for len(t.rows) < from+len(rows) {
		t.rows = append(t.rows, nil)
	}
	for i, r := range rows {
		t.rows[from+i] = cloneRow(r)
	}
	return nil
}

func (t *MemoryTable) UpdateCells(ctx context.Context, col int, values map[int]any) error {
	if col < 0 {
		return fmt.Errorf("%s: invalid column %d", t.name, col)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for rowNum, v := range values {
		i := rowNum - 2
		if i < 0 || i >= len(t.rows) {
			return fmt.Errorf("%s: row %d out of range", t.name, rowNum)
		}
		for len(t.rows[i]) <= col {
			t.rows[i] = append(t.rows[i], nil)
		}
		t.rows[i][col] = v
	}
	return nil
}

func (t *MemoryTable) ApplyFormat(ctx context.Context, f Format) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.format = &f
	return nil
}

// Format returns the last applied format, if any.
func (t *MemoryTable) Format() (Format, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.format == nil {
		return Format{}, false
	}
	return *t.format, true
}

// Rows returns a copy of every data row.
func (t *MemoryTable) Rows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = cloneRow(r)
	}
	return out
}

// Append adds rows after the last row.
func (t *MemoryTable) Append(rows ...Row) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range rows {
		t.rows = append(t.rows, cloneRow(r))
	}
}

func cloneRow(r Row) Row {
	if r == nil {
		return nil
	}
	return append(Row(nil), r...)
}
