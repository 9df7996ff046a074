package sheet

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// csvPageSize bounds how many rows WriteCSV holds in memory at once.
const csvPageSize = 1000

// LoadCSV reads a CSV file with a header row into a MemoryTable. Every cell
// is kept as a string; callers coerce.
func LoadCSV(name string, r io.Reader) (*MemoryTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: empty csv: %w", name, ErrTableNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header of %s: %w", name, err)
	}
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	t := NewMemoryTable(name, header)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv %s: %w", name, err)
		}
		row := make(Row, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// WriteCSV streams t, header first, to w.
func WriteCSV(ctx context.Context, w io.Writer, t Table) error {
	header, err := t.Header(ctx)
	if err != nil {
		return err
	}
	last, err := t.LastRow(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for start := 2; start <= last; start += csvPageSize {
		rows, err := t.ReadRows(ctx, start, csvPageSize)
		if err != nil {
			return err
		}
		for _, r := range rows {
			rec := make([]string, len(header))
			for i := range rec {
				if i < len(r) {
					rec[i] = FormatCell(r[i])
				}
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatCell renders a cell as CSV text.
func FormatCell(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case int:
		return strconv.Itoa(c)
	case bool:
		return strconv.FormatBool(c)
	case time.Time:
		return c.UTC().Format(time.RFC3339)
	case *time.Time:
		if c == nil {
			return ""
		}
		return c.UTC().Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF {
		return s[3:]
	}
	return s
}
