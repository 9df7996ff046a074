package sheet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// PostgresTable stores a table as one JSONB array per row:
//
//	sheet_rows(sheet text, row_num int, cells jsonb, PRIMARY KEY (sheet, row_num))
//	sheet_formats(sheet text PRIMARY KEY, format jsonb, updated_at timestamptz)
//
// Times are stored as RFC 3339 strings and read back as strings.
type PostgresTable struct {
	db   *sql.DB
	name string
}

// NewPostgresTable returns the table called name.
func NewPostgresTable(db *sql.DB, name string) *PostgresTable {
	return &PostgresTable{db: db, name: name}
}

func (t *PostgresTable) Name() string { return t.name }

func (t *PostgresTable) Header(ctx context.Context) ([]string, error) {
	var raw []byte
	err := t.db.QueryRowContext(ctx,
		`SELECT cells FROM sheet_rows WHERE sheet = $1 AND row_num = 1`, t.name,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", t.name, ErrTableNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", t.name, err)
	}
	var cells []any
	if err := json.Unmarshal(raw, &cells); err != nil {
		return nil, fmt.Errorf("decode header of %s: %w", t.name, err)
	}
	header := make([]string, len(cells))
	for i, c := range cells {
		if s, ok := c.(string); ok {
			header[i] = s
		} else if c != nil {
			header[i] = fmt.Sprint(c)
		}
	}
	return header, nil
}

func (t *PostgresTable) LastRow(ctx context.Context) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(row_num), 0) FROM sheet_rows WHERE sheet = $1`, t.name,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("last row of %s: %w", t.name, err)
	}
	return n, nil
}

func (t *PostgresTable) ReadRows(ctx context.Context, start, count int) ([]Row, error) {
	if start < 2 || count < 0 {
		return nil, fmt.Errorf("%s: invalid range start=%d count=%d", t.name, start, count)
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT row_num, cells FROM sheet_rows
		WHERE sheet = $1 AND row_num >= $2 AND row_num < $3
		ORDER BY row_num
	`, t.name, start, start+count)
	if err != nil {
		return nil, fmt.Errorf("read rows of %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			num int
			raw []byte
		)
		if err := rows.Scan(&num, &raw); err != nil {
			return nil, fmt.Errorf("scan row of %s: %w", t.name, err)
		}
		var cells Row
		if err := json.Unmarshal(raw, &cells); err != nil {
			return nil, fmt.Errorf("decode row %d of %s: %w", num, t.name, err)
		}
		for len(out) < num-start {
			out = append(out, nil)
		}
		out = append(out, cells)
	}
	return out, rows.Err()
}

func (t *PostgresTable) Reset(ctx context.Context, header []string) error {
	raw, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header of %s: %w", t.name, err)
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset %s: %w", t.name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE sheet = $1`, t.name); err != nil {
		return fmt.Errorf("truncate %s: %w", t.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sheet_rows (sheet, row_num, cells) VALUES ($1, 1, $2)`, t.name, raw,
	); err != nil {
		return fmt.Errorf("write header of %s: %w", t.name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_formats WHERE sheet = $1`, t.name); err != nil {
		return fmt.Errorf("clear formats of %s: %w", t.name, err)
	}
	return tx.Commit()
}

// WriteRows upserts rows in a single multi-row statement.
func (t *PostgresTable) WriteRows(ctx context.Context, start int, rows []Row) error {
	if start < 2 {
		return fmt.Errorf("%s: cannot write data at row %d", t.name, start)
	}
	if len(rows) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args = make([]any, 0, 1+2*len(rows))
	)
	args = append(args, t.name)
	sb.WriteString(`INSERT INTO sheet_rows (sheet, row_num, cells) VALUES `)
	for i, r := range rows {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode row %d of %s: %w", start+i, t.name, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		n := len(args)
		sb.WriteString("($1, $" + strconv.Itoa(n+1) + ", $" + strconv.Itoa(n+2) + ")")
		args = append(args, start+i, raw)
	}
	sb.WriteString(` ON CONFLICT (sheet, row_num) DO UPDATE SET cells = EXCLUDED.cells`)

	if _, err := t.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("write %d rows to %s at %d: %w", len(rows), t.name, start, err)
	}
	return nil
}

// UpdateCells rewrites one column in place. Rows must already be at least
// col+1 cells wide.
func (t *PostgresTable) UpdateCells(ctx context.Context, col int, values map[int]any) error {
	if col < 0 {
		return fmt.Errorf("%s: invalid column %d", t.name, col)
	}
	if len(values) == 0 {
		return nil
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.name, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE sheet_rows SET cells = jsonb_set(cells, $3, $4::jsonb)
		WHERE sheet = $1 AND row_num = $2
	`)
	if err != nil {
		return fmt.Errorf("prepare update of %s: %w", t.name, err)
	}
	defer stmt.Close()

	path := pq.Array([]string{strconv.Itoa(col)})
	rowNums := make([]int, 0, len(values))
	for rowNum := range values {
		rowNums = append(rowNums, rowNum)
	}
	slices.Sort(rowNums)
	for _, rowNum := range rowNums {
		raw, err := json.Marshal(values[rowNum])
		if err != nil {
			return fmt.Errorf("encode cell %d:%d of %s: %w", rowNum, col, t.name, err)
		}
		if _, err := stmt.ExecContext(ctx, t.name, rowNum, path, string(raw)); err != nil {
			return fmt.Errorf("update cell %d:%d of %s: %w", rowNum, col, t.name, err)
		}
	}
	return tx.Commit()
}

func (t *PostgresTable) ApplyFormat(ctx context.Context, f Format) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode format of %s: %w", t.name, err)
	}
	_, err = t.db.ExecContext(ctx, `
		INSERT INTO sheet_formats (sheet, format, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (sheet) DO UPDATE SET format = EXCLUDED.format, updated_at = NOW()
	`, t.name, raw)
	if err != nil {
		return fmt.Errorf("apply format to %s: %w", t.name, err)
	}
	return nil
}
