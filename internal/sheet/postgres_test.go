package sheet

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func TestPostgresTable_Header(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT cells FROM sheet_rows WHERE sheet = \$1 AND row_num = 1`).
		WithArgs("Platform A Orders").
		WillReturnRows(sqlmock.NewRows([]string{"cells"}).AddRow([]byte(`["Order ID","Product Name",null]`)))

	h, err := NewPostgresTable(db, "Platform A Orders").Header(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Order ID", "Product Name", ""}, h)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTable_HeaderMissing(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT cells FROM sheet_rows`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := NewPostgresTable(db, "nope").Header(context.Background())
	assert.True(t, errors.Is(err, ErrTableNotFound))
	assert.Contains(t, err.Error(), "nope")
}

func TestPostgresTable_LastRow(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(row_num\), 0\) FROM sheet_rows`).
		WithArgs("t").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(42))

	n, err := NewPostgresTable(db, "t").LastRow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestPostgresTable_ReadRowsFillsGaps(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT row_num, cells FROM sheet_rows`).
		WithArgs("t", 2, 7).
		WillReturnRows(sqlmock.NewRows([]string{"row_num", "cells"}).
			AddRow(2, []byte(`["a",1]`)).
			AddRow(4, []byte(`["c",3.5]`)))

	rows, err := NewPostgresTable(db, "t").ReadRows(context.Background(), 2, 5)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Row{"a", 1.0}, rows[0])
	assert.Nil(t, rows[1])
	assert.Equal(t, Row{"c", 3.5}, rows[2])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTable_WriteRowsSingleStatement(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO sheet_rows \(sheet, row_num, cells\) VALUES \(\$1, \$2, \$3\), \(\$1, \$4, \$5\) ON CONFLICT`).
		WithArgs("t", 10, []byte(`["a",1]`), 11, []byte(`["b",null]`)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := NewPostgresTable(db, "t").WriteRows(context.Background(), 10, []Row{{"a", 1}, {"b", nil}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTable_WriteRowsRejectsHeaderRow(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	assert.Error(t, NewPostgresTable(db, "t").WriteRows(context.Background(), 1, []Row{{"x"}}))
	assert.NoError(t, NewPostgresTable(db, "t").WriteRows(context.Background(), 2, nil))
}

func TestPostgresTable_Reset(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM sheet_rows WHERE sheet = \$1`).WithArgs("t").WillReturnResult(sqlmock.NewResult(0, 9))
	mock.ExpectExec(`INSERT INTO sheet_rows \(sheet, row_num, cells\) VALUES \(\$1, 1, \$2\)`).
		WithArgs("t", []byte(`["a","b"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM sheet_formats`).WithArgs("t").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, NewPostgresTable(db, "t").Reset(context.Background(), []string{"a", "b"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTable_ResetRollsBackOnError(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM sheet_rows`).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := NewPostgresTable(db, "t").Reset(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "boom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTable_UpdateCellsInRowOrder(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`UPDATE sheet_rows SET cells = jsonb_set`)
	prep.ExpectExec().WithArgs("t", 3, sqlmock.AnyArg(), `"2024-01-05T00:00:00Z"`).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("t", 7, sqlmock.AnyArg(), `"x"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewPostgresTable(db, "t").UpdateCells(context.Background(), 3, map[int]any{
		7: "x",
		3: "2024-01-05T00:00:00Z",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTable_ApplyFormat(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO sheet_formats`).
		WithArgs("t", []byte(`{"boldHeader":true,"frozenRows":1}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewPostgresTable(db, "t").ApplyFormat(context.Background(), Format{BoldHeader: true, FrozenRows: 1})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
