package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/service/banned"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

var _ banned.Repository = (*BannedRepo)(nil)

func TestBannedRepo_ActiveListID(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT value FROM app_properties WHERE key = \$1`).
		WithArgs(BannedListProperty).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("2024-q1"))

	id, err := NewBannedRepo(db).ActiveListID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-q1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBannedRepo_ActiveListID_Unset(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT value FROM app_properties`).
		WithArgs(BannedListProperty).
		WillReturnError(sql.ErrNoRows)

	id, err := NewBannedRepo(db).ActiveListID(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestBannedRepo_Entries(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT list_id, entry, kind, COALESCE\(note, ''\)\s+FROM banned_customers`).
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"list_id", "entry", "kind", "note"}).
			AddRow("default", "bad@example.com", "email", "chargeback").
			AddRow("default", "fraud.example", "domain", ""))

	got, err := NewBannedRepo(db).Entries(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, []domain.BannedEntry{
		{ListID: "default", Entry: "bad@example.com", Kind: domain.BannedEmail, Note: "chargeback"},
		{ListID: "default", Entry: "fraud.example", Kind: domain.BannedDomain},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBannedRepo_Add(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO banned_customers`).
		WithArgs("default", "bad@example.com", "email", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewBannedRepo(db).Add(context.Background(), domain.BannedEntry{
		ListID: "default", Entry: "bad@example.com", Kind: domain.BannedEmail,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBannedRepo_RemoveMissing(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM banned_customers WHERE list_id = \$1 AND entry = \$2`).
		WithArgs("default", "ghost@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewBannedRepo(db).Remove(context.Background(), "default", "ghost@example.com")
	assert.ErrorIs(t, err, banned.ErrNotFound)
}

func TestBannedRepo_SetActiveListID(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO app_properties`).
		WithArgs(BannedListProperty, "2024-q2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewBannedRepo(db).SetActiveListID(context.Background(), "2024-q2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
