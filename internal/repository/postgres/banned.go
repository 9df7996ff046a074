package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/service/banned"
)

// BannedListProperty is the app_properties key naming the active list.
const BannedListProperty = "banned_list_id"

// BannedRepo implements banned.Repository against PostgreSQL.
type BannedRepo struct{ db *sql.DB }

// NewBannedRepo creates a Postgres-backed banned-customer repository.
func NewBannedRepo(db *sql.DB) *BannedRepo { return &BannedRepo{db: db} }

func (r *BannedRepo) ActiveListID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM app_properties WHERE key = $1`, BannedListProperty,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("banned list id: %w", err)
	}
	return id, nil
}

func (r *BannedRepo) SetActiveListID(ctx context.Context, listID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_properties (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, BannedListProperty, listID)
	if err != nil {
		return fmt.Errorf("set banned list id: %w", err)
	}
	return nil
}

func (r *BannedRepo) Entries(ctx context.Context, listID string) ([]domain.BannedEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT list_id, entry, kind, COALESCE(note, '')
		FROM banned_customers
		WHERE list_id = $1
		ORDER BY entry
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("list banned customers: %w", err)
	}
	defer rows.Close()

	var out []domain.BannedEntry
	for rows.Next() {
		var e domain.BannedEntry
		if err := rows.Scan(&e.ListID, &e.Entry, &e.Kind, &e.Note); err != nil {
			return nil, fmt.Errorf("scan banned customer: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *BannedRepo) Add(ctx context.Context, e domain.BannedEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO banned_customers (list_id, entry, kind, note, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NOW())
		ON CONFLICT (list_id, entry) DO UPDATE SET kind = EXCLUDED.kind, note = EXCLUDED.note
	`, e.ListID, e.Entry, string(e.Kind), e.Note)
	if err != nil {
		return fmt.Errorf("ban customer: %w", err)
	}
	return nil
}

func (r *BannedRepo) Remove(ctx context.Context, listID, entry string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM banned_customers WHERE list_id = $1 AND entry = $2`,
		listID, entry,
	)
	if err != nil {
		return fmt.Errorf("remove banned customer: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return banned.ErrNotFound
	}
	return nil
}
