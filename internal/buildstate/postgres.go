package buildstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/order-reconciler/internal/domain"
)

// PostgresRepository stores the state in the app_properties key/value table.
type PostgresRepository struct{ db *sql.DB }

func NewPostgresRepository(db *sql.DB) *PostgresRepository { return &PostgresRepository{db: db} }

func (r *PostgresRepository) Load(ctx context.Context) (*domain.BuildState, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM app_properties WHERE key = $1`, StateKey,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load build state: %w", err)
	}
	return decodeState([]byte(raw))
}

func (r *PostgresRepository) Save(ctx context.Context, s *domain.BuildState) error {
	raw, err := encodeState(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO app_properties (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, StateKey, string(raw))
	if err != nil {
		return fmt.Errorf("save build state: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM app_properties WHERE key = $1`, StateKey); err != nil {
		return fmt.Errorf("delete build state: %w", err)
	}
	return nil
}

// PostgresOrderIndex keeps committed order keys in cleanmaster_seen_orders.
type PostgresOrderIndex struct{ db *sql.DB }

func NewPostgresOrderIndex(db *sql.DB) *PostgresOrderIndex { return &PostgresOrderIndex{db: db} }

func (x *PostgresOrderIndex) Contains(ctx context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := x.db.QueryContext(ctx,
		`SELECT order_key FROM cleanmaster_seen_orders WHERE order_key = ANY($1)`, pq.Array(keys),
	)
	if err != nil {
		return nil, fmt.Errorf("check seen orders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan seen order: %w", err)
		}
		out[k] = true
	}
	return out, rows.Err()
}

func (x *PostgresOrderIndex) Add(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO cleanmaster_seen_orders (order_key)
		SELECT unnest($1::text[])
		ON CONFLICT (order_key) DO NOTHING
	`, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("record seen orders: %w", err)
	}
	return nil
}

func (x *PostgresOrderIndex) Reset(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `TRUNCATE cleanmaster_seen_orders`); err != nil {
		return fmt.Errorf("reset seen orders: %w", err)
	}
	return nil
}
