// Package buildstate persists the resumable cursor of the clean-master build
// and the set of orders whose totals were already committed.
//
// A Repository stores one JSON-encoded domain.BuildState under StateKey;
// absence of the key means no build is in progress. An OrderIndex records
// every order key whose order-level totals have been written, so totals land
// on exactly one canonical line even when raw rows of an order are not
// contiguous or straddle a pause.
package buildstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/order-reconciler/internal/domain"
)

// StateKey is the property key of the clean-master build state.
const StateKey = "cleanmaster:build_state"

// SeenOrdersKey is the Redis set of committed order keys.
const SeenOrdersKey = "cleanmaster:seen_orders"

// ErrCorruptState is returned when a persisted state cannot be decoded.
var ErrCorruptState = errors.New("corrupt build state")

// Repository loads and saves the build state.
type Repository interface {
	// Load returns (nil, nil) when no build is in progress.
	Load(ctx context.Context) (*domain.BuildState, error)
	Save(ctx context.Context, s *domain.BuildState) error
	Delete(ctx context.Context) error
}

// OrderIndex is the set of order keys whose totals are already committed.
type OrderIndex interface {
	// Contains returns the subset of keys present in the index.
	Contains(ctx context.Context, keys []string) (map[string]bool, error)
	Add(ctx context.Context, keys []string) error
	Reset(ctx context.Context) error
}

func encodeState(s *domain.BuildState) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil build state")
	}
	return json.Marshal(s)
}

func decodeState(raw []byte) (*domain.BuildState, error) {
	var s domain.BuildState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	switch s.Phase {
	case domain.PhasePlatformA, domain.PhasePlatformB:
	default:
		return nil, fmt.Errorf("%w: unknown phase %q", ErrCorruptState, s.Phase)
	}
	if s.RowCursor < domain.FirstDataRow || s.OutRow < domain.FirstDataRow {
		return nil, fmt.Errorf("%w: cursor %d, out row %d", ErrCorruptState, s.RowCursor, s.OutRow)
	}
	return &s, nil
}
