package buildstate

import (
	"context"
	"sync"

	"github.com/ignite/order-reconciler/internal/domain"
)

// MemoryRepository keeps the state in process, JSON-encoded so callers never
// share a pointer with the store.
type MemoryRepository struct {
	mu  sync.Mutex
	raw []byte
}

func NewMemoryRepository() *MemoryRepository { return &MemoryRepository{} }

func (r *MemoryRepository) Load(ctx context.Context) (*domain.BuildState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raw == nil {
		return nil, nil
	}
	return decodeState(r.raw)
}

func (r *MemoryRepository) Save(ctx context.Context, s *domain.BuildState) error {
	raw, err := encodeState(s)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.raw = raw
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context) error {
	r.mu.Lock()
	r.raw = nil
	r.mu.Unlock()
	return nil
}

// MemoryOrderIndex is an in-process OrderIndex.
type MemoryOrderIndex struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemoryOrderIndex() *MemoryOrderIndex {
	return &MemoryOrderIndex{keys: make(map[string]struct{})}
}

func (x *MemoryOrderIndex) Contains(ctx context.Context, keys []string) (map[string]bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[string]bool)
	for _, k := range keys {
		if _, ok := x.keys[k]; ok {
			out[k] = true
		}
	}
	return out, nil
}

func (x *MemoryOrderIndex) Add(ctx context.Context, keys []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, k := range keys {
		x.keys[k] = struct{}{}
	}
	return nil
}

func (x *MemoryOrderIndex) Reset(ctx context.Context) error {
	x.mu.Lock()
	x.keys = make(map[string]struct{})
	x.mu.Unlock()
	return nil
}

// Len returns the number of committed order keys.
func (x *MemoryOrderIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.keys)
}
