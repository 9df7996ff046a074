package banned

import (
	"context"
	"sort"
	"sync"

	"github.com/ignite/order-reconciler/internal/domain"
)

// MemoryRepository keeps lists in process. Used by the offline CLI.
type MemoryRepository struct {
	mu     sync.RWMutex
	active string
	lists  map[string]map[string]domain.BannedEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{lists: make(map[string]map[string]domain.BannedEntry)}
}

func (r *MemoryRepository) ActiveListID(ctx context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, nil
}

func (r *MemoryRepository) SetActiveListID(ctx context.Context, listID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = listID
	return nil
}

func (r *MemoryRepository) Entries(ctx context.Context, listID string) ([]domain.BannedEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.BannedEntry, 0, len(r.lists[listID]))
	for _, e := range r.lists[listID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry < out[j].Entry })
	return out, nil
}

func (r *MemoryRepository) Add(ctx context.Context, e domain.BannedEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, ok := r.lists[e.ListID]
	if !ok {
		list = make(map[string]domain.BannedEntry)
		r.lists[e.ListID] = list
	}
	list[e.Entry] = e
	return nil
}

func (r *MemoryRepository) Remove(ctx context.Context, listID, entry string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lists[listID][entry]; !ok {
		return ErrNotFound
	}
	delete(r.lists[listID], entry)
	return nil
}
