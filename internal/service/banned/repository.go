package banned

import (
	"context"

	"github.com/ignite/order-reconciler/internal/domain"
)

// DefaultListID is used when no banned_list_id property has been set.
const DefaultListID = "default"

// Repository defines the data access contract for banned-customer lists.
type Repository interface {
	// ActiveListID returns the configured list id, or "" if none is set.
	ActiveListID(ctx context.Context) (string, error)

	// SetActiveListID points builds at another list.
	SetActiveListID(ctx context.Context, listID string) error

	// Entries returns every entry of a list ordered by entry.
	Entries(ctx context.Context, listID string) ([]domain.BannedEntry, error)

	// Add inserts an entry. Re-adding an entry updates its note.
	Add(ctx context.Context, e domain.BannedEntry) error

	// Remove deletes an entry. Returns ErrNotFound if it doesn't exist.
	Remove(ctx context.Context, listID, entry string) error
}
