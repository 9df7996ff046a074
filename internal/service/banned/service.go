package banned

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/exclusion"
)

// Service implements banned-list business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
}

// NewService creates a banned-list service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListID returns the active list id, falling back to DefaultListID.
func (s *Service) ListID(ctx context.Context) (string, error) {
	id, err := s.repo.ActiveListID(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return DefaultListID, nil
	}
	return id, nil
}

// SetListID switches the active list.
func (s *Service) SetListID(ctx context.Context, listID string) error {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return fmt.Errorf("list id is required")
	}
	return s.repo.SetActiveListID(ctx, listID)
}

// Load returns the normalized lookup sets of a list.
func (s *Service) Load(ctx context.Context, listID string) (domain.BannedList, error) {
	entries, err := s.repo.Entries(ctx, listID)
	if err != nil {
		return domain.BannedList{}, err
	}
	return exclusion.BuildBannedList(entries), nil
}

// Add bans an email address or a whole domain on the active list. The entry
// is stored normalized so Remove accepts any spelling of it.
func (s *Service) Add(ctx context.Context, raw, note string) (domain.BannedEntry, error) {
	e, err := classify(raw)
	if err != nil {
		return domain.BannedEntry{}, err
	}
	if e.ListID, err = s.ListID(ctx); err != nil {
		return domain.BannedEntry{}, err
	}
	e.Note = strings.TrimSpace(note)
	if err := s.repo.Add(ctx, e); err != nil {
		return domain.BannedEntry{}, err
	}
	return e, nil
}

// Remove un-bans an entry on the active list.
func (s *Service) Remove(ctx context.Context, raw string) error {
	e, err := classify(raw)
	if err != nil {
		return err
	}
	listID, err := s.ListID(ctx)
	if err != nil {
		return err
	}
	return s.repo.Remove(ctx, listID, e.Entry)
}

// List returns the entries of the active list.
func (s *Service) List(ctx context.Context) ([]domain.BannedEntry, error) {
	listID, err := s.ListID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.Entries(ctx, listID)
}

func classify(raw string) (domain.BannedEntry, error) {
	raw = strings.TrimSpace(raw)
	if at := strings.Index(raw, "@"); at > 0 {
		if n := exclusion.NormalizeEmail(raw); !strings.HasSuffix(n, "@") {
			return domain.BannedEntry{Entry: n, Kind: domain.BannedEmail}, nil
		}
		return domain.BannedEntry{}, ErrInvalidEntry
	}
	d := exclusion.NormalizeDomain(raw)
	if d == "" || !strings.Contains(d, ".") {
		return domain.BannedEntry{}, ErrInvalidEntry
	}
	return domain.BannedEntry{Entry: d, Kind: domain.BannedDomain}, nil
}
