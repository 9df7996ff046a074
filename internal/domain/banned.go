package domain

// BannedList is the set of customers whose orders are excluded from the
// canonical table. Entries are stored normalized (see exclusion.NormalizeEmail).
type BannedList struct {
	ExactEmails   map[string]struct{} `json:"-"`
	BannedDomains map[string]struct{} `json:"-"`
}

// NewBannedList returns an empty list ready for use.
func NewBannedList() BannedList {
	return BannedList{
		ExactEmails:   make(map[string]struct{}),
		BannedDomains: make(map[string]struct{}),
	}
}

// Len returns the total number of entries across both sets.
func (b BannedList) Len() int {
	return len(b.ExactEmails) + len(b.BannedDomains)
}

// BannedEntryKind distinguishes exact addresses from whole domains.
type BannedEntryKind string

const (
	BannedEmail  BannedEntryKind = "email"
	BannedDomain BannedEntryKind = "domain"
)

// BannedEntry is one persisted row of a banned-customer list.
type BannedEntry struct {
	ListID string          `json:"list_id" db:"list_id"`
	Entry  string          `json:"entry" db:"entry"`
	Kind   BannedEntryKind `json:"kind" db:"kind"`
	Note   string          `json:"note,omitempty" db:"note"`
}
