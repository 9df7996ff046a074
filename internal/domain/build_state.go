package domain

import "time"

// Phase is the persisted position of the clean-master build.
type Phase string

const (
	PhasePlatformA Phase = "platformA"
	PhasePlatformB Phase = "platformB"
)

// FirstDataRow is the first non-header row of every table.
const FirstDataRow = 2

// BuildState is the resumable cursor of a clean-master build. It is created on
// the first invocation, saved after every chunk, and deleted once both phases
// complete. Absence of a persisted state means no build is in progress.
type BuildState struct {
	RunID         string    `json:"runId"`
	Phase         Phase     `json:"phase"`
	RowCursor     int       `json:"rowCursor"`
	OutRow        int       `json:"outRow"`
	ExcludedCount int       `json:"excludedCount"`
	WrittenCount  int       `json:"writtenCount"`
	LastOrderKey  string    `json:"lastOrderKey"`
	StartedAt     time.Time `json:"startedAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	// ExcludedOrderIDs holds Platform B orders dropped in full by the renewal
	// rule; later lines of those orders are skipped even across pauses.
	ExcludedOrderIDs []string `json:"excludedOrderIds,omitempty"`

	// PendingOrderKeys are the order keys first written by the last
	// committed chunk. They are saved with the cursor and then added to the
	// seen-order index; a resumed build re-adds them in case the process
	// died in between.
	PendingOrderKeys []string `json:"pendingOrderKeys,omitempty"`
}

// NewBuildState returns the initial state of a fresh build.
func NewBuildState(runID string, now time.Time) *BuildState {
	return &BuildState{
		RunID:     runID,
		Phase:     PhasePlatformA,
		RowCursor: FirstDataRow,
		OutRow:    FirstDataRow,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// IsOrderExcluded reports whether orderID was excluded in full earlier in the
// Platform B pass.
func (s *BuildState) IsOrderExcluded(orderID string) bool {
	for _, id := range s.ExcludedOrderIDs {
		if id == orderID {
			return true
		}
	}
	return false
}

// ExcludeOrder remembers orderID as excluded in full.
func (s *BuildState) ExcludeOrder(orderID string) {
	if !s.IsOrderExcluded(orderID) {
		s.ExcludedOrderIDs = append(s.ExcludedOrderIDs, orderID)
	}
}
