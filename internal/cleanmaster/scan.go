package cleanmaster

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/order-reconciler/internal/coerce"
	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/rawschema"
	"github.com/ignite/order-reconciler/internal/sheet"
)

// scan is one phase of one invocation: a forward-only, chunked read of a raw
// store from the persisted cursor.
type scan struct {
	b        *Builder
	st       *domain.BuildState
	table    sheet.Table
	m        *rawschema.Mapping
	platform domain.Platform
	banned   domain.BannedList
	started  time.Time

	// readCursor is the next raw row to read. It runs ahead of
	// st.RowCursor while a Platform B group is held open.
	readCursor int

	// committed holds order keys already in the seen-order index; claimed
	// holds keys whose totals this invocation has written.
	committed map[string]bool
	claimed   map[string]bool

	// Per-chunk buffers, reset by commit.
	out      []sheet.Row
	newKeys  []string
	excluded map[domain.ExclusionReason]int

	// Platform B only. held counts exclusions of rows read while group is
	// open; a commit rewinds the cursor to the group start, so they are
	// counted only once the group closes.
	group          *orderGroup
	held           map[domain.ExclusionReason]int
	excludedOrders map[string]bool
}

func newScan(b *Builder, st *domain.BuildState, t sheet.Table, m *rawschema.Mapping, banned domain.BannedList, started time.Time) *scan {
	s := &scan{
		b:              b,
		st:             st,
		table:          t,
		m:              m,
		platform:       m.Schema.Platform,
		banned:         banned,
		started:        started,
		readCursor:     st.RowCursor,
		committed:      make(map[string]bool),
		claimed:        make(map[string]bool),
		excluded:       make(map[domain.ExclusionReason]int),
		held:           make(map[domain.ExclusionReason]int),
		excludedOrders: make(map[string]bool, len(st.ExcludedOrderIDs)),
	}
	for _, id := range st.ExcludedOrderIDs {
		s.excludedOrders[id] = true
	}
	return s
}

// run scans to the end of the store. It returns paused=true when the soft
// time limit fired; in that case everything read so far is committed.
func (s *scan) run(ctx context.Context) (paused bool, err error) {
	last, err := s.table.LastRow(ctx)
	if err != nil {
		return false, fmt.Errorf("size of %s: %w", s.table.Name(), err)
	}

	for s.readCursor <= last {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if s.b.opts.Now().Sub(s.started) >= s.b.opts.SoftLimit {
			s.flushGroup()
			if err := s.commit(ctx); err != nil {
				return false, err
			}
			return true, nil
		}

		chunkStart := time.Now()
		n := min(s.b.opts.ChunkSize, last-s.readCursor+1)
		rows, err := s.table.ReadRows(ctx, s.readCursor, n)
		if err != nil {
			return false, fmt.Errorf("read %s rows %d-%d: %w", s.table.Name(), s.readCursor, s.readCursor+n-1, err)
		}
		if err := s.prefetch(ctx, rows); err != nil {
			return false, err
		}
		for i := 0; i < n; i++ {
			var row []any
			if i < len(rows) {
				row = rows[i]
			}
			s.process(row, s.readCursor+i)
		}
		s.readCursor += n
		if err := s.commit(ctx); err != nil {
			return false, err
		}
		s.observeChunk(time.Since(chunkStart))
	}

	s.flushGroup()
	return false, s.commit(ctx)
}

// prefetch loads which of the chunk's orders already have committed totals,
// in one index round trip.
func (s *scan) prefetch(ctx context.Context, rows []sheet.Row) error {
	var keys []string
	for _, r := range rows {
		if rowIsBlank(r) {
			continue
		}
		k := domain.OrderKey(s.platform, s.m.Text(r, rawschema.FieldOrderID))
		if !s.committed[k] && !s.claimed[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	found, err := s.b.deps.Orders.Contains(ctx, keys)
	if err != nil {
		return err
	}
	for k := range found {
		s.committed[k] = true
	}
	return nil
}

func (s *scan) process(row []any, rowNum int) {
	if s.platform == domain.PlatformB {
		s.processB(row, rowNum)
		return
	}
	s.processA(row)
}

// ownsTotals reports whether key's order-level totals are still unwritten.
func (s *scan) ownsTotals(key string) bool {
	if key == s.st.LastOrderKey {
		return false
	}
	return !s.committed[key] && !s.claimed[key]
}

func (s *scan) claim(key string) {
	s.claimed[key] = true
	s.newKeys = append(s.newKeys, key)
}

func (s *scan) exclude(reason domain.ExclusionReason, n int) {
	if s.group != nil {
		s.held[reason] += n
		return
	}
	s.excluded[reason] += n
}

// closeGroup drops the open group and releases the exclusions held
// behind it.
func (s *scan) closeGroup() {
	s.group = nil
	for reason, n := range s.held {
		s.excluded[reason] += n
	}
	clear(s.held)
}

// commit writes the chunk's lines in one contiguous write, then persists
// the cursor together with the newly claimed order keys, then records those
// keys in the seen-order index.
func (s *scan) commit(ctx context.Context) error {
	if len(s.out) > 0 {
		if err := s.b.deps.Output.WriteRows(ctx, s.st.OutRow, s.out); err != nil {
			return fmt.Errorf("write %d rows to %s at row %d: %w", len(s.out), s.b.deps.Output.Name(), s.st.OutRow, err)
		}
	}

	excluded := 0
	for _, n := range s.excluded {
		excluded += n
	}
	s.st.OutRow += len(s.out)
	s.st.WrittenCount += len(s.out)
	s.st.ExcludedCount += excluded
	s.st.RowCursor = s.readCursor
	if s.group != nil {
		// Lines of the open group are not written yet; a crash must
		// re-read them.
		s.st.RowCursor = s.group.startRow
	}
	s.st.PendingOrderKeys = s.newKeys
	s.st.UpdatedAt = s.b.opts.Now()

	if err := s.b.deps.State.Save(ctx, s.st); err != nil {
		return err
	}
	if err := s.b.deps.Orders.Add(ctx, s.newKeys); err != nil {
		return err
	}
	for _, k := range s.newKeys {
		s.committed[k] = true
	}

	s.observeCommit(len(s.out))
	s.b.log.Debug("chunk committed",
		"run_id", s.st.RunID, "platform", string(s.platform),
		"row_cursor", s.st.RowCursor, "written", len(s.out), "excluded", excluded)

	s.out = nil
	s.newKeys = nil
	s.excluded = make(map[domain.ExclusionReason]int)
	return nil
}

func (s *scan) observeCommit(written int) {
	reg := s.b.deps.Metrics
	if reg == nil {
		return
	}
	reg.RowsWritten.WithLabelValues(string(s.platform)).Add(float64(written))
	for reason, n := range s.excluded {
		reg.RowsExcluded.WithLabelValues(string(s.platform), string(reason)).Add(float64(n))
	}
}

func (s *scan) observeChunk(d time.Duration) {
	if reg := s.b.deps.Metrics; reg != nil {
		reg.ChunkDuration.WithLabelValues(string(s.platform)).Observe(d.Seconds())
	}
}

func rowIsBlank(row []any) bool {
	for _, c := range row {
		if !coerce.IsBlank(c) {
			return false
		}
	}
	return true
}
