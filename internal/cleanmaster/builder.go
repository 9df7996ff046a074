// Package cleanmaster builds the canonical order-line table from the two raw
// order stores.
//
// A build is a resumable, chunked, two-phase scan: Platform A first, then
// Platform B. Each Run call processes chunks until both stores are exhausted
// or the soft time limit is reached, persisting its cursor after every
// chunk. A paused build is continued by calling Run again. The whole build
// is guarded by a single distributed lock.
package cleanmaster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/order-reconciler/internal/buildstate"
	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/eventlog"
	"github.com/ignite/order-reconciler/internal/exclusion"
	"github.com/ignite/order-reconciler/internal/metrics"
	"github.com/ignite/order-reconciler/internal/pkg/distlock"
	"github.com/ignite/order-reconciler/internal/pkg/logger"
	"github.com/ignite/order-reconciler/internal/rawschema"
	"github.com/ignite/order-reconciler/internal/sheet"
)

// ErrLockBusy is returned when another invocation holds the build lock.
var ErrLockBusy = errors.New("clean master build already running, try again shortly")

// ConfigError wraps a fatal configuration problem: a missing raw store or a
// raw store without a required column. No state is created when it occurs.
type ConfigError struct{ Err error }

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// Status is the outcome of one Run call.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
)

// Result describes what one Run call did.
type Result struct {
	Status   Status       `json:"status"`
	RunID    string       `json:"run_id"`
	Phase    domain.Phase `json:"phase,omitempty"`
	Written  int          `json:"written"`
	Excluded int          `json:"excluded"`
	Message  string       `json:"message"`
}

const (
	DefaultChunkSize = 1500
	DefaultSoftLimit = 318 * time.Second
	DefaultLockWait  = 10 * time.Second
)

// Options tune a Builder. Zero values take the defaults above.
type Options struct {
	ChunkSize int
	// SoftLimit is the wall-clock budget of one Run call. It is checked
	// before every chunk; when exceeded the build pauses.
	SoftLimit time.Duration
	LockWait  time.Duration
	LockPoll  time.Duration
	Now       func() time.Time
	NewRunID  func() string
}

// Deps are the collaborators of a Builder. Metrics, Events and Log are
// optional.
type Deps struct {
	RawA   sheet.Table
	RawB   sheet.Table
	Output sheet.WritableTable

	State  buildstate.Repository
	Orders buildstate.OrderIndex
	Lock   distlock.DistLock

	Banned   *exclusion.Cache
	Products exclusion.ProductRules
	Renewal  exclusion.RenewalRule

	Events  eventlog.Sink
	Metrics *metrics.Registry
	Log     *logger.Logger
}

// Builder runs clean-master builds.
type Builder struct {
	deps Deps
	opts Options
	log  *logger.Logger
}

func New(deps Deps, opts Options) *Builder {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.SoftLimit <= 0 {
		opts.SoftLimit = DefaultSoftLimit
	}
	if opts.LockWait <= 0 {
		opts.LockWait = DefaultLockWait
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	if deps.Events == nil {
		deps.Events = eventlog.Discard
	}
	if deps.Banned == nil {
		deps.Banned = exclusion.NewCache(nil)
	}
	log := deps.Log
	if log == nil {
		log = logger.Default()
	}
	return &Builder{deps: deps, opts: opts, log: log.With("component", "cleanmaster")}
}

// Run performs one invocation of the build.
func (b *Builder) Run(ctx context.Context) (Result, error) {
	if err := b.lock(ctx); err != nil {
		b.countRun("lock_busy", err)
		return Result{}, err
	}
	defer b.unlock()

	res, err := b.run(ctx)
	if err != nil {
		b.countRun("error", err)
		return Result{}, err
	}
	b.countRun(string(res.Status), nil)
	return res, nil
}

func (b *Builder) run(ctx context.Context) (Result, error) {
	started := b.opts.Now()

	mapA, err := b.resolve(ctx, b.deps.RawA, rawschema.PlatformA)
	if err != nil {
		return Result{}, err
	}
	mapB, err := b.resolve(ctx, b.deps.RawB, rawschema.PlatformB)
	if err != nil {
		return Result{}, err
	}

	banned, err := b.deps.Banned.Get(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load banned list: %w", err)
	}

	st, err := b.deps.State.Load(ctx)
	if err != nil {
		return Result{}, err
	}
	if st == nil {
		if st, err = b.start(ctx); err != nil {
			return Result{}, err
		}
	} else if len(st.PendingOrderKeys) > 0 {
		if err := b.deps.Orders.Add(ctx, st.PendingOrderKeys); err != nil {
			return Result{}, err
		}
	}
	log := b.log.With("run_id", st.RunID)
	log.Info("clean master invocation", "phase", string(st.Phase), "row_cursor", st.RowCursor, "out_row", st.OutRow)

	for {
		switch st.Phase {
		case domain.PhasePlatformA:
			sc := newScan(b, st, b.deps.RawA, mapA, banned, started)
			paused, err := sc.run(ctx)
			if err != nil {
				return Result{}, fmt.Errorf("platform A scan: %w", err)
			}
			if paused {
				return b.pause(ctx, st), nil
			}
			st.Phase = domain.PhasePlatformB
			st.RowCursor = domain.FirstDataRow
			st.LastOrderKey = ""
			st.PendingOrderKeys = nil
			st.UpdatedAt = b.opts.Now()
			if err := b.deps.State.Save(ctx, st); err != nil {
				return Result{}, err
			}
			log.Info("platform A complete", "written", st.WrittenCount, "excluded", st.ExcludedCount)

		case domain.PhasePlatformB:
			sc := newScan(b, st, b.deps.RawB, mapB, banned, started)
			paused, err := sc.run(ctx)
			if err != nil {
				return Result{}, fmt.Errorf("platform B scan: %w", err)
			}
			if paused {
				return b.pause(ctx, st), nil
			}
			return b.finish(ctx, st)

		default:
			return Result{}, fmt.Errorf("%w: unknown phase %q", buildstate.ErrCorruptState, st.Phase)
		}
	}
}

// start truncates the output table and persists a fresh state.
func (b *Builder) start(ctx context.Context) (*domain.BuildState, error) {
	if err := b.deps.Output.Reset(ctx, domain.CanonicalHeader); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", b.deps.Output.Name(), err)
	}
	if err := b.deps.Orders.Reset(ctx); err != nil {
		return nil, err
	}
	st := domain.NewBuildState(b.opts.NewRunID(), b.opts.Now())
	if err := b.deps.State.Save(ctx, st); err != nil {
		return nil, err
	}
	b.event(ctx, st, "Clean master build started", nil)
	return st, nil
}

func (b *Builder) pause(ctx context.Context, st *domain.BuildState) Result {
	msg := fmt.Sprintf("Clean master paused in %s at row %d (%d written, %d excluded so far). Run again to continue.",
		st.Phase, st.RowCursor, st.WrittenCount, st.ExcludedCount)
	b.event(ctx, st, msg, nil)
	b.log.Info("clean master paused", "run_id", st.RunID, "phase", string(st.Phase), "row_cursor", st.RowCursor)
	return Result{
		Status:   StatusPaused,
		RunID:    st.RunID,
		Phase:    st.Phase,
		Written:  st.WrittenCount,
		Excluded: st.ExcludedCount,
		Message:  msg,
	}
}

// finish formats the output and discards the persisted state. Formatting
// happens first so that a failure leaves a resumable state behind.
func (b *Builder) finish(ctx context.Context, st *domain.BuildState) (Result, error) {
	if err := b.deps.Output.ApplyFormat(ctx, canonicalFormat); err != nil {
		return Result{}, fmt.Errorf("format %s: %w", b.deps.Output.Name(), err)
	}
	if err := b.deps.State.Delete(ctx); err != nil {
		return Result{}, err
	}
	if err := b.deps.Orders.Reset(ctx); err != nil {
		b.log.Warn("reset seen-order index", "err", err)
	}

	msg := fmt.Sprintf("Clean master complete: %d rows written, %d rows excluded.", st.WrittenCount, st.ExcludedCount)
	b.event(ctx, st, msg, map[string]any{"written": st.WrittenCount, "excluded": st.ExcludedCount})
	b.log.Info("clean master complete", "run_id", st.RunID, "written", st.WrittenCount, "excluded", st.ExcludedCount)
	return Result{
		Status:   StatusCompleted,
		RunID:    st.RunID,
		Written:  st.WrittenCount,
		Excluded: st.ExcludedCount,
		Message:  msg,
	}, nil
}

// Status returns the persisted state, or nil when no build is in progress.
func (b *Builder) Status(ctx context.Context) (*domain.BuildState, error) {
	return b.deps.State.Load(ctx)
}

// Reset discards a paused build so the next Run starts over. It takes the
// build lock.
func (b *Builder) Reset(ctx context.Context) error {
	if err := b.lock(ctx); err != nil {
		return err
	}
	defer b.unlock()
	if err := b.deps.State.Delete(ctx); err != nil {
		return err
	}
	return b.deps.Orders.Reset(ctx)
}

func (b *Builder) lock(ctx context.Context) error {
	err := distlock.AcquireWithin(ctx, b.deps.Lock, b.opts.LockWait, b.opts.LockPoll)
	if errors.Is(err, distlock.ErrNotAcquired) {
		return ErrLockBusy
	}
	if err != nil {
		return fmt.Errorf("acquire build lock: %w", err)
	}
	return nil
}

func (b *Builder) unlock() {
	// The caller's context may already be cancelled; the lock must still go.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.deps.Lock.Release(ctx); err != nil {
		b.log.Warn("release build lock", "err", err)
	}
}

// resolve binds a raw store's header to its schema.
func (b *Builder) resolve(ctx context.Context, t sheet.Table, schema *rawschema.Schema) (*rawschema.Mapping, error) {
	if t == nil {
		return nil, &ConfigError{Err: fmt.Errorf("raw store for %s is not configured", schema.Platform)}
	}
	header, err := t.Header(ctx)
	if errors.Is(err, sheet.ErrTableNotFound) {
		return nil, &ConfigError{Err: fmt.Errorf("raw store missing: %w", err)}
	}
	if err != nil {
		return nil, err
	}
	m, err := rawschema.Resolve(t.Name(), schema, header)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return m, nil
}

func (b *Builder) event(ctx context.Context, st *domain.BuildState, msg string, fields map[string]any) {
	e := eventlog.Event{Time: b.opts.Now(), Source: "cleanmaster", RunID: st.RunID, Message: msg, Fields: fields}
	if err := b.deps.Events.Append(ctx, e); err != nil {
		b.log.Warn("append event", "err", err)
	}
}

func (b *Builder) countRun(outcome string, err error) {
	if b.deps.Metrics != nil {
		b.deps.Metrics.BuildRuns.WithLabelValues(outcome).Inc()
	}
	if err != nil && !errors.Is(err, ErrLockBusy) {
		b.log.Error("clean master failed", "err", err)
	}
}

var canonicalFormat = sheet.Format{
	BoldHeader: true,
	FrozenRows: 1,
	NumberFormats: map[string]string{
		"order_date":           "yyyy-mm-dd",
		"quantity":             "0",
		"unit_price":           "#,##0.00",
		"line_revenue":         "#,##0.00",
		"order_discount_total": "#,##0.00",
		"order_refund_total":   "#,##0.00",
		"order_net_revenue":    "#,##0.00",
	},
}
