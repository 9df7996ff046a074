// Package pipeline composes the build, its post-completion steps, the
// importers, and the date backfill into the operations exposed by the HTTP
// API, the worker, and the CLI.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ignite/order-reconciler/internal/backfill"
	"github.com/ignite/order-reconciler/internal/cleanmaster"
	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/importer"
	"github.com/ignite/order-reconciler/internal/notify"
	"github.com/ignite/order-reconciler/internal/pkg/logger"
	"github.com/ignite/order-reconciler/internal/sheet"
)

// ErrUnknownPlatform is returned by Import for a platform with no importer.
var ErrUnknownPlatform = errors.New("no importer configured for platform")

// ErrBackfillDisabled is returned when no backfill is wired.
var ErrBackfillDisabled = errors.New("order date backfill is not configured")

type Builder interface {
	Run(ctx context.Context) (cleanmaster.Result, error)
	Status(ctx context.Context) (*domain.BuildState, error)
	Reset(ctx context.Context) error
}

type Backfiller interface {
	Run(ctx context.Context) (backfill.Result, error)
}

type Importer interface {
	Run(ctx context.Context, since time.Time) (importer.Result, error)
}

type Exporter interface {
	Export(ctx context.Context, t sheet.Table, runID string) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, s notify.Summary) error
}

// Outcome is a build result plus what happened after completion.
type Outcome struct {
	cleanmaster.Result
	ExportKey   string `json:"export_key,omitempty"`
	ExportError string `json:"export_error,omitempty"`
}

// Pipeline wires the pieces. Only Builder is required.
type Pipeline struct {
	Builder   Builder
	Backfill  Backfiller
	Importers map[domain.Platform]Importer
	// Lookback is how far back each import window starts.
	Lookback time.Duration

	Output       sheet.Table
	Exporter     Exporter
	ExportBucket string
	Notifier     Notifier

	Now func() time.Time
	Log *logger.Logger
}

// Build runs one build invocation. After a completed build the canonical
// table is exported and a summary sent; failures of either are logged and
// never fail the build.
func (p *Pipeline) Build(ctx context.Context) (Outcome, error) {
	res, err := p.Builder.Run(ctx)
	out := Outcome{Result: res}
	if err != nil || res.Status != cleanmaster.StatusCompleted {
		return out, err
	}

	if p.Exporter != nil && p.Output != nil {
		key, err := p.Exporter.Export(ctx, p.Output, res.RunID)
		if err != nil {
			p.log().Error("export canonical table", "run_id", res.RunID, "err", err)
			out.ExportError = err.Error()
		} else {
			out.ExportKey = key
		}
	}

	if p.Notifier != nil {
		s := notify.Summary{
			RunID:        res.RunID,
			Status:       string(res.Status),
			Written:      res.Written,
			Excluded:     res.Excluded,
			Message:      res.Message,
			FinishedAt:   p.now().UTC(),
			ExportBucket: p.ExportBucket,
			ExportKey:    out.ExportKey,
		}
		if err := p.Notifier.Notify(ctx, s); err != nil {
			p.log().Warn("send build summary", "run_id", res.RunID, "err", err)
		}
	}
	return out, nil
}

// State returns the persisted build state, nil when idle.
func (p *Pipeline) State(ctx context.Context) (*domain.BuildState, error) {
	return p.Builder.Status(ctx)
}

// Reset discards a paused build.
func (p *Pipeline) Reset(ctx context.Context) error {
	return p.Builder.Reset(ctx)
}

// BackfillDates fills blank canonical order dates.
func (p *Pipeline) BackfillDates(ctx context.Context) (backfill.Result, error) {
	if p.Backfill == nil {
		return backfill.Result{}, ErrBackfillDisabled
	}
	return p.Backfill.Run(ctx)
}

// Import pulls one platform's recent orders into its raw store.
func (p *Pipeline) Import(ctx context.Context, platform domain.Platform) (importer.Result, error) {
	im, ok := p.Importers[platform]
	if !ok {
		return importer.Result{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	return im.Run(ctx, p.now().Add(-p.Lookback))
}

// ImportAll runs every configured importer in platform order. One failing
// platform does not stop the others.
func (p *Pipeline) ImportAll(ctx context.Context) ([]importer.Result, error) {
	platforms := make([]domain.Platform, 0, len(p.Importers))
	for pl := range p.Importers {
		platforms = append(platforms, pl)
	}
	slices.Sort(platforms)

	var (
		results []importer.Result
		errs    []error
	)
	for _, pl := range platforms {
		res, err := p.Import(ctx, pl)
		if err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", pl, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Tick is one scheduled invocation: imports first, then one build step,
// which resumes a paused build or starts a new one.
func (p *Pipeline) Tick(ctx context.Context) (Outcome, error) {
	if _, err := p.ImportAll(ctx); err != nil {
		p.log().Warn("scheduled import", "err", err)
	}
	return p.Build(ctx)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) log() *logger.Logger {
	if p.Log != nil {
		return p.Log
	}
	return logger.Default()
}
