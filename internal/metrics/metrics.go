// Package metrics exposes the reconciler's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	// Clean-master build
	BuildRuns     *prometheus.CounterVec // outcome: completed|paused|lock_busy|error
	RowsWritten   *prometheus.CounterVec // platform
	RowsExcluded  *prometheus.CounterVec // platform, reason
	ChunkDuration *prometheus.HistogramVec

	// Importers and backfill
	ImportRowsAppended *prometheus.CounterVec // platform
	ImportOrdersSeen   *prometheus.CounterVec // platform
	DatesBackfilled    prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_build_runs_total",
		Help: "Clean-master build invocations by outcome.",
	}, []string{"outcome"})
	written := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_rows_written_total",
		Help: "Canonical lines written.",
	}, []string{"platform"})
	excluded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_rows_excluded_total",
		Help: "Raw lines excluded from the canonical table.",
	}, []string{"platform", "reason"})
	chunk := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconciler_chunk_duration_seconds",
		Help:    "Time to read, transform and commit one chunk.",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform"})
	appended := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_import_rows_appended_total",
		Help: "Raw order lines appended by importers.",
	}, []string{"platform"})
	seen := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_import_orders_fetched_total",
		Help: "Orders fetched from platform APIs.",
	}, []string{"platform"})
	backfilled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_dates_backfilled_total",
		Help: "Blank canonical order dates filled by the backfill.",
	})

	r.MustRegister(runs, written, excluded, chunk, appended, seen, backfilled)
	return &Registry{
		reg:                r,
		BuildRuns:          runs,
		RowsWritten:        written,
		RowsExcluded:       excluded,
		ChunkDuration:      chunk,
		ImportRowsAppended: appended,
		ImportOrdersSeen:   seen,
		DatesBackfilled:    backfilled,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
