package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ignite/order-reconciler/internal/cleanmaster"
	"github.com/ignite/order-reconciler/internal/pipeline"
)

// =============================================================================
// BUILD SCHEDULER: Imports Recent Orders, Then Advances The Clean Master
// =============================================================================
// Each cycle pulls recent orders from the enabled platforms and then runs one
// build invocation. A build that pauses at its soft time limit is resumed
// after ResumeDelay instead of waiting for the next full interval, so a large
// build finishes across several short invocations.

const (
	// DefaultBuildInterval is how often a fresh cycle runs.
	DefaultBuildInterval = 15 * time.Minute

	// DefaultResumeDelay is the wait before continuing a paused build.
	DefaultResumeDelay = 30 * time.Second
)

// Cycler runs one import-then-build cycle.
type Cycler interface {
	Tick(ctx context.Context) (pipeline.Outcome, error)
}

// BuildScheduler drives the pipeline on a timer.
type BuildScheduler struct {
	runner      Cycler
	interval    time.Duration
	resumeDelay time.Duration
}

// NewBuildScheduler creates a scheduler. A non-positive interval uses
// DefaultBuildInterval.
func NewBuildScheduler(runner Cycler, interval time.Duration) *BuildScheduler {
	if interval <= 0 {
		interval = DefaultBuildInterval
	}
	return &BuildScheduler{
		runner:      runner,
		interval:    interval,
		resumeDelay: DefaultResumeDelay,
	}
}

// Start begins the loop. It blocks until ctx is cancelled.
func (s *BuildScheduler) Start(ctx context.Context) {
	log.Printf("[BuildScheduler] Starting (interval=%s, resume_delay=%s)", s.interval, s.resumeDelay)

	// Run once immediately on start
	timer := time.NewTimer(s.cycle(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[BuildScheduler] Stopping")
			return
		case <-timer.C:
			timer.Reset(s.cycle(ctx))
		}
	}
}

// cycle runs one tick and returns the wait before the next.
func (s *BuildScheduler) cycle(ctx context.Context) time.Duration {
	start := time.Now()
	out, err := s.runner.Tick(ctx)
	switch {
	case errors.Is(err, cleanmaster.ErrLockBusy):
		log.Println("[BuildScheduler] Another build holds the lock, retrying later")
		return s.resumeDelay
	case err != nil:
		log.Printf("[BuildScheduler] Cycle failed: %v", err)
		return s.interval
	case out.Status == cleanmaster.StatusPaused:
		log.Printf("[BuildScheduler] Build %s paused in %s after %d rows (%s)",
			out.RunID, out.Phase, out.Written, time.Since(start).Round(time.Millisecond))
		return s.resumeDelay
	default:
		log.Printf("[BuildScheduler] Build %s completed: %d written, %d excluded (%s)",
			out.RunID, out.Written, out.Excluded, time.Since(start).Round(time.Millisecond))
		return s.interval
	}
}
