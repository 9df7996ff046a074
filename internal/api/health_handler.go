package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/pkg/httputil"
)

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status  string                    `json:"status"` // healthy | degraded | unhealthy
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is one dependency's verdict.
type ComponentCheck struct {
	Status  string `json:"status"` // up | down | degraded
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// BucketHeader probes the export bucket.
type BucketHeader interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// StateReader reports the persisted build state.
type StateReader interface {
	State(ctx context.Context) (*domain.BuildState, error)
}

type probe func(context.Context) ComponentCheck

// HealthChecker reports on the reconciler's dependencies. Nil dependencies
// show up as "not configured" and never fail readiness.
type HealthChecker struct {
	db        *sql.DB
	rdb       *redis.Client
	bucketAPI BucketHeader
	bucket    string
	build     StateReader
	started   time.Time
	now       func() time.Time
}

func NewHealthChecker(db *sql.DB, rdb *redis.Client, bucketAPI BucketHeader, bucket string, build StateReader) *HealthChecker {
	return &HealthChecker{
		db:        db,
		rdb:       rdb,
		bucketAPI: bucketAPI,
		bucket:    bucket,
		build:     build,
		started:   time.Now(),
		now:       time.Now,
	}
}

const (
	healthVersion = "1.0.0"
	notConfigured = "not configured"

	// A paused build older than this is reported degraded.
	staleBuildAfter = 2 * time.Hour
)

var unconfigured = ComponentCheck{Status: "down", Message: notConfigured}

func (hc *HealthChecker) uptime() string { return formatUptime(hc.now().Sub(hc.started)) }

// HandleHealth always answers 200; the verdict is in the body.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  hc.uptime(),
		Checks:  checks,
	})
}

//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{"status": "alive", "uptime": hc.uptime()})
}

// HandleReadiness answers 503 while database or redis is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)
	code := http.StatusOK
	if overall == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]any{
		"ready":  code == http.StatusOK,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) probes() map[string]probe {
	return map[string]probe{
		"database": hc.checkDatabase,
		"redis":    hc.checkRedis,
		"s3":       hc.checkS3,
		"build":    hc.checkBuild,
	}
}

// runAllChecks runs every probe concurrently.
func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	probes := hc.probes()
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]ComponentCheck, len(probes))
	)
	for name, p := range probes {
		wg.Add(1)
		go func(name string, p probe) {
			defer wg.Done()
			c := p(ctx)
			mu.Lock()
			checks[name] = c
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()
	return checks
}

// timed runs fn under a deadline and returns how long it took.
func timed(ctx context.Context, limit time.Duration, fn func(context.Context) error) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	return time.Since(start), err
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return unconfigured
	}
	took, err := timed(ctx, 3*time.Second, hc.db.PingContext)
	return latencyCheck(took, time.Second, err)
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.rdb == nil {
		return unconfigured
	}
	took, err := timed(ctx, 2*time.Second, func(ctx context.Context) error {
		return hc.rdb.Ping(ctx).Err()
	})
	return latencyCheck(took, 500*time.Millisecond, err)
}

func (hc *HealthChecker) checkS3(ctx context.Context) ComponentCheck {
	if hc.bucketAPI == nil || hc.bucket == "" {
		return unconfigured
	}
	took, err := timed(ctx, 3*time.Second, func(ctx context.Context) error {
		_, err := hc.bucketAPI.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &hc.bucket})
		return err
	})
	if err != nil {
		return ComponentCheck{Status: "down", Latency: took.String(), Message: fmt.Sprintf("export bucket unreachable: %v", err)}
	}
	return ComponentCheck{Status: "up", Latency: took.String(), Message: fmt.Sprintf("export bucket %q reachable", hc.bucket)}
}

// checkBuild reports whether a build is paused and how long ago it was
// last advanced. A long-stale paused build is degraded.
func (hc *HealthChecker) checkBuild(ctx context.Context) ComponentCheck {
	if hc.build == nil {
		return unconfigured
	}
	st, err := hc.build.State(ctx)
	if err != nil {
		return ComponentCheck{Status: "degraded", Message: fmt.Sprintf("state check failed: %v", err)}
	}
	if st == nil {
		return ComponentCheck{Status: "up", Message: "idle"}
	}
	age := hc.now().Sub(st.UpdatedAt)
	msg := fmt.Sprintf("paused in %s at row %d, %d written", st.Phase, st.RowCursor, st.WrittenCount)
	if age > staleBuildAfter {
		return ComponentCheck{Status: "degraded", Message: fmt.Sprintf("%s, not advanced for %s", msg, age.Round(time.Minute))}
	}
	return ComponentCheck{Status: "up", Message: msg}
}

func latencyCheck(took, slow time.Duration, err error) ComponentCheck {
	c := ComponentCheck{Status: "up", Latency: took.String(), Message: "connected"}
	switch {
	case err != nil:
		c.Status, c.Message = "down", fmt.Sprintf("ping failed: %v", err)
	case took > slow:
		c.Status, c.Message = "degraded", fmt.Sprintf("slow response (%s)", took)
	}
	return c
}

// determineOverallStatus is unhealthy when a configured database or redis
// is down, degraded when anything else configured is not up, and healthy
// otherwise.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	overall := "healthy"
	for name, c := range checks {
		if c == unconfigured || c.Status == "up" {
			continue
		}
		if c.Status == "down" && (name == "database" || name == "redis") {
			return "unhealthy"
		}
		overall = "degraded"
	}
	return overall
}

func formatUptime(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	days, rem := secs/86400, secs%86400
	h, m, s := rem/3600, rem%3600/60, rem%60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
