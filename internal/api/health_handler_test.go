package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/order-reconciler/internal/domain"
)

type fakeBucket struct{ err error }

func (f fakeBucket) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.err
}

type fakeState struct {
	st  *domain.BuildState
	err error
}

func (f fakeState) State(context.Context) (*domain.BuildState, error) { return f.st, f.err }

func setupHealthDeps(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *redis.Client) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return db, mock, rdb
}

func TestHandleHealth_Healthy(t *testing.T) {
	db, mock, rdb := setupHealthDeps(t)
	mock.ExpectPing()

	hc := NewHealthChecker(db, rdb, fakeBucket{}, "exports", fakeState{})
	rr := httptest.NewRecorder()
	hc.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "up", status.Checks["database"].Status)
	assert.Equal(t, "up", status.Checks["redis"].Status)
	assert.Equal(t, "up", status.Checks["s3"].Status)
	assert.Equal(t, "idle", status.Checks["build"].Message)
}

func TestHandleReadiness_DatabaseDown(t *testing.T) {
	db, mock, rdb := setupHealthDeps(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	hc := NewHealthChecker(db, rdb, nil, "", nil)
	rr := httptest.NewRecorder()
	hc.HandleReadiness(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, false, body["ready"])
	assert.Equal(t, "unhealthy", body["status"])
}

func TestCheckBuild(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	paused := &domain.BuildState{Phase: domain.PhasePlatformA, RowCursor: 1502, WrittenCount: 1500, UpdatedAt: now.Add(-10 * time.Minute)}
	stale := &domain.BuildState{Phase: domain.PhasePlatformB, RowCursor: 2, UpdatedAt: now.Add(-5 * time.Hour)}

	tests := []struct {
		name   string
		reader StateReader
		status string
		msg    string
	}{
		{"not configured", nil, "down", notConfigured},
		{"idle", fakeState{}, "up", "idle"},
		{"paused", fakeState{st: paused}, "up", "paused in platformA at row 1502, 1500 written"},
		{"stale", fakeState{st: stale}, "degraded", "not advanced for 5h0m0s"},
		{"error", fakeState{err: errors.New("redis: nil")}, "degraded", "state check failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker(nil, nil, nil, "", tt.reader)
			hc.now = func() time.Time { return now }
			c := hc.checkBuild(context.Background())
			assert.Equal(t, tt.status, c.Status)
			assert.Contains(t, c.Message, tt.msg)
		})
	}
}

func TestDetermineOverallStatus(t *testing.T) {
	up := ComponentCheck{Status: "up"}
	off := ComponentCheck{Status: "down", Message: notConfigured}
	down := ComponentCheck{Status: "down", Message: "ping failed"}

	assert.Equal(t, "healthy", determineOverallStatus(map[string]ComponentCheck{"database": off, "redis": up, "s3": off}))
	assert.Equal(t, "unhealthy", determineOverallStatus(map[string]ComponentCheck{"database": up, "redis": down}))
	assert.Equal(t, "degraded", determineOverallStatus(map[string]ComponentCheck{"database": up, "s3": down}))
	assert.Equal(t, "degraded", determineOverallStatus(map[string]ComponentCheck{"build": {Status: "degraded"}}))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0m 5s", formatUptime(5*time.Second))
	assert.Equal(t, "2h 3m 0s", formatUptime(2*time.Hour+3*time.Minute))
	assert.Equal(t, "1d 1h 0m 0s", formatUptime(25*time.Hour))
}
