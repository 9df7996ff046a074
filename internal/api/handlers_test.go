package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/order-reconciler/internal/backfill"
	"github.com/ignite/order-reconciler/internal/cleanmaster"
	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/importer"
	"github.com/ignite/order-reconciler/internal/pipeline"
	"github.com/ignite/order-reconciler/internal/rawschema"
	"github.com/ignite/order-reconciler/internal/service/banned"
)

type mockBuild struct {
	outcome  pipeline.Outcome
	state    *domain.BuildState
	backfill backfill.Result
	imported importer.Result
	err      error
	resets   int
	platform domain.Platform
}

func (m *mockBuild) Build(context.Context) (pipeline.Outcome, error) { return m.outcome, m.err }
func (m *mockBuild) State(context.Context) (*domain.BuildState, error) {
	return m.state, m.err
}
func (m *mockBuild) Reset(context.Context) error {
	m.resets++
	return m.err
}
func (m *mockBuild) BackfillDates(context.Context) (backfill.Result, error) {
	return m.backfill, m.err
}
func (m *mockBuild) Import(_ context.Context, p domain.Platform) (importer.Result, error) {
	m.platform = p
	return m.imported, m.err
}

type mockBanned struct {
	listID  string
	entries []domain.BannedEntry
	err     error
	removed string
}

func (m *mockBanned) ListID(context.Context) (string, error) { return m.listID, nil }
func (m *mockBanned) SetListID(_ context.Context, id string) error {
	m.listID = id
	return m.err
}
func (m *mockBanned) List(context.Context) ([]domain.BannedEntry, error) { return m.entries, m.err }
func (m *mockBanned) Add(_ context.Context, raw, note string) (domain.BannedEntry, error) {
	if m.err != nil {
		return domain.BannedEntry{}, m.err
	}
	e := domain.BannedEntry{ListID: m.listID, Entry: raw, Kind: domain.BannedEmail, Note: note}
	m.entries = append(m.entries, e)
	return e, nil
}
func (m *mockBanned) Remove(_ context.Context, raw string) error {
	m.removed = raw
	return m.err
}

type countingCache struct{ n int }

func (c *countingCache) Invalidate() { c.n++ }

func setupRouter(t *testing.T, build *mockBuild, opts RouteOptions) (http.Handler, *mockBanned, *countingCache) {
	t.Helper()
	h := NewHandlers(build)
	b := &mockBanned{listID: "default"}
	cache := &countingCache{}
	h.SetBanned(b, cache)
	return SetupRoutes(h, nil, opts), b, cache
}

func do(t *testing.T, h http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

// ========== Clean master ==========

func TestRunBuild(t *testing.T) {
	build := &mockBuild{outcome: pipeline.Outcome{
		Result:    cleanmaster.Result{Status: cleanmaster.StatusCompleted, RunID: "r1", Written: 42, Excluded: 3},
		ExportKey: "clean-master/clean-master-r1.csv",
	}}
	r, _, _ := setupRouter(t, build, RouteOptions{})

	rr := do(t, r, http.MethodPost, "/api/clean-master/run", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "r1", body["run_id"])
	assert.EqualValues(t, 42, body["written"])
	assert.Equal(t, "clean-master/clean-master-r1.csv", body["export_key"])
}

func TestRunBuild_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{"lock busy", cleanmaster.ErrLockBusy, http.StatusConflict, "build_running"},
		{"missing column", &cleanmaster.ConfigError{Err: &rawschema.MissingColumnError{Sheet: "Platform A Orders", Field: "order_id", Accepted: []string{"Order ID"}}}, http.StatusUnprocessableEntity, "config_error"},
		{"storage", fmt.Errorf("load state: %w", errors.New("dial tcp 10.0.0.5:6379: connection refused")), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := setupRouter(t, &mockBuild{err: tt.err}, RouteOptions{})
			rr := do(t, r, http.MethodPost, "/api/clean-master/run", nil)
			assert.Equal(t, tt.code, rr.Code)
			body := decode(t, rr)
			if tt.want != "" {
				assert.Equal(t, tt.want, body["code"])
			} else {
				assert.Equal(t, "Service temporarily unavailable", body["error"])
				assert.NotContains(t, rr.Body.String(), "10.0.0.5")
			}
		})
	}
}

func TestStateEndpoints(t *testing.T) {
	build := &mockBuild{}
	r, _, _ := setupRouter(t, build, RouteOptions{})

	rr := do(t, r, http.MethodGet, "/api/clean-master/state", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["idle"])

	build.state = &domain.BuildState{RunID: "r9", Phase: domain.PhasePlatformB, RowCursor: 1502}
	rr = do(t, r, http.MethodGet, "/api/clean-master/state", nil)
	body := decode(t, rr)
	assert.Equal(t, false, body["idle"])
	assert.Equal(t, "r9", body["state"].(map[string]any)["runId"])

	rr = do(t, r, http.MethodDelete, "/api/clean-master/state", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 1, build.resets)
}

func TestBackfillDates(t *testing.T) {
	r, _, _ := setupRouter(t, &mockBuild{backfill: backfill.Result{Scanned: 10, Blank: 2, Filled: 2}}, RouteOptions{})
	rr := do(t, r, http.MethodPost, "/api/clean-master/backfill-dates", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, decode(t, rr)["filled"])

	r, _, _ = setupRouter(t, &mockBuild{err: pipeline.ErrBackfillDisabled}, RouteOptions{})
	rr = do(t, r, http.MethodPost, "/api/clean-master/backfill-dates", nil)
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestRunImport(t *testing.T) {
	build := &mockBuild{imported: importer.Result{Platform: domain.PlatformB, Appended: 7}}
	r, _, _ := setupRouter(t, build, RouteOptions{})

	rr := do(t, r, http.MethodPost, "/api/imports/PlatformB", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.PlatformB, build.platform)
	assert.EqualValues(t, 7, decode(t, rr)["appended"])

	rr = do(t, r, http.MethodPost, "/api/imports/PlatformZ", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// ========== Banned list ==========

func TestBannedEndpoints(t *testing.T) {
	r, b, cache := setupRouter(t, &mockBuild{}, RouteOptions{})

	rr := do(t, r, http.MethodGet, "/api/banned", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "default", body["list_id"])
	assert.Empty(t, body["entries"])

	rr = do(t, r, http.MethodPost, "/api/banned", map[string]string{"entry": "fraud@example.com", "note": "chargebacks"})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "chargebacks", decode(t, rr)["note"])
	assert.Equal(t, 1, cache.n)

	rr = do(t, r, http.MethodDelete, "/api/banned/fraud@example.com", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "fraud@example.com", b.removed)
	assert.Equal(t, 2, cache.n)

	rr = do(t, r, http.MethodPut, "/api/banned/list", map[string]string{"list_id": "2024-q1"})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "2024-q1", b.listID)
	assert.Equal(t, 3, cache.n)

	rr = do(t, r, http.MethodPut, "/api/banned/list", map[string]string{"list_id": "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBannedErrors(t *testing.T) {
	r, b, cache := setupRouter(t, &mockBuild{}, RouteOptions{})

	b.err = banned.ErrInvalidEntry
	rr := do(t, r, http.MethodPost, "/api/banned", map[string]string{"entry": "nope"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	b.err = banned.ErrNotFound
	rr = do(t, r, http.MethodDelete, "/api/banned/ghost.example", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Zero(t, cache.n)
}

// ========== Auth & metrics ==========

func TestAPIToken(t *testing.T) {
	r, _, _ := setupRouter(t, &mockBuild{}, RouteOptions{
		APIToken: "s3cret",
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("cleanmaster_build_runs_total 1\n"))
		}),
	})

	rr := do(t, r, http.MethodGet, "/api/clean-master/state", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, r, http.MethodGet, "/api/clean-master/state", nil, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, r, http.MethodGet, "/api/clean-master/state", nil, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "cleanmaster_build_runs_total")
}

func TestRoutes_NoBannedService(t *testing.T) {
	r := SetupRoutes(NewHandlers(&mockBuild{}), nil, RouteOptions{})
	rr := do(t, r, http.MethodGet, "/api/banned", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
