package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CountsAndExposes(t *testing.T) {
	r := NewRegistry()
	r.BuildRuns.WithLabelValues("completed").Inc()
	r.RowsExcluded.WithLabelValues("PlatformA", "banned_email").Add(3)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Contains(t, string(body), `reconciler_build_runs_total{outcome="completed"} 1`)
	assert.Contains(t, string(body), `reconciler_rows_excluded_total{platform="PlatformA",reason="banned_email"} 3`)
}
