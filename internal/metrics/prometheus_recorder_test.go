package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("render", 150*time.Millisecond)
	pr.ObserveBuildDuration("full", 500*time.Millisecond)
	pr.IncStageResult("render", ResultSuccess)
	pr.IncBuildOutcome("success")
	pr.AddPagesRendered(3)
	pr.AddCacheLookups(2, 1)
	pr.AddExecutions(1, 0)
	pr.SetLiveReloadClients(2)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sitegen_pages_rendered_total 3")
	assert.Contains(t, string(body), `sitegen_exec_cache_lookups_total{result="hit"} 2`)
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.AddPagesRendered(1)
		pr.IncBuildOutcome("failed")
	})
}
