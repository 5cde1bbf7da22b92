package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		m.ObserveTransition("a", "b", OutcomeCommitted, 0.1)
		m.HookFailed("x")
		m.SetOccupancy("a", 3)
		m.ObserveDaysInStage("a", 4)
	})
	assert.Nil(t, m.Registry())
}

func TestCollectorsRecord(t *testing.T) {
	m := New()
	m.ObserveTransition("sourcing", "screening", OutcomeCommitted, 0.01)
	m.ObserveTransition("sourcing", "screening", OutcomeCommitted, 0.02)
	m.HookFailed("notify")
	m.SetOccupancy("screening", 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("sourcing", "screening", OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HookFailures.WithLabelValues("notify")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.StageOccupancy.WithLabelValues("screening")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "dealpipeline_stage_occupancy"))
}
