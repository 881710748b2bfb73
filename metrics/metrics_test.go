package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"git.fiblab.net/sim/evacuation/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordTick(10*time.Millisecond, 12, 0.6)
	r.RecordTick(20*time.Millisecond, 10, 0.7)
	r.RecordReplan("low", "switch")
	r.RecordReplan("low", "switch")
	r.RecordReplan("high", "wait")
	r.RecordRiskFrames(5, 1)
	r.PersistenceFailures.WithLabelValues("agent_area").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.TicksTotal))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.ActiveAgents))
	assert.Equal(t, 0.7, testutil.ToFloat64(r.MaxRisk))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.ReplansTotal.WithLabelValues("low", "switch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RiskFramesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.PersistenceFailures))
}

func TestHandler(t *testing.T) {
	r := metrics.NewRegistry()
	r.HandOffsTotal.Inc()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "evacuation_handoffs_total 1"))
}

func TestIndependentRegistries(t *testing.T) {
	a, b := metrics.NewRegistry(), metrics.NewRegistry()
	a.TicksTotal.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.TicksTotal))
}
