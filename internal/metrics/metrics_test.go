package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_HandlerExposesCounters(t *testing.T) {
	m := New()
	m.AlertsScheduled.Inc()
	m.AlertsScheduled.Inc()
	m.DosesRecorded.WithLabelValues("taken").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "alerts_scheduled_total 2")
	assert.Contains(t, body, `doses_recorded_total{status="taken"} 1`)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.AlertsFired.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "alerts_fired_total 0")
}
