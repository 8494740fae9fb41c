package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.DepositActivity("confirmed")
	m.DepositActivity("confirmed")
	m.DepositActivity("unmatched")
	m.ProcessorRun("ok", 2*time.Second)

	if got := testutil.ToFloat64(m.DepositActivities.WithLabelValues("confirmed")); got != 2 {
		t.Errorf("confirmed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ProcessorRuns.WithLabelValues("ok")); got != 1 {
		t.Errorf("processor runs = %v, want 1", got)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.DepositActivity("confirmed")
	m.WithdrawalOutcome("completed")
	m.ProcessorRun("ok", time.Second)
}

func TestHealthChecker(t *testing.T) {
	h := NewHealthChecker()

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before ready, got %d", rec.Code)
	}

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 once ready, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected liveness 200, got %d", rec.Code)
	}
}
