package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/x", 200, 0.1)
	m.StoreCall("central", "ok")
	m.SetBreakerState("central", 2)
	m.FederatedFetch("batch", "ok", 3)
	m.Unresolved("appointments", 2)
	m.Conflict()
	m.Transition("appointment", "SCHEDULED", "CONFIRMED")
	m.AuthAttempt("success")
	m.Lockout()
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Conflict()
	m.Conflict()
	if got := testutil.ToFloat64(m.ScheduleConflicts); got != 2 {
		t.Fatalf("expected 2 conflicts, got %v", got)
	}

	m.Unresolved("appointments", 3)
	m.Unresolved("appointments", 0)
	if got := testutil.ToFloat64(m.UnresolvedRefs.WithLabelValues("appointments")); got != 3 {
		t.Fatalf("expected 3 unresolved, got %v", got)
	}

	m.SetBreakerState("central", 2)
	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("central")); got != 2 {
		t.Fatalf("expected breaker state 2, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AuthAttempt("locked")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `hospital_auth_attempts_total{outcome="locked"} 1`) {
		t.Fatalf("expected auth attempt series in exposition, got:\n%s", rec.Body.String())
	}
}

func TestInitTracing_Disabled(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tp.Shutdown(context.Background())

	_, span := Tracer("test").Start(context.Background(), "op")
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a valid span from the installed provider")
	}
	span.End()
}
