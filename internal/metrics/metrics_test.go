package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Tick(OutcomeOK)
	m.Tick(OutcomeOK)
	m.Tick(OutcomeClosed)
	m.Rejected("expiry", 3)
	m.Rejected("moneyness", 0)
	m.LastIV("NSE:X", 14.5)
	m.ObserveUpsert(5 * time.Millisecond)
	m.SessionStarted()

	if got := testutil.ToFloat64(m.ticks.WithLabelValues(OutcomeOK)); got != 2 {
		t.Fatalf("ok ticks = %v", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("expiry")); got != 3 {
		t.Fatalf("rejected = %v", got)
	}
	if got := testutil.ToFloat64(m.lastIV.WithLabelValues("NSE:X")); got != 14.5 {
		t.Fatalf("last iv = %v", got)
	}
	if got := testutil.CollectAndCount(m.rejected); got != 1 {
		t.Fatalf("expected one rejected series, got %d", got)
	}
	if got := testutil.ToFloat64(m.sessions); got != 1 {
		t.Fatalf("sessions = %v", got)
	}
}

func TestNilIsSafe(t *testing.T) {
	var m *Metrics
	m.Tick(OutcomeOK)
	m.Rejected("x", 1)
	m.LastIV("x", 1)
	m.ObserveUpsert(time.Second)
	m.SessionStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.Tick(OutcomePanic)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `ivtracker_ticks_total{outcome="panic"} 1`) {
		t.Fatalf("metric missing from output:\n%s", rec.Body.String())
	}
}
