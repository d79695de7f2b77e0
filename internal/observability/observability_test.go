package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics()

	m.ObserveOperation("deduct", "success", 3*time.Millisecond)
	m.ObserveOperation("deduct", "success", time.Millisecond)
	m.ObserveOperation("deduct", "conflict", time.Millisecond)
	m.IncRetry("deduct")
	m.IncLockFailure()
	m.IncCompensation("reserve")

	if got := testutil.ToFloat64(m.operations.WithLabelValues("deduct", "success")); got != 2 {
		t.Errorf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.lockFailures); got != 1 {
		t.Errorf("expected 1 lock failure, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"inventory_stock_operations_total",
		"inventory_stock_operation_duration_seconds",
		"inventory_stock_optimistic_retries_total",
		"inventory_stock_counter_compensations_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in exposition", name)
		}
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger("debug", "inventory"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewLogger("loud", "inventory"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSetupTracing_Disabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingConfig{ServiceName: "inventory"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
