package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if status.Status != "healthy" || status.Service != serviceName {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestReadinessHandler(t *testing.T) {
	ok := func(ctx context.Context) (bool, error) { return true, nil }
	down := func(ctx context.Context) (bool, error) { return false, errors.New("not started") }

	tests := []struct {
		name   string
		checks map[string]HealthCheckFunc
		code   int
		status string
	}{
		{"all healthy", map[string]HealthCheckFunc{"transport": ok, "orchestrator": ok}, http.StatusOK, "ready"},
		{"one down", map[string]HealthCheckFunc{"transport": ok, "orchestrator": down}, http.StatusServiceUnavailable, "not_ready"},
		{"no checks", nil, http.StatusOK, "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ReadinessHandler(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.code {
				t.Errorf("Expected %d, got %d", tt.code, rec.Code)
			}
			var status HealthStatus
			if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if status.Status != tt.status {
				t.Errorf("Expected status %s, got %s", tt.status, status.Status)
			}
			if len(status.Dependencies) != len(tt.checks) {
				t.Errorf("Expected %d dependencies, got %d", len(tt.checks), len(status.Dependencies))
			}
			if dep, found := status.Dependencies["orchestrator"]; found && dep.Status == "unhealthy" && dep.Message != "not started" {
				t.Errorf("Expected failure message, got %q", dep.Message)
			}
		})
	}
}

func TestRecordBroadcast(t *testing.T) {
	beforeDelivered := testutil.ToFloat64(broadcastDelivered.WithLabelValues("test_hub"))
	beforeDropped := testutil.ToFloat64(broadcastDropped.WithLabelValues("test_hub"))

	RecordBroadcast("test_hub", 3, 2)
	RecordBroadcast("test_hub", 0, 0)

	if got := testutil.ToFloat64(broadcastDelivered.WithLabelValues("test_hub")) - beforeDelivered; got != 3 {
		t.Errorf("Expected 3 delivered, got %v", got)
	}
	if got := testutil.ToFloat64(broadcastDropped.WithLabelValues("test_hub")) - beforeDropped; got != 2 {
		t.Errorf("Expected 2 dropped, got %v", got)
	}
}

func TestSessionMetrics_FirstAudio(t *testing.T) {
	m := NewSessionMetrics("s-1")
	if m.FirstAudio() != 0 {
		t.Errorf("Expected zero before audio, got %v", m.FirstAudio())
	}
	m.RecordFirstAudio()
	first := m.FirstAudio()
	m.RecordFirstAudio()
	if m.FirstAudio() != first {
		t.Error("Expected first audio time to be recorded once")
	}
}
