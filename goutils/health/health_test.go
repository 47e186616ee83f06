package health

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storage-dashboard/goutils/metrics"
	"storage-dashboard/goutils/settings"
)

func TestHealthCheck(t *testing.T) {
	// Create a new HTTP request to the "/health" endpoint
	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	res := httptest.NewRecorder()

	HealthCheckHandler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Errorf("expected status code %d, got %d", http.StatusOK, res.Code)
	}
}

func TestNewMux_Metrics(t *testing.T) {
	metrics.ObservePoll(metrics.PollSuccess)

	mux := NewMux(&settings.Healthcheck{Endpoint: "/health", Port: 9000})

	req, err := http.NewRequest("GET", "/metrics", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	res := httptest.NewRecorder()
	mux.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status code %d, got %d", http.StatusOK, res.Code)
	}

	if !strings.Contains(res.Body.String(), "storage_dashboard_snapshot_polls_total") {
		t.Errorf("expected poll counter in metrics output")
	}
}
