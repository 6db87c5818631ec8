package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tender-admin/internal/testutil"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type brokerState bool

func (b brokerState) IsClosed() bool { return bool(b) }

func up() Pinger { return pingFunc(func(context.Context) error { return nil }) }

func TestHealth_ReturnsOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	Health(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	testutil.AssertHeader(t, w, "Content-Type", "application/json")

	var response map[string]string
	err := json.NewDecoder(w.Body).Decode(&response)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, response["status"], "ok")
}

func TestHealth_AlwaysReturns200(t *testing.T) {
	tests := []struct {
		name   string
		method string
	}{
		{"GET request", http.MethodGet},
		{"HEAD request", http.MethodHead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			Health(w, req)

			testutil.AssertStatusCode(t, w, http.StatusOK)
		})
	}
}

func TestHealthCheckResult_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(HealthCheckResult{Status: "up"})
	testutil.AssertNoError(t, err)

	jsonStr := string(data)
	testutil.AssertNotContains(t, jsonStr, "latency_ms")
	testutil.AssertNotContains(t, jsonStr, "error")
}

type readyResponse struct {
	Status string                       `json:"status"`
	Checks map[string]HealthCheckResult `json:"checks"`
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     ReadinessChecks
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "all_up",
			checks:     ReadinessChecks{Store: up(), Backend: up(), Broker: brokerState(false)},
			wantStatus: http.StatusOK,
			wantBody:   "ready",
			wantChecks: map[string]string{"store": "up", "backend": "up", "rabbitmq": "up"},
		},
		{
			name:       "broker_optional",
			checks:     ReadinessChecks{Store: up(), Backend: up()},
			wantStatus: http.StatusOK,
			wantBody:   "ready",
			wantChecks: map[string]string{"store": "up", "backend": "up"},
		},
		{
			name: "store_down",
			checks: ReadinessChecks{
				Store:   pingFunc(func(context.Context) error { return errors.New("connection refused") }),
				Backend: up(),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "not_ready",
			wantChecks: map[string]string{"store": "down", "backend": "up"},
		},
		{
			name:       "broker_closed",
			checks:     ReadinessChecks{Store: up(), Backend: up(), Broker: brokerState(true)},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "not_ready",
			wantChecks: map[string]string{"store": "up", "backend": "up", "rabbitmq": "down"},
		},
		{
			name:       "backend_missing",
			checks:     ReadinessChecks{Store: up()},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "not_ready",
			wantChecks: map[string]string{"store": "up", "backend": "down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
			w := httptest.NewRecorder()

			Ready(tt.checks)(w, req)

			testutil.AssertStatusCode(t, w, tt.wantStatus)
			resp := testutil.DecodeJSON[readyResponse](t, w)
			testutil.AssertEqual(t, resp.Status, tt.wantBody)
			testutil.AssertEqual(t, len(resp.Checks), len(tt.wantChecks))
			for name, status := range tt.wantChecks {
				testutil.AssertEqual(t, resp.Checks[name].Status, status)
			}
		})
	}
}

func TestReady_ReportsPingError(t *testing.T) {
	checks := ReadinessChecks{
		Store:   up(),
		Backend: pingFunc(func(context.Context) error { return errors.New("backend unreachable") }),
	}
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	Ready(checks)(w, req)

	testutil.AssertContains(t, w.Body.String(), "backend unreachable")
}

func BenchmarkHealth(b *testing.B) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		Health(w, req)
	}
}
