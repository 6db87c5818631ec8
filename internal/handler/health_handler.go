package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Pinger is a dependency that can be probed with a round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionState reports whether a long-lived connection dropped.
type ConnectionState interface {
	IsClosed() bool
}

// ReadinessChecks are the dependencies /health/ready probes. A nil Broker is
// skipped; session events are optional.
type ReadinessChecks struct {
	Store   Pinger
	Backend Pinger
	Broker  ConnectionState
}

// Ready returns readiness check with dependencies
func Ready(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		results := make(map[string]HealthCheckResult, 3)
		var mu sync.Mutex
		var wg sync.WaitGroup

		run := func(name string, check func() HealthCheckResult) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := check()
				mu.Lock()
				results[name] = res
				mu.Unlock()
			}()
		}

		// Check dependencies in parallel
		run("store", func() HealthCheckResult { return checkPinger(ctx, checks.Store) })
		run("backend", func() HealthCheckResult { return checkPinger(ctx, checks.Backend) })
		if checks.Broker != nil {
			run("rabbitmq", func() HealthCheckResult { return checkBroker(checks.Broker) })
		}
		wg.Wait()

		allHealthy := true
		for _, res := range results {
			if res.Status != "up" {
				allHealthy = false
			}
		}

		response := map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    results,
		}

		w.Header().Set("Content-Type", "application/json")
		if allHealthy {
			response["status"] = "ready"
			w.WriteHeader(http.StatusOK)
		} else {
			response["status"] = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}

func checkPinger(ctx context.Context, p Pinger) HealthCheckResult {
	if p == nil {
		return HealthCheckResult{Status: "down", Error: "not configured"}
	}

	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
	}
}

// checkBroker verifies the RabbitMQ connection is still open
func checkBroker(b ConnectionState) HealthCheckResult {
	if b.IsClosed() {
		return HealthCheckResult{
			Status: "down",
			Error:  "connection closed",
		}
	}
	return HealthCheckResult{Status: "up"}
}
