package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Check(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseHealthChecker checks database health
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.DB.PingContext(ctx)
}

// HTTPHealthChecker expects a 2xx from GET URL.
type HTTPHealthChecker struct {
	URL    string
	Client *http.Client
}

func (h *HTTPHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return err
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s answered %d", h.URL, resp.StatusCode)
	}
	return nil
}

type optionalChecker struct{ HealthChecker }

// Optional marks a dependency whose failure degrades the service without
// making it unhealthy.
func Optional(c HealthChecker) HealthChecker { return optionalChecker{c} }

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthStatus represents the health status
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
	Info      map[string]string      `json:"info,omitempty"`
}

// CheckStatus represents individual check status
type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthHandler runs every checker concurrently. info is static metadata
// reported alongside the checks (for example the active reflection mode).
// Only a failing non-optional checker turns the response into a 503.
func HealthHandler(checkers map[string]HealthChecker, info map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := HealthStatus{
			Status:    statusHealthy,
			Timestamp: time.Now(),
			Checks:    make(map[string]CheckStatus, len(checkers)),
			Info:      info,
		}

		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for name, checker := range checkers {
			name, checker := name, checker
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := checker.Check(ctx)

				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					health.Checks[name] = CheckStatus{Status: statusHealthy}
					return
				}
				if _, optional := checker.(optionalChecker); optional {
					health.Checks[name] = CheckStatus{Status: statusDegraded, Message: err.Error()}
					if health.Status == statusHealthy {
						health.Status = statusDegraded
					}
					return
				}
				health.Checks[name] = CheckStatus{Status: statusUnhealthy, Message: err.Error()}
				health.Status = statusUnhealthy
			}()
		}
		wg.Wait()

		statusCode := http.StatusOK
		if health.Status == statusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	}
}

// ReadinessHandler creates a readiness check handler (simpler than health)
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessHandler creates a liveness check handler (simplest check)
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
