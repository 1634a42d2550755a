package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics holds process-wide counters. All fields are updated atomically.
type Metrics struct {
	requestsTotal      atomic.Uint64
	requestsInProgress atomic.Int64
	requestsSuccess    atomic.Uint64
	requestsFailed     atomic.Uint64

	documentsProcessed   atomic.Uint64
	reviewsRequired      atomic.Uint64
	reflectionsAttempted atomic.Uint64
	reflectionsHealed    atomic.Uint64
	reflectionsUnchanged atomic.Uint64
	reflectionsFailed    atomic.Uint64

	startTime time.Time
}

func newMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

var globalMetrics = newMetrics()

// RecordDocument counts one processed document and what happened to it.
// reflection is one of skipped, healed, unchanged, failed.
func RecordDocument(reflection string, reviewRequired bool) {
	globalMetrics.recordDocument(reflection, reviewRequired)
}

func (m *Metrics) recordDocument(reflection string, reviewRequired bool) {
	m.documentsProcessed.Add(1)
	if reviewRequired {
		m.reviewsRequired.Add(1)
	}
	switch reflection {
	case "healed":
		m.reflectionsHealed.Add(1)
	case "unchanged":
		m.reflectionsUnchanged.Add(1)
	case "failed":
		m.reflectionsFailed.Add(1)
	default:
		return
	}
	m.reflectionsAttempted.Add(1)
}

// Snapshot returns the current counters plus runtime stats.
func (m *Metrics) Snapshot() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"requests_total":        m.requestsTotal.Load(),
		"requests_in_progress":  m.requestsInProgress.Load(),
		"requests_success":      m.requestsSuccess.Load(),
		"requests_failed":       m.requestsFailed.Load(),
		"documents_processed":   m.documentsProcessed.Load(),
		"reviews_required":      m.reviewsRequired.Load(),
		"reflections_attempted": m.reflectionsAttempted.Load(),
		"reflections_healed":    m.reflectionsHealed.Load(),
		"reflections_unchanged": m.reflectionsUnchanged.Load(),
		"reflections_failed":    m.reflectionsFailed.Load(),
		"uptime_seconds":        time.Since(m.startTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsTotal.Add(1)
		m.requestsInProgress.Add(1)
		defer m.requestsInProgress.Add(-1)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode < 400 {
			m.requestsSuccess.Add(1)
		} else {
			m.requestsFailed.Add(1)
		}
	})
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return globalMetrics.middleware(next)
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(globalMetrics.Snapshot())
}
