// Package middleware provides HTTP instrumentation for the status server and
// for outbound calls to the tracking API.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nadmax/tracksync/internal/metrics"
)

var recordHTTPRequest = metrics.RecordHTTPRequest

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		recordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

// Unknown paths collapse into one label so scanners cannot blow up cardinality.
func normalizeEndpoint(path string) string {
	switch path {
	case "/api/status", "/api/cycles", "/healthz", "/metrics":
		return path
	default:
		return "other"
	}
}
