package api

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"

	"github.com/rovercontrol/robot-panel/internal/metrics"
)

// withMetrics records request count and latency per route pattern
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method,
			endpoint,
			strconv.Itoa(m.Code),
		).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method,
			endpoint,
		).Observe(m.Duration.Seconds())
	})
}
