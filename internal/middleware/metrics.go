package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/idot-digital/events-api/internal/metrics"
)

// Metrics wraps an HTTP handler with Prometheus metrics
func Metrics(next http.HandlerFunc, operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.InFlightRequests.Inc()
		defer metrics.InFlightRequests.Dec()

		rw := wrap(w)

		next(rw, r)

		duration := time.Since(start).Seconds()
		metrics.EventOperationDuration.WithLabelValues(operation).Observe(duration)
		metrics.EventOperations.WithLabelValues(operation, strconv.Itoa(rw.status())).Inc()
	}
}
