package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventOperations tracks the number of HTTP event operations
	EventOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_event_operations_total",
			Help: "The total number of event operations",
		},
		[]string{"operation", "status"},
	)

	// EventOperationDuration tracks the duration of HTTP event operations
	EventOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "app_event_operation_duration_seconds",
			Help:    "The duration of event operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// InFlightRequests tracks the number of HTTP requests being served
	InFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_in_flight_requests",
			Help: "The number of HTTP requests currently being served",
		},
	)

	// StoreOperationDuration tracks event store latency by operation and outcome
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "app_store_operation_duration_seconds",
			Help:    "The duration of event store calls in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation", "outcome"},
	)

	// GRPCCalls tracks the number of gRPC calls by method and status code
	GRPCCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_grpc_calls_total",
			Help: "The total number of gRPC calls",
		},
		[]string{"method", "code"},
	)
)
