package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "checkin_storage_operation_duration_seconds",
	Help:    "Latency of session store operations",
	Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
}, []string{"backend", "operation"})

func observe(backend, operation string, start time.Time) {
	operationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}
