package proxy

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_proxy_requests_total",
		Help: "Requests handled by the router, by route and status",
	}, []string{"route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkin_proxy_request_duration_seconds",
		Help:    "Time to serve a routed request, including upstream",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	upstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_proxy_upstream_errors_total",
		Help: "Upstream failures answered with 502 or 504",
	}, []string{"route", "kind"})
)

func observeRequest(route string, status int, start time.Time) {
	requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

// statusRecorder captures the response status. Unwrap keeps Hijack and
// Flush reachable through http.ResponseController, which upgrades need.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Status() int {
	if r.status == 0 {
		// Hijacked connections never write a header through us
		return http.StatusSwitchingProtocols
	}
	return r.status
}
