// Package metrics exposes Prometheus collectors for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal           *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	fetchBytesTotal      *prometheus.CounterVec
	admissionTotal       *prometheus.CounterVec
	counterStoreErrors   *prometheus.CounterVec
	httpRequestsTotal    *prometheus.CounterVec
	httpDurationSeconds  *prometheus.HistogramVec
	breakerState         *prometheus.GaugeVec
	fetchLogDropped      prometheus.Counter

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_fetch_total",
				Help: "Outbound fetches, labeled by resource type and outcome code.",
			},
			[]string{"type", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_fetch_duration_seconds",
				Help:    "Latency of outbound fetches including sitemap probing.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"type"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_fetch_bytes_total",
				Help: "Bytes of text content returned to clients.",
			},
			[]string{"type"},
		)

		admissionTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_admission_total",
				Help: "Admission decisions, labeled by result and tier.",
			},
			[]string{"result", "tier"},
		)

		counterStoreErrors = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_counter_store_errors_total",
				Help: "Counter store failures that were recovered locally.",
			},
			[]string{"op"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Inbound HTTP requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "Inbound request latency, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"method", "route"},
		)

		breakerState = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 open, 2 half-open).",
			},
			[]string{"name"},
		)

		fetchLogDropped = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_fetch_log_dropped_total",
				Help: "Fetch log entries dropped because the buffer was full.",
			},
		)
	})
}

func ObserveFetch(resourceType, outcome string, d time.Duration, bytes int) {
	Init()
	fetchTotal.WithLabelValues(resourceType, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(resourceType).Observe(d.Seconds())
	if bytes > 0 {
		fetchBytesTotal.WithLabelValues(resourceType).Add(float64(bytes))
	}
}

func IncAdmission(result, tier string) {
	Init()
	admissionTotal.WithLabelValues(result, tier).Inc()
}

func IncCounterStoreError(op string) {
	Init()
	counterStoreErrors.WithLabelValues(op).Inc()
}

func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

func SetBreakerState(name string, state int) {
	Init()
	breakerState.WithLabelValues(name).Set(float64(state))
}

func IncFetchLogDropped() {
	Init()
	fetchLogDropped.Inc()
}

// Handler serves the default Prometheus registry
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}
