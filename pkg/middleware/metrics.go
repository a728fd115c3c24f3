// Package middleware provides the observability layers of the proxy:
// Prometheus metrics for sessions, proxied frames and deployments, and an
// HTTP instrumentation wrapper for the server's routes.
package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the metrics set.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "stevedore").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for HTTP request duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures the metrics set.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// WithBuckets sets the HTTP duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// Metrics holds the proxy's Prometheus collectors. A nil *Metrics is valid
// and records nothing, so instrumentation points never need guarding.
type Metrics struct {
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	frames         *prometheus.CounterVec
	deployments    *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   prometheus.Histogram
}

// NewMetrics registers and returns the proxy metrics set.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "stevedore",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)
	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "sessions_active",
			Help:        "Currently connected proxy sessions.",
			ConstLabels: config.ConstLabels,
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "sessions_total",
			Help:        "Proxy sessions accepted since start.",
			ConstLabels: config.ConstLabels,
		}),
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "frames_forwarded_total",
			Help:        "WebSocket frames forwarded, by direction.",
			ConstLabels: config.ConstLabels,
		}, []string{"direction"}),
		deployments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "deployments_total",
			Help:        "Finished deployments, by outcome.",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "deployment_queue_depth",
			Help:        "Deployments scheduled or running.",
			ConstLabels: config.ConstLabels,
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "http_requests_total",
			Help:        "HTTP requests served, by status code.",
			ConstLabels: config.ConstLabels,
		}, []string{"code"}),
		httpDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration.",
			Buckets:     config.Buckets,
			ConstLabels: config.ConstLabels,
		}),
	}
}

// SessionOpened records a new proxy session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

// SessionClosed records the end of a proxy session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// FrameForwarded records one proxied frame. Direction is "inbound" for
// browser-to-controller traffic and "outbound" for the reverse.
func (m *Metrics) FrameForwarded(direction string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(direction).Inc()
}

// DeploymentFinished records a terminal deployment change.
func (m *Metrics) DeploymentFinished(failed bool) {
	if m == nil {
		return
	}
	outcome := "completed"
	if failed {
		outcome = "failed"
	}
	m.deployments.WithLabelValues(outcome).Inc()
}

// SetQueueDepth reports the current deployment queue length.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps WebSocket upgrades working behind the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hijacker.Hijack()
}

// Instrument wraps an HTTP handler with request counting and timing.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		m.httpRequests.WithLabelValues(strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.Observe(time.Since(start).Seconds())
	})
}
