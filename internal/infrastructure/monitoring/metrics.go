package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsClosed    *prometheus.CounterVec
	SessionDuration   prometheus.Histogram
	LaunchFailures    *prometheus.CounterVec
	HeartbeatTimeouts prometheus.Counter
	ResizeErrors      prometheus.Counter

	// PTY traffic
	PTYBytes *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec
	WSDropped     prometheus.Counter

	startTime time.Time
}

// NewMetrics registers metrics with the default Prometheus registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() so collectors never collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "termbridge_sessions_active",
				Help: "Number of live terminal sessions",
			},
		),
		SessionsCreated: f.NewCounter(
			prometheus.CounterOpts{
				Name: "termbridge_sessions_created_total",
				Help: "Total number of terminal sessions started",
			},
		),
		SessionsClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termbridge_sessions_closed_total",
				Help: "Total number of terminal sessions torn down, by reason",
			},
			[]string{"reason"},
		),
		SessionDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "termbridge_session_duration_seconds",
				Help:    "Lifetime of terminal sessions in seconds",
				Buckets: []float64{1, 10, 60, 300, 900, 3600, 14400, 86400},
			},
		),
		LaunchFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termbridge_launch_failures_total",
				Help: "Total number of shells that failed to start",
			},
			[]string{"cause"},
		),
		HeartbeatTimeouts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "termbridge_heartbeat_timeouts_total",
				Help: "Total number of sessions closed for missing heartbeats",
			},
		),
		ResizeErrors: f.NewCounter(
			prometheus.CounterOpts{
				Name: "termbridge_resize_errors_total",
				Help: "Total number of rejected resize requests",
			},
		),

		PTYBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termbridge_pty_bytes_total",
				Help: "Bytes relayed through pty masters",
			},
			[]string{"direction"},
		),

		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "termbridge_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termbridge_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
		WSDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "termbridge_ws_dropped_total",
				Help: "Inbound frames dropped by the input rate limit",
			},
		),
	}

	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "termbridge_uptime_seconds",
			Help: "Bridge uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SessionStarted records a shell that reached the running state
func (m *Metrics) SessionStarted() {
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

// SessionClosed records a completed teardown
func (m *Metrics) SessionClosed(reason string, lifetime time.Duration) {
	m.SessionsActive.Dec()
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(lifetime.Seconds())
	if reason == "heartbeat_timeout" {
		m.HeartbeatTimeouts.Inc()
	}
}

// RecordLaunchFailure records a shell that could not be started
func (m *Metrics) RecordLaunchFailure(cause string) {
	m.LaunchFailures.WithLabelValues(cause).Inc()
}

// RecordPTYBytes records bytes read from ("out") or written to ("in") a pty
func (m *Metrics) RecordPTYBytes(direction string, n int) {
	m.PTYBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordResizeError records a rejected resize
func (m *Metrics) RecordResizeError() {
	m.ResizeErrors.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordWSDropped records an inbound frame discarded by rate limiting
func (m *Metrics) RecordWSDropped() {
	m.WSDropped.Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
