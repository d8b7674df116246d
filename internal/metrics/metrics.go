package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// FetchAttempts counts source attempts by provider, source and outcome
	FetchAttempts *prometheus.CounterVec
	// FetchDuration tracks fetch attempt duration by provider and source
	FetchDuration *prometheus.HistogramVec
	// WindowUtilization tracks window usage percentage by provider and label
	WindowUtilization *prometheus.GaugeVec
	// WindowRemaining tracks absolute remaining quota by provider and label
	WindowRemaining *prometheus.GaugeVec
	// PaceVelocity tracks consumption velocity per second
	PaceVelocity *prometheus.GaugeVec
	// ProbeExtensions counts watchdog deadline extensions by provider
	ProbeExtensions *prometheus.CounterVec
	// SweepDuration tracks full monitor sweep duration
	SweepDuration prometheus.Histogram
	// HTTPRequestsTotal total status API requests
	HTTPRequestsTotal *prometheus.CounterVec
	// CredentialRecords tracks how many credential records each provider holds
	CredentialRecords *prometheus.GaugeVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		FetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Total number of source attempts",
			},
			[]string{"provider", "source", "outcome"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Source attempt duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"provider", "source"},
		),
		WindowUtilization: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "window_utilization_percent",
				Help:      "Current window utilization percentage",
			},
			[]string{"provider", "account", "window"},
		),
		WindowRemaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "window_remaining",
				Help:      "Remaining quota in provider units",
			},
			[]string{"provider", "account", "window"},
		),
		PaceVelocity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pace_velocity_per_second",
				Help:      "Consumption velocity in units per second",
			},
			[]string{"provider", "account", "window"},
		),
		ProbeExtensions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_extensions_total",
				Help:      "Total number of web probe deadline extensions",
			},
			[]string{"provider"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Full monitor sweep duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		CredentialRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "credential_records",
				Help:      "Number of stored credential records per provider",
			},
			[]string{"provider"},
		),
	}

	// Register metrics with custom registry
	registry.MustRegister(
		m.FetchAttempts,
		m.FetchDuration,
		m.WindowUtilization,
		m.WindowRemaining,
		m.PaceVelocity,
		m.ProbeExtensions,
		m.SweepDuration,
		m.HTTPRequestsTotal,
		m.CredentialRecords,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordFetchAttempt records one source attempt
func (m *Metrics) RecordFetchAttempt(provider, source, outcome string, elapsed time.Duration) {
	m.FetchAttempts.WithLabelValues(provider, source, outcome).Inc()
	m.FetchDuration.WithLabelValues(provider, source).Observe(elapsed.Seconds())
}

// RecordWindow records the normalized state of one window
func (m *Metrics) RecordWindow(provider, account, window string, used, limit float64) {
	if limit > 0 {
		m.WindowUtilization.WithLabelValues(provider, account, window).Set(used / limit * 100)
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	m.WindowRemaining.WithLabelValues(provider, account, window).Set(remaining)
}

// RecordPaceVelocity records the derived consumption velocity
func (m *Metrics) RecordPaceVelocity(provider, account, window string, perSecond float64) {
	m.PaceVelocity.WithLabelValues(provider, account, window).Set(perSecond)
}

// RecordProbeExtension records a watchdog deadline extension
func (m *Metrics) RecordProbeExtension(provider string) {
	m.ProbeExtensions.WithLabelValues(provider).Inc()
}

// RecordSweepDuration records a full monitor sweep
func (m *Metrics) RecordSweepDuration(elapsed time.Duration) {
	m.SweepDuration.Observe(elapsed.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordCredentialRecords records how many records a provider holds
func (m *Metrics) RecordCredentialRecords(provider string, count int) {
	m.CredentialRecords.WithLabelValues(provider).Set(float64(count))
}
