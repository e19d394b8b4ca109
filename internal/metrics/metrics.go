// Package metrics exposes scan and HTTP metrics through Prometheus. Metrics
// is a scanner.Observer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cagmero/ARGUS/internal/types"
)

const namespace = "argus"

// Metrics holds every collector, registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	FilesCollected  *prometheus.CounterVec
	UnitsTotal      *prometheus.CounterVec
	UnitDuration    *prometheus.HistogramVec
	ScansTotal      prometheus.Counter
	ScanDuration    prometheus.Histogram
	Vulnerabilities *prometheus.CounterVec
	ScanErrors      *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry with the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := &Metrics{registry: reg}

	m.FilesCollected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_collected_total",
			Help:      "Files collected for analysis, by file type",
		},
		[]string{"file_type"},
	)
	m.UnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Analysis units run, by analyzer and outcome",
		},
		[]string{"analyzer", "outcome"},
	)
	m.UnitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Duration of analysis units in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"analyzer"},
	)
	m.ScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Completed scans",
		},
	)
	m.ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of scans in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
	m.Vulnerabilities = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vulnerabilities_total",
			Help:      "Reported vulnerabilities, by severity and analyzer",
		},
		[]string{"severity", "tool"},
	)
	m.ScanErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_errors_total",
			Help:      "Non-fatal scan errors, by category",
		},
		[]string{"category"},
	)
	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		},
		[]string{"method", "path", "code"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	reg.MustRegister(
		m.FilesCollected,
		m.UnitsTotal,
		m.UnitDuration,
		m.ScansTotal,
		m.ScanDuration,
		m.Vulnerabilities,
		m.ScanErrors,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) FileCollected(ft types.FileType) {
	m.FilesCollected.WithLabelValues(ft.String()).Inc()
}

func (m *Metrics) UnitFinished(analyzer, outcome string, seconds float64) {
	m.UnitsTotal.WithLabelValues(analyzer, outcome).Inc()
	m.UnitDuration.WithLabelValues(analyzer).Observe(seconds)
}

func (m *Metrics) ScanFinished(result *types.ScanResult) {
	m.ScansTotal.Inc()
	m.ScanDuration.Observe(result.Summary.Duration.Seconds())
	for _, v := range result.Vulnerabilities {
		m.Vulnerabilities.WithLabelValues(v.Severity.String(), v.Tool).Inc()
	}
	for _, e := range result.Errors {
		m.ScanErrors.WithLabelValues(string(e.Category)).Inc()
	}
}

// Middleware records request counts and latencies. path should be the
// route pattern, not the raw URL, to keep label cardinality bounded.
func (m *Metrics) Middleware(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
