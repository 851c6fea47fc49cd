package outputs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/config"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/metrics"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

const metricsNamespace = "page_analyzer"

// PrometheusOutput exposes analysis metrics via HTTP endpoint
type PrometheusOutput struct {
	config   *config.PrometheusConfig
	server   *http.Server
	registry *prometheus.Registry
	hosts    *metrics.HostLimiter

	// Metrics
	analysisTotal             *prometheus.CounterVec
	analysisDurationHistogram *prometheus.HistogramVec
	lastSuccessTimestamp      *prometheus.GaugeVec
	largestContentfulPaintMs  *prometheus.GaugeVec
	firstContentfulPaintMs    *prometheus.GaugeVec
	timeToFirstByteMs         *prometheus.GaugeVec
	domContentLoadedMs        *prometheus.GaugeVec
	pageLoadTimeMs            *prometheus.GaugeVec
	cumulativeLayoutShift     *prometheus.GaugeVec
	totalRequestSizeKB        *prometheus.GaugeVec
	numberOfRequests          *prometheus.GaugeVec
}

// NewPrometheusOutput creates a Prometheus exporter and starts its HTTP server.
// It returns nil when the exporter is disabled.
func NewPrometheusOutput(cfg *config.PrometheusConfig) (*PrometheusOutput, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	p := newPrometheusOutput(cfg)

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, p.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.Port)
	p.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("starting Prometheus exporter", "addr", addr, "path", cfg.Path)
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Prometheus server error", "error", err)
		}
	}()

	return p, nil
}

// newPrometheusOutput builds the metrics on a private registry
func newPrometheusOutput(cfg *config.PrometheusConfig) *PrometheusOutput {
	p := &PrometheusOutput{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		hosts:    metrics.NewHostLimiter(cfg.MaxHosts),
	}

	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      name,
				Help:      help,
			},
			[]string{"host"},
		)
	}

	p.analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "analysis_total",
			Help:      "Total number of page analyses performed",
		},
		[]string{"host", "status", "error_type"},
	)

	// Use configured buckets or default
	buckets := cfg.LatencyBuckets
	if len(buckets) == 0 {
		buckets = []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}
	}

	p.analysisDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "analysis_duration_ms",
			Help:      "Histogram of analysis durations in milliseconds",
			Buckets:   buckets,
		},
		[]string{"host"},
	)

	p.lastSuccessTimestamp = gauge("last_success_timestamp_seconds", "Unix timestamp of the last successful analysis")
	p.largestContentfulPaintMs = gauge("largest_contentful_paint_ms", "Largest contentful paint of the most recent analysis")
	p.firstContentfulPaintMs = gauge("first_contentful_paint_ms", "First contentful paint of the most recent analysis")
	p.timeToFirstByteMs = gauge("time_to_first_byte_ms", "Time to first byte of the most recent analysis")
	p.domContentLoadedMs = gauge("dom_content_loaded_ms", "DOMContentLoaded time of the most recent analysis")
	p.pageLoadTimeMs = gauge("page_load_time_ms", "Page load time of the most recent analysis")
	p.cumulativeLayoutShift = gauge("cumulative_layout_shift", "Cumulative layout shift of the most recent analysis")
	p.totalRequestSizeKB = gauge("total_request_size_kb", "Total transfer size of the most recent analysis in kilobytes")
	p.numberOfRequests = gauge("requests", "Number of resource requests of the most recent analysis")

	p.registry.MustRegister(
		p.analysisTotal,
		p.analysisDurationHistogram,
		p.lastSuccessTimestamp,
		p.largestContentfulPaintMs,
		p.firstContentfulPaintMs,
		p.timeToFirstByteMs,
		p.domContentLoadedMs,
		p.pageLoadTimeMs,
		p.cumulativeLayoutShift,
		p.totalRequestSizeKB,
		p.numberOfRequests,
	)

	if cfg.IncludeGoMetrics {
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return p
}

// Handler serves the registry in the Prometheus exposition format
func (p *PrometheusOutput) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Write updates Prometheus metrics with the analysis record
func (p *PrometheusOutput) Write(record *models.AnalysisRecord) error {
	if p == nil {
		return nil
	}

	host := p.hosts.Label(record.HostLabel())

	status := "failure"
	errorType := ""
	if record.Success {
		status = "success"
	} else if record.Error != nil {
		errorType = record.Error.ErrorType
	}
	p.analysisTotal.WithLabelValues(host, status, errorType).Inc()
	p.analysisDurationHistogram.WithLabelValues(host).Observe(float64(record.DurationMs))

	if !record.Success || record.Report == nil {
		return nil
	}

	r := record.Report
	p.lastSuccessTimestamp.WithLabelValues(host).Set(float64(record.Timestamp.Unix()))
	p.largestContentfulPaintMs.WithLabelValues(host).Set(r.LargestContentfulPaint)
	p.firstContentfulPaintMs.WithLabelValues(host).Set(r.FirstContentfulPaint)
	p.timeToFirstByteMs.WithLabelValues(host).Set(float64(r.TimeToFirstByte))
	p.domContentLoadedMs.WithLabelValues(host).Set(float64(r.DOMContentLoaded))
	p.pageLoadTimeMs.WithLabelValues(host).Set(float64(r.PageLoadTime))
	p.cumulativeLayoutShift.WithLabelValues(host).Set(r.CumulativeLayoutShift)
	p.totalRequestSizeKB.WithLabelValues(host).Set(float64(r.TotalRequestSize))
	p.numberOfRequests.WithLabelValues(host).Set(float64(r.NumberOfRequests))

	return nil
}

// Name returns the output module name
func (p *PrometheusOutput) Name() string {
	return "prometheus"
}

// Close shuts down the HTTP server
func (p *PrometheusOutput) Close() error {
	if p == nil || p.server == nil {
		return nil
	}

	slog.Info("shutting down Prometheus exporter")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return p.server.Shutdown(ctx)
}
