package outputs

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/config"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/metrics"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

func promConfig() *config.PrometheusConfig {
	cfg := config.DefaultConfig().Prometheus
	cfg.IncludeGoMetrics = false
	return &cfg
}

func TestNewPrometheusOutput_Disabled(t *testing.T) {
	out, err := NewPrometheusOutput(&config.PrometheusConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.NoError(t, out.Write(&models.AnalysisRecord{}))
	assert.NoError(t, out.Close())
}

func TestPrometheusOutput_Write(t *testing.T) {
	p := newPrometheusOutput(promConfig())

	success := &models.AnalysisRecord{
		Timestamp:  time.Unix(1700000000, 0),
		URL:        "https://example.com/",
		Host:       "example.com",
		Success:    true,
		DurationMs: 1800,
		Report: &models.PerformanceReport{
			LargestContentfulPaint: 950.25,
			TimeToFirstByte:        120,
			PageLoadTime:           900,
			TotalRequestSize:       512,
			NumberOfRequests:       42,
		},
	}
	failure := &models.AnalysisRecord{
		URL:        "https://example.com/",
		Host:       "example.com",
		DurationMs: 60000,
		Error:      &models.ErrorInfo{ErrorType: "timeout", ErrorMessage: "navigation timed out"},
	}

	require.NoError(t, p.Write(success))
	require.NoError(t, p.Write(success))
	require.NoError(t, p.Write(failure))

	assert.Equal(t, 2.0, testutil.ToFloat64(p.analysisTotal.WithLabelValues("example.com", "success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.analysisTotal.WithLabelValues("example.com", "failure", "timeout")))
	assert.Equal(t, 950.25, testutil.ToFloat64(p.largestContentfulPaintMs.WithLabelValues("example.com")))
	assert.Equal(t, 120.0, testutil.ToFloat64(p.timeToFirstByteMs.WithLabelValues("example.com")))
	assert.Equal(t, 42.0, testutil.ToFloat64(p.numberOfRequests.WithLabelValues("example.com")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(p.lastSuccessTimestamp.WithLabelValues("example.com")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.analysisDurationHistogram))
}

func TestPrometheusOutput_Handler(t *testing.T) {
	p := newPrometheusOutput(promConfig())
	require.NoError(t, p.Write(&models.AnalysisRecord{URL: "https://example.com", Success: true, Report: &models.PerformanceReport{}}))

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "page_analyzer_analysis_total")
	assert.Contains(t, string(body), `host="https://example.com"`)
	assert.NotContains(t, string(body), "go_goroutines")
}

func TestPrometheusOutput_GoMetrics(t *testing.T) {
	cfg := promConfig()
	cfg.IncludeGoMetrics = true
	p := newPrometheusOutput(cfg)

	families, err := p.registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
}

func TestPrometheusOutput_HostSeriesBounded(t *testing.T) {
	cfg := promConfig()
	cfg.MaxHosts = 5
	p := newPrometheusOutput(cfg)

	for i := 0; i < 1000; i++ {
		require.NoError(t, p.Write(&models.AnalysisRecord{
			URL:   fmt.Sprintf("https://site-%d.example.com/", i),
			Host:  fmt.Sprintf("site-%d.example.com", i),
			Error: &models.ErrorInfo{ErrorType: "timeout"},
		}))
	}

	assert.Equal(t, 6, testutil.CollectAndCount(p.analysisTotal), "five hosts plus the overflow series")
	assert.Equal(t, 6, testutil.CollectAndCount(p.analysisDurationHistogram))
	assert.Equal(t, 995.0, testutil.ToFloat64(p.analysisTotal.WithLabelValues(metrics.HostOverflow, "failure", "timeout")))
}

func TestPrometheusOutput_UnparseableURLsShareOneSeries(t *testing.T) {
	p := newPrometheusOutput(promConfig())

	for i := 0; i < 200; i++ {
		require.NoError(t, p.Write(&models.AnalysisRecord{
			URL:   fmt.Sprintf("not a url %d", i),
			Error: &models.ErrorInfo{ErrorType: "navigation"},
		}))
	}

	assert.Equal(t, 1, testutil.CollectAndCount(p.analysisTotal))
	assert.Equal(t, 200.0, testutil.ToFloat64(p.analysisTotal.WithLabelValues(models.HostInvalid, "failure", "navigation")))
}
