package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/browser"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

func testConfig() *Config {
	return &Config{
		Enabled:                       true,
		Path:                          "/health",
		ListenAddress:                 "127.0.0.1",
		MaxConsecutiveStartupFailures: 3,
	}
}

func getHealth(t *testing.T, h *HealthServer, path string) (int, HealthResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp HealthResponse
	if rec.Code != http.StatusNotFound {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	}
	return rec.Code, resp
}

// TestNewHealthServer_Disabled tests that nil is returned when disabled
func TestNewHealthServer_Disabled(t *testing.T) {
	cfg := &Config{
		Enabled: false,
	}

	server, err := NewHealthServer(cfg)

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if server != nil {
		t.Error("Expected nil server when disabled")
	}

	// A disabled server is safe to use
	server.RecordAnalysis(true, false)
	assert.True(t, server.Healthy())
	assert.NoError(t, server.Close())
}

// TestNewHealthServer_Listens tests the server answers on its configured port
func TestNewHealthServer_Listens(t *testing.T) {
	cfg := testConfig()
	cfg.Port = 18080 // Use non-standard port to avoid conflicts

	server, err := NewHealthServer(cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if server == nil {
		t.Fatal("Expected server to be created")
	}
	defer server.Close()

	// Give server a moment to start
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18080/health")
	if err != nil {
		t.Fatalf("Failed to connect to health server: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestHealthServer_CustomPath(t *testing.T) {
	cfg := testConfig()
	cfg.Path = "/custom/healthz"
	h := New(cfg)

	code, resp := getHealth(t, h, "/custom/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)

	code, _ = getHealth(t, h, "/health")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHealthServer_RecordAnalysis(t *testing.T) {
	h := New(testConfig())

	h.RecordAnalysis(true, false)
	h.RecordAnalysis(true, false)
	h.RecordAnalysis(false, false)

	code, resp := getHealth(t, h, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(3), resp.AnalysisCount)
	assert.Equal(t, int64(2), resp.SuccessCount)
	assert.Equal(t, int64(1), resp.FailureCount)
	assert.False(t, resp.LastAnalysisTime.IsZero())

	count, success, failure, last := h.GetStats()
	assert.Equal(t, int64(3), count)
	assert.Equal(t, int64(2), success)
	assert.Equal(t, int64(1), failure)
	assert.Equal(t, resp.LastAnalysisTime.Unix(), last.Unix())
}

func TestHealthServer_ConsecutiveStartupFailures(t *testing.T) {
	h := New(testConfig())

	h.RecordAnalysis(false, true)
	h.RecordAnalysis(false, true)
	assert.True(t, h.Healthy())

	// Ordinary failures do not count toward the limit but do reset the streak
	h.RecordAnalysis(false, false)
	h.RecordAnalysis(false, true)
	h.RecordAnalysis(false, true)
	assert.True(t, h.Healthy())

	h.RecordAnalysis(false, true)
	assert.False(t, h.Healthy())

	code, resp := getHealth(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, 3, resp.ConsecutiveStartupFailures)

	// A successful launch recovers
	h.RecordAnalysis(true, false)
	assert.True(t, h.Healthy())
}

func TestHealthServer_StartupCheckDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsecutiveStartupFailures = 0
	h := New(cfg)

	for i := 0; i < 10; i++ {
		h.RecordAnalysis(false, true)
	}
	assert.True(t, h.Healthy())
}

func TestHealthServer_Write(t *testing.T) {
	h := New(testConfig())
	assert.Equal(t, "health", h.Name())

	startupFailure := &models.AnalysisRecord{
		Success: false,
		Error:   &models.ErrorInfo{ErrorType: browser.ErrorTypeBrowserStartup, ErrorMessage: "browser failed to start"},
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Write(startupFailure))
	}
	assert.False(t, h.Healthy())

	require.NoError(t, h.Write(&models.AnalysisRecord{Success: true}))
	assert.True(t, h.Healthy())

	count, success, failure, _ := h.GetStats()
	assert.Equal(t, int64(4), count)
	assert.Equal(t, int64(1), success)
	assert.Equal(t, int64(3), failure)
}

func TestHealthServer_RejectedRequestsKeepStreak(t *testing.T) {
	h := New(testConfig())

	startupFailure := &models.AnalysisRecord{
		URL:   "https://example.com",
		Error: &models.ErrorInfo{ErrorType: browser.ErrorTypeBrowserStartup},
	}
	rejected := &models.AnalysisRecord{
		Error: &models.ErrorInfo{ErrorType: browser.ErrorTypeInvalidRequest, ErrorMessage: "missing required field: url"},
	}

	require.NoError(t, h.Write(startupFailure))
	require.NoError(t, h.Write(startupFailure))
	require.NoError(t, h.Write(rejected))
	require.NoError(t, h.Write(startupFailure))

	assert.False(t, h.Healthy(), "a rejected request launches no browser and must not reset the streak")

	count, _, failure, _ := h.GetStats()
	assert.Equal(t, int64(4), count)
	assert.Equal(t, int64(4), failure)
}

// TestHealthServer_ConcurrentRequests tests handling concurrent health check requests
func TestHealthServer_ConcurrentRequests(t *testing.T) {
	h := New(testConfig())
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			h.RecordAnalysis(true, false)
			resp, err := http.Get(srv.URL + "/health")
			if err != nil {
				done <- err
				return
			}
			resp.Body.Close()
			done <- nil
		}()
	}

	for i := 0; i < 10; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Request failed: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Timeout waiting for concurrent requests")
		}
	}

	count, _, _, _ := h.GetStats()
	assert.Equal(t, int64(10), count)
}
