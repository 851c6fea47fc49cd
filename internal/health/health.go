package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/browser"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

// HealthServer provides a health check endpoint. It is also a record output:
// every analysis updates its counters.
type HealthServer struct {
	config  *Config
	server  *http.Server
	handler http.Handler

	mu                 sync.RWMutex
	lastAnalysisTime   time.Time
	analysisCount      int64
	successCount       int64
	failureCount       int64
	consecutiveStartup int
}

// Config contains health check server configuration
type Config struct {
	Enabled       bool
	Port          int
	Path          string
	ListenAddress string

	// MaxConsecutiveStartupFailures marks the service unhealthy once that many
	// analyses in a row could not start a browser. Zero disables the check.
	MaxConsecutiveStartupFailures int
}

// HealthResponse is the JSON response structure
type HealthResponse struct {
	Status                     string    `json:"status"`
	Timestamp                  time.Time `json:"timestamp"`
	LastAnalysisTime           time.Time `json:"last_analysis_time,omitempty"`
	AnalysisCount              int64     `json:"analysis_count"`
	SuccessCount               int64     `json:"success_count"`
	FailureCount               int64     `json:"failure_count"`
	ConsecutiveStartupFailures int       `json:"consecutive_startup_failures"`
	Uptime                     string    `json:"uptime"`
}

var startTime = time.Now()

// New creates a health tracker without starting a listener
func New(cfg *Config) *HealthServer {
	h := &HealthServer{
		config: cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, h.handleHealth)
	h.handler = mux

	return h
}

// NewHealthServer creates and starts a health check server.
// It returns nil when the health check is disabled.
func NewHealthServer(cfg *Config) (*HealthServer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	h := New(cfg)

	addr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.Port)
	h.server = &http.Server{
		Addr:              addr,
		Handler:           h.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("health check endpoint started", "addr", addr, "path", cfg.Path)
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health check server error", "error", err)
		}
	}()

	return h, nil
}

// Handler returns the HTTP handler serving the health path
func (h *HealthServer) Handler() http.Handler {
	return h.handler
}

// handleHealth handles health check requests
func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	response := HealthResponse{
		Status:                     "healthy",
		Timestamp:                  time.Now(),
		LastAnalysisTime:           h.lastAnalysisTime,
		AnalysisCount:              h.analysisCount,
		SuccessCount:               h.successCount,
		FailureCount:               h.failureCount,
		ConsecutiveStartupFailures: h.consecutiveStartup,
		Uptime:                     time.Since(startTime).String(),
	}
	healthy := h.healthyLocked()
	h.mu.RUnlock()

	statusCode := http.StatusOK
	if !healthy {
		response.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Warn("error encoding health response", "error", err)
	}
}

func (h *HealthServer) healthyLocked() bool {
	limit := h.config.MaxConsecutiveStartupFailures
	return limit <= 0 || h.consecutiveStartup < limit
}

// RecordAnalysis records an analysis outcome. startupFailure marks failures
// where no browser could be launched; any launched browser resets the streak.
func (h *HealthServer) RecordAnalysis(success, startupFailure bool) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.countLocked(success)

	if startupFailure {
		h.consecutiveStartup++
		if h.consecutiveStartup == h.config.MaxConsecutiveStartupFailures {
			slog.Error("browser failed to start repeatedly, reporting unhealthy",
				"consecutive_failures", h.consecutiveStartup)
		}
	} else {
		h.consecutiveStartup = 0
	}
}

// RecordRejected records a request refused before any browser was launched.
// It leaves the startup failure streak untouched.
func (h *HealthServer) RecordRejected() {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.countLocked(false)
}

func (h *HealthServer) countLocked(success bool) {
	h.lastAnalysisTime = time.Now()
	h.analysisCount++

	if success {
		h.successCount++
	} else {
		h.failureCount++
	}
}

// Write records an analysis record
func (h *HealthServer) Write(record *models.AnalysisRecord) error {
	if record.Success || record.Error == nil {
		h.RecordAnalysis(record.Success, false)
		return nil
	}

	switch record.Error.ErrorType {
	case browser.ErrorTypeInvalidRequest:
		if record.URL == "" {
			// Rejected by the handler, no browser involved
			h.RecordRejected()
			return nil
		}
		h.RecordAnalysis(false, false)
	case browser.ErrorTypeBrowserStartup:
		h.RecordAnalysis(false, true)
	default:
		h.RecordAnalysis(false, false)
	}
	return nil
}

// Name returns the output module name
func (h *HealthServer) Name() string {
	return "health"
}

// Healthy reports the current health status
func (h *HealthServer) Healthy() bool {
	if h == nil {
		return true
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.healthyLocked()
}

// GetStats returns current health statistics
func (h *HealthServer) GetStats() (analysisCount, successCount, failureCount int64, lastAnalysisTime time.Time) {
	if h == nil {
		return 0, 0, 0, time.Time{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.analysisCount, h.successCount, h.failureCount, h.lastAnalysisTime
}

// Close shuts down the health check server
func (h *HealthServer) Close() error {
	if h == nil || h.server == nil {
		return nil
	}

	slog.Info("shutting down health check server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return h.server.Shutdown(ctx)
}
