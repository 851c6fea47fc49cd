package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/browser"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

// maxRequestBody bounds the size of an analyze request
const maxRequestBody = 1 << 20

// ErrMissingURL is returned when the request carries no url
var ErrMissingURL = errors.New("missing required field: url")

// Analyzer produces a performance report for a URL
type Analyzer interface {
	Analyze(ctx context.Context, url string) (*models.PerformanceReport, error)
}

// Recorder receives one record per analysis request
type Recorder interface {
	Dispatch(record *models.AnalysisRecord)
}

// Handler serves the analysis endpoint
type Handler struct {
	analyzer Analyzer
	recorder Recorder
	metadata models.RecordMetadata
	now      func() time.Time
}

// NewHandler creates a Handler. recorder may be nil.
func NewHandler(analyzer Analyzer, recorder Recorder, metadata models.RecordMetadata) *Handler {
	return &Handler{
		analyzer: analyzer,
		recorder: recorder,
		metadata: metadata,
		now:      time.Now,
	}
}

// NewRouter wires the analysis endpoint with request id, logging, panic
// recovery and CORS middleware.
func NewRouter(h *Handler, logger *slog.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		requestLogger(logger),
		recoverer(logger),
		cors(allowedOrigins),
	)

	r.Post("/analyze", h.Analyze)

	return r
}

// Analyze handles POST /analyze {"url": "..."}
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	record := &models.AnalysisRecord{
		Timestamp:  start,
		AnalysisID: uuid.NewString(),
		Metadata:   h.metadata,
	}
	defer h.record(record)

	target, err := decodeRequest(w, r)
	if err != nil {
		record.Error = &models.ErrorInfo{
			ErrorType:    browser.ErrorTypeInvalidRequest,
			ErrorMessage: err.Error(),
		}
		writeError(w, err)
		return
	}
	record.URL = target
	record.Host = hostOf(target)

	report, err := h.analyzer.Analyze(r.Context(), target)
	record.DurationMs = h.now().Sub(start).Milliseconds()
	if err != nil {
		record.Error = &models.ErrorInfo{
			ErrorType:    browser.CategorizeError(err),
			ErrorMessage: err.Error(),
		}
		slog.Debug("analysis failed",
			"analysis_id", record.AnalysisID,
			"request_id", middleware.GetReqID(r.Context()),
			"url", target,
			"error", err)
		writeError(w, err)
		return
	}

	record.Success = true
	record.Report = report
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) record(record *models.AnalysisRecord) {
	if h.recorder == nil {
		return
	}
	h.recorder.Dispatch(record)
}

// decodeRequest reads the target URL. Only presence is checked; malformed
// URLs fail inside navigation.
func decodeRequest(w http.ResponseWriter, r *http.Request) (string, error) {
	var req models.AnalyzeRequest

	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return "", fmt.Errorf("invalid request body: %w", err)
	}

	target := strings.TrimSpace(req.URL)
	if target == "" {
		return "", ErrMissingURL
	}
	return target, nil
}

// hostOf returns the host of rawURL, or "" when it does not parse
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
