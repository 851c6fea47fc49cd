package outputs

import (
	"io"
	"log/slog"
	"strings"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/config"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

// Logger writes one structured line per analysis record. Its slog.Logger is
// also installed as the process-wide default.
type Logger struct {
	logger *slog.Logger
	config *config.LoggingConfig
}

// NewLogger creates a JSON or text logger writing to w
func NewLogger(cfg *config.LoggingConfig, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Level),
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		logger: slog.New(handler),
		config: cfg,
	}
}

// Slog returns the underlying structured logger
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// Write logs an analysis record
func (l *Logger) Write(record *models.AnalysisRecord) error {
	attrs := []any{
		"analysis_id", record.AnalysisID,
		"url", record.URL,
		"host", record.HostLabel(),
		"success", record.Success,
		"duration_ms", record.DurationMs,
	}

	if record.Report != nil {
		r := record.Report
		attrs = append(attrs, slog.Group("report",
			"lcp_ms", r.LargestContentfulPaint,
			"fcp_ms", r.FirstContentfulPaint,
			"ttfb_ms", r.TimeToFirstByte,
			"cls", r.CumulativeLayoutShift,
			"dom_content_loaded_ms", r.DOMContentLoaded,
			"page_load_ms", r.PageLoadTime,
			"total_request_kb", r.TotalRequestSize,
			"requests", r.NumberOfRequests,
		))
	}

	if record.Error != nil {
		attrs = append(attrs,
			"error_type", record.Error.ErrorType,
			"error", record.Error.ErrorMessage,
		)
		l.logger.Warn("analysis", attrs...)
		return nil
	}

	l.logger.Info("analysis", attrs...)
	return nil
}

// Name returns the output module name
func (l *Logger) Name() string {
	return "logger"
}

// parseLogLevel converts string to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
