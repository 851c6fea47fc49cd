package models

import "time"

// AnalysisRecord describes one analysis request and its outcome.
// It is handed to every registered output (logs, metrics, exporters).
type AnalysisRecord struct {
	// Timestamp when the analysis started
	Timestamp time.Time `json:"@timestamp"`

	// AnalysisID is a unique identifier for this analysis
	AnalysisID string `json:"analysis_id"`

	// URL is the address that was analyzed, as requested
	URL string `json:"url"`

	// Host is the URL host, used as a low-cardinality label
	Host string `json:"host,omitempty"`

	// Success is true when a report was produced
	Success bool `json:"success"`

	// DurationMs is the wall time of the analysis
	DurationMs int64 `json:"duration_ms"`

	// Report is set on success
	Report *PerformanceReport `json:"report,omitempty"`

	// Error information (if the analysis failed)
	Error *ErrorInfo `json:"error,omitempty"`

	// Metadata about the analyzer instance
	Metadata RecordMetadata `json:"metadata,omitempty"`
}

// ErrorInfo contains error details when an analysis fails
type ErrorInfo struct {
	// ErrorType categorizes the error (e.g., "timeout", "dns", "browser_startup")
	ErrorType string `json:"error_type"`

	// ErrorMessage is the human-readable error message
	ErrorMessage string `json:"error_message"`
}

// RecordMetadata contains information about the analyzer instance
type RecordMetadata struct {
	// Hostname of the analyzer instance
	Hostname string `json:"hostname,omitempty"`

	// Version of the analyzer software
	Version string `json:"version,omitempty"`

	// Browser user agent
	UserAgent string `json:"user_agent,omitempty"`
}

// Host labels for records without a usable host
const (
	HostInvalid = "invalid"
	HostUnknown = "unknown"
)

// HostLabel returns the host of the record. URLs without a host share
// HostInvalid; records without a URL share HostUnknown.
func (r *AnalysisRecord) HostLabel() string {
	switch {
	case r.Host != "":
		return r.Host
	case r.URL != "":
		return HostInvalid
	default:
		return HostUnknown
	}
}
