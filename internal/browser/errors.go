package browser

import (
	"context"
	"errors"
	"strings"
)

// Error categories reported in logs, metrics and exported records
const (
	ErrorTypeTimeout           = "timeout"
	ErrorTypeDNS               = "dns"
	ErrorTypeConnectionRefused = "connection_refused"
	ErrorTypeTLS               = "tls"
	ErrorTypeBrowserStartup    = "browser_startup"
	ErrorTypeInvalidRequest    = "invalid_request"
	ErrorTypeNavigation        = "navigation"
	ErrorTypeUnknown           = "unknown"
)

// CategorizeError determines the error type of a failed analysis.
// Chrome reports network failures as net::ERR_* strings in the navigation
// error text, so those are matched alongside Go error strings.
func CategorizeError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrBrowserStartup):
		return ErrorTypeBrowserStartup
	case errors.Is(err, ErrNavigationTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "context deadline exceeded"):
		return ErrorTypeTimeout
	case strings.Contains(errStr, "context canceled"):
		return ErrorTypeTimeout
	case strings.Contains(errStr, "name_not_resolved"),
		strings.Contains(errStr, "no such host"),
		strings.Contains(errStr, "dns"):
		return ErrorTypeDNS
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "connection_refused"):
		return ErrorTypeConnectionRefused
	case strings.Contains(errStr, "err_cert"),
		strings.Contains(errStr, "ssl"),
		strings.Contains(errStr, "tls"):
		return ErrorTypeTLS
	case strings.Contains(errStr, "timed_out"),
		strings.Contains(errStr, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(errStr, "invalid_url"),
		strings.Contains(errStr, "cannot navigate to invalid url"):
		return ErrorTypeInvalidRequest
	case errors.Is(err, ErrNavigationFailed):
		return ErrorTypeNavigation
	default:
		return ErrorTypeUnknown
	}
}
