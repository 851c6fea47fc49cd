package models

// PerformanceReport is the normalized result of analyzing a single page load.
// Every numeric field is zero when the browser did not report it.
type PerformanceReport struct {
	// LargestContentfulPaint in milliseconds, rounded to 2 decimals
	LargestContentfulPaint float64 `json:"largestContentfulPaint"`

	// FirstContentfulPaint in milliseconds, rounded to 2 decimals
	FirstContentfulPaint float64 `json:"firstContentfulPaint"`

	// TimeToFirstByte is responseStart - navigationStart
	TimeToFirstByte int64 `json:"timeToFirstByte"`

	// FirstInputDelay is almost always 0 in a headless session (no real input)
	FirstInputDelay int64 `json:"firstInputDelay"`

	// CumulativeLayoutShift is unitless, rounded to 2 decimals
	CumulativeLayoutShift float64 `json:"cumulativeLayoutShift"`

	// DOMContentLoaded is domContentLoadedEventEnd - navigationStart
	DOMContentLoaded int64 `json:"domContentLoaded"`

	// PageLoadTime is loadEventEnd - navigationStart
	PageLoadTime int64 `json:"pageLoadTime"`

	// TotalRequestSize is the summed transfer size of all resources in KB
	TotalRequestSize int64 `json:"totalRequestSize"`

	// NumberOfRequests is the count of resource timing entries
	NumberOfRequests int `json:"numberOfRequests"`

	// FormData holds the raw browser instrumentation counters
	FormData FormData `json:"formData"`
}

// FormData maps a counter key (e.g. "jsHeapUsedSize") to its value.
type FormData map[string]float64

// NavigationTiming holds the Navigation Timing (Level 1) marks of a document.
// All values are epoch milliseconds; an unreached mark is 0.
type NavigationTiming struct {
	NavigationStart          float64 `json:"navigationStart"`
	ResponseStart            float64 `json:"responseStart"`
	ResponseEnd              float64 `json:"responseEnd"`
	DOMContentLoadedEventEnd float64 `json:"domContentLoadedEventEnd"`
	LoadEventEnd             float64 `json:"loadEventEnd"`
}

// ResourceEntry is a single Resource Timing entry.
type ResourceEntry struct {
	Name          string  `json:"name"`
	InitiatorType string  `json:"initiatorType"`
	TransferSize  float64 `json:"transferSize"`
	Duration      float64 `json:"duration"`
}

// WebVitals are the paint, layout and input metrics observed in the page
// through buffered PerformanceObservers.
type WebVitals struct {
	LargestContentfulPaint float64 `json:"lcp"`
	FirstContentfulPaint   float64 `json:"fcp"`
	CumulativeLayoutShift  float64 `json:"cls"`
	FirstInputDelay        float64 `json:"fid"`
}

// AnalyzeRequest is the body of POST /analyze
type AnalyzeRequest struct {
	URL string `json:"url"`
}

// ErrorResponse is returned when an analysis cannot be completed
type ErrorResponse struct {
	Error string `json:"error"`
}
