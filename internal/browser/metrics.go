package browser

import (
	"math"

	"github.com/chromedp/cdproto/performance"
	"github.com/samber/lo"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

// CDP Performance.getMetrics counter names read directly into report fields
const (
	metricFirstContentfulPaint   = "FirstContentfulPaint"
	metricLargestContentfulPaint = "LargestContentfulPaint"
	metricFirstInputDelay        = "FirstInputDelay"
	metricCumulativeLayoutShift  = "CumulativeLayoutShift"
)

type formDataField struct {
	key    string
	metric string
}

// formDataFields maps report formData keys to CDP counter names.
var formDataFields = []formDataField{
	{"timestamp", "Timestamp"},
	{"audioHandlers", "AudioHandlers"},
	{"audioWorkletProcessors", "AudioWorkletProcessors"},
	{"documents", "Documents"},
	{"frames", "Frames"},
	{"jsEventListeners", "JSEventListeners"},
	{"layoutObjects", "LayoutObjects"},
	{"mediaKeySessions", "MediaKeySessions"},
	{"mediaKeys", "MediaKeys"},
	{"nodes", "Nodes"},
	{"resources", "Resources"},
	{"contextLifecycleStateObservers", "ContextLifecycleStateObservers"},
	{"v8PerContextDatas", "V8PerContextDatas"},
	{"workerGlobalScopes", "WorkerGlobalScopes"},
	{"uacssResources", "UACSSResources"},
	{"rtcPeerConnections", "RTCPeerConnections"},
	{"resourceFetchers", "ResourceFetchers"},
	{"adSubframes", "AdSubframes"},
	{"detachedScriptStates", "DetachedScriptStates"},
	{"arrayBufferContents", "ArrayBufferContents"},
	{"layoutCount", "LayoutCount"},
	{"recalcStyleCount", "RecalcStyleCount"},
	{"layoutDuration", "LayoutDuration"},
	{"recalcStyleDuration", "RecalcStyleDuration"},
	{"devToolsCommandDuration", "DevToolsCommandDuration"},
	{"scriptDuration", "ScriptDuration"},
	{"v8CompileDuration", "V8CompileDuration"},
	{"taskDuration", "TaskDuration"},
	{"taskOtherDuration", "TaskOtherDuration"},
	{"threadTime", "ThreadTime"},
	{"processTime", "ProcessTime"},
	{"jsHeapUsedSize", "JSHeapUsedSize"},
	{"jsHeapTotalSize", "JSHeapTotalSize"},
	{"firstMeaningfulPaint", "FirstMeaningfulPaint"},
}

// Derived formData keys
const (
	formDataDOMContentLoaded = "domContentLoaded"
	formDataNavigationStart  = "navigationStart"
)

// formDataKeys returns every key present in a report's formData
func formDataKeys() []string {
	keys := lo.Map(formDataFields, func(f formDataField, _ int) string {
		return f.key
	})
	return append(keys, formDataDOMContentLoaded, formDataNavigationStart)
}

// MetricTable is the CDP counter list parsed once into name -> value.
type MetricTable map[string]float64

// NewMetricTable indexes the counters by name. Later duplicates win.
func NewMetricTable(metrics []*performance.Metric) MetricTable {
	present := lo.Filter(metrics, func(m *performance.Metric, _ int) bool {
		return m != nil
	})
	return lo.Associate(present, func(m *performance.Metric) (string, float64) {
		return m.Name, m.Value
	})
}

// Get returns the counter value, or 0 when absent or not a finite number
func (t MetricTable) Get(name string) float64 {
	v, _ := t.Lookup(name)
	return v
}

// Lookup returns the counter value and whether a usable value was reported
func (t MetricTable) Lookup(name string) (float64, bool) {
	v, ok := t[name]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// BuildReport assembles a PerformanceReport from the collected browser data.
// Paint, layout and input metrics prefer the CDP counters and fall back to the
// values observed in the page.
func BuildReport(table MetricTable, timing models.NavigationTiming, entries []models.ResourceEntry, vitals models.WebVitals) *models.PerformanceReport {
	lcp := preferMetric(table, metricLargestContentfulPaint, vitals.LargestContentfulPaint)
	fcp := preferMetric(table, metricFirstContentfulPaint, vitals.FirstContentfulPaint)
	fid := preferMetric(table, metricFirstInputDelay, vitals.FirstInputDelay)
	cls := preferMetric(table, metricCumulativeLayoutShift, vitals.CumulativeLayoutShift)

	domContentLoaded := sinceNavigationStart(timing, timing.DOMContentLoadedEventEnd)

	formData := make(models.FormData, len(formDataFields)+2)
	for _, f := range formDataFields {
		formData[f.key] = nonNegative(table.Get(f.metric))
	}
	formData[formDataDOMContentLoaded] = domContentLoaded
	formData[formDataNavigationStart] = nonNegative(timing.NavigationStart)

	return &models.PerformanceReport{
		LargestContentfulPaint: roundTo(lcp, 2),
		FirstContentfulPaint:   roundTo(fcp, 2),
		TimeToFirstByte:        roundMs(sinceNavigationStart(timing, timing.ResponseStart)),
		FirstInputDelay:        roundMs(fid),
		CumulativeLayoutShift:  roundTo(cls, 2),
		DOMContentLoaded:       roundMs(domContentLoaded),
		PageLoadTime:           roundMs(sinceNavigationStart(timing, timing.LoadEventEnd)),
		TotalRequestSize:       TotalRequestSizeKB(entries),
		NumberOfRequests:       len(entries),
		FormData:               formData,
	}
}

// TotalRequestSizeKB sums the transfer sizes of the entries in bytes and
// converts the total to kilobytes, rounded to the nearest integer.
func TotalRequestSizeKB(entries []models.ResourceEntry) int64 {
	total := lo.SumBy(entries, func(e models.ResourceEntry) float64 {
		return nonNegative(e.TransferSize)
	})
	return int64(math.Round(total / 1024))
}

func preferMetric(table MetricTable, name string, fallback float64) float64 {
	if v, ok := table.Lookup(name); ok {
		return nonNegative(v)
	}
	return nonNegative(fallback)
}

// sinceNavigationStart returns mark - navigationStart, or 0 when either mark
// was never reached or the difference would be negative.
func sinceNavigationStart(timing models.NavigationTiming, mark float64) float64 {
	if timing.NavigationStart <= 0 || mark <= 0 || mark < timing.NavigationStart {
		return 0
	}
	return mark - timing.NavigationStart
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func roundMs(v float64) int64 {
	return int64(math.Round(v))
}
