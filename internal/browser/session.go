package browser

import (
	"context"
	"errors"

	"github.com/chromedp/cdproto/performance"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

var (
	// ErrBrowserStartup indicates Chrome could not be started or attached to
	ErrBrowserStartup = errors.New("browser failed to start")

	// ErrNavigationTimeout indicates the page did not settle within the navigation timeout
	ErrNavigationTimeout = errors.New("navigation timed out")

	// ErrNavigationFailed indicates the browser reported the page could not be loaded
	ErrNavigationFailed = errors.New("navigation failed")
)

// Launcher acquires isolated browser sessions. Each call to Launch must
// return a session that shares no state with any other.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is one disposable browser execution context.
// Close releases the underlying browser process.
type Session interface {
	// Prepare disables caching and enables network and performance instrumentation
	Prepare(ctx context.Context) error

	// Navigate loads url and waits for the network to go idle
	Navigate(ctx context.Context, url string) error

	// Metrics returns the CDP Performance.getMetrics counter set
	Metrics(ctx context.Context) ([]*performance.Metric, error)

	// NavigationTiming reads performance.timing from the loaded document
	NavigationTiming(ctx context.Context) (models.NavigationTiming, error)

	// ResourceEntries reads the resource timing entries of the loaded document
	ResourceEntries(ctx context.Context) ([]models.ResourceEntry, error)

	// WebVitals reads paint, layout shift and input metrics observed by the page
	WebVitals(ctx context.Context) (models.WebVitals, error)

	Close() error
}
