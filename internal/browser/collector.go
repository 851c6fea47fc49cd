package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

// Collector produces a PerformanceReport for a URL using one disposable
// browser session per call. It keeps no state between calls.
type Collector struct {
	launcher          Launcher
	navigationTimeout time.Duration
}

// NewCollector creates a Collector. navigationTimeout bounds page preparation
// and navigation; collection of the loaded page is not bounded by it.
func NewCollector(launcher Launcher, navigationTimeout time.Duration) *Collector {
	return &Collector{
		launcher:          launcher,
		navigationTimeout: navigationTimeout,
	}
}

// Analyze loads url in a fresh browser session and reads its performance data.
// No partial report is returned on failure.
func (c *Collector) Analyze(ctx context.Context, url string) (*models.PerformanceReport, error) {
	session, err := c.launcher.Launch(ctx)
	if err != nil {
		if !errors.Is(err, ErrBrowserStartup) {
			err = fmt.Errorf("%w: %v", ErrBrowserStartup, err)
		}
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Debug("browser session close failed", "url", url, "error", err)
		}
	}()

	if err := c.load(ctx, session, url); err != nil {
		return nil, err
	}

	metrics, err := session.Metrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read performance metrics: %w", err)
	}

	timing, err := session.NavigationTiming(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read navigation timing: %w", err)
	}

	entries, err := session.ResourceEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource entries: %w", err)
	}

	vitals, err := session.WebVitals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read web vitals: %w", err)
	}

	return BuildReport(NewMetricTable(metrics), timing, entries, vitals), nil
}

// load prepares the session and navigates to url within the navigation timeout
func (c *Collector) load(ctx context.Context, session Session, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, c.navigationTimeout)
	defer cancel()

	if err := session.Prepare(navCtx); err != nil {
		return c.navigationError(navCtx, "failed to prepare browser session", err)
	}

	if err := session.Navigate(navCtx, url); err != nil {
		return c.navigationError(navCtx, "failed to load "+url, err)
	}

	return nil
}

func (c *Collector) navigationError(navCtx context.Context, msg string, err error) error {
	if errors.Is(navCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %s", msg, ErrNavigationTimeout, c.navigationTimeout)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
