package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/performance"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/config"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

const navigationTimingScript = `JSON.parse(JSON.stringify(performance.timing))`

const resourceEntriesScript = `
	performance.getEntriesByType('resource').map(function (e) {
		return {
			name: e.name,
			initiatorType: e.initiatorType,
			transferSize: e.transferSize || 0,
			duration: e.duration || 0
		};
	})
`

// webVitalsScript drains the buffered paint, LCP, layout-shift and first-input
// entries. Observers deliver buffered entries asynchronously, so the promise
// resolves on the next task.
const webVitalsScript = `
	new Promise(function (resolve) {
		var v = { lcp: 0, fcp: 0, cls: 0, fid: 0 };
		function observe(type, fn) {
			try {
				new PerformanceObserver(function (list) { list.getEntries().forEach(fn); })
					.observe({ type: type, buffered: true });
			} catch (e) {}
		}
		observe('paint', function (e) {
			if (e.name === 'first-contentful-paint') { v.fcp = e.startTime; }
		});
		observe('largest-contentful-paint', function (e) {
			v.lcp = Math.max(v.lcp, e.renderTime || e.loadTime || e.startTime);
		});
		observe('layout-shift', function (e) {
			if (!e.hadRecentInput) { v.cls += e.value; }
		});
		observe('first-input', function (e) {
			v.fid = e.processingStart - e.startTime;
		});
		setTimeout(function () { resolve(v); }, 0);
	})
`

// ChromeLauncher starts a fresh headless Chrome process for every session.
// Nothing (DNS, connections, cache, cookies) carries over between sessions.
type ChromeLauncher struct {
	config        *config.BrowserConfig
	allocatorOpts []chromedp.ExecAllocatorOption
}

// NewChromeLauncher builds the allocator options once from the browser config
func NewChromeLauncher(cfg *config.BrowserConfig) *ChromeLauncher {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.Flag("log-level", "3"), // Suppress Chrome warnings
		// Cold load: nothing served from disk or memory caches
		chromedp.Flag("disable-cache", "true"),
		chromedp.Flag("disable-application-cache", "true"),
		chromedp.Flag("disable-offline-load-stale-cache", "true"),
		chromedp.Flag("disk-cache-size", "0"),
		chromedp.Flag("media-cache-size", "0"),
	}

	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox) // Required for Docker
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}

	if cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	for _, f := range cfg.ExtraFlags {
		name, value := parseFlag(f)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}

	return &ChromeLauncher{
		config:        cfg,
		allocatorOpts: opts,
	}
}

// parseFlag splits "--name=value" or "--name" into a chromedp flag
func parseFlag(flag string) (string, interface{}) {
	flag = strings.TrimLeft(strings.TrimSpace(flag), "-")
	if flag == "" {
		return "", nil
	}
	if name, value, ok := strings.Cut(flag, "="); ok {
		return name, value
	}
	return flag, true
}

// Launch starts Chrome and opens a blank target. The browser lifetime is
// bound to the session, not to ctx; ctx only bounds startup.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), l.allocatorOpts...)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx:         taskCtx,
		cancelTask:  cancelTask,
		cancelAlloc: cancelAlloc,
		watcher:     newLifecycleWatcher(l.config.IdleEvent),
	}

	// The first Run allocates the browser; it must run on taskCtx itself so a
	// derived deadline does not tear the browser down when it expires.
	startErr := make(chan error, 1)
	go func() { startErr <- chromedp.Run(taskCtx) }()

	select {
	case err := <-startErr:
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: %v", ErrBrowserStartup, err)
		}
	case <-ctx.Done():
		// Allocation is still running on taskCtx, so no graceful close here.
		// Cancelling kills the process; Run must return before s is dropped.
		s.abort()
		<-startErr
		return nil, fmt.Errorf("%w: %v", ErrBrowserStartup, ctx.Err())
	}

	chromedp.ListenTarget(taskCtx, s.watcher.observe)
	return s, nil
}

// chromeSession drives one chromedp browser context
type chromeSession struct {
	ctx         context.Context
	cancelTask  context.CancelFunc
	cancelAlloc context.CancelFunc
	watcher     *lifecycleWatcher
	closeOnce   sync.Once
	closeErr    error
}

// run executes actions on the session's browser, bounded by ctx
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *chromeSession) Prepare(ctx context.Context) error {
	return s.run(ctx,
		network.Enable(),
		network.SetCacheDisabled(true),
		performance.Enable(),
		page.SetLifecycleEventsEnabled(true),
	)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		frameID, loaderID, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("%w: %s", ErrNavigationFailed, errorText)
		}
		// Same-document navigations have no loader and no lifecycle of their own
		if loaderID == "" {
			return nil
		}
		return s.watcher.wait(ctx, frameID, loaderID)
	}))
}

func (s *chromeSession) Metrics(ctx context.Context) ([]*performance.Metric, error) {
	var metrics []*performance.Metric
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		metrics, err = performance.GetMetrics().Do(ctx)
		return err
	}))
	return metrics, err
}

func (s *chromeSession) NavigationTiming(ctx context.Context) (models.NavigationTiming, error) {
	var timing models.NavigationTiming
	err := s.run(ctx, chromedp.Evaluate(navigationTimingScript, &timing))
	return timing, err
}

func (s *chromeSession) ResourceEntries(ctx context.Context) ([]models.ResourceEntry, error) {
	var entries []models.ResourceEntry
	err := s.run(ctx, chromedp.Evaluate(resourceEntriesScript, &entries))
	return entries, err
}

func (s *chromeSession) WebVitals(ctx context.Context) (models.WebVitals, error) {
	var vitals models.WebVitals
	err := s.run(ctx, chromedp.Evaluate(webVitalsScript, &vitals, awaitPromise))
	return vitals, err
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// abort releases the contexts without talking to the browser
func (s *chromeSession) abort() {
	s.closeOnce.Do(func() {
		s.cancelTask()
		s.cancelAlloc()
	})
}

// Close shuts the browser down gracefully, then releases the allocator which
// kills the process if it is still around.
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancelTask()
		s.cancelAlloc()
	})
	return s.closeErr
}
