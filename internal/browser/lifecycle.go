package browser

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
)

// lifecycleInit is emitted when a new document starts loading in a frame
const lifecycleInit = "init"

// lifecycleWatcher records page lifecycle events so a navigation can wait for
// its own document to reach the idle event. Events may arrive before the
// caller knows which frame and loader it navigated, so they are buffered.
type lifecycleWatcher struct {
	idleEvent string

	mu     sync.Mutex
	events []page.EventLifecycleEvent
	notify chan struct{}
}

func newLifecycleWatcher(idleEvent string) *lifecycleWatcher {
	return &lifecycleWatcher{
		idleEvent: idleEvent,
		notify:    make(chan struct{}, 1),
	}
}

// observe is installed as a chromedp target listener
func (w *lifecycleWatcher) observe(ev interface{}) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok {
		return
	}

	w.mu.Lock()
	w.events = append(w.events, *e)
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// settled reports whether the idle event has fired for the navigated document
// in frame, or for a document that replaced it after the navigation started.
func (w *lifecycleWatcher) settled(frame cdp.FrameID, loader cdp.LoaderID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	loaders := map[cdp.LoaderID]bool{loader: true}
	started := false
	for _, e := range w.events {
		if e.FrameID != frame {
			continue
		}
		if e.LoaderID == loader {
			started = true
		}
		switch {
		case e.Name == lifecycleInit && started:
			loaders[e.LoaderID] = true
		case e.Name == w.idleEvent && loaders[e.LoaderID]:
			return true
		}
	}
	return false
}

// wait blocks until the navigated document settles or ctx is done
func (w *lifecycleWatcher) wait(ctx context.Context, frame cdp.FrameID, loader cdp.LoaderID) error {
	for {
		if w.settled(frame, loader) {
			return nil
		}
		select {
		case <-w.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
