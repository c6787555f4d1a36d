package tourguide

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jkallio/tourguide/pkg/api"
)

// RouteAllowed reports whether a page URL is inside the embed's allowed
// routes. An empty allow list allows everything. Patterns are matched
// against the URL path: either exactly ("/app/settings") or as a prefix
// with a trailing wildcard ("/app/*").
func RouteAllowed(pageURL string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	path := pageURL
	if u, err := url.Parse(pageURL); err == nil && u.Path != "" {
		path = u.Path
	}

	for _, pattern := range allowed {
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
			continue
		}
		if path == pattern {
			return true
		}
	}
	return false
}

// RouteWatcher pauses a tour when the page leaves the allowed routes and
// resumes it when the page comes back. It re-evaluates on every page
// mutation notification, which includes navigations.
type RouteWatcher struct {
	page    Page
	eng     Engine
	allowed []string
	log     *slog.Logger

	mu            sync.Mutex
	pausedByRoute bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRouteWatcher starts watching. Stop it with Stop.
func NewRouteWatcher(page Page, eng Engine, allowed []string, log *slog.Logger) *RouteWatcher {
	if log == nil {
		log = slog.Default()
	}
	w := &RouteWatcher{
		page:    page,
		eng:     eng,
		allowed: allowed,
		log:     log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

// Stop tears the watcher down and waits for its goroutine to exit.
func (w *RouteWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *RouteWatcher) loop() {
	defer close(w.done)

	changes, cancel := w.page.Subscribe()
	defer cancel()

	w.evaluate()
	for {
		select {
		case <-w.stop:
			return
		case <-changes:
			w.evaluate()
		}
	}
}

// evaluate pauses or resumes based on the current URL. Only a pause this
// watcher itself performed is undone by it; a user-initiated pause stays.
func (w *RouteWatcher) evaluate() {
	w.mu.Lock()
	defer w.mu.Unlock()

	allowed := RouteAllowed(w.page.URL(), w.allowed)
	switch {
	case !allowed && w.eng.State() == api.StateRunning:
		if err := w.eng.Pause(); err == nil {
			w.pausedByRoute = true
			w.log.Debug("tour paused off-route", slog.String("url", w.page.URL()))
		}

	case allowed && w.pausedByRoute && w.eng.State() == api.StatePaused:
		ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.eng.Resume(ctx); err == nil {
			w.pausedByRoute = false
			w.log.Debug("tour resumed on-route", slog.String("url", w.page.URL()))
		}
		cancelCtx()
	}
}
