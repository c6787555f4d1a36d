package tourguide

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkallio/tourguide/internal/persistence"
)

// EmbedOptions configures one widget embed on one page.
type EmbedOptions struct {
	// ClientID identifies the end user whose progress is tracked.
	ClientID string

	// Configuration runs a locally supplied definition. Leave nil to
	// fetch from the remote service instead.
	Configuration *Configuration

	// BaseURL, APIKey and ConfigurationID select the remote tour service.
	// Ignored when Configuration is set.
	BaseURL         string
	APIKey          string
	ConfigurationID string

	// AllowedRoutes restricts where the tour may run (see RouteAllowed).
	// Empty allows every route.
	AllowedRoutes []string

	// Position is the side tooltips try first: "top", "bottom", "left" or
	// "right". Empty or "auto" places them below the target.
	Position string

	// AutoStart starts the tour as soon as the embed is initialized.
	AutoStart bool

	// ManualActions stops step action pipelines from running
	// automatically; the host drives interactions itself.
	ManualActions bool

	// ActionDelay is an extra pause between consecutive actions.
	ActionDelay time.Duration

	// SyncDebounce is the coalescing window for remote progress pushes.
	// Zero selects the default.
	SyncDebounce time.Duration

	Observer Observer
	Logger   *slog.Logger

	// WaitTimeout bounds per-action element waits. Zero selects the
	// default.
	WaitTimeout time.Duration
}

// Widget bundles everything one embed needs: the engine for the page, the
// background progress syncer, and the route watcher.
//
// Typical usage:
//
//	page, err := tourguide.NewChromePage(ctx, tourguide.ChromeOptions{Headless: true})
//	...
//	w, err := tourguide.Embed(ctx, page, tourguide.EmbedOptions{
//	    ClientID:        "user-42",
//	    BaseURL:         "https://tours.example.com",
//	    APIKey:          apiKey,
//	    ConfigurationID: "onboarding",
//	})
//	...
//	defer w.Destroy()
//	err = w.Engine.Start(ctx)
type Widget struct {
	// Engine drives the tour on the embedded page.
	Engine Engine

	page    Page
	syncer  *persistence.Syncer
	watcher *RouteWatcher
	log     *slog.Logger
}

// Embed initializes a widget on a page.
//
// With a remote configuration, the fetch is fatal on failure
// (ErrConfigFetchFailed): a widget must not render without its definition.
// The server's progress copy wins over the local cache. Progress writes are
// pushed back in the background, debounced; push failures are logged and
// retried, never fatal.
func Embed(ctx context.Context, page Page, opts EmbedOptions) (*Widget, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("embed requires a client id")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	store := persistence.NewInMemoryStore()
	stores := persistence.Persistence{
		Configurations: store, Progress: store, Choices: store, Events: store,
	}

	var (
		cfg    *Configuration
		syncer *persistence.Syncer
	)
	switch {
	case opts.Configuration != nil:
		cfg = opts.Configuration
		if err := ValidateConfiguration(cfg); err != nil {
			return nil, err
		}

	case opts.BaseURL != "":
		remote := persistence.NewHTTPRemote(
			opts.BaseURL, opts.APIKey, opts.ClientID, opts.ConfigurationID, nil, log)
		fetched, err := persistence.LoadRemote(ctx, remote, stores, opts.ClientID)
		if err != nil {
			return nil, err
		}
		cfg = fetched
		syncer = persistence.NewSyncer(
			remote, stores.Progress, opts.ClientID, cfg.ID, opts.SyncDebounce, log)

	default:
		return nil, fmt.Errorf("embed requires a configuration or a remote base url")
	}

	onWrite := func() {}
	if syncer != nil {
		onWrite = syncer.Notify
	}

	engOpts := []Option{
		withStores(stores),
		withProgressWriteHook(onWrite),
		WithObserver(opts.Observer),
		WithLogger(log),
		WithWaitTimeout(opts.WaitTimeout),
		WithTooltipPosition(opts.Position),
		WithActionDelay(opts.ActionDelay),
	}
	if opts.ManualActions {
		engOpts = append(engOpts, WithManualActions())
	}
	eng, err := newEngine(cfg, opts.ClientID, page, engOpts...)
	if err != nil {
		if syncer != nil {
			syncer.Close()
		}
		return nil, err
	}

	w := &Widget{
		Engine: eng,
		page:   page,
		syncer: syncer,
		log:    log,
	}
	if opts.AutoStart {
		if err := eng.Start(ctx); err != nil {
			w.Destroy()
			return nil, err
		}
	}
	// The watcher starts after AutoStart so its initial route check pauses
	// a tour auto-started on a disallowed route.
	if len(opts.AllowedRoutes) > 0 {
		w.watcher = NewRouteWatcher(page, eng, opts.AllowedRoutes, log)
	}
	return w, nil
}

// Destroy tears the embed down: stops the route watcher, destroys the
// engine (removing the overlay), and flushes any pending progress push.
// Safe to call more than once.
func (w *Widget) Destroy() {
	if w.watcher != nil {
		w.watcher.Stop()
		w.watcher = nil
	}
	w.Engine.Destroy()
	if w.syncer != nil {
		w.syncer.Close()
		w.syncer = nil
	}
}
