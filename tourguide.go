package tourguide

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jkallio/tourguide/internal/dom"
	"github.com/jkallio/tourguide/internal/engine"
	"github.com/jkallio/tourguide/internal/persistence"
	"github.com/jkallio/tourguide/internal/render"
	"github.com/jkallio/tourguide/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Configuration        = api.Configuration
	Step                 = api.Step
	Action               = api.Action
	Branch               = api.Branch
	Theme                = api.Theme
	ThemeOverride        = api.ThemeOverride
	TourState            = api.TourState
	ProgressStatus       = api.ProgressStatus
	ProgressEntry        = api.ProgressEntry
	ProgressMap          = api.ProgressMap
	BranchChoice         = api.BranchChoice
	Summary              = api.Summary
	StepVisibility       = api.StepVisibility
	TourEvent            = api.TourEvent
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Page is the document a tour runs against. ChromePage (NewChromePage)
// drives a live browser tab; NewMemPage builds an in-memory document for
// tests and tooling.
type Page = dom.Page

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	DefaultTheme         = api.DefaultTheme
	NewMemPage           = dom.NewMemPage
)

// ChromeOptions tunes browser startup for NewChromePage.
type ChromeOptions = dom.ChromeOptions

// NewChromePage starts a Chrome tab and returns a Page driving it. Close it
// with its Close method when the embed is torn down.
var NewChromePage = dom.NewChromePage

// Re-export enum values for convenience.

const (
	StateIdle      = api.StateIdle
	StateRunning   = api.StateRunning
	StatePaused    = api.StatePaused
	StateCompleted = api.StateCompleted

	StatusPending   = api.StatusPending
	StatusCompleted = api.StatusCompleted
	StatusSkipped   = api.StatusSkipped

	TargetPage  = api.TargetPage
	TargetModal = api.TargetModal

	ActionClick     = api.ActionClick
	ActionInput     = api.ActionInput
	ActionScroll    = api.ActionScroll
	ActionWait      = api.ActionWait
	ActionHighlight = api.ActionHighlight
	ActionOpenModal = api.ActionOpenModal
	ActionRedirect  = api.ActionRedirect

	ConditionClick    = api.ConditionClick
	ConditionSelector = api.ConditionSelector
	ConditionCustom   = api.ConditionCustom
)

// Option customizes engine construction.
type Option func(*options)

type options struct {
	observer    Observer
	logger      *slog.Logger
	waitTimeout time.Duration
	actionDelay time.Duration
	position    string
	noActions   bool
	onWrite     func()
	stores      *persistence.Persistence
	noOverlay   bool
}

// WithObserver attaches an Observer to the engine.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the slog logger used by the engine and overlay.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithWaitTimeout bounds per-action element waits.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) { o.waitTimeout = d }
}

// WithoutOverlay disables overlay rendering; the engine still runs actions
// and tracks progress. Useful for headless progress replays.
func WithoutOverlay() Option {
	return func(o *options) { o.noOverlay = true }
}

// WithTooltipPosition sets the side tooltips try first: "top", "bottom",
// "left" or "right". Empty or "auto" places them below the target.
func WithTooltipPosition(pos string) Option {
	return func(o *options) { o.position = pos }
}

// WithActionDelay inserts an extra pause between consecutive actions of a
// step's pipeline.
func WithActionDelay(d time.Duration) Option {
	return func(o *options) { o.actionDelay = d }
}

// WithManualActions stops the engine from running step action pipelines
// automatically. Steps still render; the host drives interactions itself.
func WithManualActions() Option {
	return func(o *options) { o.noActions = true }
}

func withStores(p persistence.Persistence) Option {
	return func(o *options) { o.stores = &p }
}

func withProgressWriteHook(fn func()) Option {
	return func(o *options) { o.onWrite = fn }
}

// NewEngine returns an Engine for one (client, configuration) pair backed
// entirely by in-memory stores. Progress does not survive the process.
func NewEngine(cfg *Configuration, clientID string, page Page, opts ...Option) (Engine, error) {
	store := persistence.NewInMemoryStore()
	all := append([]Option{withStores(persistence.Persistence{
		Configurations: store, Progress: store, Choices: store, Events: store,
	})}, opts...)
	return newEngine(cfg, clientID, page, all...)
}

// NewSQLiteEngine returns an Engine that caches progress, branch choices
// and tour history in a SQLite database. The caller owns db and must import
// a SQLite driver (for example, "modernc.org/sqlite").
func NewSQLiteEngine(cfg *Configuration, clientID string, page Page, db *sql.DB, opts ...Option) (Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	all := append([]Option{withStores(persistence.Persistence{
		Configurations: store, Progress: store, Choices: store, Events: store,
	})}, opts...)
	return newEngine(cfg, clientID, page, all...)
}

func newEngine(cfg *Configuration, clientID string, page Page, opts ...Option) (Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var overlay *render.Overlay
	if !o.noOverlay {
		overlay = render.NewOverlay(page, o.logger)
		if o.position != "" && o.position != "auto" {
			overlay.PreferredSide = render.Side(o.position)
		}
	}
	return engine.NewTour(cfg, clientID, engine.Options{
		Page:            page,
		Overlay:         overlay,
		Stores:          *o.stores,
		Observer:        o.observer,
		Logger:          o.logger,
		WaitTimeout:     o.waitTimeout,
		ActionDelay:     o.actionDelay,
		DisableActions:  o.noActions,
		OnProgressWrite: o.onWrite,
	})
}

// Convenience helpers that just forward to the underlying Engine.

// Start starts (or resumes) the tour on its first pending step.
func Start(ctx context.Context, eng Engine) error { return eng.Start(ctx) }

// Complete marks the current step completed and advances.
func Complete(ctx context.Context, eng Engine) error { return eng.Complete(ctx) }

// Skip marks the current step skipped and advances.
func Skip(ctx context.Context, eng Engine) error { return eng.Skip(ctx) }

// Progress returns the persisted progress for the engine's client.
func Progress(ctx context.Context, eng Engine) (ProgressMap, error) { return eng.Progress(ctx) }
