package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives callbacks from the tour engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay tour execution.
type Observer interface {
	// OnTourStart is called once when a tour instance starts running,
	// before the first step is entered.
	OnTourStart(ctx context.Context, cfg *Configuration, clientID string)

	// OnStepChange is called whenever the current step changes, including
	// the initial entry into the first step. fromIndex is -1 on entry.
	OnStepChange(ctx context.Context, step Step, fromIndex, toIndex int)

	// OnStepCompleted / OnStepSkipped are called after progress is
	// recorded for the step, before advancement.
	OnStepCompleted(ctx context.Context, step Step)
	OnStepSkipped(ctx context.Context, step Step)

	// OnActionStart is called before each action in a step's pipeline.
	OnActionStart(ctx context.Context, step Step, action Action, actionIndex int)

	// OnActionError is called when an action fails. The failure is
	// tolerated; the pipeline continues with the next action.
	OnActionError(ctx context.Context, step Step, action Action, err error)

	// OnBranchResolved is called when a branch point resolves, whether by
	// a freshly matched condition or by replaying a recorded choice.
	OnBranchResolved(ctx context.Context, step Step, branch Branch, replayed bool)

	// OnTourCompleted is called when the tour transitions to completed.
	OnTourCompleted(ctx context.Context, cfg *Configuration, clientID string, summary Summary)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnTourStart(ctx context.Context, cfg *Configuration, clientID string) {}
func (NoopObserver) OnStepChange(ctx context.Context, step Step, fromIndex, toIndex int)  {}
func (NoopObserver) OnStepCompleted(ctx context.Context, step Step)                       {}
func (NoopObserver) OnStepSkipped(ctx context.Context, step Step)                         {}
func (NoopObserver) OnActionStart(ctx context.Context, step Step, action Action, i int)   {}
func (NoopObserver) OnActionError(ctx context.Context, step Step, action Action, err error) {
}
func (NoopObserver) OnBranchResolved(ctx context.Context, step Step, branch Branch, replayed bool) {
}
func (NoopObserver) OnTourCompleted(ctx context.Context, cfg *Configuration, clientID string, s Summary) {
}

// CompositeObserver fans out events to multiple observers. A panic in one
// observer is recovered so the remaining observers are still notified.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) each(fn func(o Observer)) {
	for _, o := range c.observers {
		func() {
			defer func() { _ = recover() }()
			fn(o)
		}()
	}
}

func (c *CompositeObserver) OnTourStart(ctx context.Context, cfg *Configuration, clientID string) {
	c.each(func(o Observer) { o.OnTourStart(ctx, cfg, clientID) })
}

func (c *CompositeObserver) OnStepChange(ctx context.Context, step Step, fromIndex, toIndex int) {
	c.each(func(o Observer) { o.OnStepChange(ctx, step, fromIndex, toIndex) })
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, step Step) {
	c.each(func(o Observer) { o.OnStepCompleted(ctx, step) })
}

func (c *CompositeObserver) OnStepSkipped(ctx context.Context, step Step) {
	c.each(func(o Observer) { o.OnStepSkipped(ctx, step) })
}

func (c *CompositeObserver) OnActionStart(ctx context.Context, step Step, action Action, i int) {
	c.each(func(o Observer) { o.OnActionStart(ctx, step, action, i) })
}

func (c *CompositeObserver) OnActionError(ctx context.Context, step Step, action Action, err error) {
	c.each(func(o Observer) { o.OnActionError(ctx, step, action, err) })
}

func (c *CompositeObserver) OnBranchResolved(ctx context.Context, step Step, branch Branch, replayed bool) {
	c.each(func(o Observer) { o.OnBranchResolved(ctx, step, branch, replayed) })
}

func (c *CompositeObserver) OnTourCompleted(ctx context.Context, cfg *Configuration, clientID string, s Summary) {
	c.each(func(o Observer) { o.OnTourCompleted(ctx, cfg, clientID, s) })
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs tour / step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnTourStart(ctx context.Context, cfg *Configuration, clientID string) {
	o.Logger.InfoContext(ctx, "tour_start",
		slog.String("configuration", cfg.ID),
		slog.String("client_id", clientID),
	)
}

func (o *LoggingObserver) OnStepChange(ctx context.Context, step Step, fromIndex, toIndex int) {
	o.Logger.DebugContext(ctx, "step_change",
		slog.String("step", step.ID),
		slog.Int("from", fromIndex),
		slog.Int("to", toIndex),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, step Step) {
	o.Logger.InfoContext(ctx, "step_completed", slog.String("step", step.ID))
}

func (o *LoggingObserver) OnStepSkipped(ctx context.Context, step Step) {
	o.Logger.InfoContext(ctx, "step_skipped", slog.String("step", step.ID))
}

func (o *LoggingObserver) OnActionStart(ctx context.Context, step Step, action Action, i int) {
	o.Logger.DebugContext(ctx, "action_start",
		slog.String("step", step.ID),
		slog.String("action", string(action.Type)),
		slog.Int("action_index", i),
	)
}

func (o *LoggingObserver) OnActionError(ctx context.Context, step Step, action Action, err error) {
	o.Logger.WarnContext(ctx, "action_error",
		slog.String("step", step.ID),
		slog.String("action", string(action.Type)),
		slog.String("selector", action.Selector),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnBranchResolved(ctx context.Context, step Step, branch Branch, replayed bool) {
	o.Logger.InfoContext(ctx, "branch_resolved",
		slog.String("step", step.ID),
		slog.String("branch", branch.ID),
		slog.Bool("replayed", replayed),
	)
}

func (o *LoggingObserver) OnTourCompleted(ctx context.Context, cfg *Configuration, clientID string, s Summary) {
	o.Logger.InfoContext(ctx, "tour_completed",
		slog.String("configuration", cfg.ID),
		slog.String("client_id", clientID),
		slog.Int("completed", s.Completed),
		slog.Int("total", s.Total),
		slog.Int("percentage", s.Percentage),
	)
}

// BasicMetrics collects simple counters for tour and action outcomes.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	toursStarted   atomic.Int64
	toursCompleted atomic.Int64
	stepsCompleted atomic.Int64
	stepsSkipped   atomic.Int64
	actionsStarted atomic.Int64
	actionErrors   atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	ToursStarted   int64
	ToursCompleted int64
	StepsCompleted int64
	StepsSkipped   int64
	ActionsStarted int64
	ActionErrors   int64
}

func (m *BasicMetrics) OnTourStart(ctx context.Context, cfg *Configuration, clientID string) {
	m.toursStarted.Add(1)
}

func (m *BasicMetrics) OnTourCompleted(ctx context.Context, cfg *Configuration, clientID string, s Summary) {
	m.toursCompleted.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, step Step) {
	m.stepsCompleted.Add(1)
}

func (m *BasicMetrics) OnStepSkipped(ctx context.Context, step Step) {
	m.stepsSkipped.Add(1)
}

func (m *BasicMetrics) OnActionStart(ctx context.Context, step Step, action Action, i int) {
	m.actionsStarted.Add(1)
}

func (m *BasicMetrics) OnActionError(ctx context.Context, step Step, action Action, err error) {
	m.actionErrors.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	return BasicMetricsSnapshot{
		ToursStarted:   m.toursStarted.Load(),
		ToursCompleted: m.toursCompleted.Load(),
		StepsCompleted: m.stepsCompleted.Load(),
		StepsSkipped:   m.stepsSkipped.Load(),
		ActionsStarted: m.actionsStarted.Load(),
		ActionErrors:   m.actionErrors.Load(),
	}
}
