// Package engine contains the tour state machine and the action executor.
//
// A Tour drives one (client, configuration) pair: it positions on steps,
// runs each step's action pipeline, resolves branch points, and records
// progress through the persistence stores before any advancement.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/expr-lang/expr/vm"

	"github.com/jkallio/tourguide/internal/dom"
	"github.com/jkallio/tourguide/internal/persistence"
	"github.com/jkallio/tourguide/internal/render"
	"github.com/jkallio/tourguide/pkg/api"
)

// Options configures a Tour instance.
type Options struct {
	Page     dom.Page
	Overlay  *render.Overlay
	Stores   persistence.Persistence
	Observer api.Observer
	Logger   *slog.Logger

	// WaitTimeout bounds per-action element waits. Zero means default.
	WaitTimeout time.Duration

	// ActionDelay is an extra pause inserted between consecutive actions
	// of a step's pipeline.
	ActionDelay time.Duration

	// DisableActions skips the automatic action pipeline on step entry.
	// The step is still rendered; the host drives interactions itself.
	DisableActions bool

	// OnProgressWrite, when set, is called after every local progress or
	// choice write. The remote syncer hooks in here to schedule a push.
	OnProgressWrite func()
}

// Tour is the concrete api.Engine implementation.
type Tour struct {
	cfg      *api.Configuration
	clientID string

	page      dom.Page
	overlay   *render.Overlay
	exec      *Executor
	noActions bool
	stores    persistence.Persistence
	obs       api.Observer
	log       *slog.Logger
	onWrite   func()

	mu        sync.Mutex
	state     api.TourState
	index     int // -1 when not positioned on a step
	progress  api.ProgressMap
	choices   map[string]api.BranchChoice
	signals   map[string]any
	clicks    map[string]bool
	programs  map[string]*vm.Program
	runCancel context.CancelFunc
	runDone   chan struct{}
	destroyed bool
}

var _ api.Engine = (*Tour)(nil)

// NewTour creates an idle tour instance for one client. The configuration's
// steps are sorted by order; cfg must have at least one step.
func NewTour(cfg *api.Configuration, clientID string, opts Options) (*Tour, error) {
	if cfg == nil || len(cfg.Steps) == 0 {
		return nil, fmt.Errorf("configuration must have at least one step")
	}
	if opts.Page == nil {
		return nil, fmt.Errorf("a page is required")
	}
	if opts.Stores.Progress == nil || opts.Stores.Choices == nil {
		return nil, fmt.Errorf("progress and choice stores are required")
	}
	cfg.SortSteps()

	obs := opts.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Stores.Events == nil {
		opts.Stores.Events = persistence.NoopEventStore{}
	}
	onWrite := opts.OnProgressWrite
	if onWrite == nil {
		onWrite = func() {}
	}

	return &Tour{
		cfg:       cfg,
		clientID:  clientID,
		page:      opts.Page,
		overlay:   opts.Overlay,
		exec:      NewExecutor(opts.Page, opts.Overlay, obs, log, opts.WaitTimeout, opts.ActionDelay),
		noActions: opts.DisableActions,
		stores:    opts.Stores,
		obs:       obs,
		log:       log.With(slog.String("configuration", cfg.ID), slog.String("client_id", clientID)),
		onWrite:   onWrite,
		state:     api.StateIdle,
		index:     -1,
		progress:  make(api.ProgressMap),
		choices:   make(map[string]api.BranchChoice),
		signals:   make(map[string]any),
		clicks:    make(map[string]bool),
		programs:  make(map[string]*vm.Program),
	}, nil
}

func (t *Tour) Configuration() *api.Configuration { return t.cfg }

func (t *Tour) State() api.TourState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tour) Current() (api.Step, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index < 0 || t.index >= len(t.cfg.Steps) {
		return api.Step{}, false
	}
	return t.cfg.Steps[t.index], true
}

// Start loads persisted progress and enters the first pending step. A tour
// whose steps are all completed or skipped transitions straight to
// completed.
func (t *Tour) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return api.ErrTourDestroyed
	}
	if t.state != api.StateIdle {
		return fmt.Errorf("%w: start from %s", api.ErrInvalidState, t.state)
	}

	progress, err := t.stores.Progress.LoadProgress(ctx, t.clientID, t.cfg.ID)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	choices, err := t.stores.Choices.LoadChoices(ctx, t.clientID, t.cfg.ID)
	if err != nil {
		return fmt.Errorf("load choices: %w", err)
	}
	t.progress = progress
	t.choices = choices

	t.state = api.StateRunning
	t.obs.OnTourStart(ctx, t.cfg, t.clientID)
	t.appendEvent(ctx, api.EventTourStarted, "", -1, "")

	start := t.firstPendingIndex()
	if start < 0 {
		return t.completeTour(ctx)
	}
	t.enterStep(ctx, start)
	return nil
}

// firstPendingIndex returns the index of the first step with no recorded
// completed/skipped status, or -1 when every step is done.
func (t *Tour) firstPendingIndex() int {
	for i, st := range t.cfg.Steps {
		e, ok := t.progress[st.ID]
		if !ok || e.Status == api.StatusPending {
			return i
		}
	}
	return -1
}

func (t *Tour) Pause() error {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return api.ErrTourDestroyed
	}
	if t.state != api.StateRunning {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: pause from %s", api.ErrInvalidState, state)
	}
	t.cancelRun()
	t.state = api.StatePaused
	done := t.runDone
	t.mu.Unlock()

	if done != nil {
		<-done
	}

	// A paused tour must leave nothing on the page; Resume re-enters the
	// step and re-renders.
	if t.overlay != nil {
		clearCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := t.overlay.Clear(clearCtx); err != nil {
			t.log.Debug("overlay clear failed", slog.Any("error", err))
		}
	}
	return nil
}

func (t *Tour) Resume(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return api.ErrTourDestroyed
	}
	if t.state != api.StatePaused {
		return fmt.Errorf("%w: resume from %s", api.ErrInvalidState, t.state)
	}
	t.state = api.StateRunning
	if t.index >= 0 {
		t.enterStep(ctx, t.index)
	}
	return nil
}

// Complete records the current step as completed and advances.
func (t *Tour) Complete(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	step, err := t.currentForProgress()
	if err != nil {
		return err
	}

	now := time.Now()
	if err := t.writeProgress(ctx, api.ProgressEntry{
		ClientID:        t.clientID,
		ConfigurationID: t.cfg.ID,
		StepID:          step.ID,
		Status:          api.StatusCompleted,
		CompletedAt:     &now,
	}); err != nil {
		return err
	}
	t.obs.OnStepCompleted(ctx, step)
	t.appendEvent(ctx, api.EventStepCompleted, step.ID, t.index, "")

	return t.advanceLocked(ctx)
}

// Skip records the current step as skipped and advances. Required steps
// cannot be skipped.
func (t *Tour) Skip(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	step, err := t.currentForProgress()
	if err != nil {
		return err
	}
	if step.IsRequired {
		return fmt.Errorf("%w: %s", api.ErrStepRequired, step.ID)
	}

	now := time.Now()
	if err := t.writeProgress(ctx, api.ProgressEntry{
		ClientID:        t.clientID,
		ConfigurationID: t.cfg.ID,
		StepID:          step.ID,
		Status:          api.StatusSkipped,
		SkippedAt:       &now,
	}); err != nil {
		return err
	}
	t.obs.OnStepSkipped(ctx, step)
	t.appendEvent(ctx, api.EventStepSkipped, step.ID, t.index, "")

	return t.advanceLocked(ctx)
}

// Advance moves to the next step without touching the current step's
// progress.
func (t *Tour) Advance(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.currentForProgress(); err != nil {
		return err
	}
	return t.advanceLocked(ctx)
}

func (t *Tour) currentForProgress() (api.Step, error) {
	if t.destroyed {
		return api.Step{}, api.ErrTourDestroyed
	}
	if t.state != api.StateRunning && t.state != api.StatePaused {
		return api.Step{}, fmt.Errorf("%w: tour is %s", api.ErrInvalidState, t.state)
	}
	if t.index < 0 || t.index >= len(t.cfg.Steps) {
		return api.Step{}, fmt.Errorf("%w: no current step", api.ErrInvalidState)
	}
	return t.cfg.Steps[t.index], nil
}

func (t *Tour) writeProgress(ctx context.Context, e api.ProgressEntry) error {
	if err := t.stores.Progress.SaveProgress(ctx, e); err != nil {
		return fmt.Errorf("save progress for step %s: %w", e.StepID, err)
	}
	t.progress[e.StepID] = e
	t.onWrite()
	return nil
}

// advanceLocked resolves the next step: branch rules first, then the step's
// default next, then the next by order. Falling off the end completes the
// tour. Caller holds t.mu.
func (t *Tour) advanceLocked(ctx context.Context) error {
	step := t.cfg.Steps[t.index]

	if step.IsBranchPoint {
		next, matched, err := t.resolveBranch(ctx, step)
		if err != nil {
			return err
		}
		if matched {
			if next < 0 {
				// Matched branch with no target: stay in place.
				return nil
			}
			t.enterStep(ctx, next)
			return nil
		}
	}

	if step.DefaultNextStepID != "" {
		if idx := t.cfg.StepIndex(step.DefaultNextStepID); idx >= 0 {
			t.enterStep(ctx, idx)
			return nil
		}
		// Dangling default target behaves like "no match": fall through
		// to the ordinal successor.
		t.log.Warn("default next step does not exist, falling through",
			slog.String("step", step.ID),
			slog.String("default_next", step.DefaultNextStepID),
		)
	}

	if t.index+1 < len(t.cfg.Steps) {
		t.enterStep(ctx, t.index+1)
		return nil
	}
	return t.completeTour(ctx)
}

// resolveBranch picks the outgoing edge for a branch point. A recorded
// choice replays idempotently; otherwise conditions are evaluated in branch
// order and the first satisfied rule with a valid target wins and is
// recorded. Returns (nextIndex, matched); nextIndex is -1 for a matched
// no-op branch.
func (t *Tour) resolveBranch(ctx context.Context, step api.Step) (int, bool, error) {
	if prior, ok := t.choices[step.ID]; ok {
		for _, b := range step.Branches {
			if b.ID != prior.BranchID {
				continue
			}
			t.obs.OnBranchResolved(ctx, step, b, true)
			if b.NextStepID == "" {
				return -1, true, nil
			}
			if idx := t.cfg.StepIndex(b.NextStepID); idx >= 0 {
				return idx, true, nil
			}
			// Recorded target no longer exists; re-evaluate below.
			t.log.Warn("recorded branch target gone, re-evaluating",
				slog.String("step", step.ID), slog.String("branch", b.ID))
			break
		}
	}

	env := t.conditionEnvLocked()
	for _, b := range step.Branches {
		ok, err := t.evalCondition(b, env)
		if err != nil {
			t.log.Warn("branch condition failed, trying next rule",
				slog.String("step", step.ID),
				slog.String("branch", b.ID),
				slog.Any("error", err),
			)
			continue
		}
		if !ok {
			continue
		}
		if b.NextStepID != "" && t.cfg.StepIndex(b.NextStepID) < 0 {
			// Dangling target: treat the rule as unmatched.
			t.log.Warn("branch target does not exist, trying next rule",
				slog.String("step", step.ID),
				slog.String("branch", b.ID),
				slog.String("target", b.NextStepID),
			)
			continue
		}

		choice := api.BranchChoice{
			ClientID:        t.clientID,
			ConfigurationID: t.cfg.ID,
			StepID:          step.ID,
			BranchID:        b.ID,
			ChosenAt:        time.Now(),
		}
		if err := t.stores.Choices.SaveChoice(ctx, choice); err != nil {
			return 0, false, fmt.Errorf("save branch choice: %w", err)
		}
		t.choices[step.ID] = choice
		t.onWrite()

		t.obs.OnBranchResolved(ctx, step, b, false)
		t.appendEvent(ctx, api.EventBranchResolved, step.ID, t.index, b.ID)

		if b.NextStepID == "" {
			return -1, true, nil
		}
		return t.cfg.StepIndex(b.NextStepID), true, nil
	}
	return 0, false, nil
}

func (t *Tour) conditionEnvLocked() conditionEnv {
	progress := make(map[string]string, len(t.progress))
	for id, e := range t.progress {
		progress[id] = string(e.Status)
	}
	choices := make(map[string]string, len(t.choices))
	for id, c := range t.choices {
		choices[id] = c.BranchID
	}
	signals := make(map[string]any, len(t.signals))
	for k, v := range t.signals {
		signals[k] = v
	}
	clicks := make(map[string]bool, len(t.clicks))
	for k, v := range t.clicks {
		clicks[k] = v
	}
	return conditionEnv{
		progress: progress,
		choices:  choices,
		signals:  signals,
		clicks:   clicks,
		url:      t.page.URL(),
	}
}

// GoTo jumps to the step at index. Intervening steps keep their status.
func (t *Tour) GoTo(ctx context.Context, index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return api.ErrTourDestroyed
	}
	if t.state != api.StateRunning && t.state != api.StatePaused {
		return fmt.Errorf("%w: tour is %s", api.ErrInvalidState, t.state)
	}
	if index < 0 || index >= len(t.cfg.Steps) {
		return fmt.Errorf("step index %d out of range [0, %d)", index, len(t.cfg.Steps))
	}
	t.enterStep(ctx, index)
	return nil
}

// Reset clears progress and choices for steps at or after fromIndex (all
// steps when fromIndex <= 0) and repositions there.
func (t *Tour) Reset(ctx context.Context, fromIndex int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return api.ErrTourDestroyed
	}
	if fromIndex < 0 {
		fromIndex = 0
	}
	if fromIndex >= len(t.cfg.Steps) {
		return fmt.Errorf("step index %d out of range [0, %d)", fromIndex, len(t.cfg.Steps))
	}

	var stepIDs []string // nil means "everything for the pair"
	if fromIndex > 0 {
		for _, st := range t.cfg.Steps[fromIndex:] {
			stepIDs = append(stepIDs, st.ID)
		}
	}
	if err := t.stores.Progress.ResetProgress(ctx, t.clientID, t.cfg.ID, stepIDs); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	if err := t.stores.Choices.DeleteChoices(ctx, t.clientID, t.cfg.ID, stepIDs); err != nil {
		return fmt.Errorf("reset choices: %w", err)
	}

	if fromIndex == 0 {
		t.progress = make(api.ProgressMap)
		t.choices = make(map[string]api.BranchChoice)
	} else {
		for _, st := range t.cfg.Steps[fromIndex:] {
			delete(t.progress, st.ID)
			delete(t.choices, st.ID)
		}
	}
	t.onWrite()
	t.appendEvent(ctx, api.EventTourReset, "", fromIndex, "")

	if t.state == api.StateCompleted || t.state == api.StateIdle {
		t.state = api.StateRunning
	}
	t.enterStep(ctx, fromIndex)
	return nil
}

// Signal supplies a named value for custom branch conditions.
func (t *Tour) Signal(name string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signals[name] = value
}

// RecordClick notes a user interaction with the given selector so
// click-type branch conditions can match it.
func (t *Tour) RecordClick(selector string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clicks[selector] = true
}

func (t *Tour) Progress(ctx context.Context) (api.ProgressMap, error) {
	t.mu.Lock()
	destroyed := t.destroyed
	t.mu.Unlock()
	if destroyed {
		return nil, api.ErrTourDestroyed
	}
	return t.stores.Progress.LoadProgress(ctx, t.clientID, t.cfg.ID)
}

func (t *Tour) Summary(ctx context.Context) (api.Summary, error) {
	progress, err := t.Progress(ctx)
	if err != nil {
		return api.Summary{}, err
	}
	return Summarize(t.cfg, progress), nil
}

func (t *Tour) VisibleSteps(ctx context.Context) ([]api.StepVisibility, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return nil, api.ErrTourDestroyed
	}
	return ProjectVisibility(t.cfg, t.progress, t.choices), nil
}

// Destroy cancels any active action run, removes the overlay and makes the
// instance permanently unusable.
func (t *Tour) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	t.cancelRun()
	done := t.runDone
	t.mu.Unlock()

	if done != nil {
		<-done
	}
	if t.overlay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := t.overlay.Clear(ctx); err != nil {
			t.log.Debug("overlay clear on destroy failed", slog.Any("error", err))
		}
	}
	t.onWrite()
}

// enterStep repositions on the step at index and kicks off its render and
// action pipeline. At most one pipeline runs per instance: entering a step
// cancels the previous run. Caller holds t.mu.
func (t *Tour) enterStep(ctx context.Context, index int) {
	from := t.index
	t.index = index
	step := t.cfg.Steps[index]

	t.obs.OnStepChange(ctx, step, from, index)
	t.appendEvent(ctx, api.EventStepChanged, step.ID, index, "")

	if t.state != api.StateRunning {
		return
	}

	t.cancelRun()
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.runCancel = cancel
	t.runDone = done

	theme := t.cfg.EffectiveTheme(step)
	go func() {
		defer close(done)
		t.runStep(runCtx, step, theme)
	}()
}

// runStep renders the step and executes its actions. Never holds t.mu.
func (t *Tour) runStep(ctx context.Context, step api.Step, theme api.Theme) {
	if step.TargetType == api.TargetPage && step.TargetSelector != "" {
		if err := dom.Locate(ctx, t.page, step.TargetSelector, t.exec.waitTimeout); err != nil {
			if ctx.Err() == nil {
				t.obs.OnActionError(ctx, step, api.Action{}, err)
				t.log.Warn("step target not found",
					slog.String("step", step.ID),
					slog.String("selector", step.TargetSelector),
				)
			}
			return
		}
	}

	if t.overlay != nil {
		if err := t.overlay.ShowStep(ctx, step, theme); err != nil && ctx.Err() == nil {
			t.log.Warn("step render failed",
				slog.String("step", step.ID), slog.Any("error", err))
		}
	}

	if t.noActions {
		return
	}
	if err := t.exec.Run(ctx, step, theme); err != nil && ctx.Err() == nil {
		t.log.Warn("action pipeline aborted",
			slog.String("step", step.ID), slog.Any("error", err))
	}
}

func (t *Tour) cancelRun() {
	if t.runCancel != nil {
		t.runCancel()
		t.runCancel = nil
	}
}

// completeTour transitions to completed. Caller holds t.mu.
func (t *Tour) completeTour(ctx context.Context) error {
	t.cancelRun()
	t.index = -1
	t.state = api.StateCompleted

	summary := Summarize(t.cfg, t.progress)
	t.obs.OnTourCompleted(ctx, t.cfg, t.clientID, summary)
	t.appendEvent(ctx, api.EventTourCompleted, "", -1, "")

	if t.overlay != nil {
		if err := t.overlay.Clear(ctx); err != nil {
			t.log.Debug("overlay clear failed", slog.Any("error", err))
		}
	}
	return nil
}

// appendEvent writes to the audit history, best effort.
func (t *Tour) appendEvent(ctx context.Context, typ api.EventType, stepID string, index int, detail string) {
	err := t.stores.Events.AppendEvent(ctx, api.TourEvent{
		ClientID:        t.clientID,
		ConfigurationID: t.cfg.ID,
		At:              time.Now(),
		Type:            typ,
		StepID:          stepID,
		StepIndex:       index,
		Detail:          detail,
	})
	if err != nil {
		t.log.Debug("event append failed", slog.String("type", string(typ)), slog.Any("error", err))
	}
}
