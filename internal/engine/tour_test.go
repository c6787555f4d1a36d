package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jkallio/tourguide/internal/dom"
	"github.com/jkallio/tourguide/internal/persistence"
	"github.com/jkallio/tourguide/internal/render"
	"github.com/jkallio/tourguide/pkg/api"
)

// recordingObserver captures callback invocations for assertions.
type recordingObserver struct {
	api.NoopObserver

	mu         sync.Mutex
	changes    [][2]int // {from, to}
	completed  []string
	skipped    []string
	actionErrs []string
	branches   []string
	replays    []bool
	tourDone   bool
	summary    api.Summary
}

func (r *recordingObserver) OnStepChange(ctx context.Context, step api.Step, from, to int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, [2]int{from, to})
}

func (r *recordingObserver) OnStepCompleted(ctx context.Context, step api.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, step.ID)
}

func (r *recordingObserver) OnStepSkipped(ctx context.Context, step api.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, step.ID)
}

func (r *recordingObserver) OnActionError(ctx context.Context, step api.Step, a api.Action, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actionErrs = append(r.actionErrs, err.Error())
}

func (r *recordingObserver) OnBranchResolved(ctx context.Context, step api.Step, b api.Branch, replayed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.branches = append(r.branches, b.ID)
	r.replays = append(r.replays, replayed)
}

func (r *recordingObserver) OnTourCompleted(ctx context.Context, cfg *api.Configuration, clientID string, s api.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tourDone = true
	r.summary = s
}

func (r *recordingObserver) snapshotBranches() ([]string, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.branches...), append([]bool(nil), r.replays...)
}

func testStores() persistence.Persistence {
	s := persistence.NewInMemoryStore()
	return persistence.Persistence{Configurations: s, Progress: s, Choices: s, Events: s}
}

func linearConfig() *api.Configuration {
	return &api.Configuration{
		ID:    "tour-linear",
		Name:  "Linear",
		Theme: api.DefaultTheme(),
		Steps: []api.Step{
			{ID: "s1", Order: 1, Title: "One", TargetType: api.TargetModal, ShowNextButton: true},
			{ID: "s2", Order: 2, Title: "Two", TargetType: api.TargetModal, ShowNextButton: true},
			{ID: "s3", Order: 3, Title: "Three", TargetType: api.TargetModal, ShowNextButton: true},
		},
	}
}

func newTestTour(t *testing.T, cfg *api.Configuration, stores persistence.Persistence, obs api.Observer) (*Tour, *dom.MemPage) {
	t.Helper()
	page, err := dom.NewMemPage(`<html><body>
		<button id="pro">Pro</button>
		<button id="basic">Basic</button>
		<input id="email">
	</body></html>`)
	require.NoError(t, err)

	tour, err := NewTour(cfg, "client-1", Options{
		Page:        page,
		Stores:      stores,
		Observer:    obs,
		WaitTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(tour.Destroy)
	return tour, page
}

func TestTour_LinearRunToCompletion(t *testing.T) {
	obs := &recordingObserver{}
	tour, _ := newTestTour(t, linearConfig(), testStores(), obs)
	ctx := context.Background()

	require.Equal(t, api.StateIdle, tour.State())
	require.NoError(t, tour.Start(ctx))
	require.Equal(t, api.StateRunning, tour.State())

	cur, ok := tour.Current()
	require.True(t, ok)
	require.Equal(t, "s1", cur.ID)

	require.NoError(t, tour.Complete(ctx))
	require.NoError(t, tour.Complete(ctx))
	require.NoError(t, tour.Skip(ctx))

	require.Equal(t, api.StateCompleted, tour.State())
	_, ok = tour.Current()
	require.False(t, ok)

	sum, err := tour.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, api.Summary{Completed: 2, Total: 3, Percentage: 67}, sum)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Equal(t, []string{"s1", "s2"}, obs.completed)
	require.Equal(t, []string{"s3"}, obs.skipped)
	require.True(t, obs.tourDone)
	require.Equal(t, 67, obs.summary.Percentage)
	// -1 on entry, then ordinal advancement.
	require.Equal(t, [][2]int{{-1, 0}, {0, 1}, {1, 2}}, obs.changes)
}

func TestTour_StartResumesAtFirstPendingStep(t *testing.T) {
	stores := testStores()
	cfg := linearConfig()

	tour, _ := newTestTour(t, cfg, stores, nil)
	ctx := context.Background()
	require.NoError(t, tour.Start(ctx))
	require.NoError(t, tour.Complete(ctx))
	tour.Destroy()

	resumed, _ := newTestTour(t, linearConfig(), stores, nil)
	require.NoError(t, resumed.Start(ctx))

	cur, ok := resumed.Current()
	require.True(t, ok)
	require.Equal(t, "s2", cur.ID)
}

func TestTour_StartWithEverythingDoneCompletesImmediately(t *testing.T) {
	stores := testStores()
	ctx := context.Background()
	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, stores.Progress.SaveProgress(ctx, api.ProgressEntry{
			ClientID: "client-1", ConfigurationID: "tour-linear", StepID: id,
			Status: api.StatusCompleted,
		}))
	}

	obs := &recordingObserver{}
	tour, _ := newTestTour(t, linearConfig(), stores, obs)
	require.NoError(t, tour.Start(ctx))
	require.Equal(t, api.StateCompleted, tour.State())
	require.True(t, obs.tourDone)
}

func TestTour_SkipRequiredStepFails(t *testing.T) {
	cfg := linearConfig()
	cfg.Steps[0].IsRequired = true

	tour, _ := newTestTour(t, cfg, testStores(), nil)
	ctx := context.Background()
	require.NoError(t, tour.Start(ctx))

	require.ErrorIs(t, tour.Skip(ctx), api.ErrStepRequired)

	// Still on the required step; completing it works.
	cur, _ := tour.Current()
	require.Equal(t, "s1", cur.ID)
	require.NoError(t, tour.Complete(ctx))
	cur, _ = tour.Current()
	require.Equal(t, "s2", cur.ID)
}

func TestTour_PauseResumeLifecycle(t *testing.T) {
	tour, _ := newTestTour(t, linearConfig(), testStores(), nil)
	ctx := context.Background()

	require.ErrorIs(t, tour.Pause(), api.ErrInvalidState)
	require.NoError(t, tour.Start(ctx))
	require.NoError(t, tour.Pause())
	require.Equal(t, api.StatePaused, tour.State())
	require.ErrorIs(t, tour.Pause(), api.ErrInvalidState)
	require.NoError(t, tour.Resume(ctx))
	require.Equal(t, api.StateRunning, tour.State())
	require.ErrorIs(t, tour.Resume(ctx), api.ErrInvalidState)
}

func TestTour_PauseRemovesOverlay(t *testing.T) {
	page, err := dom.NewMemPage(`<html><body><button id="pro">Pro</button></body></html>`)
	require.NoError(t, err)

	tour, err := NewTour(linearConfig(), "client-1", Options{
		Page:    page,
		Stores:  testStores(),
		Overlay: render.NewOverlay(page, nil),
	})
	require.NoError(t, err)
	defer tour.Destroy()

	ctx := context.Background()
	require.NoError(t, tour.Start(ctx))

	// The first step's modal shows up.
	require.Eventually(t, func() bool {
		for _, ev := range page.Events() {
			if ev.Kind == dom.EventEval && strings.Contains(ev.Value, `"kind":"modal"`) {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	// Pausing leaves nothing on the page: the last render is a clear.
	require.NoError(t, tour.Pause())

	var last dom.Event
	for _, ev := range page.Events() {
		if ev.Kind == dom.EventEval {
			last = ev
		}
	}
	require.Contains(t, last.Value, `"kind":"clear"`)

	// Resume re-renders the step.
	require.NoError(t, tour.Resume(ctx))
	require.Eventually(t, func() bool {
		var last dom.Event
		for _, ev := range page.Events() {
			if ev.Kind == dom.EventEval {
				last = ev
			}
		}
		return strings.Contains(last.Value, `"kind":"modal"`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTour_DestroyedInstanceRejectsEverything(t *testing.T) {
	tour, _ := newTestTour(t, linearConfig(), testStores(), nil)
	ctx := context.Background()
	require.NoError(t, tour.Start(ctx))
	tour.Destroy()

	require.ErrorIs(t, tour.Start(ctx), api.ErrTourDestroyed)
	require.ErrorIs(t, tour.Complete(ctx), api.ErrTourDestroyed)
	require.ErrorIs(t, tour.Skip(ctx), api.ErrTourDestroyed)
	require.ErrorIs(t, tour.GoTo(ctx, 0), api.ErrTourDestroyed)
	_, err := tour.Progress(ctx)
	require.ErrorIs(t, err, api.ErrTourDestroyed)

	// Destroy is idempotent.
	tour.Destroy()
}

func branchConfig() *api.Configuration {
	return &api.Configuration{
		ID:    "tour-branch",
		Name:  "Branching",
		Theme: api.DefaultTheme(),
		Steps: []api.Step{
			{ID: "s1", Order: 1, Title: "Pick", TargetType: api.TargetModal, IsBranchPoint: true,
				Branches: []api.Branch{
					// Matches but points nowhere valid: must fall through.
					{ID: "b-dangling", StepID: "s1", Order: 1, ConditionType: api.ConditionClick,
						ConditionValue: "#pro", NextStepID: "ghost"},
					{ID: "b-pro", StepID: "s1", Order: 2, ConditionType: api.ConditionClick,
						ConditionValue: "#pro", NextStepID: "s3"},
					{ID: "b-basic", StepID: "s1", Order: 3, ConditionType: api.ConditionSelector,
						ConditionValue: "#basic", NextStepID: "s2"},
				}},
			{ID: "s2", Order: 2, Title: "Basic path", TargetType: api.TargetModal},
			{ID: "s3", Order: 3, Title: "Pro path", TargetType: api.TargetModal},
		},
	}
}

func TestTour_BranchDanglingTargetFallsThrough(t *testing.T) {
	obs := &recordingObserver{}
	tour, _ := newTestTour(t, branchConfig(), testStores(), obs)
	ctx := context.Background()
	require.NoError(t, tour.Start(ctx))

	tour.RecordClick("#pro")
	require.NoError(t, tour.Advance(ctx))

	cur, ok := tour.Current()
	require.True(t, ok)
	require.Equal(t, "s3", cur.ID)

	branches, replays := obs.snapshotBranches()
	require.Equal(t, []string{"b-pro"}, branches)
	require.Equal(t, []bool{false}, replays)
}

func TestTour_BranchSelectorConditionMatchesLiveDOM(t *testing.T) {
	tour, _ := newTestTour(t, branchConfig(), testStores(), nil)
	ctx := context.Background()
	require.NoError(t, tour.Start(ctx))

	// No click recorded; the selector rule for #basic matches the page.
	require.NoError(t, tour.Advance(ctx))
	cur, _ := tour.Current()
	require.Equal(t, "s2", cur.ID)
}

func TestTour_BranchChoiceReplaysOnRevisit(t *testing.T) {
	stores := testStores()
	ctx := context.Background()

	first, _ := newTestTour(t, branchConfig(), stores, nil)
	require.NoError(t, first.Start(ctx))
	first.RecordClick("#pro")
	require.NoError(t, first.Advance(ctx))
	cur, _ := first.Current()
	require.Equal(t, "s3", cur.ID)
	first.Destroy()

	// A fresh instance replays the recorded choice without any click.
	obs := &recordingObserver{}
	second, _ := newTestTour(t, branchConfig(), stores, obs)
	require.NoError(t, second.Start(ctx))
	require.NoError(t, second.Advance(ctx))

	cur, _ = second.Current()
	require.Equal(t, "s3", cur.ID)
	branches, replays := obs.snapshotBranches()
	require.Equal(t, []string{"b-pro"}, branches)
	require.Equal(t, []bool{true}, replays)
}

func TestTour_ResetClearsChoicesAndReprompts(t *testing.T) {
	stores := testStores()
	ctx := context.Background()

	tour, _ := newTestTour(t, branchConfig(), stores, nil)
	require.NoError(t, tour.Start(ctx))
	tour.RecordClick("#pro")
	require.NoError(t, tour.Advance(ctx))

	require.NoError(t, tour.Reset(ctx, 0))
	cur, _ := tour.Current()
	require.Equal(t, "s1", cur.ID)

	choices, err := stores.Choices.LoadChoices(ctx, "client-1", "tour-branch")
	require.NoError(t, err)
	require.Empty(t, choices)

	progress, err := tour.Progress(ctx)
	require.NoError(t, err)
	require.Empty(t, progress)
}

func TestTour_CustomConditionSeesSignalsAndProgress(t *testing.T) {
	cfg := &api.Configuration{
		ID:    "tour-custom",
		Name:  "Custom",
		Theme: api.DefaultTheme(),
		Steps: []api.Step{
			{ID: "s1", Order: 1, TargetType: api.TargetModal, IsBranchPoint: true,
				Branches: []api.Branch{
					{ID: "b-plan", StepID: "s1", Order: 1, ConditionType: api.ConditionCustom,
						ConditionValue: `signals.plan == "pro" && progress["s1"] != "completed"`,
						NextStepID:     "s3"},
				}},
			{ID: "s2", Order: 2, TargetType: api.TargetModal},
			{ID: "s3", Order: 3, TargetType: api.TargetModal},
		},
	}

	tour, _ := newTestTour(t, cfg, testStores(), nil)
	ctx := context.Background()
	require.NoError(t, tour.Start(ctx))

	// Unsatisfied custom condition falls through to the ordinal successor.
	require.NoError(t, tour.Advance(ctx))
	cur, _ := tour.Current()
	require.Equal(t, "s2", cur.ID)

	require.NoError(t, tour.GoTo(ctx, 0))
	tour.Signal("plan", "pro")
	require.NoError(t, tour.Advance(ctx))
	cur, _ = tour.Current()
	require.Equal(t, "s3", cur.ID)
}

func TestTour_BranchNoMatchUsesDefaultNext(t *testing.T) {
	cfg := &api.Configuration{
		ID:    "tour-fallback",
		Name:  "Fallback",
		Theme: api.DefaultTheme(),
		Steps: []api.Step{
			{ID: "s1", Order: 1, TargetType: api.TargetModal, IsBranchPoint: true,
				DefaultNextStepID: "s4",
				Branches: []api.Branch{
					{ID: "b-never", StepID: "s1", Order: 1, ConditionType: api.ConditionClick,
						ConditionValue: "#never", NextStepID: "s2"},
					{ID: "b-ghost", StepID: "s1", Order: 2, ConditionType: api.ConditionSelector,
						ConditionValue: "#ghost", NextStepID: "s3"},
				}},
			{ID: "s2", Order: 2, TargetType: api.TargetModal},
			{ID: "s3", Order: 3, TargetType: api.TargetModal},
			{ID: "s4", Order: 4, TargetType: api.TargetModal},
		},
	}

	obs := &recordingObserver{}
	tour, _ := newTestTour(t, cfg, testStores(), obs)
	ctx := context.Background()
	require.NoError(t, tour.Start(ctx))

	// No branch condition holds: the step's default next wins over the
	// ordinal successor.
	require.NoError(t, tour.Advance(ctx))
	cur, ok := tour.Current()
	require.True(t, ok)
	require.Equal(t, "s4", cur.ID)

	branches, _ := obs.snapshotBranches()
	require.Empty(t, branches)
}

func TestTour_DefaultNextBeatsOrdinalSuccessor(t *testing.T) {
	cfg := linearConfig()
	cfg.Steps[0].DefaultNextStepID = "s3"

	tour, _ := newTestTour(t, cfg, testStores(), nil)
	ctx := context.Background()
	require.NoError(t, tour.Start(ctx))
	require.NoError(t, tour.Advance(ctx))

	cur, _ := tour.Current()
	require.Equal(t, "s3", cur.ID)
}

func TestTour_DanglingDefaultNextFallsThroughToOrdinal(t *testing.T) {
	cfg := linearConfig()
	cfg.Steps[0].DefaultNextStepID = "no-such-step"

	tour, _ := newTestTour(t, cfg, testStores(), nil)
	ctx := context.Background()
	require.NoError(t, tour.Start(ctx))
	require.NoError(t, tour.Advance(ctx))

	cur, _ := tour.Current()
	require.Equal(t, "s2", cur.ID)
}

func TestTour_EnteringNewStepCancelsRunningPipeline(t *testing.T) {
	cfg := linearConfig()
	cfg.Steps[0].Actions = []api.Action{
		{ID: "a-wait", StepID: "s1", Order: 1, Type: api.ActionWait, DelayMs: 400},
		{ID: "a-click", StepID: "s1", Order: 2, Type: api.ActionClick, Selector: "#pro"},
	}

	tour, page := newTestTour(t, cfg, testStores(), nil)
	ctx := context.Background()
	require.NoError(t, tour.Start(ctx))

	// Jump away while the first step's pipeline sits in its delay.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, tour.GoTo(ctx, 1))

	time.Sleep(600 * time.Millisecond)
	for _, ev := range page.Events() {
		require.NotEqual(t, dom.EventClick, ev.Kind, "cancelled pipeline still clicked")
	}
}

func TestTour_ActionPipelineRunsAgainstPage(t *testing.T) {
	cfg := linearConfig()
	cfg.Steps[0].Actions = []api.Action{
		{ID: "a-input", StepID: "s1", Order: 1, Type: api.ActionInput,
			Selector: "#email", Value: "a@b.example", WaitForElement: true},
		{ID: "a-click", StepID: "s1", Order: 2, Type: api.ActionClick, Selector: "#pro"},
	}

	tour, page := newTestTour(t, cfg, testStores(), nil)
	require.NoError(t, tour.Start(context.Background()))

	require.Eventually(t, func() bool {
		for _, ev := range page.Events() {
			if ev.Kind == dom.EventClick && ev.Selector == "#pro" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	v, err := page.Value("#email")
	require.NoError(t, err)
	require.Equal(t, "a@b.example", v)
}

func TestTour_DisabledActionsLeavePageUntouched(t *testing.T) {
	cfg := linearConfig()
	cfg.Steps[0].Actions = []api.Action{
		{ID: "a-click", StepID: "s1", Order: 1, Type: api.ActionClick, Selector: "#pro"},
	}

	page, err := dom.NewMemPage(`<html><body><button id="pro">Pro</button></body></html>`)
	require.NoError(t, err)
	tour, err := NewTour(cfg, "client-1", Options{
		Page:           page,
		Stores:         testStores(),
		DisableActions: true,
	})
	require.NoError(t, err)
	defer tour.Destroy()

	require.NoError(t, tour.Start(context.Background()))

	time.Sleep(200 * time.Millisecond)
	require.Empty(t, page.Events())
}

func TestTour_ActionFailureIsToleratedAndReported(t *testing.T) {
	cfg := linearConfig()
	cfg.Steps[0].Actions = []api.Action{
		{ID: "a-bad", StepID: "s1", Order: 1, Type: api.ActionClick, Selector: "#ghost"},
		{ID: "a-good", StepID: "s1", Order: 2, Type: api.ActionClick, Selector: "#pro"},
	}

	obs := &recordingObserver{}
	tour, page := newTestTour(t, cfg, testStores(), obs)
	require.NoError(t, tour.Start(context.Background()))

	require.Eventually(t, func() bool {
		for _, ev := range page.Events() {
			if ev.Kind == dom.EventClick && ev.Selector == "#pro" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.NotEmpty(t, obs.actionErrs)
}

func TestTour_ProgressWriteHookFires(t *testing.T) {
	var mu sync.Mutex
	writes := 0

	page, err := dom.NewMemPage(`<html><body></body></html>`)
	require.NoError(t, err)
	tour, err := NewTour(linearConfig(), "client-1", Options{
		Page:   page,
		Stores: testStores(),
		OnProgressWrite: func() {
			mu.Lock()
			writes++
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer tour.Destroy()

	ctx := context.Background()
	require.NoError(t, tour.Start(ctx))
	require.NoError(t, tour.Complete(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, writes, 1)
}
