package api

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	NoopObserver
	starts    int
	completed int
}

func (o *countingObserver) OnTourStart(ctx context.Context, cfg *Configuration, clientID string) {
	o.starts++
}

func (o *countingObserver) OnStepCompleted(ctx context.Context, step Step) {
	o.completed++
}

type panickyObserver struct {
	NoopObserver
}

func (panickyObserver) OnTourStart(ctx context.Context, cfg *Configuration, clientID string) {
	panic("observer bug")
}

func TestCompositeObserver_FansOut(t *testing.T) {
	a := &countingObserver{}
	b := &countingObserver{}
	obs := NewCompositeObserver(a, nil, b)

	cfg := &Configuration{ID: "t"}
	obs.OnTourStart(context.Background(), cfg, "c1")
	obs.OnStepCompleted(context.Background(), Step{ID: "s1"})

	require.Equal(t, 1, a.starts)
	require.Equal(t, 1, b.starts)
	require.Equal(t, 1, a.completed)
	require.Equal(t, 1, b.completed)
}

func TestCompositeObserver_IsolatesPanics(t *testing.T) {
	after := &countingObserver{}
	obs := NewCompositeObserver(panickyObserver{}, after)

	require.NotPanics(t, func() {
		obs.OnTourStart(context.Background(), &Configuration{ID: "t"}, "c1")
	})
	require.Equal(t, 1, after.starts)
}

func TestCompositeObserver_Degenerates(t *testing.T) {
	// No observers collapses to the noop.
	require.IsType(t, NoopObserver{}, NewCompositeObserver())
	require.IsType(t, NoopObserver{}, NewCompositeObserver(nil, nil))

	// A single observer is returned as-is, not wrapped.
	single := &countingObserver{}
	require.Same(t, single, NewCompositeObserver(single))
}

func TestBasicMetrics_Counters(t *testing.T) {
	m := &BasicMetrics{}
	ctx := context.Background()
	cfg := &Configuration{ID: "t"}
	step := Step{ID: "s1"}

	m.OnTourStart(ctx, cfg, "c1")
	m.OnActionStart(ctx, step, Action{Type: ActionClick}, 0)
	m.OnActionStart(ctx, step, Action{Type: ActionInput}, 1)
	m.OnActionError(ctx, step, Action{Type: ActionInput}, errors.New("boom"))
	m.OnStepCompleted(ctx, step)
	m.OnStepSkipped(ctx, Step{ID: "s2"})
	m.OnTourCompleted(ctx, cfg, "c1", Summary{Completed: 1, Total: 2, Percentage: 50})

	snap := m.Snapshot()
	require.Equal(t, int64(1), snap.ToursStarted)
	require.Equal(t, int64(1), snap.ToursCompleted)
	require.Equal(t, int64(1), snap.StepsCompleted)
	require.Equal(t, int64(1), snap.StepsSkipped)
	require.Equal(t, int64(2), snap.ActionsStarted)
	require.Equal(t, int64(1), snap.ActionErrors)
}

func TestIsElementNotFound(t *testing.T) {
	err := NewElementNotFoundError("#missing", 0)
	wrapped := errors.Join(errors.New("step failed"), err)

	sel, ok := IsElementNotFound(wrapped)
	require.True(t, ok)
	require.Equal(t, "#missing", sel)

	_, ok = IsElementNotFound(errors.New("other"))
	require.False(t, ok)
}
