package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkallio/tourguide/internal/dom"
	"github.com/jkallio/tourguide/internal/render"
	"github.com/jkallio/tourguide/pkg/api"
)

const (
	// DefaultWaitTimeout bounds wait_for_element per action.
	DefaultWaitTimeout = 8 * time.Second

	// scrollSettle gives smooth scrolling time to finish before the next
	// interaction reads element geometry.
	scrollSettle = 300 * time.Millisecond
)

// Executor runs a step's action pipeline strictly in order.
//
// Individual action failures are tolerated: they are reported through the
// observer and the pipeline continues with the next action. Only context
// cancellation stops the run.
type Executor struct {
	page        dom.Page
	overlay     *render.Overlay
	obs         api.Observer
	log         *slog.Logger
	waitTimeout time.Duration
	actionDelay time.Duration
}

// NewExecutor creates an Executor. waitTimeout <= 0 selects the default;
// actionDelay is an extra pause inserted between consecutive actions.
func NewExecutor(page dom.Page, overlay *render.Overlay, obs api.Observer, log *slog.Logger, waitTimeout, actionDelay time.Duration) *Executor {
	if obs == nil {
		obs = api.NoopObserver{}
	}
	if log == nil {
		log = slog.Default()
	}
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	return &Executor{page: page, overlay: overlay, obs: obs, log: log, waitTimeout: waitTimeout, actionDelay: actionDelay}
}

// Run executes the step's actions sequentially. It returns the context
// error when cancelled mid-pipeline, nil otherwise.
func (e *Executor) Run(ctx context.Context, step api.Step, theme api.Theme) error {
	for i, action := range step.Actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := sleep(ctx, e.actionDelay); err != nil {
				return err
			}
		}
		e.obs.OnActionStart(ctx, step, action, i)

		if err := e.runOne(ctx, action, step, theme); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.obs.OnActionError(ctx, step, action, err)
			e.log.WarnContext(ctx, "action failed, continuing",
				slog.String("step", step.ID),
				slog.String("action", string(action.Type)),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

func (e *Executor) runOne(ctx context.Context, a api.Action, step api.Step, theme api.Theme) error {
	if a.WaitForElement && a.Selector != "" {
		if err := dom.Locate(ctx, e.page, a.Selector, e.waitTimeout); err != nil {
			return err
		}
	}
	if a.DelayMs > 0 && a.Type != api.ActionWait {
		if err := sleep(ctx, time.Duration(a.DelayMs)*time.Millisecond); err != nil {
			return err
		}
	}
	if a.ScrollToElement && a.Selector != "" {
		if err := e.page.ScrollIntoView(ctx, a.Selector, "smooth", "center"); err != nil {
			return err
		}
		if err := sleep(ctx, scrollSettle); err != nil {
			return err
		}
	}

	switch a.Type {
	case api.ActionClick:
		return e.page.Click(ctx, a.Selector)

	case api.ActionInput:
		return e.page.SetValue(ctx, a.Selector, a.Value)

	case api.ActionScroll:
		behavior, position := a.ScrollBehavior, a.ScrollPosition
		if behavior == "" {
			behavior = "smooth"
		}
		if position == "" {
			position = "center"
		}
		if err := e.page.ScrollIntoView(ctx, a.Selector, behavior, position); err != nil {
			return err
		}
		return sleep(ctx, scrollSettle)

	case api.ActionWait:
		return sleep(ctx, time.Duration(a.DelayMs)*time.Millisecond)

	case api.ActionHighlight:
		if e.overlay != nil {
			if a.HighlightColor != "" {
				theme.HighlightColor = a.HighlightColor
			}
			if err := e.overlay.Highlight(ctx, a.Selector, theme, a.HighlightAnimation, a.HighlightDurationMs); err != nil {
				return err
			}
		}
		// The highlight owns the pipeline for its whole duration; the next
		// action starts only once it has faded.
		return sleep(ctx, time.Duration(a.HighlightDurationMs)*time.Millisecond)

	case api.ActionOpenModal:
		// Opens the host page's own modal by clicking its trigger. Tour
		// modals are a step target type, not an action.
		return e.page.Click(ctx, a.Selector)

	case api.ActionRedirect:
		if a.RedirectDelayMs > 0 {
			if err := sleep(ctx, time.Duration(a.RedirectDelayMs)*time.Millisecond); err != nil {
				return err
			}
		}
		return e.page.Navigate(ctx, a.RedirectURL, a.RedirectWaitForLoad)

	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
