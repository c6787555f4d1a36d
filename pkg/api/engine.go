package api

import "context"

// Engine drives one tour instance for one (client, configuration) pair.
//
// All progression commands persist progress through the configured stores
// before advancing. Rendering or action failures never prevent Complete or
// Skip from being accepted.
type Engine interface {
	// Configuration returns the tour definition this instance runs.
	Configuration() *Configuration

	// State returns the lifecycle state of the instance.
	State() TourState

	// Current returns the step the instance is positioned on, if any.
	Current() (Step, bool)

	// Start transitions idle -> running and enters the first pending step.
	Start(ctx context.Context) error

	// Pause / Resume toggle running <-> paused. Pausing cancels any
	// in-flight action pipeline.
	Pause() error
	Resume(ctx context.Context) error

	// Complete marks the current step completed and advances.
	Complete(ctx context.Context) error

	// Skip marks the current step skipped and advances. It fails for
	// steps with IsRequired set.
	Skip(ctx context.Context) error

	// Advance resolves the next step (branch rules first, then the step's
	// default next, then order+1) and moves there without touching the
	// current step's progress.
	Advance(ctx context.Context) error

	// GoTo jumps directly to the step at index. Intervening steps keep
	// their current status.
	GoTo(ctx context.Context, index int) error

	// Reset clears progress and branch choices for steps at or after
	// fromIndex (all steps when fromIndex <= 0) and repositions there.
	Reset(ctx context.Context, fromIndex int) error

	// Signal supplies a named value consumed by custom branch conditions.
	Signal(name string, value any)

	// RecordClick tells the engine the user interacted with the given
	// selector, satisfying click-type branch conditions.
	RecordClick(selector string)

	// Progress returns the persisted progress map for this client.
	Progress(ctx context.Context) (ProgressMap, error)

	// Summary returns aggregate completion counts.
	Summary(ctx context.Context) (Summary, error)

	// VisibleSteps computes the visible/locked projection of the step
	// list given recorded branch choices and progress.
	VisibleSteps(ctx context.Context) ([]StepVisibility, error)

	// Destroy releases the overlay, cancels any active action run and
	// flushes pending progress writes. The instance is unusable after.
	Destroy()
}
