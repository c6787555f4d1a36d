package api

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfigFetchFailed means the runtime configuration could not be
	// loaded. It is fatal to initialization: the widget must not render.
	ErrConfigFetchFailed = errors.New("configuration fetch failed")

	// ErrProgressSyncFailed means a remote progress write failed. It is
	// non-fatal; the syncer retries on the next debounce cycle.
	ErrProgressSyncFailed = errors.New("progress sync failed")

	// ErrInvalidBranchTarget means a branch or default-next points at a
	// step that no longer exists. Resolution treats it as "no match" and
	// falls through to the next rule instead of failing.
	ErrInvalidBranchTarget = errors.New("branch target step does not exist")

	// ErrTourDestroyed is returned by operations on an engine instance
	// after Destroy.
	ErrTourDestroyed = errors.New("tour instance destroyed")

	// ErrStepRequired is returned by Skip when the current step has
	// IsRequired set.
	ErrStepRequired = errors.New("step is required and cannot be skipped")

	// ErrInvalidState is returned when an operation is not legal in the
	// instance's current lifecycle state, e.g. Resume on a running tour.
	ErrInvalidState = errors.New("operation not allowed in current tour state")
)

// ElementNotFoundError is returned when a selector never resolved within
// its timeout. Per-action failures of this kind are tolerated: the executor
// logs them and continues with the next action.
type ElementNotFoundError struct {
	Selector string
	Timeout  time.Duration
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found: %q (waited %s)", e.Selector, e.Timeout)
}

// NewElementNotFoundError constructs an ElementNotFoundError.
func NewElementNotFoundError(selector string, timeout time.Duration) error {
	return &ElementNotFoundError{Selector: selector, Timeout: timeout}
}

// IsElementNotFound returns (selector, true) if err wraps an
// ElementNotFoundError.
func IsElementNotFound(err error) (string, bool) {
	var e *ElementNotFoundError
	if errors.As(err, &e) {
		return e.Selector, true
	}
	return "", false
}
