package dom

import (
	"context"
	"time"

	"github.com/jkallio/tourguide/pkg/api"
)

// fallbackPollInterval is the fixed-interval poll that backs up mutation
// notifications, which are best effort and can be missed.
const fallbackPollInterval = 100 * time.Millisecond

// Locate waits until selector matches at least one element on p.
//
// If the selector resolves synchronously it returns immediately. Otherwise
// it watches DOM mutations and polls on a fixed interval concurrently,
// returning on the first success. When timeout elapses first, it returns an
// ElementNotFoundError. All watchers are released on every exit path.
func Locate(ctx context.Context, p Page, selector string, timeout time.Duration) error {
	if n, err := p.Count(selector); err == nil && n > 0 {
		return nil
	}

	changes, unsubscribe := p.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(fallbackPollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return api.NewElementNotFoundError(selector, timeout)
		case <-changes:
		case <-ticker.C:
		}

		if n, err := p.Count(selector); err == nil && n > 0 {
			return nil
		}
	}
}
