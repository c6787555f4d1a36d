// Package dom abstracts the page a tour runs against.
//
// The engine never talks to a browser directly; it drives a Page. The
// production implementation (ChromePage) speaks the DevTools protocol via
// chromedp, while MemPage backs tests and the authoring scanner with an
// in-memory document. Element resolution lives in Locate, which races DOM
// change notifications against a fixed-interval fallback poll.
package dom

import "context"

// Rect is an element's bounding box in viewport coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport is the visible page area.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Page is a live document the engine can query and interact with.
//
// Implementations must be safe for use from a single tour goroutine plus
// any number of Subscribe listeners.
type Page interface {
	// URL returns the page's current location.
	URL() string

	// Navigate loads the given URL. When waitForLoad is set it blocks
	// until the new document signals readiness or ctx is done.
	Navigate(ctx context.Context, url string, waitForLoad bool) error

	// Count returns how many elements currently match the selector.
	Count(selector string) (int, error)

	// Rect returns the bounding box of the first match.
	Rect(selector string) (Rect, error)

	// Viewport returns the current viewport dimensions.
	Viewport() (Viewport, error)

	// Click focuses the first match, invokes its native click, and
	// additionally dispatches synthetic mousedown/mouseup/click events so
	// framework-attached listeners fire reliably.
	Click(ctx context.Context, selector string) error

	// SetValue focuses the first match, assigns value through the
	// element's native value setter (bypassing framework-shadowed
	// setters), and dispatches input and change events.
	SetValue(ctx context.Context, selector, value string) error

	// ScrollIntoView scrolls the first match into view. behavior is
	// "smooth" or "auto"; position is "start", "center" or "end".
	ScrollIntoView(ctx context.Context, selector, behavior, position string) error

	// Eval runs a script in the page. out, when non-nil, receives the
	// JSON-decoded result.
	Eval(ctx context.Context, script string, out any) error

	// Subscribe returns a channel that receives a notification after DOM
	// mutations (coalesced, best effort) and a cancel function that must
	// be called to release the subscription.
	Subscribe() (<-chan struct{}, func())
}
