package dom

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromePage drives a live Chrome tab over the DevTools protocol.
//
// The zero value is not usable; construct with NewChromePage, which owns the
// allocator and browser contexts and must be closed with Close.
type ChromePage struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu      sync.Mutex
	nextSub int
	subs    map[int]chan struct{}
}

var _ Page = (*ChromePage)(nil)

// ChromeOptions tunes browser startup.
type ChromeOptions struct {
	Headless bool
}

// NewChromePage starts a browser tab and wires DOM mutation events into the
// subscription fan-out.
func NewChromePage(ctx context.Context, opts ChromeOptions) (*ChromePage, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p := &ChromePage{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		subs:          make(map[int]chan struct{}),
	}

	if err := chromedp.Run(browserCtx, cdpdom.Enable()); err != nil {
		p.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	chromedp.ListenTarget(browserCtx, func(ev any) {
		switch ev.(type) {
		case *cdpdom.EventChildNodeInserted,
			*cdpdom.EventChildNodeRemoved,
			*cdpdom.EventAttributeModified,
			*cdpdom.EventAttributeRemoved,
			*cdpdom.EventDocumentUpdated:
			p.notify()
		}
	})

	return p, nil
}

// Close tears down the tab and browser process.
func (p *ChromePage) Close() {
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
}

func (p *ChromePage) URL() string {
	var url string
	if err := chromedp.Run(p.browserCtx, chromedp.Location(&url)); err != nil {
		return ""
	}
	return url
}

func (p *ChromePage) Navigate(ctx context.Context, url string, waitForLoad bool) error {
	runCtx, cancel := p.opContext(ctx)
	defer cancel()

	if !waitForLoad {
		return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, _, err := page.Navigate(url).Do(ctx)
			return err
		}))
	}
	return chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *ChromePage) Count(selector string) (int, error) {
	var n int
	script := fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector))
	if err := chromedp.Run(p.browserCtx, chromedp.Evaluate(script, &n)); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *ChromePage) Rect(selector string) (Rect, error) {
	var r Rect
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return null;
		const b = el.getBoundingClientRect();
		return {x: b.x, y: b.y, width: b.width, height: b.height};
	})()`, jsString(selector))
	if err := chromedp.Run(p.browserCtx, chromedp.Evaluate(script, &r)); err != nil {
		return Rect{}, err
	}
	return r, nil
}

func (p *ChromePage) Viewport() (Viewport, error) {
	var v Viewport
	script := `({width: window.innerWidth, height: window.innerHeight})`
	if err := chromedp.Run(p.browserCtx, chromedp.Evaluate(script, &v)); err != nil {
		return Viewport{}, err
	}
	return v, nil
}

// Click invokes the native click and then replays the mouse event sequence
// synthetically. Some frameworks attach listeners that a bare .click() does
// not trigger reliably.
func (p *ChromePage) Click(ctx context.Context, selector string) error {
	runCtx, cancel := p.opContext(ctx)
	defer cancel()

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.focus();
		el.click();
		for (const type of ['mousedown', 'mouseup', 'click']) {
			el.dispatchEvent(new MouseEvent(type, {bubbles: true, cancelable: true, view: window}));
		}
		return true;
	})()`, jsString(selector))

	var ok bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no element matches %q", selector)
	}
	return nil
}

// SetValue writes through the prototype's native value setter so inputs
// managed by a framework (which shadow the plain property setter) observe
// the change, then re-dispatches input and change.
func (p *ChromePage) SetValue(ctx context.Context, selector, value string) error {
	runCtx, cancel := p.opContext(ctx)
	defer cancel()

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.focus();
		const value = %s;
		el.value = value;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		const proto = el instanceof HTMLTextAreaElement
			? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) {
			desc.set.call(el, value);
			el.dispatchEvent(new Event('input', {bubbles: true}));
		}
		return true;
	})()`, jsString(selector), jsString(value))

	var ok bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no element matches %q", selector)
	}
	return nil
}

func (p *ChromePage) ScrollIntoView(ctx context.Context, selector, behavior, position string) error {
	runCtx, cancel := p.opContext(ctx)
	defer cancel()

	if behavior == "" {
		behavior = "smooth"
	}
	if position == "" {
		position = "center"
	}
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.scrollIntoView({behavior: %s, block: %s});
		return true;
	})()`, jsString(selector), jsString(behavior), jsString(position))

	var ok bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no element matches %q", selector)
	}
	return nil
}

func (p *ChromePage) Eval(ctx context.Context, script string, out any) error {
	runCtx, cancel := p.opContext(ctx)
	defer cancel()

	if out == nil {
		// chromedp.Evaluate requires a destination; discard into a raw value.
		var discard json.RawMessage
		return chromedp.Run(runCtx, chromedp.Evaluate(script, &discard))
	}
	return chromedp.Run(runCtx, chromedp.Evaluate(script, out))
}

func (p *ChromePage) Subscribe() (<-chan struct{}, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	ch := make(chan struct{}, 1)
	p.subs[id] = ch
	return ch, func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *ChromePage) notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// opContext derives a browser-bound context that also honors the caller's
// cancellation.
func (p *ChromePage) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.browserCtx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
