package dom

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// EventKind labels a synthetic event recorded by MemPage.
type EventKind string

const (
	EventFocus     EventKind = "focus"
	EventMouseDown EventKind = "mousedown"
	EventMouseUp   EventKind = "mouseup"
	EventClick     EventKind = "click"
	EventInput     EventKind = "input"
	EventChange    EventKind = "change"
	EventScroll    EventKind = "scroll"
	EventNavigate  EventKind = "navigate"
	EventEval      EventKind = "eval"
)

// Event is one recorded interaction against a MemPage.
type Event struct {
	Kind     EventKind
	Selector string
	Value    string
}

// MemPage is an in-memory Page backed by a parsed HTML document. It records
// every synthetic event it dispatches so tests can assert on exact
// interaction sequences, and it fires mutation notifications when its
// document is replaced or mutated.
type MemPage struct {
	mu       sync.Mutex
	doc      *html.Node
	url      string
	viewport Viewport
	rects    map[string]Rect
	events   []Event

	nextSub int
	subs    map[int]chan struct{}
}

var _ Page = (*MemPage)(nil)

// NewMemPage parses src into a document. An empty src yields an empty body.
func NewMemPage(src string) (*MemPage, error) {
	if src == "" {
		src = "<html><body></body></html>"
	}
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &MemPage{
		doc:      doc,
		url:      "http://localhost/",
		viewport: Viewport{Width: 1280, Height: 800},
		rects:    make(map[string]Rect),
		subs:     make(map[int]chan struct{}),
	}, nil
}

// SetHTML replaces the document and notifies subscribers, simulating a DOM
// mutation.
func (p *MemPage) SetHTML(src string) error {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	p.notify()
	return nil
}

// SetURL changes the reported location without going through Navigate.
// Used to simulate SPA route changes.
func (p *MemPage) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	p.notify()
}

// SetViewport overrides the reported viewport size.
func (p *MemPage) SetViewport(v Viewport) {
	p.mu.Lock()
	p.viewport = v
	p.mu.Unlock()
}

// SetRect pins the bounding box reported for a selector. Selectors without
// a pinned rect report a deterministic default.
func (p *MemPage) SetRect(selector string, r Rect) {
	p.mu.Lock()
	p.rects[selector] = r
	p.mu.Unlock()
}

// Events returns a copy of the recorded event log.
func (p *MemPage) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// ClearEvents resets the event log.
func (p *MemPage) ClearEvents() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

// Value returns the current value attribute of the first match.
func (p *MemPage) Value(selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.first(selector)
	if err != nil {
		return "", err
	}
	for _, a := range n.Attr {
		if a.Key == "value" {
			return a.Val, nil
		}
	}
	return "", nil
}

func (p *MemPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *MemPage) Navigate(ctx context.Context, url string, waitForLoad bool) error {
	p.mu.Lock()
	p.url = url
	p.events = append(p.events, Event{Kind: EventNavigate, Value: url})
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *MemPage) Count(selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := cascadia.Compile(selector)
	if err != nil {
		return 0, fmt.Errorf("bad selector %q: %w", selector, err)
	}
	return len(s.MatchAll(p.doc)), nil
}

func (p *MemPage) Rect(selector string) (Rect, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.first(selector); err != nil {
		return Rect{}, err
	}
	if r, ok := p.rects[selector]; ok {
		return r, nil
	}
	return Rect{X: 40, Y: 40, Width: 120, Height: 32}, nil
}

func (p *MemPage) Viewport() (Viewport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport, nil
}

func (p *MemPage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	if _, err := p.first(selector); err != nil {
		p.mu.Unlock()
		return err
	}
	p.events = append(p.events,
		Event{Kind: EventFocus, Selector: selector},
		Event{Kind: EventMouseDown, Selector: selector},
		Event{Kind: EventMouseUp, Selector: selector},
		Event{Kind: EventClick, Selector: selector},
	)
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *MemPage) SetValue(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	n, err := p.first(selector)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	set := false
	for i, a := range n.Attr {
		if a.Key == "value" {
			n.Attr[i].Val = value
			set = true
			break
		}
	}
	if !set {
		n.Attr = append(n.Attr, html.Attribute{Key: "value", Val: value})
	}
	p.events = append(p.events,
		Event{Kind: EventFocus, Selector: selector},
		Event{Kind: EventInput, Selector: selector, Value: value},
		Event{Kind: EventChange, Selector: selector, Value: value},
	)
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *MemPage) ScrollIntoView(ctx context.Context, selector, behavior, position string) error {
	p.mu.Lock()
	if _, err := p.first(selector); err != nil {
		p.mu.Unlock()
		return err
	}
	p.events = append(p.events, Event{Kind: EventScroll, Selector: selector, Value: position})
	p.mu.Unlock()
	return nil
}

func (p *MemPage) Eval(ctx context.Context, script string, out any) error {
	p.mu.Lock()
	p.events = append(p.events, Event{Kind: EventEval, Value: script})
	p.mu.Unlock()
	return nil
}

func (p *MemPage) Subscribe() (<-chan struct{}, func()) {
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

// SubscriberCount reports active mutation subscriptions; tests use it to
// assert the locator leaves none behind.
func (p *MemPage) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *MemPage) notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// first must be called with p.mu held.
func (p *MemPage) first(selector string) (*html.Node, error) {
	s, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("bad selector %q: %w", selector, err)
	}
	n := s.MatchFirst(p.doc)
	if n == nil {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	return n, nil
}
