package capture

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/jkallio/tourguide/internal/selector"
)

// interactiveSelector enumerates the element kinds a tour step can
// plausibly target.
const interactiveSelector = `a, button, input, select, textarea, [role="button"]`

// ScanHTML parses a page and returns a capture entry for every interactive
// element, each with a synthesized stable selector and a human label.
// Elements for which no selector can be synthesized are skipped.
func ScanHTML(r io.Reader) ([]CapturedElement, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	var out []CapturedElement
	doc.Find(interactiveSelector).Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		sel, err := selector.Synthesize(node)
		if err != nil {
			return
		}
		out = append(out, CapturedElement{
			Selector: sel,
			Label:    labelFor(s),
			Tag:      node.Data,
		})
	})
	return out, nil
}

// ScanPages scans several pages concurrently, keyed by page name. One
// unparseable page fails the whole scan.
func ScanPages(ctx context.Context, pages map[string]io.Reader) (map[string][]CapturedElement, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	var mu sync.Mutex
	out := make(map[string][]CapturedElement, len(pages))

	for name, r := range pages {
		name, r := name, r
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			els, err := ScanHTML(r)
			if err != nil {
				return fmt.Errorf("scan %s: %w", name, err)
			}
			mu.Lock()
			out[name] = els
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// labelFor derives a display label: visible text first, then the usual
// accessibility and form attributes.
func labelFor(s *goquery.Selection) string {
	if text := squash(s.Text()); text != "" {
		return text
	}
	for _, attr := range []string{"aria-label", "placeholder", "value", "alt", "title", "name"} {
		if v, ok := s.Attr(attr); ok {
			if v = squash(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// squash collapses runs of whitespace and trims, keeping labels one-line.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
