package selector

import (
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func find(t *testing.T, root *html.Node, sel string) *html.Node {
	t.Helper()
	s, err := cascadia.Compile(sel)
	require.NoError(t, err)
	n := s.MatchFirst(root)
	require.NotNil(t, n, "no node matches %q", sel)
	return n
}

func TestSynthesize_IDWins(t *testing.T) {
	doc := parse(t, `<html><body>
		<button id="save" data-testid="save-btn" class="btn primary">Save</button>
	</body></html>`)
	n := find(t, doc, "button")

	sel, err := Synthesize(n)
	require.NoError(t, err)
	require.Equal(t, "#save", sel)

	// The selector must resolve back to exactly that element.
	s, err := cascadia.Compile(sel)
	require.NoError(t, err)
	matches := s.MatchAll(doc)
	require.Len(t, matches, 1)
	require.Same(t, n, matches[0])
}

func TestSynthesize_DataTestID(t *testing.T) {
	doc := parse(t, `<html><body>
		<button data-testid="save-btn" class="btn">Save</button>
	</body></html>`)
	n := find(t, doc, "button")

	sel, err := Synthesize(n)
	require.NoError(t, err)
	require.Equal(t, `[data-testid="save-btn"]`, sel)
}

func TestSynthesize_FirstDataAttributeSorted(t *testing.T) {
	doc := parse(t, `<html><body>
		<div data-track="nav" data-component="menu">x</div>
	</body></html>`)
	n := find(t, doc, "div")

	sel, err := Synthesize(n)
	require.NoError(t, err)
	// data-component sorts before data-track.
	require.Equal(t, `[data-component="menu"]`, sel)
}

func TestSynthesize_ClassesFilterVolatile(t *testing.T) {
	doc := parse(t, `<html><body>
		<a class="nav-link is-active hover-ring">Docs</a>
		<a class="footer-link">About</a>
	</body></html>`)
	n := find(t, doc, "a.nav-link")

	sel, err := Synthesize(n)
	require.NoError(t, err)
	require.Equal(t, "a.nav-link", sel)
}

func TestSynthesize_ClassesNotUniqueFallsToPath(t *testing.T) {
	doc := parse(t, `<html><body>
		<ul><li class="item">one</li><li class="item">two</li></ul>
	</body></html>`)
	n := find(t, doc, "li:nth-of-type(2)")

	sel, err := Synthesize(n)
	require.NoError(t, err)
	require.Equal(t, "ul > li:nth-of-type(2)", sel)

	s, err := cascadia.Compile(sel)
	require.NoError(t, err)
	require.Same(t, n, s.MatchFirst(doc))
}

func TestSynthesize_PathStopsAtIDAncestor(t *testing.T) {
	doc := parse(t, `<html><body>
		<section id="pricing"><div><span>cheap</span></div></section>
	</body></html>`)
	n := find(t, doc, "span")

	sel, err := Synthesize(n)
	require.NoError(t, err)
	require.Equal(t, "#pricing > div > span", sel)
}

func TestSynthesize_PathDepthBounded(t *testing.T) {
	doc := parse(t, `<html><body>
		<div><div><div><div><div><div><div><em>deep</em></div></div></div></div></div></div></div>
	</body></html>`)
	n := find(t, doc, "em")

	sel, err := Synthesize(n)
	require.NoError(t, err)
	// Five levels at most, innermost last.
	require.LessOrEqual(t, len(strings.Split(sel, " > ")), 5)
	require.True(t, strings.HasSuffix(sel, "em"))
}

func TestSynthesize_EscapesSpecialCharacters(t *testing.T) {
	doc := parse(t, `<html><body>
		<div id="user:42"></div>
	</body></html>`)
	n := find(t, doc, "div")

	sel, err := Synthesize(n)
	require.NoError(t, err)
	require.Equal(t, `#user\:42`, sel)

	s, err := cascadia.Compile(sel)
	require.NoError(t, err)
	require.Same(t, n, s.MatchFirst(doc))
}

func TestSynthesize_QuotesAttributeValues(t *testing.T) {
	doc := parse(t, `<html><body>
		<div data-name="a&quot;b"></div>
	</body></html>`)
	n := find(t, doc, "div")

	sel, err := Synthesize(n)
	require.NoError(t, err)
	require.Equal(t, `[data-name="a\"b"]`, sel)
}

func TestSynthesize_NonElement(t *testing.T) {
	doc := parse(t, `<html><body>text</body></html>`)
	_, err := Synthesize(doc) // document node, not an element
	require.Error(t, err)
}

func TestMatches_BadSelectorMatchesNothing(t *testing.T) {
	doc := parse(t, `<html><body><p>x</p></body></html>`)
	require.Zero(t, Matches(doc, "p[unclosed"))
	require.Equal(t, 1, Matches(doc, "p"))
}
