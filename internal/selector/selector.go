// Package selector synthesizes CSS selectors for DOM elements.
//
// Synthesis is deterministic for a given document and prefers shorter, more
// durable selectors: an id wins over a data attribute, which wins over a
// class combination, which wins over a positional path. Selectors are only
// validated for uniqueness at synthesis time; runtime resolution failures
// are the locator's problem, not ours.
package selector

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// maxPathDepth bounds the positional fallback path.
const maxPathDepth = 5

// volatileClass matches state classes that churn with interaction and would
// make a selector unstable.
var volatileClass = regexp.MustCompile(`(?i)hover|active|focus|disabled|selected`)

var errNotElement = errors.New("selector: node is not an element")

// Synthesize produces a CSS selector string intended to uniquely and durably
// identify n within its document.
func Synthesize(n *html.Node) (string, error) {
	if n == nil || n.Type != html.ElementNode {
		return "", errNotElement
	}

	if id := attr(n, "id"); id != "" {
		return "#" + escapeIdent(id), nil
	}

	if sel, ok := dataAttrSelector(n); ok {
		return sel, nil
	}

	if sel, ok := classSelector(n); ok {
		return sel, nil
	}

	return positionalPath(n), nil
}

// Matches reports how many elements under root match sel. A selector that
// fails to parse matches nothing.
func Matches(root *html.Node, sel string) int {
	s, err := cascadia.Compile(sel)
	if err != nil {
		return 0
	}
	return len(s.MatchAll(root))
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// dataAttrSelector prefers data-testid, then the first data-* attribute in
// attribute-name order.
func dataAttrSelector(n *html.Node) (string, bool) {
	if v := attr(n, "data-testid"); v != "" {
		return fmt.Sprintf(`[data-testid=%s]`, quoteAttr(v)), true
	}

	var names []string
	for _, a := range n.Attr {
		if strings.HasPrefix(a.Key, "data-") && a.Val != "" {
			names = append(names, a.Key)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	name := names[0]
	return fmt.Sprintf(`[%s=%s]`, name, quoteAttr(attr(n, name))), true
}

// classSelector builds tag.class1.class2 from the element's stable classes,
// and uses it only when it matches exactly one element in the document.
func classSelector(n *html.Node) (string, bool) {
	raw := strings.Fields(attr(n, "class"))
	var stable []string
	for _, c := range raw {
		if !volatileClass.MatchString(c) {
			stable = append(stable, c)
		}
	}
	if len(stable) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString(n.Data)
	for _, c := range stable {
		b.WriteByte('.')
		b.WriteString(escapeIdent(c))
	}
	sel := b.String()

	if Matches(documentRoot(n), sel) == 1 {
		return sel, true
	}
	return "", false
}

// positionalPath emits "tag:nth-of-type(i) > ... > tag", walking at most
// maxPathDepth ancestors and stopping at <body> or at an ancestor with an
// id, which then anchors the path.
func positionalPath(n *html.Node) string {
	var parts []string

	cur := n
	for depth := 0; cur != nil && cur.Type == html.ElementNode; depth++ {
		if cur.Data == "body" || cur.Data == "html" {
			break
		}
		if id := attr(cur, "id"); id != "" && cur != n {
			parts = append([]string{"#" + escapeIdent(id)}, parts...)
			break
		}
		if depth >= maxPathDepth {
			break
		}
		parts = append([]string{segment(cur)}, parts...)
		cur = parentElement(cur)
	}

	return strings.Join(parts, " > ")
}

func segment(n *html.Node) string {
	if countSameTagSiblings(n) > 1 {
		return fmt.Sprintf("%s:nth-of-type(%d)", n.Data, nthOfType(n))
	}
	return n.Data
}

func parentElement(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

func documentRoot(n *html.Node) *html.Node {
	root := n
	for root.Parent != nil {
		root = root.Parent
	}
	return root
}

func countSameTagSiblings(n *html.Node) int {
	if n.Parent == nil {
		return 1
	}
	count := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == n.Data {
			count++
		}
	}
	return count
}

// nthOfType is the 1-based index of n among its same-tag element siblings.
func nthOfType(n *html.Node) int {
	idx := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == n.Data {
			idx++
			if c == n {
				return idx
			}
		}
	}
	return idx
}

// escapeIdent escapes a string for use as a CSS identifier, following the
// CSS.escape() serialization rules closely enough for ids and class names
// seen in the wild.
func escapeIdent(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == 0:
			b.WriteRune('�')
		case r >= '0' && r <= '9' && (i == 0 || (i == 1 && s[0] == '-')):
			fmt.Fprintf(&b, `\3%c `, r)
		case r == '-' && i == 0 && len(s) == 1:
			b.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// quoteAttr renders an attribute value as a double-quoted CSS string.
func quoteAttr(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
