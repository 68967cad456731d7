package formelement

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func elem(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag)), Attr: attrs}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func withChildren(n *html.Node, children ...*html.Node) *html.Node {
	for _, c := range children {
		if c != nil {
			n.AppendChild(c)
		}
	}
	return n
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, attr(key, val))
}

func flag(n *html.Node, key string) {
	setAttr(n, key, key)
}

// renderNodes serialises nodes in order.
func renderNodes(nodes []*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if err := html.Render(&b, n); err != nil {
			return b.String()
		}
	}
	return b.String()
}

// passthroughAttrs are field attributes copied onto the primary input.
var passthroughAttrs = map[string]bool{
	"placeholder": true, "maxlength": true, "size": true, "rows": true, "cols": true,
	"pattern": true, "autocomplete": true, "min": true, "max": true, "step": true,
	"title": true, "spellcheck": true, "inputmode": true,
}

// sortedAttrs returns the attribute bag in key order.
func sortedAttrs(m map[string]string) []html.Attribute {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]html.Attribute, 0, len(keys))
	for _, k := range keys {
		out = append(out, attr(k, m[k]))
	}
	return out
}

var (
	urlPattern   = regexp.MustCompile(`\bhttps?://[^\s<>"']+[^\s<>"'.,;:!?)]`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// linkify splits s into text and anchor nodes for every URL and email
// address it contains.
func linkify(s string) []*html.Node {
	type match struct {
		start, end int
		mail       bool
	}
	var found []match
	for _, m := range urlPattern.FindAllStringIndex(s, -1) {
		found = append(found, match{m[0], m[1], false})
	}
	for _, m := range emailPattern.FindAllStringIndex(s, -1) {
		overlaps := false
		for _, u := range found {
			if m[0] < u.end && u.start < m[1] {
				overlaps = true
				break
			}
		}
		if !overlaps {
			found = append(found, match{m[0], m[1], true})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })

	var out []*html.Node
	pos := 0
	for _, m := range found {
		if m.start > pos {
			out = append(out, text(s[pos:m.start]))
		}
		target := s[m.start:m.end]
		href := target
		if m.mail {
			href = "mailto:" + target
		}
		out = append(out, withChildren(elem("a", attr("href", href)), text(target)))
		pos = m.end
	}
	if pos < len(s) {
		out = append(out, text(s[pos:]))
	}
	return out
}
