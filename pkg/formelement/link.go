package formelement

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/serial"
)

// linkParts splits a stored link into URL and text. Legacy rows store a
// bare URL.
func linkParts(value string) (href, label string) {
	vals := serial.Values(value)
	if len(vals) > 0 {
		href = strings.TrimSpace(vals[0])
	}
	if len(vals) > 1 {
		label = strings.TrimSpace(vals[1])
	}
	return href, label
}

// SafeURL reports whether href may be used as a link target: http, https
// and mailto URLs, or references without a scheme.
func SafeURL(href string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto":
		return true
	}
	return false
}

type linkElement struct{}

func (linkElement) Render(r *Renderer, def *fielddef.Definition, value string, opt Options) []*html.Node {
	href, label := linkParts(value)
	name := inputName(def, opt, true)
	u := input(def, opt, "url", name)
	setAttr(u, "value", href)
	setAttr(u, "placeholder", r.t("(URL)"))
	t := elem("input",
		attr("type", "text"),
		attr("name", name),
		attr("class", "pdb-link-text"),
		attr("value", label),
		attr("placeholder", r.t("Link Text")),
	)
	return []*html.Node{u, t}
}

func (linkElement) Display(_ *Renderer, _ *fielddef.Definition, value string, _ DisplayOptions) []*html.Node {
	href, label := linkParts(value)
	if href == "" {
		if label == "" {
			return nil
		}
		return []*html.Node{text(label)}
	}
	if label == "" {
		label = href
	}
	if !SafeURL(href) {
		return []*html.Node{text(label)}
	}
	return []*html.Node{withChildren(elem("a", attr("href", href)), text(label))}
}

func (linkElement) Parse(_ *Renderer, _ *fielddef.Definition, sub Submission) (string, error) {
	var href, label string
	if len(sub.Values) > 0 {
		href = strings.TrimSpace(sub.Values[0])
	}
	if len(sub.Values) > 1 {
		label = strings.TrimSpace(sub.Values[1])
	}
	if href == "" {
		return "", nil
	}
	if !SafeURL(href) {
		return "", fmt.Errorf("%w: link %q", ErrInvalidValue, href)
	}
	return serial.Encode([]string{href, label}), nil
}
