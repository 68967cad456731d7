package formelement

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
)

type textElement struct {
	input string
	step  string
	area  bool
	rich  bool
}

func (e textElement) Render(_ *Renderer, def *fielddef.Definition, value string, opt Options) []*html.Node {
	name := inputName(def, opt, false)
	if e.area {
		n := elem("textarea", attr("name", name))
		decorate(n, def, opt)
		return []*html.Node{withChildren(n, text(value))}
	}
	n := input(def, opt, e.input, name)
	if e.step != "" {
		setAttr(n, "step", e.step)
	}
	setAttr(n, "value", value)
	return []*html.Node{n}
}

func (e textElement) Display(r *Renderer, def *fielddef.Definition, value string, opt DisplayOptions) []*html.Node {
	switch {
	case e.rich:
		nodes, err := html.ParseFragment(strings.NewReader(value), elem("div"))
		if err != nil {
			return []*html.Node{text(value)}
		}
		return nodes
	case e.input == "number" && e.step == "0.01" && value != "":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return []*html.Node{text(strconv.FormatFloat(f, 'f', 2, 64))}
		}
	case e.input == "hidden" && def.IsDynamic() && value == "":
		return nil
	}
	return r.escaped(value, opt)
}

func (e textElement) Parse(_ *Renderer, def *fielddef.Definition, sub Submission) (string, error) {
	v := sub.Last()
	if e.input == "number" {
		v = strings.TrimSpace(v)
		if v == "" {
			return "", nil
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return "", ErrInvalidValue
		}
		if e.step == "1" {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return "", ErrInvalidValue
			}
		}
	}
	return v, nil
}

type placeholderElement struct{}

func (placeholderElement) Render(r *Renderer, def *fielddef.Definition, _ string, opt Options) []*html.Node {
	n := elem("span")
	decorate(n, def, opt)
	content := def.Default
	if content == "" {
		content = def.Title
	}
	return []*html.Node{withChildren(n, text(r.t(content)))}
}

func (placeholderElement) Display(r *Renderer, def *fielddef.Definition, _ string, _ DisplayOptions) []*html.Node {
	if def.Default == "" {
		return nil
	}
	return []*html.Node{text(r.t(def.Default))}
}

func (placeholderElement) Parse(*Renderer, *fielddef.Definition, Submission) (string, error) {
	return "", nil
}
