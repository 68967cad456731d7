package formelement

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/serial"
)

// OtherValue is submitted by the "other" entry of a value set field; the
// free text sibling then carries the value.
const OtherValue = "__other__"

// nullEntry reports whether a "nothing chosen" entry is rendered and its
// label. Without a configured null option a blank one is synthesised when
// the field has neither a default nor a value.
func (r *Renderer) nullEntry(def *fielddef.Definition, value string) (string, bool) {
	if def.IsMulti() {
		return "", false
	}
	n := def.NullSelect()
	if n.Configured {
		if n.Disabled {
			return "", false
		}
		return r.t(n.Label), true
	}
	return "", def.Default == "" && value == ""
}

// storedValues splits a stored value into its elements, mapping titles
// onto option values for legacy rows.
func storedValues(def *fielddef.Definition, value string) []string {
	var raw []string
	if def.IsMulti() {
		raw = serial.Values(value)
	} else if value != "" {
		raw = []string{value}
	}
	opts := def.SelectOptions()
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if v == "" {
			continue
		}
		if mapped, ok := opts.ValueFor(v); ok {
			v = mapped
		}
		out = append(out, v)
	}
	return out
}

// split separates values present in the options from the rest.
func split(def *fielddef.Definition, vals []string) (chosen map[string]bool, extra []string) {
	opts := def.SelectOptions()
	chosen = make(map[string]bool, len(vals))
	for _, v := range vals {
		if opts.HasValue(v) {
			chosen[v] = true
		} else {
			extra = append(extra, v)
		}
	}
	return chosen, extra
}

func (r *Renderer) otherInput(def *fielddef.Definition, opt Options, extra []string) *html.Node {
	n := elem("input",
		attr("type", "text"),
		attr("name", baseName(def, opt)+OtherSuffix),
		attr("class", "pdb-other"),
		attr("placeholder", r.t("(other)")),
	)
	if len(extra) > 0 {
		setAttr(n, "value", extra[0])
	} else {
		flag(n, "disabled")
	}
	return n
}

type selectElement struct{}

func (selectElement) Render(r *Renderer, def *fielddef.Definition, value string, opt Options) []*html.Node {
	multi := def.IsMulti()
	sel := elem("select", attr("name", inputName(def, opt, multi)))
	decorate(sel, def, opt)
	if multi {
		flag(sel, "multiple")
	}
	chosen, extra := split(def, storedValues(def, value))
	option := func(v, title string, selected bool) {
		o := withChildren(elem("option", attr("value", v)), text(title))
		if selected {
			flag(o, "selected")
		}
		sel.AppendChild(o)
	}
	if lbl, ok := r.nullEntry(def, value); ok {
		option("", lbl, len(chosen) == 0 && len(extra) == 0)
	}
	for _, o := range def.SelectOptions() {
		option(o.Value, r.t(o.Title), chosen[o.Value])
	}
	var nodes []*html.Node
	if multi {
		nodes = append(nodes, hidden(inputName(def, opt, true), ""))
	}
	nodes = append(nodes, sel)
	if def.HasOther() {
		option(OtherValue, r.t("other"), len(extra) > 0)
		nodes = append(nodes, r.otherInput(def, opt, extra))
		return nodes
	}
	for _, v := range extra {
		option(v, v, true)
	}
	return nodes
}

func (selectElement) Display(r *Renderer, def *fielddef.Definition, value string, opt DisplayOptions) []*html.Node {
	return displayChoice(r, def, value, opt)
}

func (selectElement) Parse(_ *Renderer, def *fielddef.Definition, sub Submission) (string, error) {
	return parseChoice(def, sub), nil
}

type choiceElement struct{}

func (choiceElement) Render(r *Renderer, def *fielddef.Definition, value string, opt Options) []*html.Node {
	multi := def.IsMulti()
	name := inputName(def, opt, multi)
	typ := "radio"
	if multi {
		typ = "checkbox"
	}
	wrap := elem("span")
	decorate(wrap, def, opt)
	if multi {
		wrap.AppendChild(hidden(name, ""))
	}
	chosen, extra := split(def, storedValues(def, value))
	choice := func(v, title string, checked bool) {
		in := elem("input", attr("type", typ), attr("name", name), attr("value", v))
		if checked {
			flag(in, "checked")
		}
		if opt.Readonly {
			flag(in, "readonly")
		}
		wrap.AppendChild(label(in, text(" "+title)))
	}
	if lbl, ok := r.nullEntry(def, value); ok {
		choice("", lbl, len(chosen) == 0 && len(extra) == 0)
	}
	for _, o := range def.SelectOptions() {
		choice(o.Value, r.t(o.Title), chosen[o.Value])
	}
	if def.HasOther() {
		choice(OtherValue, r.t("other"), len(extra) > 0)
		wrap.AppendChild(r.otherInput(def, opt, extra))
		return []*html.Node{wrap}
	}
	for _, v := range extra {
		choice(v, v, true)
	}
	return []*html.Node{wrap}
}

func (choiceElement) Display(r *Renderer, def *fielddef.Definition, value string, opt DisplayOptions) []*html.Node {
	return displayChoice(r, def, value, opt)
}

func (choiceElement) Parse(_ *Renderer, def *fielddef.Definition, sub Submission) (string, error) {
	return parseChoice(def, sub), nil
}

// parseChoice keeps the non-empty submitted values. The "other" entry is
// replaced by the free text sibling.
func parseChoice(def *fielddef.Definition, sub Submission) string {
	var vals []string
	other := false
	for _, v := range sub.Values {
		v = strings.TrimSpace(v)
		switch v {
		case "":
			continue
		case OtherValue:
			other = true
			continue
		}
		vals = append(vals, v)
	}
	if def.HasOther() && sub.Other != "" && (other || len(vals) == 0) {
		vals = append(vals, sub.Other)
	}
	if def.IsMulti() {
		return serial.Encode(vals)
	}
	if len(vals) == 0 {
		return ""
	}
	return vals[len(vals)-1]
}

func displayChoice(r *Renderer, def *fielddef.Definition, value string, opt DisplayOptions) []*html.Node {
	vals := storedValues(def, value)
	if len(vals) == 0 {
		return nil
	}
	titles := make([]string, len(vals))
	for i, v := range vals {
		titles[i] = r.t(def.OptionTitle(v))
	}
	return []*html.Node{text(strings.Join(titles, r.glue(opt)))}
}

// checkboxElement is a single checkbox. The first option is the checked
// value and the second, if any, the value submitted when unchecked.
type checkboxElement struct{}

func checkboxValues(def *fielddef.Definition) (on, off, title string) {
	opts := def.SelectOptions()
	on, title = "1", def.Title
	if len(opts) > 0 {
		on, title = opts[0].Value, opts[0].Title
	}
	if len(opts) > 1 {
		off = opts[1].Value
	}
	return on, off, title
}

func (checkboxElement) Render(r *Renderer, def *fielddef.Definition, value string, opt Options) []*html.Node {
	on, off, title := checkboxValues(def)
	name := inputName(def, opt, false)
	box := input(def, opt, "checkbox", name)
	setAttr(box, "value", on)
	if value == on {
		flag(box, "checked")
	}
	return []*html.Node{hidden(name, off), label(box, text(" "+r.t(title)))}
}

func (checkboxElement) Display(r *Renderer, def *fielddef.Definition, value string, opt DisplayOptions) []*html.Node {
	return displayChoice(r, def, value, opt)
}

func (checkboxElement) Parse(_ *Renderer, _ *fielddef.Definition, sub Submission) (string, error) {
	return strings.TrimSpace(sub.Last()), nil
}
