package main

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/faciam-dev/gpdb/internal/pluginloader"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/formelement"
)

const ratingType fielddef.Type = "rating"

type element struct{}

func (element) Render(_ *formelement.Renderer, def *fielddef.Definition, value string, _ formelement.Options) []*html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: atom.Input, Data: "input", Attr: []html.Attribute{
		{Key: "type", Val: "range"},
		{Key: "name", Val: def.Name},
		{Key: "min", Val: "1"},
		{Key: "max", Val: "5"},
		{Key: "value", Val: value},
	}}
	return []*html.Node{n}
}

func (element) Display(_ *formelement.Renderer, _ *fielddef.Definition, value string, _ formelement.DisplayOptions) []*html.Node {
	n, _ := strconv.Atoi(value)
	if n < 0 {
		n = 0
	}
	return []*html.Node{{Type: html.TextNode, Data: strings.Repeat("★", n)}}
}

func (element) Parse(_ *formelement.Renderer, _ *fielddef.Definition, sub formelement.Submission) (string, error) {
	v := sub.Last()
	if v == "" {
		return "", nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 5 {
		return "", formelement.ErrInvalidValue
	}
	return strconv.Itoa(n), nil
}

type ratingPlugin struct{}

func (ratingPlugin) Name() string { return "rating" }

func (ratingPlugin) Setup(h *pluginloader.Host) error {
	return h.RegisterType(ratingType, fielddef.Behavior{Title: "Rating", Datatype: "TINYINT", Numeric: true}, element{})
}

func New() pluginloader.Plugin { return ratingPlugin{} }
