package pluginloader

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/formelement"
	"github.com/faciam-dev/gpdb/pkg/hooks"
)

type ratingElement struct{}

func (ratingElement) Render(_ *formelement.Renderer, def *fielddef.Definition, value string, _ formelement.Options) []*html.Node {
	return []*html.Node{{Type: html.TextNode, Data: "rating:" + value}}
}

func (ratingElement) Display(_ *formelement.Renderer, _ *fielddef.Definition, value string, _ formelement.DisplayOptions) []*html.Node {
	return []*html.Node{{Type: html.TextNode, Data: strings.Repeat("*", len(value))}}
}

func (ratingElement) Parse(_ *formelement.Renderer, _ *fielddef.Definition, sub formelement.Submission) (string, error) {
	return sub.Last(), nil
}

type ratingPlugin struct{ typ fielddef.Type }

func (p ratingPlugin) Name() string { return "rating" }

func (p ratingPlugin) Setup(h *Host) error {
	h.On(hooks.FieldLoaded, hooks.Typed(func(_ context.Context, d *fielddef.Definition) (*fielddef.Definition, bool) {
		if d.Type == p.typ && d.HelpText == "" {
			d.HelpText = "1 to 5"
		}
		return d, true
	}))
	return h.RegisterType(p.typ, fielddef.Behavior{Title: "Rating", Datatype: "VARCHAR(8)"}, ratingElement{})
}

func TestInstall(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	host := &Host{Renderer: formelement.New(nil, nil), Hooks: hooks.New()}
	p := ratingPlugin{typ: "rating-test-install"}
	if err := Install(p, host, logger); err != nil {
		t.Fatalf("install: %v", err)
	}
	def := &fielddef.Definition{Name: "score", Type: p.typ}
	if !def.StoresData() {
		t.Fatalf("custom type should store data")
	}
	if got := host.Renderer.Render(def, "4", formelement.Options{}); got != "rating:4" {
		t.Fatalf("Render=%q", got)
	}
	if !host.Hooks.Has(hooks.FieldLoaded) {
		t.Fatalf("hook not subscribed")
	}
	// installing again must not fail even though the type exists
	if err := Install(p, &Host{Renderer: host.Renderer, Hooks: hooks.New()}, logger); err != nil {
		t.Fatalf("reinstall: %v", err)
	}
}

func TestLoadAllEmptyDir(t *testing.T) {
	n, err := LoadAll(t.TempDir(), &Host{}, zaptest.NewLogger(t).Sugar())
	if err != nil || n != 0 {
		t.Fatalf("LoadAll=%d,%v", n, err)
	}
}
