package formelement

import (
	"golang.org/x/net/html"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
)

// PasswordDummy is shown in place of a stored password. Submitting it back
// means "unchanged".
const PasswordDummy = "•••••••••••"

// IsUnchanged reports whether a submitted password is the dummy.
func IsUnchanged(v string) bool { return v == PasswordDummy }

type passwordElement struct{}

func (passwordElement) Render(_ *Renderer, def *fielddef.Definition, value string, opt Options) []*html.Node {
	n := input(def, opt, "password", inputName(def, opt, false))
	setAttr(n, "autocomplete", "new-password")
	v := ""
	if value != "" && !opt.Error {
		v = PasswordDummy
	}
	setAttr(n, "value", v)
	return []*html.Node{n}
}

func (passwordElement) Display(_ *Renderer, _ *fielddef.Definition, value string, _ DisplayOptions) []*html.Node {
	if value == "" {
		return nil
	}
	return []*html.Node{text(PasswordDummy)}
}

func (passwordElement) Parse(_ *Renderer, _ *fielddef.Definition, sub Submission) (string, error) {
	return sub.Last(), nil
}
