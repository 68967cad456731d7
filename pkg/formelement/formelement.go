// Package formelement renders field definitions as form markup, formats
// stored values for display and parses submissions back into the stored
// representation of each form element type.
package formelement

import (
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/faciam-dev/gpdb/pkg/datefmt"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/i18n"
	"github.com/faciam-dev/gpdb/pkg/settings"
)

var (
	// ErrCaptcha is returned when a captcha answer does not verify.
	ErrCaptcha = errors.New("formelement: captcha failed")
	// ErrInvalidValue is returned for submissions that cannot be stored.
	ErrInvalidValue = errors.New("formelement: invalid value")
)

// Options tune edit markup.
type Options struct {
	// Name overrides the input name; it defaults to the field name.
	Name  string
	ID    string
	Class string
	// Attributes are added to the primary input verbatim.
	Attributes map[string]string
	// Readonly renders the input read only.
	Readonly bool
	// Editable enables inputs that are disabled by default, such as
	// timestamps.
	Editable bool
	// Error marks a pending validation error on this field.
	Error bool
	// ApplyDefault fills an empty value with the field default.
	ApplyDefault bool
}

// DisplayOptions tune read only output.
type DisplayOptions struct {
	// Glue joins multiple values; it defaults to the multi_glue setting.
	Glue string
	// Links forces URL and email linking on or off; nil follows the
	// make_links setting.
	Links *bool
}

// Submission is what a form posted for one field.
type Submission struct {
	Values []string
	Other  string
	Delete bool
	// Token carries the captcha challenge token.
	Token string
}

// Last returns the final submitted value, which wins for scalar fields.
func (s Submission) Last() string {
	if len(s.Values) == 0 {
		return ""
	}
	return s.Values[len(s.Values)-1]
}

// Value returns a submission of a single value.
func Value(v string) Submission { return Submission{Values: []string{v}} }

// SubmissionFrom collects the inputs Render emits for name from form.
func SubmissionFrom(form url.Values, name string) Submission {
	vals := append([]string(nil), form[name]...)
	vals = append(vals, form[name+"[]"]...)
	return Submission{
		Values: vals,
		Other:  strings.TrimSpace(form.Get(name + OtherSuffix)),
		Delete: form.Get(name+DeleteSuffix) != "",
		Token:  form.Get(name + TokenSuffix),
	}
}

// Sibling input suffixes.
const (
	OtherSuffix  = "_other"
	DeleteSuffix = "_delete"
	TokenSuffix  = "_token"
)

// Element implements one form element type.
type Element interface {
	Render(r *Renderer, def *fielddef.Definition, value string, opt Options) []*html.Node
	Display(r *Renderer, def *fielddef.Definition, value string, opt DisplayOptions) []*html.Node
	Parse(r *Renderer, def *fielddef.Definition, sub Submission) (string, error)
}

var builtin = map[fielddef.Type]Element{
	fielddef.TextLine:         textElement{input: "text"},
	fielddef.TextArea:         textElement{area: true},
	fielddef.RichText:         textElement{area: true, rich: true},
	fielddef.Hidden:           textElement{input: "hidden"},
	fielddef.Numeric:          textElement{input: "number", step: "1"},
	fielddef.Decimal:          textElement{input: "number", step: "any"},
	fielddef.Currency:         textElement{input: "number", step: "0.01"},
	fielddef.Dropdown:         selectElement{},
	fielddef.DropdownOther:    selectElement{},
	fielddef.MultiDropdown:    selectElement{},
	fielddef.Radio:            choiceElement{},
	fielddef.SelectOther:      choiceElement{},
	fielddef.MultiCheckbox:    choiceElement{},
	fielddef.MultiSelectOther: choiceElement{},
	fielddef.Checkbox:         checkboxElement{},
	fielddef.Date:             dateElement{},
	fielddef.Timestamp:        dateElement{},
	fielddef.Link:             linkElement{},
	fielddef.ImageUpload:      uploadElement{image: true},
	fielddef.FileUpload:       uploadElement{},
	fielddef.Password:         passwordElement{},
	fielddef.Captcha:          captchaElement{},
	fielddef.Placeholder:      placeholderElement{},
}

// Renderer turns definitions into markup.
type Renderer struct {
	Translator i18n.Translator
	Settings   settings.Store
	Captcha    CaptchaVerifier
	// Env resolves dynamic default values.
	Env fielddef.DynamicContext
	// FileURL maps a stored upload name onto a public URL.
	FileURL func(name string) string

	mu       sync.RWMutex
	elements map[fielddef.Type]Element
}

// New returns a renderer with the built in element types.
func New(tr i18n.Translator, s settings.Store) *Renderer {
	return &Renderer{Translator: tr, Settings: s, Captcha: NewMathCaptcha(nil)}
}

// Register adds or replaces the element for a custom type.
func (r *Renderer) Register(t fielddef.Type, e Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.elements == nil {
		r.elements = map[fielddef.Type]Element{}
	}
	r.elements[t] = e
}

func (r *Renderer) element(t fielddef.Type) Element {
	r.mu.RLock()
	e, ok := r.elements[t]
	r.mu.RUnlock()
	if ok {
		return e
	}
	if e, ok := builtin[t]; ok {
		return e
	}
	return builtin[fielddef.TextLine]
}

func (r *Renderer) t(s string) string {
	if r.Translator == nil || s == "" {
		return s
	}
	return r.Translator.T(s)
}

func (r *Renderer) location() *time.Location {
	return datefmt.Location(settings.String(r.Settings, settings.Timezone, ""))
}

func (r *Renderer) glue(opt DisplayOptions) string {
	if opt.Glue != "" {
		return opt.Glue
	}
	return settings.String(r.Settings, settings.MultiGlue, ", ")
}

func (r *Renderer) links(opt DisplayOptions) bool {
	if opt.Links != nil {
		return *opt.Links
	}
	return settings.Bool(r.Settings, settings.MakeLinks, false)
}

// Render returns edit markup for def holding value.
func (r *Renderer) Render(def *fielddef.Definition, value string, opt Options) string {
	if !def.Exists() {
		return ""
	}
	if value == "" && opt.ApplyDefault {
		value = def.DefaultValue(r.Env)
	}
	return renderNodes(r.element(def.Type).Render(r, def, value, opt))
}

// Display returns the read only rendering of a stored value.
func (r *Renderer) Display(def *fielddef.Definition, value string, opt DisplayOptions) string {
	if !def.Exists() {
		return html.EscapeString(value)
	}
	return renderNodes(r.element(def.Type).Display(r, def, value, opt))
}

// Parse converts a submission into the stored representation of def.
func (r *Renderer) Parse(def *fielddef.Definition, sub Submission) (string, error) {
	if !def.Exists() {
		return "", fielddef.ErrNotFound
	}
	return r.element(def.Type).Parse(r, def, sub)
}

// inputName returns the submitted name of def.
func inputName(def *fielddef.Definition, opt Options, multi bool) string {
	n := opt.Name
	if n == "" {
		n = def.Name
	}
	if multi {
		n += "[]"
	}
	return n
}

func baseName(def *fielddef.Definition, opt Options) string {
	return inputName(def, opt, false)
}

// input builds the primary input of a field with its common attributes.
func input(def *fielddef.Definition, opt Options, typ, name string) *html.Node {
	n := elem("input", attr("type", typ), attr("name", name))
	decorate(n, def, opt)
	return n
}

// decorate adds id, class and pass-through attributes to the primary
// control of a field.
func decorate(n *html.Node, def *fielddef.Definition, opt Options) {
	id := opt.ID
	if id == "" {
		id = "pdb-" + def.Name
	}
	setAttr(n, "id", id)
	class := "pdb-" + string(def.Type)
	if opt.Class != "" {
		class = opt.Class + " " + class
	}
	setAttr(n, "class", class)
	for _, a := range def.Attributes {
		if passthroughAttrs[a.Title] || strings.HasPrefix(a.Title, "data-") {
			setAttr(n, a.Title, a.Value)
		}
	}
	for _, a := range sortedAttrs(opt.Attributes) {
		setAttr(n, a.Key, a.Val)
	}
	if opt.Readonly {
		flag(n, "readonly")
	}
}

func hidden(name, value string) *html.Node {
	return elem("input", attr("type", "hidden"), attr("name", name), attr("value", value))
}

func label(children ...*html.Node) *html.Node {
	return withChildren(elem("label"), children...)
}

// escaped renders s as text, linked when enabled.
func (r *Renderer) escaped(s string, opt DisplayOptions) []*html.Node {
	if s == "" {
		return nil
	}
	if r.links(opt) {
		return linkify(s)
	}
	return []*html.Node{text(s)}
}
