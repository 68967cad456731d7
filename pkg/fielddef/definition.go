// Package fielddef models the runtime defined fields of the records table and
// the cached registry they are read through.
package fielddef

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by sources for unknown field names.
var ErrNotFound = errors.New("fielddef: field not found")

// InternalGroup holds the system fields every records table carries.
const InternalGroup = "internal"

// Definition is the schema of one field.
type Definition struct {
	ID                int64   `yaml:"-" json:"id"`
	Name              string  `yaml:"name" json:"name"`
	Title             string  `yaml:"title" json:"title"`
	Type              Type    `yaml:"form_element" json:"form_element"`
	Group             string  `yaml:"group" json:"group"`
	Order             int     `yaml:"order,omitempty" json:"order"`
	Default           string  `yaml:"default,omitempty" json:"default,omitempty"`
	Validation        string  `yaml:"validation,omitempty" json:"validation,omitempty"`
	ValidationMessage string  `yaml:"validation_message,omitempty" json:"validation_message,omitempty"`
	HelpText          string  `yaml:"help_text,omitempty" json:"help_text,omitempty"`
	Options           Options `yaml:"options,omitempty" json:"options,omitempty"`
	Attributes        Options `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Sortable          bool    `yaml:"sortable,omitempty" json:"sortable"`
	CSV               bool    `yaml:"csv,omitempty" json:"csv"`
	Persistent        bool    `yaml:"persistent,omitempty" json:"persistent"`
	Signup            bool    `yaml:"signup,omitempty" json:"signup"`
	Readonly          bool    `yaml:"readonly,omitempty" json:"readonly"`

	missing bool
}

// Missing returns the placeholder definition handed out for unknown names.
func Missing(name string) *Definition {
	return &Definition{Name: name, missing: true}
}

// Exists reports whether the definition was loaded from a source.
func (d *Definition) Exists() bool { return d != nil && !d.missing && d.Name != "" }

func (d *Definition) behavior() Behavior {
	b, _ := Lookup(d.Type)
	return b
}

// Datatype is the SQL column type of the field.
func (d *Definition) Datatype() string {
	if !d.Exists() {
		return ""
	}
	return d.behavior().Datatype
}

// StoresData reports whether the field has a column in the records table.
func (d *Definition) StoresData() bool { return d.Datatype() != "" }

func (d *Definition) IsValueSet() bool { return d.Exists() && d.behavior().ValueSet }
func (d *Definition) IsMulti() bool    { return d.Exists() && d.behavior().Multi }
func (d *Definition) IsNumeric() bool  { return d.Exists() && d.behavior().Numeric }
func (d *Definition) IsDate() bool     { return d.Exists() && d.behavior().Date }
func (d *Definition) IsLink() bool     { return d.Exists() && d.behavior().Link }
func (d *Definition) IsUpload() bool   { return d.Exists() && d.behavior().Upload }
func (d *Definition) HasOther() bool   { return d.Exists() && d.behavior().Other }
func (d *Definition) AllowsHTML() bool { return d.Exists() && d.behavior().HTML }

// IsReadonly reports whether writes from unprivileged callers are ignored.
// Timestamps are always read only.
func (d *Definition) IsReadonly() bool {
	return d.Exists() && (d.Readonly || d.Type == Timestamp)
}

// IsInternal reports whether the field belongs to the internal group.
func (d *Definition) IsInternal() bool { return d.Exists() && d.Group == InternalGroup }

// SelectOptions returns the options without the reserved null_select entry.
func (d *Definition) SelectOptions() Options {
	if d == nil {
		return nil
	}
	return d.Options.Without(NullSelectKey)
}

// OptionTitle maps a stored value onto its option title.
func (d *Definition) OptionTitle(v string) string {
	return d.SelectOptions().TitleFor(v)
}

// OptionValue maps a submitted title or value onto the stored value.
func (d *Definition) OptionValue(s string) string {
	v, _ := d.SelectOptions().ValueFor(s)
	return v
}

// Attr returns the attribute named name.
func (d *Definition) Attr(name string) string {
	if d == nil {
		return ""
	}
	v, _ := d.Attributes.Get(name)
	return v
}

// AttrBool reads an attribute as a flag.
func (d *Definition) AttrBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(d.Attr(name))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// NullOption describes the "nothing chosen" entry of a value set field.
type NullOption struct {
	Label      string
	Configured bool
	Disabled   bool
}

// NullSelect returns the configured null option.
func (d *Definition) NullSelect() NullOption {
	if d == nil {
		return NullOption{}
	}
	v, ok := d.Options.Get(NullSelectKey)
	if !ok {
		return NullOption{}
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "0", "no":
		return NullOption{Configured: true, Disabled: true}
	case "true", "1", "yes":
		return NullOption{Configured: true}
	}
	return NullOption{Label: v, Configured: true}
}

// Clone returns a deep copy of d.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	c.Options = append(Options(nil), d.Options...)
	c.Attributes = append(Options(nil), d.Attributes...)
	return &c
}

// Group is a named category of fields.
type Group struct {
	ID    int64  `yaml:"-" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Title string `yaml:"title" json:"title"`
	Order int    `yaml:"order,omitempty" json:"order"`
	Mode  string `yaml:"mode,omitempty" json:"mode"`
}

// Group modes.
const (
	ModePublic  = "public"
	ModePrivate = "private"
	ModeAdmin   = "admin"
)

// Internal field names.
const (
	FieldID           = "id"
	FieldPrivateID    = "private_id"
	FieldDateRecorded = "date_recorded"
	FieldDateUpdated  = "date_updated"
	FieldLastAccessed = "last_accessed"
	FieldApproved     = "approved"
)

// InternalFields returns the system field definitions.
func InternalFields() []*Definition {
	return []*Definition{
		{Name: FieldID, Title: "Record ID", Type: Numeric, Group: InternalGroup, Readonly: true, Sortable: true, CSV: true},
		{Name: FieldPrivateID, Title: "Private ID", Type: TextLine, Group: InternalGroup, Readonly: true, CSV: true},
		{Name: FieldDateRecorded, Title: "Date Recorded", Type: Timestamp, Group: InternalGroup, Readonly: true, Sortable: true, CSV: true},
		{Name: FieldDateUpdated, Title: "Date Updated", Type: Timestamp, Group: InternalGroup, Readonly: true, Sortable: true, CSV: true},
		{Name: FieldLastAccessed, Title: "Last Accessed", Type: Timestamp, Group: InternalGroup, Readonly: true, Sortable: true},
		{Name: FieldApproved, Title: "Approved", Type: Checkbox, Group: InternalGroup, Options: Options{{Title: "Approved", Value: "yes"}}},
	}
}

func internalField(name string) (*Definition, bool) {
	for _, d := range InternalFields() {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// WithInternal appends the internal fields defs lacks.
func WithInternal(defs []*Definition) []*Definition {
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		seen[d.Name] = true
	}
	out := append([]*Definition(nil), defs...)
	for _, d := range InternalFields() {
		if !seen[d.Name] {
			out = append(out, d)
		}
	}
	return out
}
