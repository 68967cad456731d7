package fielddef

import (
	"errors"
	"sort"
	"sync"
)

// Type is the form element tag of a field.
type Type string

// Built in form element types.
const (
	TextLine         Type = "text-line"
	TextArea         Type = "text-area"
	RichText         Type = "rich-text"
	Checkbox         Type = "checkbox"
	Radio            Type = "radio"
	Dropdown         Type = "dropdown"
	DropdownOther    Type = "dropdown-other"
	MultiCheckbox    Type = "multi-checkbox"
	MultiDropdown    Type = "multi-dropdown"
	SelectOther      Type = "select-other"
	MultiSelectOther Type = "multi-select-other"
	Date             Type = "date"
	Timestamp        Type = "timestamp"
	Numeric          Type = "numeric"
	Decimal          Type = "decimal"
	Currency         Type = "currency"
	Link             Type = "link"
	ImageUpload      Type = "image-upload"
	FileUpload       Type = "file-upload"
	Hidden           Type = "hidden"
	Password         Type = "password"
	Captcha          Type = "captcha"
	Placeholder      Type = "placeholder"
)

// Behavior describes how a form element type stores and compares its value.
// An empty Datatype means the type never reaches the records table.
type Behavior struct {
	Title    string
	Datatype string
	Multi    bool
	ValueSet bool
	Numeric  bool
	Date     bool
	Link     bool
	Upload   bool
	Other    bool
	HTML     bool
}

// ErrTypeExists is returned when registering a type tag twice.
var ErrTypeExists = errors.New("fielddef: type already registered")

var (
	typesMu sync.RWMutex
	types   = map[Type]Behavior{
		TextLine:         {Title: "Text-line", Datatype: "VARCHAR(255)"},
		TextArea:         {Title: "Text Area", Datatype: "TEXT"},
		RichText:         {Title: "Rich Text", Datatype: "TEXT", HTML: true},
		Checkbox:         {Title: "Checkbox", Datatype: "VARCHAR(255)", ValueSet: true},
		Radio:            {Title: "Radio Buttons", Datatype: "VARCHAR(255)", ValueSet: true},
		Dropdown:         {Title: "Dropdown List", Datatype: "VARCHAR(255)", ValueSet: true},
		DropdownOther:    {Title: "Dropdown/Other", Datatype: "VARCHAR(255)", ValueSet: true, Other: true},
		MultiCheckbox:    {Title: "Multiselect Checkbox", Datatype: "TEXT", ValueSet: true, Multi: true},
		MultiDropdown:    {Title: "Multiselect Dropdown", Datatype: "TEXT", ValueSet: true, Multi: true},
		SelectOther:      {Title: "Radio Buttons/Other", Datatype: "VARCHAR(255)", ValueSet: true, Other: true},
		MultiSelectOther: {Title: "Multiselect/Other", Datatype: "TEXT", ValueSet: true, Multi: true, Other: true},
		Date:             {Title: "Date Field", Datatype: "BIGINT", Numeric: true, Date: true},
		Timestamp:        {Title: "Timestamp", Datatype: "TIMESTAMP", Date: true},
		Numeric:          {Title: "Numeric", Datatype: "BIGINT", Numeric: true},
		Decimal:          {Title: "Decimal", Datatype: "DECIMAL(14,4)", Numeric: true},
		Currency:         {Title: "Currency", Datatype: "DECIMAL(10,2)", Numeric: true},
		Link:             {Title: "Link Field", Datatype: "TEXT", Multi: true, Link: true},
		ImageUpload:      {Title: "Image Upload Field", Datatype: "TEXT", Upload: true},
		FileUpload:       {Title: "File Upload Field", Datatype: "TEXT", Upload: true},
		Hidden:           {Title: "Hidden Field", Datatype: "TEXT"},
		Password:         {Title: "Password Field", Datatype: "VARCHAR(255)"},
		Captcha:          {Title: "CAPTCHA"},
		Placeholder:      {Title: "Placeholder"},
	}
)

// Lookup returns the behavior of t. Unknown tags behave as text-line and
// report ok=false.
func Lookup(t Type) (b Behavior, ok bool) {
	typesMu.RLock()
	defer typesMu.RUnlock()
	b, ok = types[t]
	if !ok {
		return types[TextLine], false
	}
	return b, true
}

// RegisterType adds a custom form element type.
func RegisterType(t Type, b Behavior) error {
	typesMu.Lock()
	defer typesMu.Unlock()
	if _, ok := types[t]; ok {
		return ErrTypeExists
	}
	types[t] = b
	return nil
}

// Types returns every registered type tag sorted by name.
func Types() []Type {
	typesMu.RLock()
	defer typesMu.RUnlock()
	out := make([]Type, 0, len(types))
	for t := range types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
