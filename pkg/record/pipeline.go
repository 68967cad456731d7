// Package record prepares, validates and writes participant records.
package record

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/crypto/bcrypt"

	"github.com/faciam-dev/gpdb/internal/logger"
	"github.com/faciam-dev/gpdb/pkg/capability"
	"github.com/faciam-dev/gpdb/pkg/datefmt"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/formelement"
	"github.com/faciam-dev/gpdb/pkg/serial"
	"github.com/faciam-dev/gpdb/pkg/settings"
)

// Mode is the kind of write a column is prepared for.
type Mode int

const (
	ModeInsert Mode = iota
	ModeUpdate
	ModeImport
)

func (m Mode) String() string {
	switch m {
	case ModeUpdate:
		return "update"
	case ModeImport:
		return "import"
	}
	return "insert"
}

// Origin names the surface a write comes from.
type Origin string

const (
	OriginForm     Origin = "form"
	OriginSignup   Origin = "signup"
	OriginInternal Origin = "internal"
	OriginAdmin    Origin = "admin"
	OriginImport   Origin = "import"
	OriginAPI      Origin = "api"
)

// Caller describes who is writing.
type Caller struct {
	Privileged bool
	Origin     Origin
	// Overwrite lets imports blank existing values.
	Overwrite bool
}

// readonlyExempt reports whether c may write read only fields regardless
// of privileges.
func (c Caller) readonlyExempt() bool {
	return c.Origin == OriginSignup || c.Origin == OriginInternal
}

// Value is a submitted field value, scalar or list.
type Value struct {
	Scalar string
	List   []string
	IsList bool
}

// Scalar wraps a single value.
func Scalar(s string) Value { return Value{Scalar: s} }

// List wraps a list value.
func List(vals ...string) Value { return Value{List: vals, IsList: true} }

// String returns the scalar form; lists are serialised.
func (v Value) String() string {
	if v.IsList {
		return serial.Encode(v.List)
	}
	return v.Scalar
}

// Column is one prepared assignment. A nil Value writes NULL.
type Column struct {
	Name  string
	SQL   string
	Value any
	Skip  bool
}

// Pipeline turns submitted values into column assignments.
type Pipeline struct {
	Settings   settings.Store
	Capability capability.Checker
	Env        fielddef.DynamicContext
	Logger     *slog.Logger
	// Sanitize is applied to markup in fields that allow HTML.
	Sanitize *bluemonday.Policy
	// Strip removes all markup from fields that disallow HTML.
	Strip      *bluemonday.Policy
	BcryptCost int
}

// NewPipeline returns a pipeline with the user generated content policy.
func NewPipeline(s settings.Store, c capability.Checker) *Pipeline {
	return &Pipeline{
		Settings:   s,
		Capability: c,
		Sanitize:   bluemonday.UGCPolicy(),
		Strip:      bluemonday.StrictPolicy(),
		BcryptCost: bcrypt.DefaultCost,
	}
}

func (p *Pipeline) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return logger.L
}

func (p *Pipeline) privileged(ctx context.Context, c Caller) bool {
	if c.Privileged {
		return true
	}
	return p.Capability != nil && p.Capability.Can(ctx, capability.EditReadonly, "")
}

func skip(name string) Column { return Column{Name: name, Skip: true} }

func assign(name string, v any) Column {
	if v == nil {
		return Column{Name: name, SQL: name + " = NULL"}
	}
	return Column{Name: name, SQL: name + " = ?", Value: v}
}

// PrepareColumn computes the assignment for def. Columns are skipped when
// the field stores nothing, when a password is left unchanged, when an
// import would blank a value without Overwrite, and when a read only field
// is updated by a caller who may not write it.
func (p *Pipeline) PrepareColumn(ctx context.Context, def *fielddef.Definition, raw Value, mode Mode, caller Caller) Column {
	if !def.StoresData() {
		return skip(def.Name)
	}
	value := raw.Scalar
	if raw.IsList {
		value = serial.Encode(raw.List)
	}
	if def.IsReadonly() && !caller.readonlyExempt() && !p.privileged(ctx, caller) && value != "" {
		p.log().Warn("readonly field write ignored", "field", def.Name, "origin", caller.Origin)
		value = ""
		if mode != ModeInsert {
			return skip(def.Name)
		}
	}
	if def.Type == fielddef.Password && formelement.IsUnchanged(value) {
		return skip(def.Name)
	}
	if value == "" && mode == ModeImport && !caller.Overwrite {
		return skip(def.Name)
	}
	if value == "" && mode == ModeInsert && def.Default != "" {
		value = def.DefaultValue(p.Env)
	}
	if serial.LooksLikeObject(value) {
		p.log().Warn("serialized object rejected", "field", def.Name)
		value = ""
	}

	switch {
	case def.Type == fielddef.Password:
		if value == "" {
			if mode == ModeUpdate {
				return skip(def.Name)
			}
			return assign(def.Name, "")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(value), p.cost())
		if err != nil {
			p.log().Error("hash password", "field", def.Name, "err", err)
			return skip(def.Name)
		}
		return assign(def.Name, string(hash))
	case def.Type == fielddef.Timestamp:
		if value == "" {
			return assign(def.Name, nil)
		}
		if mode != ModeImport {
			// parsed submissions already carry the stored UTC layout
			if t, err := time.ParseInLocation(formelement.TimestampLayout, strings.TrimSpace(value), time.UTC); err == nil {
				return assign(def.Name, formelement.FormatTimestamp(t))
			}
		}
		t, err := datefmt.Parse(value, p.inputFormat(), p.location())
		if err != nil {
			return assign(def.Name, nil)
		}
		return assign(def.Name, formelement.FormatTimestamp(t))
	case def.IsDate():
		if value == "" {
			return assign(def.Name, nil)
		}
		epoch, err := datefmt.ParseEpoch(value, p.inputFormat(), p.location())
		if err != nil {
			return assign(def.Name, nil)
		}
		return assign(def.Name, epoch)
	case def.IsNumeric():
		return assign(def.Name, numeric(value))
	}
	return assign(def.Name, p.clean(def, value, raw.IsList))
}

func (p *Pipeline) cost() int {
	if p.BcryptCost > 0 {
		return p.BcryptCost
	}
	return bcrypt.DefaultCost
}

func (p *Pipeline) inputFormat() string {
	return settings.String(p.Settings, settings.InputDateFormat, datefmt.DefaultFormat)
}

func (p *Pipeline) location() *time.Location {
	return datefmt.Location(settings.String(p.Settings, settings.Timezone, ""))
}

// numeric returns the number in value, or nil for empty and unparseable
// input.
func numeric(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return nil
}

// htmlDisallowed reports whether def opts out of markup.
func htmlDisallowed(def *fielddef.Definition) bool {
	v, ok := def.Attributes.Get("allow_html")
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no", "off", "none":
		return true
	}
	return false
}

func hasMarkup(s string) bool { return strings.ContainsAny(s, "<>") }

// clean sanitises markup in value. Serialised lists are cleaned element by
// element.
func (p *Pipeline) clean(def *fielddef.Definition, value string, list bool) string {
	if !hasMarkup(value) {
		return value
	}
	policy := p.Sanitize
	if htmlDisallowed(def) || (!settings.Bool(p.Settings, settings.AllowTags, true) && !def.AllowsHTML()) {
		policy = p.Strip
	}
	if policy == nil {
		return value
	}
	if list || serial.IsSerialized(value) {
		// malformed serializations are cleaned as plain text
		if vals, err := serial.Decode(value); err == nil {
			for i, v := range vals {
				if hasMarkup(v) {
					vals[i] = policy.Sanitize(v)
				}
			}
			return serial.Encode(vals)
		}
	}
	return policy.Sanitize(value)
}
