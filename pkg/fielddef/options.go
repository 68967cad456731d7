package fielddef

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// NullSelectKey is the reserved option title configuring the null option of
// value set fields.
const NullSelectKey = "null_select"

// Option is one title/value pair.
type Option struct {
	Title string
	Value string
}

// Options is an ordered title to value map.
type Options []Option

// Get returns the value stored under title.
func (o Options) Get(title string) (string, bool) {
	for _, op := range o {
		if op.Title == title {
			return op.Value, true
		}
	}
	return "", false
}

// Set replaces the value under title or appends a new pair.
func (o *Options) Set(title, value string) {
	for i := range *o {
		if (*o)[i].Title == title {
			(*o)[i].Value = value
			return
		}
	}
	*o = append(*o, Option{Title: title, Value: value})
}

// Without returns a copy of o without the entry titled title.
func (o Options) Without(title string) Options {
	out := make(Options, 0, len(o))
	for _, op := range o {
		if op.Title != title {
			out = append(out, op)
		}
	}
	return out
}

// Values lists option values in order.
func (o Options) Values() []string {
	out := make([]string, len(o))
	for i, op := range o {
		out[i] = op.Value
	}
	return out
}

// HasValue reports whether v is one of the option values.
func (o Options) HasValue(v string) bool {
	for _, op := range o {
		if op.Value == v {
			return true
		}
	}
	return false
}

// TitleFor returns the title of the option whose value is v, or v itself.
func (o Options) TitleFor(v string) string {
	for _, op := range o {
		if op.Value == v {
			return op.Title
		}
	}
	return v
}

// ValueFor maps a title or value onto the stored value. Values take
// precedence over titles.
func (o Options) ValueFor(s string) (string, bool) {
	if o.HasValue(s) {
		return s, true
	}
	for _, op := range o {
		if strings.EqualFold(op.Title, s) {
			return op.Value, true
		}
	}
	return s, false
}

func (o Options) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, op := range o {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: op.Title},
			&yaml.Node{Kind: yaml.ScalarNode, Value: op.Value})
	}
	return n, nil
}

// UnmarshalYAML accepts a mapping (order kept), a sequence of scalars where
// title and value coincide, or a sequence of single entry mappings.
func (o *Options) UnmarshalYAML(n *yaml.Node) error {
	*o = nil
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			*o = append(*o, Option{Title: n.Content[i].Value, Value: n.Content[i+1].Value})
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			switch c.Kind {
			case yaml.ScalarNode:
				*o = append(*o, Option{Title: c.Value, Value: c.Value})
			case yaml.MappingNode:
				for i := 0; i+1 < len(c.Content); i += 2 {
					*o = append(*o, Option{Title: c.Content[i].Value, Value: c.Content[i+1].Value})
				}
			default:
				return fmt.Errorf("options: unexpected node at line %d", c.Line)
			}
		}
	case yaml.ScalarNode:
		parsed, err := ParseOptions(n.Value)
		if err != nil {
			return err
		}
		*o = parsed
	default:
		return fmt.Errorf("options: unexpected node at line %d", n.Line)
	}
	return nil
}

func (o Options) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, op := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(op.Title)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(op.Value)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON accepts an object (key order is kept) or an array whose
// entries are strings or [title, value] pairs.
func (o *Options) UnmarshalJSON(b []byte) error {
	*o = nil
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch tok {
	case json.Delim('{'):
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return err
			}
			var v any
			if err := dec.Decode(&v); err != nil {
				return err
			}
			*o = append(*o, Option{Title: fmt.Sprint(kt), Value: scalarString(v)})
		}
	case json.Delim('['):
		for dec.More() {
			var v any
			if err := dec.Decode(&v); err != nil {
				return err
			}
			switch tv := v.(type) {
			case []any:
				if len(tv) != 2 {
					return fmt.Errorf("options: pair must have two elements")
				}
				*o = append(*o, Option{Title: scalarString(tv[0]), Value: scalarString(tv[1])})
			default:
				s := scalarString(tv)
				*o = append(*o, Option{Title: s, Value: s})
			}
		}
	case nil:
		return nil
	default:
		return fmt.Errorf("options: unexpected token %v", tok)
	}
	return nil
}

func scalarString(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case bool:
		if tv {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(tv)
	}
}

// ParseOptions reads options from JSON or from a comma separated list of
// "title::value" or bare entries.
func ParseOptions(s string) (Options, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if s[0] == '{' || s[0] == '[' {
		var o Options
		if err := json.Unmarshal([]byte(s), &o); err != nil {
			return nil, fmt.Errorf("parse options: %w", err)
		}
		return o, nil
	}
	var o Options
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		title, value, found := strings.Cut(part, "::")
		title = strings.TrimSpace(title)
		if !found {
			o = append(o, Option{Title: title, Value: title})
			continue
		}
		o = append(o, Option{Title: title, Value: strings.TrimSpace(value)})
	}
	return o, nil
}
