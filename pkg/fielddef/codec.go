package fielddef

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iancoleman/strcase"
	"gopkg.in/yaml.v3"
)

const currentVersion = "1"

// File is the on-disk form of a field schema.
type File struct {
	Version string        `yaml:"version"`
	Groups  []Group       `yaml:"groups,omitempty"`
	Fields  []*Definition `yaml:"fields"`
}

// EncodeYAML serialises groups and fields.
func EncodeYAML(groups []Group, defs []*Definition) ([]byte, error) {
	return yaml.Marshal(File{Version: currentVersion, Groups: groups, Fields: defs})
}

// DecodeYAML parses a schema file. Field names are normalised and fields
// without a type default to text-line.
func DecodeYAML(b []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	switch f.Version {
	case "", currentVersion:
	default:
		return nil, fmt.Errorf("decode fields: unsupported version %q", f.Version)
	}
	f.Version = currentVersion
	seen := map[string]bool{}
	for i, d := range f.Fields {
		if d == nil {
			return nil, fmt.Errorf("decode fields: empty entry %d", i)
		}
		d.Name = NormalizeName(d.Name)
		if d.Name == "" {
			return nil, fmt.Errorf("decode fields: entry %d has no name", i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("decode fields: duplicate field %q", d.Name)
		}
		seen[d.Name] = true
		if d.Type == "" {
			d.Type = TextLine
		}
		if d.Title == "" {
			d.Title = d.Name
		}
	}
	return &f, nil
}

var (
	nameSeparators = regexp.MustCompile(`[^A-Za-z0-9_]+`)
	nameRepeats    = regexp.MustCompile(`_{2,}`)
)

// MaxNameLength bounds column names.
const MaxNameLength = 64

// NormalizeName turns a title or name into a snake_case column name.
func NormalizeName(s string) string {
	s = nameSeparators.ReplaceAllString(s, " ")
	s = strcase.ToSnake(strings.TrimSpace(s))
	s = nameRepeats.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > MaxNameLength {
		s = s[:MaxNameLength]
	}
	return s
}

// ChangeType classifies a schema difference.
type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeDeleted   ChangeType = "deleted"
	ChangeUpdated   ChangeType = "updated"
	ChangeUnchanged ChangeType = "unchanged"
)

// Change is one field level difference.
type Change struct {
	Old  *Definition
	New  *Definition
	Type ChangeType
}

// ColumnChanged reports whether applying c alters the records table.
func (c Change) ColumnChanged() bool {
	switch c.Type {
	case ChangeAdded:
		return c.New.StoresData()
	case ChangeDeleted:
		return c.Old.StoresData()
	case ChangeUpdated:
		return c.Old.Datatype() != c.New.Datatype()
	}
	return false
}

func sameDefinition(a, b *Definition) bool {
	x, err1 := yaml.Marshal(a)
	y, err2 := yaml.Marshal(b)
	return err1 == nil && err2 == nil && string(x) == string(y)
}

// Diff compares two field sets by name, internal fields excluded.
func Diff(a, b []*Definition) []Change {
	result := []Change{}
	oldMap := make(map[string]*Definition, len(a))
	var oldOrder []string
	for _, d := range a {
		if d.IsInternal() {
			continue
		}
		oldMap[d.Name] = d
		oldOrder = append(oldOrder, d.Name)
	}
	for _, d := range b {
		if d.IsInternal() {
			continue
		}
		if old, ok := oldMap[d.Name]; ok {
			if sameDefinition(old, d) {
				result = append(result, Change{Old: old, New: d, Type: ChangeUnchanged})
			} else {
				result = append(result, Change{Old: old, New: d, Type: ChangeUpdated})
			}
			delete(oldMap, d.Name)
		} else {
			result = append(result, Change{New: d, Type: ChangeAdded})
		}
	}
	for _, name := range oldOrder {
		if v, ok := oldMap[name]; ok {
			result = append(result, Change{Old: v, Type: ChangeDeleted})
		}
	}
	return result
}
