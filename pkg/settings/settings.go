// Package settings exposes the plugin option store consulted for feature
// toggles such as strict_search or whole_word_match.
package settings

import (
	"strconv"
	"strings"
)

// Setting names read by the core.
const (
	StrictSearch               = "strict_search"
	EmptySearch                = "empty_search"
	WholeWordMatch             = "whole_word_match"
	MakeLinks                  = "make_links"
	InputDateFormat            = "input_date_format"
	DateFormat                 = "date_format"
	ListLimit                  = "list_limit"
	MultiGlue                  = "multi_glue"
	AllowRecordDeleteFile      = "allow_record_delete_file"
	ImageUploadLimit           = "image_upload_limit"
	RegexpStyle                = "regexp_style"
	SearchSessionTTL           = "search_session_ttl"
	Timezone                   = "timezone"
	ReadonlyTimestampsEditable = "readonly_timestamps_editable"
	AllowTags                  = "allow_tags"
)

// Store is a read-only key/value settings source.
type Store interface {
	Get(name, def string) string
}

// Map is an in-memory Store.
type Map map[string]string

// Get returns the value stored under name or def.
func (m Map) Get(name, def string) string {
	if v, ok := m[name]; ok {
		return v
	}
	return def
}

// Bool reads name from s coercing common truthy spellings.
func Bool(s Store, name string, def bool) bool {
	if s == nil {
		return def
	}
	raw := strings.TrimSpace(strings.ToLower(s.Get(name, "")))
	switch raw {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// Int reads name from s as an integer.
func Int(s Store, name string, def int) int {
	if s == nil {
		return def
	}
	raw := strings.TrimSpace(s.Get(name, ""))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// String reads name from s, treating a nil store as empty.
func String(s Store, name, def string) string {
	if s == nil {
		return def
	}
	return s.Get(name, def)
}
