// Package i18n provides the translation function every user facing string
// is routed through.
package i18n

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Translator translates a message id into the active locale.
type Translator interface {
	T(msg string) string
}

// Identity returns messages untranslated.
type Identity struct{}

func (Identity) T(msg string) string { return msg }

// Catalog is a YAML backed message table.
type Catalog struct {
	mu     sync.RWMutex
	Locale string
	msgs   map[string]string
}

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// LoadCatalog reads a catalog file of the form
//
//	locale: de
//	messages:
//	  "Required": "Pflichtfeld"
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(b)
}

// ParseCatalog decodes catalog YAML.
func ParseCatalog(b []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if f.Messages == nil {
		f.Messages = map[string]string{}
	}
	return &Catalog{Locale: f.Locale, msgs: f.Messages}, nil
}

// T implements Translator. Unknown messages are returned as-is.
func (c *Catalog) T(msg string) string {
	if c == nil {
		return msg
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.msgs[msg]; ok && v != "" {
		return v
	}
	return msg
}

// Set adds or replaces a translation.
func (c *Catalog) Set(msg, translated string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.msgs == nil {
		c.msgs = map[string]string{}
	}
	c.msgs[msg] = translated
}

// Sprintf translates format before applying args.
func Sprintf(t Translator, format string, args ...any) string {
	if t == nil {
		t = Identity{}
	}
	return fmt.Sprintf(t.T(format), args...)
}
