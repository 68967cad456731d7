// Package hooks provides the named extension points the core calls at defined
// moments. Subscribers run in registration order and may replace the value
// passed through the chain.
package hooks

import (
	"context"
	"sync"
)

// Well known hook names.
const (
	FieldLoaded     = "field_definition_loaded"
	BeforeStatement = "before_statement_added"
	ListQuery       = "list_query"
	BeforeWrite     = "before_record_write"
	AfterWrite      = "after_record_write"
)

// Func receives the current value and returns the value handed to the next
// subscriber. Returning ok=false vetoes the operation.
type Func func(ctx context.Context, v any) (out any, ok bool)

// Set is a registry of named hooks. The zero value is ready to use and a nil
// *Set is a no-op.
type Set struct {
	mu   sync.RWMutex
	subs map[string][]Func
}

// New returns an empty hook set.
func New() *Set { return &Set{} }

// On subscribes fn to the named hook.
func (s *Set) On(name string, fn Func) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[string][]Func)
	}
	s.subs[name] = append(s.subs[name], fn)
}

// Has reports whether anything subscribed to name.
func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[name]) > 0
}

// Apply runs the subscribers of name over v. The chain stops at the first
// veto, in which case the returned bool is false.
func (s *Set) Apply(ctx context.Context, name string, v any) (any, bool) {
	if s == nil {
		return v, true
	}
	s.mu.RLock()
	fns := append([]Func(nil), s.subs[name]...)
	s.mu.RUnlock()
	for _, fn := range fns {
		out, ok := fn(ctx, v)
		if !ok {
			return v, false
		}
		v = out
	}
	return v, true
}

// Typed wraps a callback taking a concrete type so that subscribers do not
// need to type assert. Values of another type pass through untouched.
func Typed[T any](fn func(ctx context.Context, v T) (T, bool)) Func {
	return func(ctx context.Context, v any) (any, bool) {
		t, ok := v.(T)
		if !ok {
			return v, true
		}
		return fn(ctx, t)
	}
}

// Run applies the named hook to a typed value.
func Run[T any](ctx context.Context, s *Set, name string, v T) (T, bool) {
	out, ok := s.Apply(ctx, name, v)
	if t, isT := out.(T); isT {
		return t, ok
	}
	return v, ok
}
