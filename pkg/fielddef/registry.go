package fielddef

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/faciam-dev/gpdb/internal/logger"
	"github.com/faciam-dev/gpdb/pkg/hooks"
	"github.com/faciam-dev/gpdb/pkg/metrics"
)

// DefaultTTL is how long definitions are served from cache.
const DefaultTTL = 10 * time.Second

// Source loads definitions from persistent storage.
type Source interface {
	LoadFields(ctx context.Context) ([]*Definition, error)
	LoadField(ctx context.Context, name string) (*Definition, error)
	LoadGroups(ctx context.Context) ([]Group, error)
}

type cachedDef struct {
	def     *Definition
	expires time.Time
}

type cachedAll struct {
	defs    []*Definition
	byName  map[string]*Definition
	groups  []Group
	expires time.Time
}

// Registry serves definitions through a short lived cache. Writes to the
// source are not propagated; readers see them once entries expire.
type Registry struct {
	Source Source
	TTL    time.Duration
	Hooks  *hooks.Set
	Logger *slog.Logger

	mu     sync.RWMutex
	byName map[string]cachedDef
	all    *cachedAll
	now    func() time.Time
}

// NewRegistry returns a registry over src with the default TTL.
func NewRegistry(src Source, h *hooks.Set) *Registry {
	return &Registry{Source: src, TTL: DefaultTTL, Hooks: h}
}

func (r *Registry) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logger.L
}

func (r *Registry) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *Registry) ttl() time.Duration {
	if r.TTL > 0 {
		return r.TTL
	}
	return DefaultTTL
}

func (r *Registry) loaded(ctx context.Context, d *Definition) *Definition {
	out, ok := hooks.Run(ctx, r.Hooks, hooks.FieldLoaded, d)
	if !ok || out == nil {
		return d
	}
	return out
}

// Get returns the named definition. Unknown names yield a Missing
// definition and ok=false; the result is never nil.
func (r *Registry) Get(ctx context.Context, name string) (*Definition, bool) {
	now := r.clock()
	r.mu.RLock()
	if r.all != nil && now.Before(r.all.expires) {
		d, ok := r.all.byName[name]
		r.mu.RUnlock()
		metrics.CacheHits.Inc()
		if !ok {
			return Missing(name), false
		}
		return d, true
	}
	if c, ok := r.byName[name]; ok && now.Before(c.expires) {
		r.mu.RUnlock()
		metrics.CacheHits.Inc()
		return c.def, c.def.Exists()
	}
	r.mu.RUnlock()
	metrics.CacheMisses.Inc()

	if r.Source == nil {
		return Missing(name), false
	}
	d, err := r.Source.LoadField(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound), err == nil && d == nil:
		// sources only persist configured fields; system fields resolve here
		// so a cold lookup matches what All serves
		if in, ok := internalField(name); ok {
			d = r.loaded(ctx, in)
		} else {
			d = Missing(name)
		}
	case err != nil:
		r.log().Warn("load field definition", "field", name, "err", err)
		return Missing(name), false
	default:
		d = r.loaded(ctx, d)
	}
	r.mu.Lock()
	if r.byName == nil {
		r.byName = map[string]cachedDef{}
	}
	r.byName[name] = cachedDef{def: d, expires: now.Add(r.ttl())}
	r.mu.Unlock()
	return d, d.Exists()
}

func (r *Registry) batch(ctx context.Context) (*cachedAll, error) {
	now := r.clock()
	r.mu.RLock()
	if r.all != nil && now.Before(r.all.expires) {
		a := r.all
		r.mu.RUnlock()
		metrics.CacheHits.Inc()
		return a, nil
	}
	r.mu.RUnlock()
	metrics.CacheMisses.Inc()
	if r.Source == nil {
		return &cachedAll{byName: map[string]*Definition{}}, nil
	}
	defs, err := r.Source.LoadFields(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := r.Source.LoadGroups(ctx)
	if err != nil {
		return nil, err
	}
	defs = WithInternal(defs)
	a := &cachedAll{byName: make(map[string]*Definition, len(defs)), groups: groups, expires: now.Add(r.ttl())}
	for _, d := range defs {
		d = r.loaded(ctx, d)
		a.defs = append(a.defs, d)
		a.byName[d.Name] = d
	}
	sortDefinitions(a.defs, groups)
	metrics.Fields.Set(float64(len(a.defs)))
	r.mu.Lock()
	r.all = a
	r.mu.Unlock()
	return a, nil
}

func sortDefinitions(defs []*Definition, groups []Group) {
	gorder := make(map[string]int, len(groups))
	for _, g := range groups {
		gorder[g.Name] = g.Order
	}
	sort.SliceStable(defs, func(i, j int) bool {
		gi, gj := gorder[defs[i].Group], gorder[defs[j].Group]
		if gi != gj {
			return gi < gj
		}
		return defs[i].Order < defs[j].Order
	})
}

// All returns every definition ordered by group then field order.
func (r *Registry) All(ctx context.Context) ([]*Definition, error) {
	a, err := r.batch(ctx)
	if err != nil {
		return nil, err
	}
	return append([]*Definition(nil), a.defs...), nil
}

// Filter returns the definitions for which keep returns true.
func (r *Registry) Filter(ctx context.Context, keep func(*Definition) bool) ([]*Definition, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, d := range all {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// DataFields returns the definitions with a records table column.
func (r *Registry) DataFields(ctx context.Context) ([]*Definition, error) {
	return r.Filter(ctx, (*Definition).StoresData)
}

// SignupFields returns the fields shown on the signup form.
func (r *Registry) SignupFields(ctx context.Context) ([]*Definition, error) {
	return r.Filter(ctx, func(d *Definition) bool { return d.Signup && !d.IsInternal() })
}

// SortableFields returns the fields users may sort by.
func (r *Registry) SortableFields(ctx context.Context) ([]*Definition, error) {
	return r.Filter(ctx, func(d *Definition) bool { return d.Sortable && d.StoresData() })
}

// Groups returns the field groups ordered by their order attribute.
func (r *Registry) Groups(ctx context.Context) ([]Group, error) {
	a, err := r.batch(ctx)
	if err != nil {
		return nil, err
	}
	out := append([]Group(nil), a.groups...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// StaticSource serves a fixed set of definitions.
type StaticSource struct {
	Fields      []*Definition
	FieldGroups []Group
}

func (s *StaticSource) LoadFields(context.Context) ([]*Definition, error) {
	out := make([]*Definition, len(s.Fields))
	for i, d := range s.Fields {
		out[i] = d.Clone()
	}
	return out, nil
}

func (s *StaticSource) LoadField(_ context.Context, name string) (*Definition, error) {
	for _, d := range WithInternal(s.Fields) {
		if d.Name == name {
			return d.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *StaticSource) LoadGroups(context.Context) ([]Group, error) {
	return append([]Group(nil), s.FieldGroups...), nil
}
