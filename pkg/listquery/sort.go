package listquery

import (
	"context"
	"net/url"
	"strings"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
)

func direction(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), "desc") {
		return "desc"
	}
	return "asc"
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// setConfigSort applies the list's orderby/order pair. "random" overrides
// any field ordering.
func (q *Query) setConfigSort(ctx context.Context) {
	fields := splitList(q.cfg.OrderBy)
	dirs := splitList(q.cfg.Order)
	q.sort = nil
	for i, f := range fields {
		if strings.EqualFold(f, "random") {
			q.random = true
			q.sort = nil
			return
		}
		def, ok := q.definition(ctx, f)
		if !ok || !def.StoresData() {
			q.drop(f, "unknown_sort", nil)
			continue
		}
		dir := "asc"
		if i < len(dirs) {
			dir = direction(dirs[i])
		} else if len(dirs) > 0 {
			dir = direction(dirs[len(dirs)-1])
		}
		q.sort = append(q.sort, SortTerm{Field: def.Name, Dir: dir})
	}
}

// applyUserSort honours sortBy/ascdesc request parameters for sortable
// fields. It reports whether the sort changed.
func (q *Query) applyUserSort(ctx context.Context, get, post url.Values) bool {
	name := param(get, post, "sortBy")
	if name == "" {
		return false
	}
	def, ok := q.definition(ctx, name)
	if !ok || !def.StoresData() || !def.Sortable {
		q.drop(name, "unsortable", nil)
		return false
	}
	q.sort = []SortTerm{{Field: def.Name, Dir: direction(param(get, post, "ascdesc"))}}
	q.random = false
	return true
}

// Sort returns the effective ordering; nil with Random true means random.
func (q *Query) Sort() []SortTerm { return append([]SortTerm(nil), q.sort...) }

// Random reports whether results are shuffled.
func (q *Query) Random() bool { return q.random }

// Columns returns the selected columns: id first, then the configured
// fields that store data, or every non internal data field when none are
// configured.
func (q *Query) Columns(ctx context.Context) ([]string, error) {
	names := q.cfg.Fields
	if len(names) == 0 && q.deps.Registry != nil {
		defs, err := q.deps.Registry.Filter(ctx, func(d *fielddef.Definition) bool {
			return d.StoresData() && !d.IsInternal()
		})
		if err != nil {
			return nil, err
		}
		for _, d := range defs {
			names = append(names, d.Name)
		}
	}
	cols := []string{fielddef.FieldID}
	seen := map[string]bool{fielddef.FieldID: true}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if seen[n] {
			continue
		}
		def, ok := q.definition(ctx, n)
		if !ok || !def.StoresData() {
			continue
		}
		seen[n] = true
		cols = append(cols, def.Name)
	}
	return cols, nil
}

// SetSort replaces the ordering. Unknown or non storing fields are dropped.
func (q *Query) SetSort(ctx context.Context, terms []SortTerm) {
	q.sort = nil
	q.random = false
	for _, t := range terms {
		if strings.EqualFold(t.Field, "random") {
			q.sort = nil
			q.random = true
			return
		}
		def, ok := q.definition(ctx, t.Field)
		if !ok || !def.StoresData() {
			q.drop(t.Field, "unknown_sort", nil)
			continue
		}
		q.sort = append(q.sort, SortTerm{Field: def.Name, Dir: direction(t.Dir)})
	}
}
