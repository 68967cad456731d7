// Package listquery assembles list view queries from page level filters,
// URL and form searches and sort requests, persisting search state across
// paginated requests.
package listquery

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"strings"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"

	"github.com/faciam-dev/gpdb/internal/logger"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/filter"
	"github.com/faciam-dev/gpdb/pkg/hooks"
	"github.com/faciam-dev/gpdb/pkg/i18n"
	"github.com/faciam-dev/gpdb/pkg/metrics"
	"github.com/faciam-dev/gpdb/pkg/session"
	"github.com/faciam-dev/gpdb/pkg/settings"
	"github.com/faciam-dev/gpdb/pkg/util"
)

// DefaultLimit is the page size when neither the list nor the settings
// configure one.
const DefaultLimit = 10

// Config is the page level declaration of a list.
type Config struct {
	Name     string   `yaml:"name" json:"name"`
	Instance int      `yaml:"instance" json:"instance"`
	Filter   string   `yaml:"filter" json:"filter"`
	OrderBy  string   `yaml:"orderby" json:"orderby"`
	Order    string   `yaml:"order" json:"order"`
	Fields   []string `yaml:"fields" json:"fields"`
	Suppress bool     `yaml:"suppress" json:"suppress"`
	Limit    int      `yaml:"list_limit" json:"list_limit"`
}

// Deps are the collaborators a query needs.
type Deps struct {
	DB          *sql.DB
	Registry    *fielddef.Registry
	Session     session.Store
	Settings    settings.Store
	Hooks       *hooks.Set
	Translator  i18n.Translator
	Logger      *slog.Logger
	Dialect     ormdriver.Dialect
	TablePrefix string
	// Style overrides the regexp style read from settings when set.
	Style *filter.RegexpStyle
}

// SortTerm orders results by one field.
type SortTerm struct {
	Field string `json:"field"`
	Dir   string `json:"dir"`
}

// Query is the state of one list instance for one request.
type Query struct {
	deps Deps
	cfg  Config
	opts filter.Options

	statements map[string][]*filter.Statement
	passOf     map[string]int
	background map[string][]*filter.Statement
	seq        int

	sort      []SortTerm
	random    bool
	suppress  bool
	searching bool
	page      int
	dropped   int
}

// New prepares a query for cfg. The page level filter and sort are applied
// by MergeFilters.
func New(ctx context.Context, deps Deps, cfg Config) *Query {
	q := &Query{
		deps:       deps,
		cfg:        cfg,
		statements: map[string][]*filter.Statement{},
		passOf:     map[string]int{},
		background: map[string][]*filter.Statement{},
		page:       1,
		suppress:   cfg.Suppress,
	}
	q.opts = filter.OptionsFrom(deps.Settings, q.Table(), q.Table())
	if deps.Style != nil {
		q.opts.Style = *deps.Style
	} else if util.IsPostgres(q.dialect()) {
		q.opts.Style = filter.StylePostgres
	}
	q.setConfigSort(ctx)
	return q
}

func (q *Query) log() *slog.Logger {
	if q.deps.Logger != nil {
		return q.deps.Logger
	}
	return logger.L
}

func (q *Query) dialect() ormdriver.Dialect {
	if q.deps.Dialect != nil {
		return q.deps.Dialect
	}
	return ormdriver.MySQLDialect{}
}

// Table returns the records table name.
func (q *Query) Table() string {
	p := q.deps.TablePrefix
	if p == "" {
		p = "pdb_"
	}
	return p + "participants"
}

func (q *Query) column(name string) string { return q.Table() + "." + name }

// Instance returns the list instance index.
func (q *Query) Instance() int { return q.cfg.Instance }

// SessionKey is the key the saved state of this instance lives under.
func (q *Query) SessionKey() string {
	return "pdb_list_query-" + strconv.Itoa(q.cfg.Instance)
}

func (q *Query) drop(field, reason string, err error) {
	q.dropped++
	metrics.DroppedClauses.WithLabelValues(reason).Inc()
	if err != nil {
		q.log().Warn("drop filter clause", "list", q.cfg.Name, "field", field, "reason", reason, "err", err)
		return
	}
	q.log().Warn("drop filter clause", "list", q.cfg.Name, "field", field, "reason", reason)
}

// Dropped returns how many clauses were rejected so far.
func (q *Query) Dropped() int { return q.dropped }

func (q *Query) definition(ctx context.Context, name string) (*fielddef.Definition, bool) {
	if q.deps.Registry == nil {
		return fielddef.Missing(name), false
	}
	return q.deps.Registry.Get(ctx, name)
}

// AddFilter normalises c and adds it. A clause for a field that already has
// statements from an earlier pass replaces them; clauses within one pass
// accumulate. It reports whether the clause was kept.
func (q *Query) AddFilter(ctx context.Context, c filter.Clause, pass int) bool {
	field := strings.TrimSpace(c.Field)
	def, ok := q.definition(ctx, field)
	if !ok || !def.StoresData() {
		q.drop(field, "unknown_field", nil)
		return false
	}
	c, ok = hooks.Run(ctx, q.deps.Hooks, hooks.BeforeStatement, c)
	if !ok {
		q.drop(field, "vetoed", nil)
		return false
	}
	st, err := filter.Build(def, c, q.opts)
	if err != nil {
		q.drop(field, "invalid_clause", err)
		return false
	}
	st.Seq = q.seq
	q.seq++
	if q.passOf[st.Field] != pass {
		q.statements[st.Field] = nil
		q.passOf[st.Field] = pass
	}
	q.statements[st.Field] = append(q.statements[st.Field], st)
	if st.Origin == filter.OriginShortcode {
		q.background[st.Field] = append(q.background[st.Field], st)
	}
	return true
}

// ClearForeground removes user search statements and restores the page
// level statements of the fields they had replaced.
func (q *Query) ClearForeground() {
	for field, list := range q.statements {
		kept := list[:0]
		for _, st := range list {
			if !st.IsSearch() {
				kept = append(kept, st)
			}
		}
		if len(kept) == 0 {
			delete(q.statements, field)
			delete(q.passOf, field)
			continue
		}
		q.statements[field] = kept
	}
	for field, bg := range q.background {
		if _, ok := q.statements[field]; !ok {
			q.statements[field] = append([]*filter.Statement(nil), bg...)
			q.passOf[field] = passShortcode
		}
	}
	q.searching = false
}

// Statements returns every active statement in submission order.
func (q *Query) Statements() []*filter.Statement {
	var all []*filter.Statement
	for _, list := range q.statements {
		all = append(all, list...)
	}
	return filter.Linearize(all)
}

// Searching reports whether a user search is active.
func (q *Query) Searching() bool { return q.searching }

// Suppressed reports whether the result set is forced empty.
func (q *Query) Suppressed() bool { return q.suppress && !q.searching }

// SetSuppress toggles search only mode.
func (q *Query) SetSuppress(v bool) { q.suppress = v }

// Page returns the current page number starting at 1.
func (q *Query) Page() int { return q.page }

// SetPage sets the current page; values below 1 select the first page.
func (q *Query) SetPage(p int) {
	if p < 1 {
		p = 1
	}
	q.page = p
}

// Limit returns the page size.
func (q *Query) Limit() int {
	if q.cfg.Limit != 0 {
		return q.cfg.Limit
	}
	return settings.Int(q.deps.Settings, settings.ListLimit, DefaultLimit)
}

// Offset returns the row offset of the current page.
func (q *Query) Offset() int {
	if q.Limit() <= 0 {
		return 0
	}
	return (q.page - 1) * q.Limit()
}

// WhereClause renders the statements in submission order with "?"
// placeholders. A suppressed query yields an unsatisfiable predicate.
func (q *Query) WhereClause() (string, []any) {
	if q.Suppressed() {
		return q.column("id") + " = 0", nil
	}
	return filter.Join(q.Statements())
}
