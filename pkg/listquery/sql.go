package listquery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/faciam-dev/goquent/orm/query"
	"github.com/jinzhu/inflection"

	"github.com/faciam-dev/gpdb/pkg/hooks"
	"github.com/faciam-dev/gpdb/pkg/i18n"
	"github.com/faciam-dev/gpdb/pkg/metrics"
	"github.com/faciam-dev/gpdb/pkg/util"
)

// ErrVetoed is returned by Run when a list_query hook refuses the query.
var ErrVetoed = errors.New("listquery: query vetoed")

// SQL is a rendered statement with its bound arguments. It is the value the
// list_query hook receives.
type SQL struct {
	Query string
	Args  []any
}

// Record is one result row keyed by column name.
type Record map[string]string

// Result is one page of a list.
type Result struct {
	Columns []string
	Records []Record
	Total   int64
	Page    int
	Limit   int
}

// Pages returns the number of pages the total spans.
func (r *Result) Pages() int {
	if r.Limit <= 0 || r.Total == 0 {
		return 1
	}
	return int((r.Total + int64(r.Limit) - 1) / int64(r.Limit))
}

// named rewrites "?" placeholders into the :wN parameters goquent expects
// for raw fragments.
func named(where string, args []any) (string, map[string]any) {
	params := make(map[string]any, len(args))
	var b strings.Builder
	n := 0
	for _, r := range where {
		if r == '?' && n < len(args) {
			key := "w" + strconv.Itoa(n)
			b.WriteString(":" + key)
			params[key] = args[n]
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), params
}

func (q *Query) base(ctx context.Context) *query.Query {
	qb := query.New(q.deps.DB, q.Table(), q.dialect()).WithContext(ctx)
	if where, args := q.WhereClause(); where != "" {
		frag, params := named(where, args)
		qb.WhereRaw(frag, params)
	}
	return qb
}

func (q *Query) randomFunc() string {
	if util.IsPostgres(q.dialect()) {
		return "RANDOM()"
	}
	return "RAND()"
}

// SelectSQL renders the page query.
func (q *Query) SelectSQL(ctx context.Context) (string, []any, error) {
	cols, err := q.Columns(ctx)
	if err != nil {
		return "", nil, err
	}
	qualified := make([]string, len(cols))
	for i, c := range cols {
		qualified[i] = q.column(c)
	}
	qb := q.base(ctx).Select(qualified...)
	if q.random {
		s, args, err := qb.Build()
		if err != nil {
			return "", nil, err
		}
		s += " ORDER BY " + q.randomFunc()
		if l := q.Limit(); l > 0 {
			s += fmt.Sprintf(" LIMIT %d OFFSET %d", l, q.Offset())
		}
		return s, args, nil
	}
	for _, t := range q.sort {
		qb.OrderBy(q.column(t.Field), t.Dir)
	}
	if l := q.Limit(); l > 0 {
		qb.Limit(l).Offset(q.Offset())
	}
	return qb.Build()
}

// CountSQL renders the total count query.
func (q *Query) CountSQL(ctx context.Context) (string, []any, error) {
	return q.base(ctx).SelectRaw("COUNT(*) AS cnt").Build()
}

func (q *Query) finalize(ctx context.Context, s string, args []any) (SQL, error) {
	out, ok := hooks.Run(ctx, q.deps.Hooks, hooks.ListQuery, SQL{Query: s, Args: args})
	if !ok {
		return SQL{}, ErrVetoed
	}
	return out, nil
}

// Run executes the count and page queries against db.
func (q *Query) Run(ctx context.Context, db *sql.DB) (*Result, error) {
	if db == nil {
		db = q.deps.DB
	}
	metrics.ListQueries.WithLabelValues(q.cfg.Name, strconv.FormatBool(q.Suppressed())).Inc()
	res := &Result{Page: q.page, Limit: q.Limit()}

	countSQL, countArgs, err := q.CountSQL(ctx)
	if err != nil {
		return nil, fmt.Errorf("count query: %w", err)
	}
	start := time.Now()
	if err := db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&res.Total); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	metrics.QueryLatency.WithLabelValues("count").Observe(time.Since(start).Seconds())

	s, args, err := q.SelectSQL(ctx)
	if err != nil {
		return nil, fmt.Errorf("select query: %w", err)
	}
	final, err := q.finalize(ctx, s, args)
	if err != nil {
		return nil, err
	}
	start = time.Now()
	rows, err := db.QueryContext(ctx, final.Query, final.Args...)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()
	if res.Columns, err = rows.Columns(); err != nil {
		return nil, err
	}
	for rows.Next() {
		vals := make([]sql.NullString, len(res.Columns))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec := make(Record, len(vals))
		for i, c := range res.Columns {
			rec[c] = vals[i].String
		}
		res.Records = append(res.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	metrics.QueryLatency.WithLabelValues("select").Observe(time.Since(start).Seconds())
	q.log().Debug("list query", "list", q.cfg.Name, "instance", q.cfg.Instance, "total", res.Total, "page", res.Page)
	return res, nil
}

// Summary renders the "N records found" line of a result.
func (q *Query) Summary(total int64) string {
	noun := "record"
	if total != 1 {
		noun = inflection.Plural(noun)
	}
	tr := q.deps.Translator
	if tr == nil {
		tr = i18n.Identity{}
	}
	if q.Suppressed() {
		return tr.T("Search to see records")
	}
	return i18n.Sprintf(tr, "%d %s found", total, tr.T(noun))
}
