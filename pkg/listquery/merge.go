package listquery

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/faciam-dev/gpdb/pkg/filter"
	"github.com/faciam-dev/gpdb/pkg/metrics"
	"github.com/faciam-dev/gpdb/pkg/session"
	"github.com/faciam-dev/gpdb/pkg/settings"
)

// Filter passes. A clause for a field replaces the statements a lower pass
// left for that field.
const (
	passShortcode = iota + 1
	passGet
	passPost
	passRestore = passGet
)

// DefaultSessionTTL is how long saved search state lives when the
// search_session_ttl setting (minutes) is unset.
const DefaultSessionTTL = 30 * time.Minute

// SavedState is the search state persisted between paginated requests.
type SavedState struct {
	Clauses   []filter.Clause `json:"clauses"`
	Sort      []SortTerm      `json:"sort,omitempty"`
	Random    bool            `json:"random,omitempty"`
	Searching bool            `json:"searching"`
	SavedAt   time.Time       `json:"saved_at"`
}

// values collects key and key[] from v.
func values(v url.Values, key string) []string {
	if v == nil {
		return nil
	}
	out := append([]string(nil), v[key]...)
	return append(out, v[key+"[]"]...)
}

func first(v url.Values, key string) string {
	if vals := values(v, key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// param reads key from post, falling back to get.
func param(get, post url.Values, key string) string {
	if s := first(post, key); s != "" {
		return s
	}
	return first(get, key)
}

// targets reports whether a request addressed to another list instance
// should be ignored by this one.
func (q *Query) targets(get, post url.Values) bool {
	raw := param(get, post, "target_instance")
	if raw == "" {
		raw = param(get, post, "instance")
	}
	if raw == "" {
		return true
	}
	n, err := strconv.Atoi(raw)
	return err != nil || n == q.cfg.Instance
}

func hasSearch(v url.Values) bool {
	return len(values(v, "search_field")) > 0 || first(v, "sortBy") != ""
}

// searchClauses turns the parallel search_field, operator, value and logic
// arrays of a request into clauses.
func (q *Query) searchClauses(v url.Values) []filter.Clause {
	fields := values(v, "search_field")
	ops := values(v, "operator")
	terms := values(v, "value")
	logics := values(v, "logic")
	at := func(list []string, i int) string {
		if i < len(list) {
			return strings.TrimSpace(list[i])
		}
		return ""
	}
	allowEmpty := settings.Bool(q.deps.Settings, settings.EmptySearch, false)
	var out []filter.Clause
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || f == "none" {
			continue
		}
		term := at(terms, i)
		if term == "" && !allowEmpty {
			continue
		}
		op, err := filter.LegacyOperator(at(ops, i))
		if err != nil {
			q.drop(f, "invalid_operator", err)
			continue
		}
		out = append(out, filter.Clause{
			Field:    f,
			Operator: string(op),
			Term:     term,
			Logic:    filter.ParseLogic(at(logics, i)),
			Origin:   filter.OriginSearch,
		})
	}
	return out
}

func (q *Query) addAll(ctx context.Context, clauses []filter.Clause, pass int) int {
	n := 0
	for _, c := range clauses {
		if q.AddFilter(ctx, c, pass) {
			n++
		}
	}
	return n
}

// applyShortcode adds the page level filter. A clause id=0 marks the list as
// search only instead of becoming a statement.
func (q *Query) applyShortcode(ctx context.Context, raw string) {
	var clauses []filter.Clause
	for _, c := range filter.ParseShortcode(raw) {
		if c.Field == "id" && strings.TrimSpace(c.Term) == "0" {
			if op, err := filter.NormalizeOperator(c.Operator); err == nil && op == filter.OpEq {
				q.suppress = true
				continue
			}
		}
		clauses = append(clauses, c)
	}
	q.addAll(ctx, clauses, passShortcode)
}

// MergeFilters builds the state of this list for one request. The page
// level filter is applied first, then URL searches, then form searches,
// each later source replacing earlier statements on the same field. A
// request carrying only a page number restores the saved search; a fresh
// search is saved; submit=clear wipes the saved search.
func (q *Query) MergeFilters(ctx context.Context, shortcode string, get, post url.Values) error {
	q.applyShortcode(ctx, shortcode)
	if !q.targets(get, post) {
		return nil
	}
	if param(get, post, "submit") == "clear" {
		q.page = 1
		return q.clearSaved(ctx)
	}
	pageRaw := param(get, post, "listpage")
	if pageRaw != "" {
		n, err := strconv.Atoi(pageRaw)
		if err != nil {
			n = 1
		}
		q.SetPage(n)
	}
	if pageRaw != "" && !hasSearch(get) && !hasSearch(post) {
		return q.restore(ctx)
	}
	added := q.addAll(ctx, q.searchClauses(get), passGet)
	added += q.addAll(ctx, q.searchClauses(post), passPost)
	userSort := q.applyUserSort(ctx, get, post)
	if added > 0 {
		q.searching = true
	}
	if (added > 0 || userSort) && pageRaw == "" {
		return q.save(ctx)
	}
	return nil
}

func (q *Query) sessionTTL() time.Duration {
	if m := settings.Int(q.deps.Settings, settings.SearchSessionTTL, 0); m > 0 {
		return time.Duration(m) * time.Minute
	}
	return DefaultSessionTTL
}

// State snapshots the user search part of the query.
func (q *Query) State() SavedState {
	st := SavedState{
		Sort:      append([]SortTerm(nil), q.sort...),
		Random:    q.random,
		Searching: q.searching,
		SavedAt:   time.Now().UTC(),
	}
	for _, s := range q.Statements() {
		if s.IsSearch() {
			st.Clauses = append(st.Clauses, s.Clause())
		}
	}
	return st
}

func (q *Query) save(ctx context.Context) error {
	if q.deps.Session == nil {
		return nil
	}
	b, err := json.Marshal(q.State())
	if err != nil {
		return err
	}
	metrics.SessionOps.WithLabelValues("save").Inc()
	return q.deps.Session.Set(ctx, q.SessionKey(), b, q.sessionTTL())
}

func (q *Query) clearSaved(ctx context.Context) error {
	q.ClearForeground()
	if q.deps.Session == nil {
		return nil
	}
	metrics.SessionOps.WithLabelValues("clear").Inc()
	return q.deps.Session.Clear(ctx, q.SessionKey())
}

// restore re-applies the saved search. Missing, expired or corrupt state
// leaves only the page level filter.
func (q *Query) restore(ctx context.Context) error {
	if q.deps.Session == nil {
		return nil
	}
	b, err := q.deps.Session.Get(ctx, q.SessionKey())
	if errors.Is(err, session.ErrNotFound) {
		metrics.SessionOps.WithLabelValues("miss").Inc()
		return nil
	}
	if err != nil {
		return err
	}
	var st SavedState
	if err := json.Unmarshal(b, &st); err != nil {
		q.log().Warn("discard saved list state", "key", q.SessionKey(), "err", err)
		return nil
	}
	if !st.SavedAt.IsZero() && time.Since(st.SavedAt) > q.sessionTTL() {
		metrics.SessionOps.WithLabelValues("expired").Inc()
		return nil
	}
	metrics.SessionOps.WithLabelValues("restore").Inc()
	for _, c := range st.Clauses {
		c.Origin = filter.OriginSearch
		q.AddFilter(ctx, c, passRestore)
	}
	if len(st.Sort) > 0 || st.Random {
		q.sort = st.Sort
		q.random = st.Random
	}
	q.searching = st.Searching
	return nil
}
