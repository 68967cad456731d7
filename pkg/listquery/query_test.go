package listquery

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/filter"
	"github.com/faciam-dev/gpdb/pkg/hooks"
	"github.com/faciam-dev/gpdb/pkg/session"
	"github.com/faciam-dev/gpdb/pkg/settings"
)

func testDeps(store session.Store) Deps {
	src := &fielddef.StaticSource{Fields: []*fielddef.Definition{
		{Name: "status", Type: fielddef.Dropdown, Order: 1, Options: fielddef.Options{
			{Title: "Active", Value: "active"}, {Title: "Pending", Value: "pending"}, {Title: "Closed", Value: "closed"},
		}},
		{Name: "last_name", Type: fielddef.TextLine, Order: 2, Sortable: true},
		{Name: "city", Type: fielddef.TextLine, Order: 3},
		{Name: "age", Type: fielddef.Numeric, Order: 4},
		{Name: "heading", Type: fielddef.Placeholder, Order: 5},
	}}
	return Deps{
		Registry: fielddef.NewRegistry(src, nil),
		Session:  store,
		Settings: settings.Map{},
	}
}

func mustWhere(t *testing.T, q *Query, want string, wantArgs []any) {
	t.Helper()
	got, args := q.WhereClause()
	if got != want {
		t.Fatalf("WhereClause()=%q want %q", got, want)
	}
	if diff := cmp.Diff(wantArgs, args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchReplacesBackgroundFilter(t *testing.T) {
	ctx := context.Background()
	q := New(ctx, testDeps(nil), Config{Instance: 1})
	get := url.Values{"search_field": {"status"}, "operator": {"="}, "value": {"closed"}}
	if err := q.MergeFilters(ctx, "status=active|status=pending", get, nil); err != nil {
		t.Fatalf("merge: %v", err)
	}
	mustWhere(t, q, "pdb_participants.status = ?", []any{"closed"})
	if !q.Searching() {
		t.Fatalf("expected active search")
	}
}

func TestPostSupersedesGet(t *testing.T) {
	ctx := context.Background()
	q := New(ctx, testDeps(nil), Config{})
	get := url.Values{"search_field": {"status"}, "value": {"closed"}}
	post := url.Values{"search_field[]": {"status"}, "operator[]": {"eq"}, "value[]": {"Pending"}}
	if err := q.MergeFilters(ctx, "", get, post); err != nil {
		t.Fatalf("merge: %v", err)
	}
	mustWhere(t, q, "pdb_participants.status = ?", []any{"pending"})
}

func TestSamePassAccumulates(t *testing.T) {
	ctx := context.Background()
	q := New(ctx, testDeps(nil), Config{})
	get := url.Values{
		"search_field[]": {"city", "city"},
		"operator[]":     {"=", "="},
		"value[]":        {"Oslo", "Bergen"},
		"logic[]":        {"or", "and"},
	}
	if err := q.MergeFilters(ctx, "", get, nil); err != nil {
		t.Fatalf("merge: %v", err)
	}
	mustWhere(t, q, "(pdb_participants.city = ? OR pdb_participants.city = ?)", []any{"Oslo", "Bergen"})
}

func TestShortcodeParenthesisation(t *testing.T) {
	ctx := context.Background()
	q := New(ctx, testDeps(nil), Config{})
	if err := q.MergeFilters(ctx, "status=active|status=pending&city=Oslo", nil, nil); err != nil {
		t.Fatalf("merge: %v", err)
	}
	mustWhere(t, q,
		"(pdb_participants.status = ? OR pdb_participants.status = ?) AND pdb_participants.city = ?",
		[]any{"active", "pending", "Oslo"})
	if q.Searching() {
		t.Fatalf("background filters are not a search")
	}
}

func TestClearForegroundRestoresBackground(t *testing.T) {
	ctx := context.Background()
	q := New(ctx, testDeps(nil), Config{})
	get := url.Values{"search_field": {"status"}, "value": {"closed"}}
	q.MergeFilters(ctx, "status=active&city=Oslo", get, nil)
	q.ClearForeground()
	mustWhere(t, q, "pdb_participants.status = ? AND pdb_participants.city = ?", []any{"active", "Oslo"})
}

func TestUnknownFieldsAreDropped(t *testing.T) {
	ctx := context.Background()
	q := New(ctx, testDeps(nil), Config{})
	get := url.Values{
		"search_field[]": {"nope", "heading", "age"},
		"operator[]":     {"=", "=", "contains"},
		"value[]":        {"x", "y", "3"},
	}
	q.MergeFilters(ctx, "ghost=1", get, nil)
	if q.Dropped() != 4 {
		t.Fatalf("Dropped()=%d want 4", q.Dropped())
	}
	mustWhere(t, q, "", nil)
}

func TestSuppression(t *testing.T) {
	ctx := context.Background()
	q := New(ctx, testDeps(nil), Config{Suppress: true})
	q.MergeFilters(ctx, "status=active", nil, nil)
	mustWhere(t, q, "pdb_participants.id = 0", nil)

	q = New(ctx, testDeps(nil), Config{})
	q.MergeFilters(ctx, "id=0", nil, nil)
	if !q.Suppressed() {
		t.Fatalf("id=0 background filter must suppress")
	}

	q = New(ctx, testDeps(nil), Config{Suppress: true})
	q.MergeFilters(ctx, "", url.Values{"search_field": {"city"}, "value": {"Oslo"}}, nil)
	mustWhere(t, q, "pdb_participants.city = ?", []any{"Oslo"})
}

func TestHookVetoesStatement(t *testing.T) {
	ctx := context.Background()
	deps := testDeps(nil)
	deps.Hooks = hooks.New()
	deps.Hooks.On(hooks.BeforeStatement, hooks.Typed(func(_ context.Context, c filter.Clause) (filter.Clause, bool) {
		return c, c.Field != "city"
	}))
	q := New(ctx, deps, Config{})
	q.MergeFilters(ctx, "city=Oslo&status=active", nil, nil)
	mustWhere(t, q, "pdb_participants.status = ?", []any{"active"})
}

func TestSessionRestoreAcrossPages(t *testing.T) {
	ctx := context.Background()
	store := session.ForVisitor(session.NewMemory(), "visitor")
	cfg := Config{Instance: 1, Limit: 10}

	q := New(ctx, testDeps(store), cfg)
	get := url.Values{"search_field": {"city"}, "operator": {"~"}, "value": {"Os"}, "instance": {"1"}}
	if err := q.MergeFilters(ctx, "status=active", get, nil); err != nil {
		t.Fatalf("merge: %v", err)
	}
	first, firstArgs := q.WhereClause()

	q2 := New(ctx, testDeps(store), cfg)
	if err := q2.MergeFilters(ctx, "status=active", url.Values{"listpage": {"2"}, "instance": {"1"}}, nil); err != nil {
		t.Fatalf("restore: %v", err)
	}
	mustWhere(t, q2, first, firstArgs)
	if q2.Page() != 2 || q2.Offset() != 10 {
		t.Fatalf("page=%d offset=%d", q2.Page(), q2.Offset())
	}

	q3 := New(ctx, testDeps(store), cfg)
	q3.MergeFilters(ctx, "status=active", url.Values{"submit": {"clear"}, "listpage": {"3"}}, nil)
	mustWhere(t, q3, "pdb_participants.status = ?", []any{"active"})
	if q3.Page() != 1 {
		t.Fatalf("clear must reset to page 1, got %d", q3.Page())
	}
	if _, err := store.Get(ctx, q.SessionKey()); err == nil {
		t.Fatalf("saved state not cleared")
	}
}

func TestOtherInstanceIgnored(t *testing.T) {
	ctx := context.Background()
	q := New(ctx, testDeps(nil), Config{Instance: 1})
	get := url.Values{"search_field": {"city"}, "value": {"Oslo"}, "target_instance": {"2"}}
	q.MergeFilters(ctx, "", get, nil)
	mustWhere(t, q, "", nil)
}

func TestSort(t *testing.T) {
	ctx := context.Background()
	q := New(ctx, testDeps(nil), Config{OrderBy: "city, last_name, ghost", Order: "desc"})
	want := []SortTerm{{"city", "desc"}, {"last_name", "desc"}}
	if diff := cmp.Diff(want, q.Sort()); diff != "" {
		t.Fatalf("config sort (-want +got):\n%s", diff)
	}
	q.MergeFilters(ctx, "", url.Values{"sortBy": {"city"}}, nil)
	if diff := cmp.Diff(want, q.Sort()); diff != "" {
		t.Fatalf("unsortable user sort must be ignored:\n%s", diff)
	}
	q.MergeFilters(ctx, "", url.Values{"sortBy": {"last_name"}, "ascdesc": {"asc"}}, nil)
	if diff := cmp.Diff([]SortTerm{{"last_name", "asc"}}, q.Sort()); diff != "" {
		t.Fatalf("user sort:\n%s", diff)
	}

	r := New(ctx, testDeps(nil), Config{OrderBy: "random,city"})
	if !r.Random() || len(r.Sort()) != 0 {
		t.Fatalf("random must override field ordering")
	}
	s, _, err := r.SelectSQL(ctx)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !strings.Contains(s, "ORDER BY RAND()") {
		t.Fatalf("random order missing: %s", s)
	}
}

func TestColumns(t *testing.T) {
	ctx := context.Background()
	q := New(ctx, testDeps(nil), Config{Fields: []string{"city", "heading", "id", "ghost", "age"}})
	cols, err := q.Columns(ctx)
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	if diff := cmp.Diff([]string{"id", "city", "age"}, cols); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	all, _ := New(ctx, testDeps(nil), Config{}).Columns(ctx)
	if diff := cmp.Diff([]string{"id", "status", "last_name", "city", "age"}, all); diff != "" {
		t.Fatalf("default columns (-want +got):\n%s", diff)
	}
}

func TestRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()
	deps := testDeps(nil)
	deps.DB = db
	q := New(ctx, deps, Config{Name: "members", Fields: []string{"city"}, Limit: 2})
	q.MergeFilters(ctx, "city=Oslo", nil, nil)

	countSQL, _, err := q.CountSQL(ctx)
	if err != nil {
		t.Fatal(err)
	}
	selSQL, _, err := q.SelectSQL(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(countSQL)).
		WithArgs("Oslo").
		WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(selSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "city"}).AddRow(1, "Oslo").AddRow(2, nil))

	res, err := q.Run(ctx, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []Record{{"id": "1", "city": "Oslo"}, {"id": "2", "city": ""}}
	if diff := cmp.Diff(want, res.Records); diff != "" {
		t.Fatalf("records (-want +got):\n%s", diff)
	}
	if res.Total != 3 || res.Pages() != 2 {
		t.Fatalf("total=%d pages=%d", res.Total, res.Pages())
	}
	if got := q.Summary(res.Total); got != "3 records found" {
		t.Fatalf("Summary=%q", got)
	}
	if got := q.Summary(1); got != "1 record found" {
		t.Fatalf("Summary=%q", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestNamedPlaceholders(t *testing.T) {
	got, params := named("a = ? AND (b LIKE ? OR c IS NULL)", []any{1, "x%"})
	if got != "a = :w0 AND (b LIKE :w1 OR c IS NULL)" {
		t.Fatalf("named=%q", got)
	}
	if diff := cmp.Diff(map[string]any{"w0": 1, "w1": "x%"}, params); diff != "" {
		t.Fatalf("params (-want +got):\n%s", diff)
	}
}

func TestShortcodeAndJoined(t *testing.T) {
	ctx := context.Background()
	q := New(ctx, testDeps(nil), Config{})
	q.MergeFilters(ctx, "status=active&age>18", nil, nil)
	mustWhere(t, q, "pdb_participants.status = ? AND pdb_participants.age > ?", []any{"active", int64(18)})
}

// configuredOnly mimics a database source: LoadField knows only the
// configured fields, never the system columns.
type configuredOnly struct{ fielddef.StaticSource }

func (s *configuredOnly) LoadField(_ context.Context, name string) (*fielddef.Definition, error) {
	for _, d := range s.Fields {
		if d.Name == name {
			return d.Clone(), nil
		}
	}
	return nil, fielddef.ErrNotFound
}

func TestInternalFieldsOnColdRegistry(t *testing.T) {
	ctx := context.Background()
	src := &configuredOnly{fielddef.StaticSource{Fields: []*fielddef.Definition{
		{Name: "city", Type: fielddef.TextLine, Order: 1},
	}}}
	tests := []struct {
		name      string
		orderBy   string
		shortcode string
		sort      []SortTerm
		where     string
		args      []any
	}{
		{"sort by date recorded", "date_recorded", "", []SortTerm{{"date_recorded", "desc"}}, "", nil},
		{"filter approved", "id", "approved=yes", []SortTerm{{"id", "desc"}}, "pdb_participants.approved = ?", []any{"yes"}},
		{"both", "date_updated", "approved=yes&city=Oslo", []SortTerm{{"date_updated", "desc"}},
			"pdb_participants.approved = ? AND pdb_participants.city = ?", []any{"yes", "Oslo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{Registry: fielddef.NewRegistry(src, nil), Settings: settings.Map{}}
			q := New(ctx, deps, Config{OrderBy: tt.orderBy, Order: "desc"})
			if diff := cmp.Diff(tt.sort, q.Sort()); diff != "" {
				t.Fatalf("sort (-want +got):\n%s", diff)
			}
			if err := q.MergeFilters(ctx, tt.shortcode, nil, nil); err != nil {
				t.Fatalf("merge: %v", err)
			}
			mustWhere(t, q, tt.where, tt.args)
		})
	}
}
