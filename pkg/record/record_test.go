package record

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	ormdriver "github.com/faciam-dev/goquent/orm/driver"
	"github.com/faciam-dev/goquent/orm/query"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/bcrypt"

	"github.com/faciam-dev/gpdb/internal/events"
	"github.com/faciam-dev/gpdb/pkg/capability"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/hooks"
	"github.com/faciam-dev/gpdb/pkg/settings"
)

func testFields() []*fielddef.Definition {
	return []*fielddef.Definition{
		{Name: "first_name", Type: fielddef.TextLine, Order: 1, Validation: "required"},
		{Name: "email", Type: fielddef.TextLine, Order: 2, Validation: "email-regex"},
		{Name: "phone", Type: fielddef.TextLine, Order: 3},
		{Name: "bio", Type: fielddef.TextArea, Order: 4},
		{Name: "member_no", Type: fielddef.TextLine, Order: 5, Readonly: true},
		{Name: "age", Type: fielddef.Numeric, Order: 6},
		{Name: "secret", Type: fielddef.Password, Order: 7},
		{Name: "heading", Type: fielddef.Placeholder, Order: 8},
		{Name: "notes", Type: fielddef.TextArea, Order: 9, Attributes: fielddef.Options{{Title: "allow_html", Value: "no"}}},
		{Name: "photo", Type: fielddef.ImageUpload, Order: 10},
		{Name: "seen", Type: fielddef.Timestamp, Order: 11},
	}
}

func testDef(name string) *fielddef.Definition {
	for _, d := range testFields() {
		if d.Name == name {
			return d
		}
	}
	return nil
}

type recorder struct{ got []events.Event }

func (r *recorder) Dispatch(_ context.Context, e events.Event) { r.got = append(r.got, e) }

type fixture struct {
	w      *Writer
	mock   sqlmock.Sqlmock
	writes []Write
	events *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	f := &fixture{mock: mock, events: &recorder{}}
	h := hooks.New()
	h.On(hooks.BeforeWrite, hooks.Typed(func(_ context.Context, w Write) (Write, bool) {
		f.writes = append(f.writes, w)
		return w, w.Values["first_name"] != "veto"
	}))
	pipe := NewPipeline(settings.Map{}, nil)
	pipe.BcryptCost = bcrypt.MinCost
	f.w = &Writer{
		DB:        db,
		Dialect:   ormdriver.MySQLDialect{},
		Driver:    "mysql",
		Registry:  fielddef.NewRegistry(&fielddef.StaticSource{Fields: testFields()}, nil),
		Pipeline:  pipe,
		Validator: NewValidator(nil, nil),
		Hooks:     h,
		Events:    f.events,
		now:       func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
		newID:     func() string { return "ABC1234" },
	}
	return f
}

func (f *fixture) last(t *testing.T) map[string]any {
	t.Helper()
	if len(f.writes) == 0 {
		t.Fatalf("no write reached the hook")
	}
	return f.writes[len(f.writes)-1].Values
}

func TestPrepareColumnSkips(t *testing.T) {
	ctx := context.Background()
	p := NewPipeline(settings.Map{}, nil)
	cases := []struct {
		name  string
		def   *fielddef.Definition
		raw   Value
		mode  Mode
		cal   Caller
		skip  bool
		value any
	}{
		{"placeholder", testDef("heading"), Scalar("x"), ModeInsert, Caller{}, true, nil},
		{"dummy password", testDef("secret"), Scalar("•••••••••••"), ModeUpdate, Caller{}, true, nil},
		{"empty password update", testDef("secret"), Scalar(""), ModeUpdate, Caller{}, true, nil},
		{"import keeps value", testDef("phone"), Scalar(""), ModeImport, Caller{}, true, nil},
		{"import overwrite", testDef("phone"), Scalar(""), ModeImport, Caller{Overwrite: true}, false, ""},
		{"readonly update", testDef("member_no"), Scalar("9"), ModeUpdate, Caller{Origin: OriginForm}, true, nil},
		{"readonly insert blanks", testDef("member_no"), Scalar("9"), ModeInsert, Caller{Origin: OriginForm}, false, ""},
		{"readonly signup", testDef("member_no"), Scalar("9"), ModeInsert, Caller{Origin: OriginSignup}, false, "9"},
		{"readonly privileged", testDef("member_no"), Scalar("9"), ModeUpdate, Caller{Privileged: true}, false, "9"},
		{"numeric", testDef("age"), Scalar(" 42 "), ModeUpdate, Caller{}, false, int64(42)},
		{"numeric empty", testDef("age"), Scalar(""), ModeUpdate, Caller{}, false, nil},
		{"list", testDef("phone"), List("a", "b"), ModeUpdate, Caller{}, false, `a:2:{i:0;s:1:"a";i:1;s:1:"b";}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			col := p.PrepareColumn(ctx, tc.def, tc.raw, tc.mode, tc.cal)
			if col.Skip != tc.skip {
				t.Fatalf("Skip=%v want %v", col.Skip, tc.skip)
			}
			if !tc.skip {
				if diff := cmp.Diff(tc.value, col.Value); diff != "" {
					t.Fatalf("value mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestPrepareColumnCapability(t *testing.T) {
	p := NewPipeline(settings.Map{}, capability.Allow{})
	col := p.PrepareColumn(context.Background(), testDef("member_no"), Scalar("7"), ModeUpdate, Caller{Origin: OriginAdmin})
	if col.Skip || col.Value != "7" {
		t.Fatalf("capability holder should write readonly field: %+v", col)
	}
}

func TestPrepareColumnPassword(t *testing.T) {
	p := NewPipeline(settings.Map{}, nil)
	p.BcryptCost = bcrypt.MinCost
	col := p.PrepareColumn(context.Background(), testDef("secret"), Scalar("hunter2"), ModeInsert, Caller{})
	hash, _ := col.Value.(string)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")); err != nil {
		t.Fatalf("stored value is not a bcrypt hash of the input: %v", err)
	}
}

func TestPrepareColumnSanitize(t *testing.T) {
	ctx := context.Background()
	p := NewPipeline(settings.Map{}, nil)
	col := p.PrepareColumn(ctx, testDef("bio"), Scalar(`<b>hi</b><script>alert(1)</script>`), ModeUpdate, Caller{})
	if col.Value != "<b>hi</b>" {
		t.Fatalf("sanitize=%q", col.Value)
	}
	col = p.PrepareColumn(ctx, testDef("bio"), Scalar("Tom & Jerry"), ModeUpdate, Caller{})
	if col.Value != "Tom & Jerry" {
		t.Fatalf("plain text altered: %q", col.Value)
	}
	strict := NewPipeline(settings.Map{settings.AllowTags: "0"}, nil)
	col = strict.PrepareColumn(ctx, testDef("bio"), Scalar("<b>hi</b>"), ModeUpdate, Caller{})
	if col.Value != "hi" {
		t.Fatalf("strip=%q", col.Value)
	}
	col = p.PrepareColumn(ctx, testDef("bio"), Scalar(`O:8:"stdClass":0:{}`), ModeUpdate, Caller{})
	if col.Value != "" {
		t.Fatalf("serialized object stored: %q", col.Value)
	}
}

func TestPrepareColumnMalformedSerialized(t *testing.T) {
	ctx := context.Background()
	p := NewPipeline(settings.Map{}, nil)
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"oversized length", `a:999999999999999999:{<b>x</b>`, `a:999999999999999999:{<b>x</b>`},
		{"truncated", `a:2:{i:0;<i>x</i>`, `a:2:{i:0;<i>x</i>`},
		{"script in oversized", `a:99999:{<script>x</script>`, `a:99999:{`},
		{"well formed", `a:1:{i:0;s:26:"<b>x</b><script>y</script>";}`, `a:1:{i:0;s:8:"<b>x</b>";}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			col := p.PrepareColumn(ctx, testDef("bio"), Scalar(tc.raw), ModeInsert, Caller{Origin: OriginForm})
			if col.Value != tc.want {
				t.Fatalf("value=%q want %q", col.Value, tc.want)
			}
		})
	}
}

func TestPrepareColumnTimestamp(t *testing.T) {
	ctx := context.Background()
	p := NewPipeline(settings.Map{settings.Timezone: "UTC+2"}, nil)
	cases := []struct {
		name string
		raw  string
		mode Mode
		want any
	}{
		{"stored layout kept", "2024-03-01 10:00:00", ModeUpdate, "2024-03-01 10:00:00"},
		{"site date localised", "2024/03/01", ModeUpdate, "2024-02-29 22:00:00"},
		{"import localised", "2024-03-01 10:00:00", ModeImport, "2024-03-01 08:00:00"},
		{"empty", "", ModeUpdate, nil},
		{"garbage", "soon", ModeUpdate, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			col := p.PrepareColumn(ctx, testDef("seen"), Scalar(tc.raw), tc.mode, Caller{Overwrite: true})
			if diff := cmp.Diff(tc.want, col.Value); diff != "" {
				t.Fatalf("value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	v := NewValidator(nil, nil)
	defs := []*fielddef.Definition{
		{Name: "first_name", Type: fielddef.TextLine, Validation: "required"},
		{Name: "email", Type: fielddef.TextLine, Validation: "email-regex"},
		{Name: "email_confirm", Type: fielddef.TextLine, Validation: "email"},
		{Name: "zip", Type: fielddef.TextLine, Validation: "/^[0-9]{5}$/"},
		{Name: "code", Type: fielddef.TextLine, Validation: "#^ab#i"},
		{Name: "age", Type: fielddef.Numeric},
	}
	err := v.Validate(context.Background(), defs, map[string]string{
		"email": "nope", "email_confirm": "x@example.com", "zip": "12a45", "code": "ABc", "age": "old",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("not a ValidationError: %T", err)
	}
	got := map[string]string{}
	for _, fe := range verr.Errors {
		got[fe.Field] = fe.Rule
	}
	want := map[string]string{"first_name": RuleRequired, "email": RuleEmail, "email_confirm": RuleMatch, "zip": RulePattern, "age": RuleNumeric}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}
	if fe, _ := verr.Field("first_name"); !strings.Contains(fe.Message, "first_name") {
		t.Fatalf("message=%q", fe.Message)
	}
}

func TestParsePattern(t *testing.T) {
	for _, tc := range []struct {
		pattern, in string
		match       bool
	}{
		{"/^a+$/", "aaa", true},
		{"/^A$/i", "a", true},
		{"~x~", "oxo", true},
		{"(a)(b)", "ab", true},
		{"/^a$/", "b", false},
	} {
		re, err := ParsePattern(tc.pattern)
		if err != nil {
			t.Fatalf("%s: %v", tc.pattern, err)
		}
		if re.MatchString(tc.in) != tc.match {
			t.Fatalf("%s on %q: want %v", tc.pattern, tc.in, tc.match)
		}
	}
}

func TestInsert(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectExec("INSERT INTO .*pdb_participants").WillReturnResult(sqlmock.NewResult(11, 1))
	id, err := f.w.Insert(context.Background(), map[string]Value{
		"first_name": Scalar("Ada"),
		"email":      Scalar("ada@example.com"),
		"secret":     Scalar("pw"),
		"unknown":    Scalar("x"),
	}, Caller{Origin: OriginAdmin})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != 11 {
		t.Fatalf("id=%d", id)
	}
	row := f.last(t)
	if row["private_id"] != "ABC1234" || row["date_recorded"] != "2024-03-01 12:00:00" || row["date_updated"] != "2024-03-01 12:00:00" {
		t.Fatalf("internal columns: %v", row)
	}
	if _, ok := row["unknown"]; ok {
		t.Fatalf("unknown field written")
	}
	if _, ok := row["heading"]; ok {
		t.Fatalf("placeholder written")
	}
	if len(f.events.got) != 1 || f.events.got[0].Name != EventCreated || f.events.got[0].Record != 11 {
		t.Fatalf("events=%v", f.events.got)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertStripsMarkupWhenHTMLDisallowed(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectExec("INSERT INTO .*pdb_participants").WillReturnResult(sqlmock.NewResult(12, 1))
	_, err := f.w.Insert(context.Background(), map[string]Value{
		"first_name": Scalar("Ada"),
		"notes":      Scalar(`<b>bold</b> <a href="x">link</a>`),
		"bio":        Scalar(`<b>bold</b><script>x</script>`),
	}, Caller{Origin: OriginForm})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	row := f.last(t)
	if row["notes"] != "bold link" {
		t.Fatalf("notes=%q", row["notes"])
	}
	if row["bio"] != "<b>bold</b>" {
		t.Fatalf("bio=%q", row["bio"])
	}
}

func TestUpdateClearsUpload(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectExec("UPDATE .*pdb_participants").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := f.w.Update(context.Background(), 5, map[string]Value{"photo": Scalar("")}, Caller{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	want := map[string]any{"photo": "", "date_updated": "2024-03-01 12:00:00"}
	if diff := cmp.Diff(want, f.last(t)); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertValidationFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.w.Insert(context.Background(), map[string]Value{"email": Scalar("bad")}, Caller{Origin: OriginForm})
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Errors) != 2 {
		t.Fatalf("err=%v", err)
	}
	if len(f.writes) != 0 {
		t.Fatalf("invalid record reached the write hook")
	}
}

func TestInsertVetoed(t *testing.T) {
	f := newFixture(t)
	_, err := f.w.Insert(context.Background(), map[string]Value{"first_name": Scalar("veto")}, Caller{})
	if !errors.Is(err, ErrVetoed) {
		t.Fatalf("err=%v", err)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected query: %v", err)
	}
}

func TestUpdatePresentFieldsOnly(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectExec("UPDATE .*pdb_participants").WillReturnResult(sqlmock.NewResult(0, 1))
	err := f.w.Update(context.Background(), 5, map[string]Value{"phone": Scalar("555"), "secret": Scalar("•••••••••••")}, Caller{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	want := map[string]any{"phone": "555", "date_updated": "2024-03-01 12:00:00"}
	if diff := cmp.Diff(want, f.last(t)); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateNotFound(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectExec("UPDATE .*pdb_participants").WillReturnResult(sqlmock.NewResult(0, 0))
	err := f.w.Update(context.Background(), 99, map[string]Value{"phone": Scalar("1")}, Caller{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func expectGet(t *testing.T, f *fixture, column string, value any, rows *sqlmock.Rows) {
	t.Helper()
	cols, err := f.w.Columns(context.Background())
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	s, _, err := query.New(f.w.DB, "pdb_participants", ormdriver.MySQLDialect{}).Select(cols...).Where(column, value).Limit(1).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	f.mock.ExpectQuery(regexp.QuoteMeta(s)).WithArgs(value).WillReturnRows(rows)
}

func TestImportKeepsStoredValues(t *testing.T) {
	f := newFixture(t)
	expectGet(t, f, "id", "5", sqlmock.NewRows([]string{"id", "phone"}).AddRow("5", "555-1234"))
	f.mock.ExpectExec("UPDATE .*pdb_participants").WillReturnResult(sqlmock.NewResult(0, 1))
	id, err := f.w.Import(context.Background(), map[string]string{"id": "5", "first_name": "Ada", "phone": ""}, "", Caller{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if id != 5 {
		t.Fatalf("id=%d", id)
	}
	row := f.last(t)
	if _, ok := row["phone"]; ok {
		t.Fatalf("empty import value would blank phone: %v", row)
	}
	if row["first_name"] != "Ada" {
		t.Fatalf("row=%v", row)
	}
	if f.writes[0].Mode != ModeImport {
		t.Fatalf("mode=%v", f.writes[0].Mode)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestImportInsertsUnmatched(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectExec("INSERT INTO .*pdb_participants").WillReturnResult(sqlmock.NewResult(21, 1))
	id, err := f.w.Import(context.Background(), map[string]string{"first_name": "Grace"}, "", Caller{})
	if err != nil || id != 21 {
		t.Fatalf("import=%d,%v", id, err)
	}
}

func TestGetScansNulls(t *testing.T) {
	f := newFixture(t)
	expectGet(t, f, "id", int64(3), sqlmock.NewRows([]string{"id", "first_name", "phone"}).AddRow("3", "Ada", nil))
	rec, err := f.w.Get(context.Background(), 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := Record{"id": "3", "first_name": "Ada", "phone": ""}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	if rec.ID() != 3 {
		t.Fatalf("ID=%d", rec.ID())
	}
}

func TestGetByPrivateIDMissing(t *testing.T) {
	f := newFixture(t)
	expectGet(t, f, "private_id", "NOPE", sqlmock.NewRows([]string{"id"}))
	if _, err := f.w.GetByPrivateID(context.Background(), "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
	if _, err := f.w.GetByPrivateID(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty pid err=%v", err)
	}
}

func TestBulkContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectExec("DELETE FROM .*pdb_participants").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("DELETE FROM .*pdb_participants").WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec("DELETE FROM .*pdb_participants").WillReturnResult(sqlmock.NewResult(0, 1))
	rep, err := f.w.Bulk(context.Background(), ActionDelete, []int64{1, 2, 3}, capability.Allow{})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if diff := cmp.Diff([]int64{1, 3}, rep.Done); diff != "" {
		t.Fatalf("done mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(rep.Failed[2], ErrNotFound) {
		t.Fatalf("failed=%v", rep.Failed)
	}
	if _, err := f.w.Bulk(context.Background(), ActionDelete, []int64{1}, capability.Deny{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
