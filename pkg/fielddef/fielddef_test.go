package fielddef

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestTypeTable(t *testing.T) {
	tests := []struct {
		typ                        Type
		stores, multi, set, number bool
	}{
		{TextLine, true, false, false, false},
		{Captcha, false, false, false, false},
		{Placeholder, false, false, false, false},
		{MultiCheckbox, true, true, true, false},
		{MultiSelectOther, true, true, true, false},
		{MultiDropdown, true, true, true, false},
		{Link, true, true, false, false},
		{Dropdown, true, false, true, false},
		{Date, true, false, false, true},
		{Currency, true, false, false, true},
	}
	for _, tt := range tests {
		d := &Definition{Name: "f", Type: tt.typ}
		if d.StoresData() != tt.stores || d.IsMulti() != tt.multi || d.IsValueSet() != tt.set || d.IsNumeric() != tt.number {
			t.Fatalf("%s: stores=%v multi=%v set=%v numeric=%v", tt.typ, d.StoresData(), d.IsMulti(), d.IsValueSet(), d.IsNumeric())
		}
	}
}

func TestMissingDefinition(t *testing.T) {
	d := Missing("nope")
	if d.Exists() || d.StoresData() || d.IsMulti() {
		t.Fatalf("missing definition must be inert: %+v", d)
	}
	if d.Name != "nope" {
		t.Fatalf("name lost")
	}
}

func TestRegisterType(t *testing.T) {
	if err := RegisterType("star-rating", Behavior{Datatype: "INT", Numeric: true}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterType("star-rating", Behavior{}); err != ErrTypeExists {
		t.Fatalf("expected ErrTypeExists, got %v", err)
	}
	d := &Definition{Name: "rating", Type: "star-rating"}
	if !d.IsNumeric() || d.Datatype() != "INT" {
		t.Fatalf("custom type behavior not applied")
	}
	if _, ok := Lookup("unknown-type"); ok {
		t.Fatalf("unknown type reported as registered")
	}
}

func TestOptionsYAMLOrder(t *testing.T) {
	var o Options
	if err := yaml.Unmarshal([]byte("Zebra: z\nApple: a\nnull_select: Choose one\n"), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Options{{"Zebra", "z"}, {"Apple", "a"}, {"null_select", "Choose one"}}
	if diff := cmp.Diff(want, o); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	d := &Definition{Name: "f", Type: Dropdown, Options: o}
	if got := d.SelectOptions().Values(); !cmp.Equal(got, []string{"z", "a"}) {
		t.Fatalf("SelectOptions=%v", got)
	}
	if ns := d.NullSelect(); !ns.Configured || ns.Label != "Choose one" {
		t.Fatalf("NullSelect=%+v", ns)
	}
	if d.OptionTitle("a") != "Apple" || d.OptionValue("apple") != "a" {
		t.Fatalf("title/value mapping broken")
	}
}

func TestOptionsJSON(t *testing.T) {
	var o Options
	if err := json.Unmarshal([]byte(`{"Red":"red","Blue":"blue"}`), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	b, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"Red":"red","Blue":"blue"}` {
		t.Fatalf("order not preserved: %s", b)
	}
	var arr Options
	if err := json.Unmarshal([]byte(`["one",["Two","2"]]`), &arr); err != nil {
		t.Fatalf("unmarshal array: %v", err)
	}
	if diff := cmp.Diff(Options{{"one", "one"}, {"Two", "2"}}, arr); diff != "" {
		t.Fatalf("array options (-want +got):\n%s", diff)
	}
}

func TestParseOptionsList(t *testing.T) {
	o, err := ParseOptions("Yes::y, No::n, maybe")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := Options{{"Yes", "y"}, {"No", "n"}, {"maybe", "maybe"}}
	if diff := cmp.Diff(want, o); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestDynamicDefault(t *testing.T) {
	env := MapContext{"current_user->display_name": "Ada", "SERVER:HTTP_HOST": "example.org"}
	tests := []struct{ def, want string }{
		{"current_user->display_name", "Ada"},
		{"$SERVER:HTTP_HOST", "example.org"},
		{"SERVER:HTTP_HOST", "example.org"},
		{"current_user->missing", ""},
		{"plain value", "plain value"},
	}
	for _, tt := range tests {
		d := &Definition{Name: "f", Type: TextLine, Default: tt.def}
		if got := d.DefaultValue(env); got != tt.want {
			t.Fatalf("DefaultValue(%q)=%q want %q", tt.def, got, tt.want)
		}
	}
	if !(&Definition{Default: "current_user->id"}).IsDynamic() {
		t.Fatalf("expression not detected")
	}
}

type countingSource struct {
	StaticSource
	fieldLoads, allLoads int
}

func (c *countingSource) LoadField(ctx context.Context, name string) (*Definition, error) {
	c.fieldLoads++
	return c.StaticSource.LoadField(ctx, name)
}

func (c *countingSource) LoadFields(ctx context.Context) ([]*Definition, error) {
	c.allLoads++
	return c.StaticSource.LoadFields(ctx)
}

func TestRegistryTTL(t *testing.T) {
	src := &countingSource{StaticSource: StaticSource{Fields: []*Definition{{Name: "email", Type: TextLine}}}}
	r := NewRegistry(src, nil)
	now := time.Unix(0, 0)
	r.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d, ok := r.Get(ctx, "email"); !ok || d.Name != "email" {
			t.Fatalf("Get(email)=%v,%v", d, ok)
		}
	}
	if src.fieldLoads != 1 {
		t.Fatalf("LoadField called %d times, want 1", src.fieldLoads)
	}
	src.Fields[0].Title = "changed"
	if d, _ := r.Get(ctx, "email"); d.Title == "changed" {
		t.Fatalf("change visible before TTL expiry")
	}
	now = now.Add(DefaultTTL + time.Second)
	if d, _ := r.Get(ctx, "email"); d.Title != "changed" {
		t.Fatalf("change not visible after TTL expiry")
	}

	d, ok := r.Get(ctx, "ghost")
	if ok || d == nil || d.Exists() {
		t.Fatalf("unknown field: %v,%v", d, ok)
	}
	if src.fieldLoads != 3 {
		t.Fatalf("LoadField calls=%d want 3", src.fieldLoads)
	}
	r.Get(ctx, "ghost")
	if src.fieldLoads != 3 {
		t.Fatalf("missing field not cached")
	}
}

func TestRegistryAllIncludesInternal(t *testing.T) {
	src := &StaticSource{
		Fields:      []*Definition{{Name: "b", Type: TextLine, Group: "main", Order: 2}, {Name: "a", Type: Captcha, Group: "main", Order: 1}},
		FieldGroups: []Group{{Name: "main", Order: 0}, {Name: InternalGroup, Order: 9}},
	}
	r := NewRegistry(src, nil)
	ctx := context.Background()
	all, err := r.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if all[0].Name != "a" || all[1].Name != "b" {
		t.Fatalf("order: %s,%s", all[0].Name, all[1].Name)
	}
	data, _ := r.DataFields(ctx)
	for _, d := range data {
		if d.Name == "a" {
			t.Fatalf("captcha must not be a data field")
		}
	}
	if d, ok := r.Get(ctx, FieldID); !ok || !d.IsInternal() {
		t.Fatalf("id field missing from batch")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	in := []*Definition{{Name: "Favourite Colour", Title: "Colour", Type: Dropdown, Group: "main", Options: Options{{"Red", "red"}}}}
	b, err := EncodeYAML([]Group{{Name: "main", Title: "Main"}}, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := DecodeYAML(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Fields[0].Name != "favourite_colour" {
		t.Fatalf("name=%q", f.Fields[0].Name)
	}
	if diff := cmp.Diff(in[0].Options, f.Fields[0].Options); diff != "" {
		t.Fatalf("options (-want +got):\n%s", diff)
	}
	if _, err := DecodeYAML([]byte("version: \"9\"\nfields: []\n")); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestDiff(t *testing.T) {
	a := []*Definition{{Name: "x", Type: TextLine}, {Name: "y", Type: TextLine}}
	b := []*Definition{{Name: "x", Type: Numeric}, {Name: "z", Type: Captcha}}
	ch := Diff(a, b)
	got := map[string]ChangeType{}
	for _, c := range ch {
		name := ""
		if c.New != nil {
			name = c.New.Name
		} else {
			name = c.Old.Name
		}
		got[name] = c.Type
	}
	want := map[string]ChangeType{"x": ChangeUpdated, "z": ChangeAdded, "y": ChangeDeleted}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	for _, c := range ch {
		if c.New != nil && c.New.Name == "z" && c.ColumnChanged() {
			t.Fatalf("captcha add must not touch columns")
		}
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"First Name", "first_name"},
		{"emailAddress", "email_address"},
		{"Zip/Postal", "zip_postal"},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Fatalf("NormalizeName(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}
