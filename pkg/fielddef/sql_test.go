package fielddef

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	ormdriver "github.com/faciam-dev/goquent/orm/driver"
	"github.com/faciam-dev/goquent/orm/query"
)

func TestSQLSourceLoadFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sqlStr, _, _ := query.New(db, "pdb_fields", ormdriver.MySQLDialect{}).
		Select(fieldColumns...).
		OrderBy("field_order", "asc").
		Build()
	rows := sqlmock.NewRows(fieldColumns).
		AddRow(int64(1), "colour", "Colour", "dropdown", "main", int64(1), "", "yes", "", "", `{"Red":"red","Blue":"blue"}`, "", true, false, false, true, false).
		AddRow(int64(2), "bio", "Bio", "text-area", "main", int64(2), "", "", "", "", "", `{"rows":"4"}`, false, false, false, false, false)
	mock.ExpectQuery(regexp.QuoteMeta(sqlStr)).WillReturnRows(rows)

	src := &SQLSource{DB: db, Dialect: ormdriver.MySQLDialect{}, Driver: "mysql"}
	defs, err := src.LoadFields(context.Background())
	if err != nil {
		t.Fatalf("LoadFields: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("got %d defs", len(defs))
	}
	if defs[0].Type != Dropdown || !defs[0].Sortable || !defs[0].Signup {
		t.Fatalf("colour decoded wrong: %+v", defs[0])
	}
	if got := defs[0].SelectOptions().Values(); len(got) != 2 || got[0] != "red" {
		t.Fatalf("options=%v", got)
	}
	if defs[1].Attr("rows") != "4" {
		t.Fatalf("attributes not decoded")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLSourceLoadFieldNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sqlStr, _, _ := query.New(db, "pdb_fields", ormdriver.MySQLDialect{}).
		Select(fieldColumns...).
		Where("name", "ghost").
		Limit(1).
		Build()
	mock.ExpectQuery(regexp.QuoteMeta(sqlStr)).
		WillReturnRows(sqlmock.NewRows(fieldColumns))

	src := &SQLSource{DB: db, Dialect: ormdriver.MySQLDialect{}, Driver: "mysql"}
	if _, err := src.LoadField(context.Background(), "ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveFieldsMySQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO pdb_fields")
	prep.ExpectExec().
		WithArgs("email", "Email", "text-line", "main", int64(0), "", "email-regex", "", "", "", "", false, false, false, true, false).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	src := &SQLSource{DB: db, Dialect: ormdriver.MySQLDialect{}, Driver: "mysql"}
	defs := []*Definition{{Name: "email", Title: "Email", Type: TextLine, Group: "main", Validation: "email-regex", Signup: true}}
	if err := src.SaveFields(context.Background(), defs); err != nil {
		t.Fatalf("SaveFields: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestColumnSQL(t *testing.T) {
	d := &Definition{Name: "age", Type: Numeric}
	got, err := AddColumnSQL("mysql", "pdb_participants", d)
	if err != nil || got != "ALTER TABLE `pdb_participants` ADD COLUMN `age` BIGINT NULL" {
		t.Fatalf("mysql add=%q,%v", got, err)
	}
	got, err = AddColumnSQL("postgres", "pdb_participants", d)
	if err != nil || got != `ALTER TABLE "pdb_participants" ADD COLUMN "age" BIGINT NULL` {
		t.Fatalf("postgres add=%q,%v", got, err)
	}
	if _, err := AddColumnSQL("mysql", "pdb_participants", &Definition{Name: "c", Type: Captcha}); err == nil {
		t.Fatalf("captcha must not get a column")
	}
	got, _ = ModifyColumnSQL("postgres", "pdb_participants", d)
	if got != `ALTER TABLE "pdb_participants" ALTER COLUMN "age" TYPE BIGINT USING "age"::BIGINT` {
		t.Fatalf("postgres modify=%q", got)
	}
}

func TestRegistryColdGetResolvesInternalFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	tests := []struct {
		name     string
		exists   bool
		sortable bool
	}{
		{FieldDateRecorded, true, true},
		{FieldApproved, true, false},
		{FieldID, true, true},
		{"ghost", false, false},
	}
	for _, tt := range tests {
		sqlStr, _, _ := query.New(db, "pdb_fields", ormdriver.MySQLDialect{}).
			Select(fieldColumns...).
			Where("name", tt.name).
			Limit(1).
			Build()
		mock.ExpectQuery(regexp.QuoteMeta(sqlStr)).
			WillReturnRows(sqlmock.NewRows(fieldColumns))
	}

	reg := NewRegistry(&SQLSource{DB: db, Dialect: ormdriver.MySQLDialect{}, Driver: "mysql"}, nil)
	for _, tt := range tests {
		d, ok := reg.Get(context.Background(), tt.name)
		if ok != tt.exists || d.Exists() != tt.exists {
			t.Errorf("Get(%s) ok=%v exists=%v want %v", tt.name, ok, d.Exists(), tt.exists)
		}
		if tt.exists && (!d.StoresData() || !d.IsInternal() || d.Sortable != tt.sortable) {
			t.Errorf("Get(%s)=%+v", tt.name, d)
		}
	}
	// second lookup is served from cache without a query
	if d, ok := reg.Get(context.Background(), FieldDateRecorded); !ok || !d.IsDate() {
		t.Fatalf("cached date_recorded=%+v", d)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
