package fielddef

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"
	"github.com/faciam-dev/goquent/orm/query"
)

// SQLSource reads definitions from the <prefix>fields and <prefix>groups
// tables.
type SQLSource struct {
	DB          *sql.DB
	Dialect     ormdriver.Dialect
	Driver      string
	TablePrefix string
}

func (s *SQLSource) prefix() string {
	if s.TablePrefix != "" {
		return s.TablePrefix
	}
	return "pdb_"
}

// FieldsTable returns the definitions table name.
func (s *SQLSource) FieldsTable() string { return s.prefix() + "fields" }

// GroupsTable returns the groups table name.
func (s *SQLSource) GroupsTable() string { return s.prefix() + "groups" }

// RecordsTable returns the records table name.
func (s *SQLSource) RecordsTable() string { return s.prefix() + "participants" }

var fieldColumns = []string{"id", "name", "title", "form_element", "field_group", "field_order", "default_value", "validation", "validation_message", "help_text", "options", "attributes", "sortable", "csv", "persistent", "signup", "readonly"}

type fieldRow struct {
	ID                int64          `db:"id"`
	Name              string         `db:"name"`
	Title             sql.NullString `db:"title"`
	FormElement       string         `db:"form_element"`
	Group             sql.NullString `db:"field_group"`
	Order             sql.NullInt64  `db:"field_order"`
	Default           sql.NullString `db:"default_value"`
	Validation        sql.NullString `db:"validation"`
	ValidationMessage sql.NullString `db:"validation_message"`
	HelpText          sql.NullString `db:"help_text"`
	Options           sql.NullString `db:"options"`
	Attributes        sql.NullString `db:"attributes"`
	Sortable          bool           `db:"sortable"`
	CSV               bool           `db:"csv"`
	Persistent        bool           `db:"persistent"`
	Signup            bool           `db:"signup"`
	Readonly          bool           `db:"readonly"`
}

func (r fieldRow) definition() (*Definition, error) {
	d := &Definition{
		ID:                r.ID,
		Name:              r.Name,
		Title:             r.Title.String,
		Type:              Type(r.FormElement),
		Group:             r.Group.String,
		Order:             int(r.Order.Int64),
		Default:           r.Default.String,
		Validation:        r.Validation.String,
		ValidationMessage: r.ValidationMessage.String,
		HelpText:          r.HelpText.String,
		Sortable:          r.Sortable,
		CSV:               r.CSV,
		Persistent:        r.Persistent,
		Signup:            r.Signup,
		Readonly:          r.Readonly,
	}
	var err error
	if d.Options, err = ParseOptions(r.Options.String); err != nil {
		return nil, fmt.Errorf("field %s options: %w", r.Name, err)
	}
	if d.Attributes, err = ParseOptions(r.Attributes.String); err != nil {
		return nil, fmt.Errorf("field %s attributes: %w", r.Name, err)
	}
	return d, nil
}

func (s *SQLSource) fieldQuery(ctx context.Context) *query.Query {
	return query.New(s.DB, s.FieldsTable(), s.Dialect).
		Select(fieldColumns...).
		WithContext(ctx)
}

func (s *SQLSource) LoadFields(ctx context.Context) ([]*Definition, error) {
	var rows []fieldRow
	if err := s.fieldQuery(ctx).OrderBy("field_order", "asc").Get(&rows); err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	defs := make([]*Definition, 0, len(rows))
	for _, r := range rows {
		d, err := r.definition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func (s *SQLSource) LoadField(ctx context.Context, name string) (*Definition, error) {
	var rows []fieldRow
	if err := s.fieldQuery(ctx).Where("name", name).Limit(1).Get(&rows); err != nil {
		return nil, fmt.Errorf("load field: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0].definition()
}

func (s *SQLSource) LoadGroups(ctx context.Context) ([]Group, error) {
	type row struct {
		ID    int64          `db:"id"`
		Name  string         `db:"name"`
		Title sql.NullString `db:"title"`
		Order sql.NullInt64  `db:"group_order"`
		Mode  sql.NullString `db:"mode"`
	}
	var rows []row
	q := query.New(s.DB, s.GroupsTable(), s.Dialect).
		Select("id", "name", "title", "group_order", "mode").
		OrderBy("group_order", "asc").
		WithContext(ctx)
	if err := q.Get(&rows); err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	out := make([]Group, 0, len(rows))
	for _, r := range rows {
		g := Group{ID: r.ID, Name: r.Name, Title: r.Title.String, Order: int(r.Order.Int64), Mode: r.Mode.String}
		if g.Mode == "" {
			g.Mode = ModePublic
		}
		out = append(out, g)
	}
	return out, nil
}

func encodeOptions(o Options) (string, error) {
	if len(o) == 0 {
		return "", nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SaveFields upserts defs into the definitions table in one transaction.
func (s *SQLSource) SaveFields(ctx context.Context, defs []*Definition) error {
	if len(defs) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	tbl := s.FieldsTable()
	var stmt *sql.Stmt
	switch s.Driver {
	case "postgres":
		stmt, err = tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (name, title, form_element, field_group, field_order, default_value, validation, validation_message, help_text, options, attributes, sortable, csv, persistent, signup, readonly) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) ON CONFLICT (name) DO UPDATE SET title=EXCLUDED.title, form_element=EXCLUDED.form_element, field_group=EXCLUDED.field_group, field_order=EXCLUDED.field_order, default_value=EXCLUDED.default_value, validation=EXCLUDED.validation, validation_message=EXCLUDED.validation_message, help_text=EXCLUDED.help_text, options=EXCLUDED.options, attributes=EXCLUDED.attributes, sortable=EXCLUDED.sortable, csv=EXCLUDED.csv, persistent=EXCLUDED.persistent, signup=EXCLUDED.signup, readonly=EXCLUDED.readonly`, tbl))
	case "mysql":
		stmt, err = tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (name, title, form_element, field_group, field_order, default_value, validation, validation_message, help_text, options, attributes, sortable, csv, persistent, signup, readonly) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE title=VALUES(title), form_element=VALUES(form_element), field_group=VALUES(field_group), field_order=VALUES(field_order), default_value=VALUES(default_value), validation=VALUES(validation), validation_message=VALUES(validation_message), help_text=VALUES(help_text), options=VALUES(options), attributes=VALUES(attributes), sortable=VALUES(sortable), csv=VALUES(csv), persistent=VALUES(persistent), signup=VALUES(signup), readonly=VALUES(readonly)", tbl))
	default:
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback: %v: unsupported driver: %s", rbErr, s.Driver)
		}
		return fmt.Errorf("unsupported driver: %s", s.Driver)
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback: %v: prepare: %w", rbErr, err)
		}
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, d := range defs {
		opts, err := encodeOptions(d.Options)
		if err == nil {
			var attrs string
			attrs, err = encodeOptions(d.Attributes)
			if err == nil {
				_, err = stmt.ExecContext(ctx, d.Name, d.Title, string(d.Type), d.Group, d.Order, d.Default, d.Validation, d.ValidationMessage, d.HelpText, opts, attrs, d.Sortable, d.CSV, d.Persistent, d.Signup, d.Readonly)
			}
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("rollback: %v: exec %s: %w", rbErr, d.Name, err)
			}
			return fmt.Errorf("exec %s: %w", d.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SaveGroups inserts or updates groups by name.
func (s *SQLSource) SaveGroups(ctx context.Context, groups []Group) error {
	for _, g := range groups {
		var existing []struct {
			ID int64 `db:"id"`
		}
		q := query.New(s.DB, s.GroupsTable(), s.Dialect).Select("id").Where("name", g.Name).WithContext(ctx)
		if err := q.Get(&existing); err != nil {
			return fmt.Errorf("lookup group %s: %w", g.Name, err)
		}
		data := map[string]any{"title": g.Title, "group_order": g.Order, "mode": g.Mode}
		if len(existing) > 0 {
			if _, err := query.New(s.DB, s.GroupsTable(), s.Dialect).Where("id", existing[0].ID).WithContext(ctx).Update(data); err != nil {
				return fmt.Errorf("update group %s: %w", g.Name, err)
			}
			continue
		}
		data["name"] = g.Name
		if _, err := query.New(s.DB, s.GroupsTable(), s.Dialect).WithContext(ctx).InsertGetId(data); err != nil {
			return fmt.Errorf("insert group %s: %w", g.Name, err)
		}
	}
	return nil
}

// DeleteField removes a definition row. Missing rows are not an error.
func (s *SQLSource) DeleteField(ctx context.Context, name string) error {
	_, err := query.New(s.DB, s.FieldsTable(), s.Dialect).Where("name", name).WithContext(ctx).Delete()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delete field: %w", err)
	}
	return nil
}
