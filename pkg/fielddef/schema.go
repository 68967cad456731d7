package fielddef

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

func quoteIdentifier(driver, ident string) string {
	switch driver {
	case "postgres":
		return pq.QuoteIdentifier(ident)
	case "mysql":
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	default:
		return ident
	}
}

func columnType(driver string, d *Definition) string {
	typ := d.Datatype()
	if driver == "postgres" && strings.HasPrefix(typ, "TIMESTAMP") {
		return "TIMESTAMP WITHOUT TIME ZONE"
	}
	return typ
}

// AddColumnSQL returns the statement adding d's column to table.
func AddColumnSQL(driver, table string, d *Definition) (string, error) {
	if !d.StoresData() {
		return "", fmt.Errorf("field %s stores no data", d.Name)
	}
	switch driver {
	case "postgres", "mysql":
	default:
		return "", fmt.Errorf("unsupported driver: %s", driver)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NULL", quoteIdentifier(driver, table), quoteIdentifier(driver, d.Name), columnType(driver, d)), nil
}

// ModifyColumnSQL returns the statement changing the type of d's column.
func ModifyColumnSQL(driver, table string, d *Definition) (string, error) {
	if !d.StoresData() {
		return "", fmt.Errorf("field %s stores no data", d.Name)
	}
	typ := columnType(driver, d)
	switch driver {
	case "postgres":
		col := quoteIdentifier(driver, d.Name)
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s", quoteIdentifier(driver, table), col, typ, col, typ), nil
	case "mysql":
		return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s NULL", quoteIdentifier(driver, table), quoteIdentifier(driver, d.Name), typ), nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", driver)
	}
}

// AddColumn adds d's column to the records table.
func (s *SQLSource) AddColumn(ctx context.Context, d *Definition) error {
	stmt, err := AddColumnSQL(s.Driver, s.RecordsTable(), d)
	if err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("add column: %w", err)
	}
	return nil
}

// ModifyColumn changes the column type of d to match its current form
// element. Stored values are not migrated.
func (s *SQLSource) ModifyColumn(ctx context.Context, d *Definition) error {
	stmt, err := ModifyColumnSQL(s.Driver, s.RecordsTable(), d)
	if err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("modify column: %w", err)
	}
	return nil
}

// DropColumn removes the named column from the records table.
func (s *SQLSource) DropColumn(ctx context.Context, column string) error {
	table := s.RecordsTable()
	var stmt string
	switch s.Driver {
	case "postgres":
		stmt = fmt.Sprintf(`ALTER TABLE %s DROP COLUMN IF EXISTS %s`, quoteIdentifier(s.Driver, table), quoteIdentifier(s.Driver, column))
	case "mysql":
		// MySQL < 8.0 does not support IF EXISTS for DROP COLUMN.
		exists, err := s.HasColumn(ctx, column)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		stmt = fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteIdentifier(s.Driver, table), quoteIdentifier(s.Driver, column))
	default:
		return fmt.Errorf("unsupported driver: %s", s.Driver)
	}
	if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop column: %w", err)
	}
	return nil
}

// HasColumn reports whether the records table has the named column.
func (s *SQLSource) HasColumn(ctx context.Context, column string) (bool, error) {
	var q string
	switch s.Driver {
	case "postgres":
		q = `SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`
	default:
		q = `SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`
	}
	var n int
	if err := s.DB.QueryRowContext(ctx, q, s.RecordsTable(), column).Scan(&n); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check column: %w", err)
	}
	return n > 0, nil
}
