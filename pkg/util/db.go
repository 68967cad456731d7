package util

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"
)

// UnsupportedDialect stands in for drivers goquent has no dialect for. It
// renders "?" placeholders and leaves identifiers unquoted.
type UnsupportedDialect struct{ Driver string }

func (UnsupportedDialect) Placeholder(int) string { return "?" }

func (UnsupportedDialect) QuoteIdent(ident string) string { return ident }

// DetectDriver maps a URL style DSN to a database/sql driver name.
func DetectDriver(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	}
	return "", fmt.Errorf("unknown DSN scheme %q", u.Scheme)
}

// OpenDSN converts dsn into the form database/sql expects for driver.
// MySQL DSNs lose their URL scheme, scan DATETIME columns into time.Time
// and report matched rather than changed rows, so rewriting a row with
// its current values still counts as found. Postgres URLs pass through
// unchanged.
func OpenDSN(driver, dsn string) string {
	if driver != "mysql" {
		return dsn
	}
	raw := strings.TrimPrefix(dsn, "mysql://")
	cfg, err := mysql.ParseDSN(raw)
	if err != nil {
		return raw
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	return cfg.FormatDSN()
}

// Connect opens dsn with driver and pings it within timeout.
func Connect(ctx context.Context, driver, dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open(driver, OpenDSN(driver, dsn))
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// DialectFromDriver returns the goquent dialect for a driver name.
func DialectFromDriver(d string) ormdriver.Dialect {
	switch d {
	case "postgres":
		return ormdriver.PostgresDialect{}
	case "mysql":
		return ormdriver.MySQLDialect{}
	}
	return UnsupportedDialect{Driver: d}
}

// IsPostgres reports whether d renders postgres SQL.
func IsPostgres(d ormdriver.Dialect) bool {
	switch d.(type) {
	case ormdriver.PostgresDialect, *ormdriver.PostgresDialect:
		return true
	}
	return false
}
