package filter

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// RegexpStyle selects the word boundary syntax of the connected server.
type RegexpStyle int

const (
	// StyleICU is MySQL 8.0.4+ and MariaDB: \b boundaries.
	StyleICU RegexpStyle = iota
	// StyleLegacy is MySQL before 8.0.4: [[:<:]] and [[:>:]] boundaries.
	StyleLegacy
	// StylePostgres uses ~* with \y boundaries.
	StylePostgres
)

// ParseRegexpStyle reads a configured style name. Unknown names select ICU.
func ParseRegexpStyle(s string) RegexpStyle {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy", "henry-spencer", "spencer":
		return StyleLegacy
	case "postgres", "postgresql", "pg":
		return StylePostgres
	}
	return StyleICU
}

func (r RegexpStyle) String() string {
	switch r {
	case StyleLegacy:
		return "legacy"
	case StylePostgres:
		return "postgres"
	}
	return "icu"
}

func (r RegexpStyle) operator(op Operator) string {
	if r == StylePostgres {
		if op.Negated() {
			return "!~*"
		}
		return "~*"
	}
	return string(op)
}

func (r RegexpStyle) wordPattern(term string) string {
	q := regexp.QuoteMeta(term)
	switch r {
	case StyleLegacy:
		return "[[:<:]]" + q + "[[:>:]]"
	case StylePostgres:
		return `\y` + q + `\y`
	}
	return `\b` + q + `\b`
}

var icuSince = semver.MustParse("8.0.4")

var versionPrefix = regexp.MustCompile(`^\d+(\.\d+){0,2}`)

// StyleForVersion picks the regexp style for a server version string as
// returned by SELECT VERSION().
func StyleForVersion(driver, version string) (RegexpStyle, error) {
	if driver == "postgres" {
		return StylePostgres, nil
	}
	if strings.Contains(strings.ToLower(version), "mariadb") {
		return StyleICU, nil
	}
	num := versionPrefix.FindString(strings.TrimSpace(version))
	if num == "" {
		return StyleICU, fmt.Errorf("parse server version %q", version)
	}
	v, err := semver.NewVersion(num)
	if err != nil {
		return StyleICU, fmt.Errorf("parse server version %q: %w", version, err)
	}
	if v.LessThan(icuSince) {
		return StyleLegacy, nil
	}
	return StyleICU, nil
}

// DetectRegexpStyle asks the server for its version.
func DetectRegexpStyle(ctx context.Context, db *sql.DB, driver string) (RegexpStyle, error) {
	if driver == "postgres" {
		return StylePostgres, nil
	}
	var version string
	if err := db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return StyleICU, fmt.Errorf("server version: %w", err)
	}
	return StyleForVersion(driver, version)
}
