package filter

import (
	"strings"
)

// ParseShortcode reads a page level filter string such as
// "status=active&age>18|age<5". "&" joins with AND, "|" with OR, and each
// clause carries one operator out of = ! ~ > < (plus >=, <= and !=).
// Clauses that cannot be parsed are skipped.
func ParseShortcode(s string) []Clause {
	var out []Clause
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != '&' && s[i] != '|' {
			continue
		}
		if c, ok := parseShortcodeClause(s[start:i]); ok {
			out = append(out, c)
		}
		if i < len(s) && len(out) > 0 {
			out[len(out)-1].Logic = ParseLogic(s[i : i+1])
		}
		start = i + 1
	}
	if len(out) > 0 {
		out[len(out)-1].Logic = And
	}
	return out
}

func parseShortcodeClause(raw string) (Clause, bool) {
	raw = strings.TrimSpace(raw)
	i := strings.IndexAny(raw, "=!~<>")
	if i <= 0 {
		return Clause{}, false
	}
	op := raw[i : i+1]
	if i+1 < len(raw) && raw[i+1] == '=' && (op == "<" || op == ">" || op == "!") {
		op = raw[i : i+2]
	}
	field := strings.TrimSpace(raw[:i])
	term := strings.TrimSpace(raw[i+len(op):])
	term = unquote(term)
	if field == "" {
		return Clause{}, false
	}
	return Clause{Field: field, Operator: op, Term: term, Logic: And, Origin: OriginShortcode}, true
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
