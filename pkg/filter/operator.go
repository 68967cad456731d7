// Package filter turns search clauses into parameterised SQL predicates.
package filter

import (
	"errors"
	"strings"
)

// Operator is a canonical comparison operator.
type Operator string

const (
	OpEq        Operator = "="
	OpNe        Operator = "<>"
	OpGt        Operator = ">"
	OpLt        Operator = "<"
	OpGte       Operator = ">="
	OpLte       Operator = "<="
	OpLike      Operator = "LIKE"
	OpNotLike   Operator = "NOT LIKE"
	OpRegexp    Operator = "REGEXP"
	OpNotRegexp Operator = "NOT REGEXP"
	OpDuplicate Operator = "DUPLICATE"
)

var (
	// ErrInvalidOperator is returned for operators outside the alias table.
	ErrInvalidOperator = errors.New("filter: invalid operator")
	// ErrUnknownField is returned when a clause names no data storing field.
	ErrUnknownField = errors.New("filter: unknown field")
	// ErrInvalidTerm is returned when a term cannot be compared with the field.
	ErrInvalidTerm = errors.New("filter: invalid term for field")
)

var operatorAliases = map[string]Operator{
	"=":          OpEq,
	"==":         OpEq,
	"eq":         OpEq,
	"!=":         OpNe,
	"<>":         OpNe,
	"ne":         OpNe,
	">":          OpGt,
	"gt":         OpGt,
	"<":          OpLt,
	"lt":         OpLt,
	">=":         OpGte,
	"gte":        OpGte,
	"<=":         OpLte,
	"lte":        OpLte,
	"~":          OpLike,
	"like":       OpLike,
	"!":          OpNotLike,
	"not like":   OpNotLike,
	"regexp":     OpRegexp,
	"not regexp": OpNotRegexp,
	"duplicate":  OpDuplicate,
}

// NormalizeOperator maps an operator or one of its aliases onto the
// canonical set.
func NormalizeOperator(raw string) (Operator, error) {
	key := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if op, ok := operatorAliases[key]; ok {
		return op, nil
	}
	return "", ErrInvalidOperator
}

// LegacyOperator normalises the operator of a URL search, where an omitted
// operator has always meant "=". Anything else must normalise.
func LegacyOperator(raw string) (Operator, error) {
	if strings.TrimSpace(raw) == "" {
		return OpEq, nil
	}
	return NormalizeOperator(raw)
}

// Negated reports whether op excludes matches.
func (op Operator) Negated() bool {
	return op == OpNe || op == OpNotLike || op == OpNotRegexp
}

// Logic joins a statement to the next one in submission order.
type Logic string

const (
	And Logic = "AND"
	Or  Logic = "OR"
)

// ParseLogic reads AND/OR and their shortcode forms. Anything else is AND.
func ParseLogic(s string) Logic {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OR", "|", "||":
		return Or
	}
	return And
}

// Origin tells where a clause came from.
type Origin int

const (
	// OriginShortcode marks page level background constraints.
	OriginShortcode Origin = iota
	// OriginSearch marks interactive user searches.
	OriginSearch
)

func (o Origin) String() string {
	if o == OriginSearch {
		return "search"
	}
	return "shortcode"
}
