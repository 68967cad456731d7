package filter

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/faciam-dev/gpdb/pkg/datefmt"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/settings"
)

// Clause is one raw search clause before normalisation.
type Clause struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Term     string `json:"term"`
	Logic    Logic  `json:"logic"`
	Origin   Origin `json:"origin"`
}

// Statement is a normalised predicate over one field.
type Statement struct {
	Field    string
	Operator Operator
	Term     string
	Logic    Logic
	Origin   Origin
	Seq      int

	requested Operator
	sql       string
	args      []any
}

// SQL returns the predicate with "?" placeholders and its bound values.
func (s *Statement) SQL() (string, []any) {
	return s.sql, append([]any(nil), s.args...)
}

// Clause returns the clause the statement was built from, with the operator
// as requested rather than as rewritten.
func (s *Statement) Clause() Clause {
	op := s.requested
	if op == "" {
		op = s.Operator
	}
	return Clause{Field: s.Field, Operator: string(op), Term: s.Term, Logic: s.Logic, Origin: s.Origin}
}

// IsSearch reports whether the statement came from a user search.
func (s *Statement) IsSearch() bool { return s.Origin == OriginSearch }

// Options tune predicate generation.
type Options struct {
	// Alias qualifies column references, e.g. "p".
	Alias string

	// Table is the records table, used by the duplicate check.
	Table string

	// StrictSearch upgrades substring matches on multi valued fields to
	// word boundary matches. WholeWord does so for every field.
	StrictSearch bool
	WholeWord    bool
	Style        RegexpStyle

	// DateFormat is the site input date format.
	DateFormat string
	Location   *time.Location
}

// OptionsFrom reads the search toggles from the settings store.
func OptionsFrom(s settings.Store, alias, table string) Options {
	return Options{
		Alias:        alias,
		Table:        table,
		StrictSearch: settings.Bool(s, settings.StrictSearch, false),
		WholeWord:    settings.Bool(s, settings.WholeWordMatch, false),
		Style:        ParseRegexpStyle(settings.String(s, settings.RegexpStyle, "")),
		DateFormat:   settings.String(s, settings.InputDateFormat, settings.String(s, settings.DateFormat, datefmt.DefaultFormat)),
		Location:     datefmt.Location(settings.String(s, settings.Timezone, "")),
	}
}

func (o Options) column(name string) string {
	if o.Alias == "" {
		return name
	}
	return o.Alias + "." + name
}

func (o Options) loc() *time.Location {
	if o.Location != nil {
		return o.Location
	}
	return time.UTC
}

// Build normalises c against def into a statement. Clauses naming unknown or
// non storing fields, invalid operators and terms the field cannot compare
// are rejected; callers drop them and carry on.
func Build(def *fielddef.Definition, c Clause, opt Options) (*Statement, error) {
	if def == nil || !def.Exists() || !def.StoresData() {
		return nil, ErrUnknownField
	}
	op, err := NormalizeOperator(c.Operator)
	if err != nil {
		return nil, err
	}
	logic := c.Logic
	if logic != Or {
		logic = And
	}
	s := &Statement{Field: def.Name, Operator: op, Term: strings.TrimSpace(c.Term), Logic: logic, Origin: c.Origin, requested: op}
	col := opt.column(def.Name)

	switch {
	case op == OpDuplicate:
		s.duplicate(def, col, opt)
	case def.IsDate():
		if err := s.date(def, col, opt); err != nil {
			return nil, err
		}
	case def.IsNumeric():
		if err := s.numeric(col); err != nil {
			return nil, err
		}
	default:
		s.text(def, col, opt)
	}
	return s, nil
}

func (s *Statement) set(sql string, args ...any) {
	s.sql = sql
	s.args = args
}

func (s *Statement) duplicate(def *fielddef.Definition, col string, opt Options) {
	table := opt.Table
	if table == "" {
		table = "pdb_participants"
	}
	s.set(col + " IN (SELECT d." + def.Name + " FROM " + table + " d WHERE d." + def.Name + " IS NOT NULL AND d." + def.Name + " <> '' GROUP BY d." + def.Name + " HAVING COUNT(*) > 1)")
}

func numericOperator(op Operator) Operator {
	switch op {
	case OpLike, OpRegexp:
		return OpEq
	case OpNotLike, OpNotRegexp:
		return OpNe
	}
	return op
}

func (s *Statement) numeric(col string) error {
	s.Operator = numericOperator(s.Operator)
	if s.Term == "" {
		s.emptyNumeric(col)
		return nil
	}
	v, ok := parseNumber(s.Term)
	if !ok {
		return ErrInvalidTerm
	}
	s.set(col+" "+string(s.Operator)+" ?", v)
	return nil
}

func (s *Statement) emptyNumeric(col string) {
	switch s.Operator {
	case OpNe:
		s.set(col + " IS NOT NULL")
	case OpEq:
		s.set(col + " IS NULL")
	default:
		s.set(col+" "+string(s.Operator)+" ?", 0)
	}
}

func parseNumber(term string) (any, bool) {
	t := strings.ReplaceAll(term, ",", "")
	if n, err := strconv.ParseInt(t, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		return f, true
	}
	return nil, false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern escapes LIKE metacharacters in term and maps the user
// wildcards * and ? onto % and _.
func likePattern(term string) (pattern string, wildcard bool) {
	wildcard = strings.ContainsAny(term, "*?")
	p := likeEscaper.Replace(term)
	p = strings.NewReplacer("*", "%", "?", "_").Replace(p)
	return p, wildcard
}

func (s *Statement) text(def *fielddef.Definition, col string, opt Options) {
	term := s.Term
	if term == "" {
		s.emptyText(col)
		return
	}
	pattern, wildcard := likePattern(term)
	if def.IsValueSet() && !wildcard {
		term = def.OptionValue(term)
		pattern, _ = likePattern(term)
	}
	multi := def.IsMulti()
	boundary := opt.WholeWord || (multi && opt.StrictSearch)
	pg := opt.Style == StylePostgres

	switch s.Operator {
	case OpEq, OpNe:
		switch {
		case multi:
			// serialized arrays hold each element as "value"
			s.Operator = likeFor(s.Operator)
			s.set(col+" "+likeSQL(s.Operator, pg)+" ?", `%"`+pattern+`"%`)
		case wildcard:
			s.Operator = likeFor(s.Operator)
			s.set(col+" "+likeSQL(s.Operator, pg)+" ?", pattern)
		default:
			s.set(col+" "+string(s.Operator)+" ?", term)
		}
	case OpLike, OpNotLike:
		switch {
		case wildcard:
			s.set(col+" "+likeSQL(s.Operator, pg)+" ?", pattern)
		case boundary:
			s.Operator = regexpFor(s.Operator)
			s.set(col+" "+opt.Style.operator(s.Operator)+" ?", opt.Style.wordPattern(term))
		default:
			s.set(col+" "+likeSQL(s.Operator, pg)+" ?", "%"+pattern+"%")
		}
	case OpRegexp, OpNotRegexp:
		s.set(col+" "+opt.Style.operator(s.Operator)+" ?", term)
	default:
		s.set(col+" "+string(s.Operator)+" ?", term)
	}
}

func (s *Statement) emptyText(col string) {
	switch s.Operator {
	case OpEq, OpLike, OpRegexp:
		s.Operator = OpEq
		s.set("(" + col + " IS NULL OR " + col + " = '')")
	case OpNe, OpNotLike, OpNotRegexp:
		s.Operator = OpNe
		s.set("(" + col + " IS NOT NULL AND " + col + " <> '')")
	default:
		s.set(col+" "+string(s.Operator)+" ?", "")
	}
}

func likeFor(op Operator) Operator {
	if op.Negated() {
		return OpNotLike
	}
	return OpLike
}

func regexpFor(op Operator) Operator {
	if op.Negated() {
		return OpNotRegexp
	}
	return OpRegexp
}

func likeSQL(op Operator, postgres bool) string {
	if !postgres {
		return string(op)
	}
	if op == OpNotLike {
		return "NOT ILIKE"
	}
	return "ILIKE"
}

var rangeSep = regexp.MustCompile(`(?i)\s+to\s+`)

func (s *Statement) date(def *fielddef.Definition, col string, opt Options) error {
	s.Operator = numericOperator(s.Operator)
	if s.Term == "" {
		s.emptyNumeric(col)
		return nil
	}
	loc := opt.loc()
	var start, end time.Time
	if parts := rangeSep.Split(s.Term, 2); len(parts) == 2 {
		a, err := datefmt.Parse(parts[0], opt.DateFormat, loc)
		if err != nil {
			return ErrInvalidTerm
		}
		b, err := datefmt.Parse(parts[1], opt.DateFormat, loc)
		if err != nil {
			return ErrInvalidTerm
		}
		start = datefmt.StartOfDay(a)
		end = datefmt.StartOfDay(b).AddDate(0, 0, 1)
		if end.Before(start) {
			start, end = datefmt.StartOfDay(b), datefmt.StartOfDay(a).AddDate(0, 0, 1)
		}
		if s.Operator != OpNe {
			s.Operator = OpEq
		}
	} else {
		t, err := datefmt.Parse(s.Term, opt.DateFormat, loc)
		if err != nil {
			return ErrInvalidTerm
		}
		start = datefmt.StartOfDay(t)
		end = start.AddDate(0, 0, 1)
	}
	lo, hi := dateValue(def, start), dateValue(def, end)
	switch s.Operator {
	case OpEq:
		s.set("("+col+" >= ? AND "+col+" < ?)", lo, hi)
	case OpNe:
		s.set("("+col+" < ? OR "+col+" >= ?)", lo, hi)
	case OpGt:
		s.set(col+" >= ?", hi)
	case OpGte:
		s.set(col+" >= ?", lo)
	case OpLt:
		s.set(col+" < ?", lo)
	case OpLte:
		s.set(col+" < ?", hi)
	}
	return nil
}

// dateValue encodes t for comparison with the stored column: epoch seconds
// for date fields, a UTC datetime string for timestamps.
func dateValue(def *fielddef.Definition, t time.Time) any {
	if def.Type == fielddef.Timestamp {
		return t.UTC().Format("2006-01-02 15:04:05")
	}
	return t.Unix()
}
