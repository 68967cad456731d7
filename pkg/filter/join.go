package filter

import (
	"sort"
	"strings"
)

// Linearize orders statements by submission sequence.
func Linearize(stmts []*Statement) []*Statement {
	out := append([]*Statement(nil), stmts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Join renders statements in sequence order. Each statement's logic joins it
// to the next one; a run of OR joined statements is wrapped in parentheses,
// opened on entering the run and closed after its last member.
func Join(stmts []*Statement) (string, []any) {
	list := Linearize(stmts)
	var (
		b    strings.Builder
		args []any
		open bool
	)
	last := len(list) - 1
	for i, s := range list {
		if i > 0 {
			b.WriteString(" " + string(list[i-1].Logic) + " ")
		}
		if !open && s.Logic == Or && i < last {
			b.WriteString("(")
			open = true
		}
		frag, a := s.SQL()
		b.WriteString(frag)
		args = append(args, a...)
		if open && (s.Logic != Or || i == last) {
			b.WriteString(")")
			open = false
		}
	}
	return b.String(), args
}
