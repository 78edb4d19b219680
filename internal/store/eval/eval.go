// Package eval evaluates store queries over any statement source that can
// match a single pattern. The memory and badger backends share it.
package eval

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// Matcher returns the statements matching one pattern. Zero subject,
// predicate or object terms are wildcards. When anyContext is false only
// statements whose context equals graph are returned; a zero graph selects
// the default partition.
type Matcher interface {
	Match(ctx context.Context, s, p, o, graph rdf.Term, anyContext bool) ([]rdf.Statement, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ctx context.Context, s, p, o, graph rdf.Term, anyContext bool) ([]rdf.Statement, error)

func (f MatcherFunc) Match(ctx context.Context, s, p, o, graph rdf.Term, anyContext bool) ([]rdf.Statement, error) {
	return f(ctx, s, p, o, graph, anyContext)
}

// Run validates and evaluates q. Results are deterministic: ordered by
// OrderBy, then by every output column.
func Run(ctx context.Context, q store.Query, m Matcher) ([]store.Binding, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	solutions := []store.Binding{{}}
	for _, p := range q.Where {
		var next []store.Binding
		for _, sol := range solutions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			ext, err := extend(ctx, m, p, sol)
			if err != nil {
				return nil, err
			}
			next = append(next, ext...)
		}
		solutions = next
		if len(solutions) == 0 {
			break
		}
	}

	solutions = slices.DeleteFunc(solutions, func(b store.Binding) bool {
		return !passes(q.Filters, b)
	})

	var rows []store.Binding
	if q.Grouped() {
		rows = group(q, solutions)
	} else {
		rows = project(q.Columns(), solutions)
	}
	if q.Distinct {
		rows = distinct(q.Columns(), rows)
	}

	order := append(append([]string(nil), q.OrderBy...), q.Columns()...)
	slices.SortStableFunc(rows, func(a, b store.Binding) int {
		for _, col := range order {
			if c := Compare(a[col], b[col]); c != 0 {
				return c
			}
		}
		return 0
	})

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func resolve(n store.Node, b store.Binding) rdf.Term {
	if n.IsVar() {
		return b[n.Var]
	}
	return n.Term
}

func extend(ctx context.Context, m Matcher, p store.Pattern, sol store.Binding) ([]store.Binding, error) {
	s := resolve(p.Subject, sol)
	pr := resolve(p.Predicate, sol)
	o := resolve(p.Object, sol)

	anyContext := false
	var graph rdf.Term
	if p.Context.IsVar() {
		graph = sol[p.Context.Var]
		_, bound := sol[p.Context.Var]
		anyContext = !bound
	} else {
		graph = p.Context.Term
	}

	matches, err := m.Match(ctx, s, pr, o, graph, anyContext)
	if err != nil {
		return nil, err
	}

	var out []store.Binding
	for _, st := range matches {
		b := copyBinding(sol)
		if !bind(b, p.Subject, st.Subject) || !bind(b, p.Predicate, st.Predicate) ||
			!bind(b, p.Object, st.Object) || !bind(b, p.Context, st.Context) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// bind records t for a variable node and reports whether it is consistent
// with an earlier binding of the same variable.
func bind(b store.Binding, n store.Node, t rdf.Term) bool {
	if !n.IsVar() {
		return true
	}
	if prev, ok := b[n.Var]; ok {
		return prev == t
	}
	b[n.Var] = t
	return true
}

func copyBinding(b store.Binding) store.Binding {
	out := make(store.Binding, len(b)+3)
	for k, v := range b {
		out[k] = v
	}
	return out
}

func passes(filters []store.Filter, b store.Binding) bool {
	for _, f := range filters {
		v := b[f.Var]
		switch f.Op {
		case store.FilterEqual:
			if v != f.Value {
				return false
			}
		case store.FilterNotEqual:
			if v == f.Value {
				return false
			}
		case store.FilterStrEqual:
			if v.Value != f.Value.Value {
				return false
			}
		case store.FilterIsIRI:
			if !v.IsIRI() {
				return false
			}
		}
	}
	return true
}

func project(cols []string, sols []store.Binding) []store.Binding {
	out := make([]store.Binding, 0, len(sols))
	for _, s := range sols {
		row := make(store.Binding, len(cols))
		for _, c := range cols {
			if v, ok := s[c]; ok {
				row[c] = v
			}
		}
		out = append(out, row)
	}
	return out
}

func group(q store.Query, sols []store.Binding) []store.Binding {
	type bucket struct {
		key   store.Binding
		count int
	}
	var order []string
	buckets := make(map[string]*bucket)
	for _, s := range sols {
		key := make(store.Binding, len(q.GroupBy))
		for _, g := range q.GroupBy {
			key[g] = s[g]
		}
		k := rowKey(q.GroupBy, key)
		bk, ok := buckets[k]
		if !ok {
			bk = &bucket{key: key}
			buckets[k] = bk
			order = append(order, k)
		}
		bk.count++
	}

	cols := q.Columns()
	var out []store.Binding
	for _, k := range order {
		bk := buckets[k]
		if bk.count <= q.HavingCountAbove {
			continue
		}
		row := make(store.Binding, len(cols))
		for _, c := range cols {
			if c == q.CountAs {
				row[c] = rdf.TypedLiteral(strconv.Itoa(bk.count), rdf.XSDInteger)
				continue
			}
			row[c] = bk.key[c]
		}
		out = append(out, row)
	}
	return out
}

func distinct(cols []string, rows []store.Binding) []store.Binding {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		k := rowKey(cols, r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func rowKey(cols []string, b store.Binding) string {
	var sb strings.Builder
	for _, c := range cols {
		sb.WriteString(b[c].String())
		sb.WriteByte(0)
	}
	return sb.String()
}

// Compare orders terms for result sorting. Integer literals compare
// numerically, everything else by kind and lexical value.
func Compare(a, b rdf.Term) int {
	if a.Datatype == rdf.XSDInteger && b.Datatype == rdf.XSDInteger {
		x, errA := strconv.ParseInt(a.Value, 10, 64)
		y, errB := strconv.ParseInt(b.Value, 10, 64)
		if errA == nil && errB == nil {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			default:
				return 0
			}
		}
	}
	return a.Compare(b)
}
