package store

import (
	"fmt"
	"slices"

	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// Node is one position of a pattern: either a variable or a constant term.
type Node struct {
	Var  string   `json:"var,omitempty"`
	Term rdf.Term `json:"term,omitempty"`
}

// Var returns a variable node.
func Var(name string) Node { return Node{Var: name} }

// Const returns a constant node.
func Const(t rdf.Term) Node { return Node{Term: t} }

func (n Node) IsVar() bool  { return n.Var != "" }
func (n Node) IsZero() bool { return n.Var == "" && n.Term.IsZero() }

// Pattern matches statements. A zero Context restricts the match to the
// default partition; a variable context matches any partition.
type Pattern struct {
	Subject   Node `json:"subject"`
	Predicate Node `json:"predicate"`
	Object    Node `json:"object"`
	Context   Node `json:"context,omitempty"`
}

// FilterOp is a filter operator.
type FilterOp string

const (
	// FilterEqual keeps solutions whose variable equals Value exactly.
	FilterEqual FilterOp = "eq"
	// FilterNotEqual drops solutions whose variable equals Value exactly.
	FilterNotEqual FilterOp = "ne"
	// FilterStrEqual compares lexical values only, ignoring kind, datatype and
	// language.
	FilterStrEqual FilterOp = "str_eq"
	// FilterIsIRI keeps solutions whose variable is bound to an IRI.
	FilterIsIRI FilterOp = "is_iri"
)

// Filter restricts solutions.
type Filter struct {
	Op    FilterOp `json:"op"`
	Var   string   `json:"var"`
	Value rdf.Term `json:"value,omitempty"`
}

// Query is a basic graph pattern select with optional grouping.
type Query struct {
	Select   []string  `json:"select,omitempty"`
	Distinct bool      `json:"distinct,omitempty"`
	Where    []Pattern `json:"where"`
	Filters  []Filter  `json:"filters,omitempty"`

	// GroupBy groups solutions; CountAs names the per-group solution count.
	GroupBy []string `json:"group_by,omitempty"`
	CountAs string   `json:"count_as,omitempty"`
	// HavingCountAbove keeps groups whose count is strictly greater.
	HavingCountAbove int `json:"having_count_above,omitempty"`

	OrderBy []string `json:"order_by,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Grouped reports whether the query aggregates.
func (q Query) Grouped() bool {
	return len(q.GroupBy) > 0 || q.CountAs != ""
}

// Vars returns the variables bound by the patterns in first-seen order.
func (q Query) Vars() []string {
	var out []string
	add := func(n Node) {
		if n.IsVar() && !slices.Contains(out, n.Var) {
			out = append(out, n.Var)
		}
	}
	for _, p := range q.Where {
		add(p.Subject)
		add(p.Predicate)
		add(p.Object)
		add(p.Context)
	}
	return out
}

// Columns returns the output columns.
func (q Query) Columns() []string {
	if len(q.Select) > 0 {
		return q.Select
	}
	if q.Grouped() {
		cols := append([]string(nil), q.GroupBy...)
		if q.CountAs != "" {
			cols = append(cols, q.CountAs)
		}
		return cols
	}
	return q.Vars()
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedQuery, fmt.Sprintf(format, args...))
}

// Validate checks the query is well formed. Every error wraps
// ErrMalformedQuery.
func (q Query) Validate() error {
	if len(q.Where) == 0 {
		return malformed("at least one pattern is required")
	}
	for i, p := range q.Where {
		if err := validatePattern(p); err != nil {
			return malformed("pattern %d: %v", i, err)
		}
	}

	bound := q.Vars()
	isBound := func(v string) bool { return slices.Contains(bound, v) }

	if q.CountAs != "" {
		if !validVarName(q.CountAs) {
			return malformed("invalid count alias %q", q.CountAs)
		}
		if isBound(q.CountAs) {
			return malformed("count alias %q shadows a pattern variable", q.CountAs)
		}
	}
	for _, g := range q.GroupBy {
		if !isBound(g) {
			return malformed("group by variable %q is not bound", g)
		}
	}
	for _, s := range q.Select {
		if q.Grouped() {
			if s != q.CountAs && !slices.Contains(q.GroupBy, s) {
				return malformed("selected variable %q is neither grouped nor the count", s)
			}
			continue
		}
		if !isBound(s) {
			return malformed("selected variable %q is not bound", s)
		}
	}
	for _, f := range q.Filters {
		if !isBound(f.Var) {
			return malformed("filter variable %q is not bound", f.Var)
		}
		switch f.Op {
		case FilterEqual, FilterNotEqual, FilterStrEqual:
			if f.Value.IsZero() {
				return malformed("filter %s on %q needs a value", f.Op, f.Var)
			}
		case FilterIsIRI:
		default:
			return malformed("unknown filter operator %q", f.Op)
		}
	}
	cols := q.Columns()
	for _, o := range q.OrderBy {
		if !slices.Contains(cols, o) {
			return malformed("order by %q is not an output column", o)
		}
	}
	if q.Limit < 0 {
		return malformed("limit must not be negative")
	}
	if q.HavingCountAbove < 0 {
		return malformed("having threshold must not be negative")
	}
	if q.HavingCountAbove > 0 && len(q.GroupBy) == 0 {
		return malformed("having requires group by")
	}
	return nil
}

func validatePattern(p Pattern) error {
	for _, pos := range []struct {
		name string
		node Node
	}{{"subject", p.Subject}, {"predicate", p.Predicate}, {"object", p.Object}} {
		if pos.node.IsZero() {
			return fmt.Errorf("%s is empty", pos.name)
		}
	}
	for _, n := range []Node{p.Subject, p.Predicate, p.Object, p.Context} {
		if n.IsVar() && !n.Term.IsZero() {
			return fmt.Errorf("node %q is both variable and constant", n.Var)
		}
		if n.IsVar() && !validVarName(n.Var) {
			return fmt.Errorf("invalid variable name %q", n.Var)
		}
	}
	if !p.Subject.IsVar() && !p.Subject.Term.IsResource() {
		return fmt.Errorf("subject constant must be an IRI or blank node")
	}
	if !p.Predicate.IsVar() && !p.Predicate.Term.IsIRI() {
		return fmt.Errorf("predicate constant must be an IRI")
	}
	if !p.Context.IsVar() && !p.Context.Term.IsZero() && !p.Context.Term.IsResource() {
		return fmt.Errorf("context constant must be an IRI or blank node")
	}
	return nil
}

func validVarName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 0 && c >= '0' && c <= '9') {
			continue
		}
		return false
	}
	return true
}
