package rdf

import "strings"

// Statement is a single fact. A zero Context places the statement in the
// default partition.
type Statement struct {
	Subject   Term `json:"subject"`
	Predicate Term `json:"predicate"`
	Object    Term `json:"object"`
	Context   Term `json:"context,omitempty"`
}

// NewStatement builds a statement in the default partition.
func NewStatement(s, p, o Term) Statement {
	return Statement{Subject: s, Predicate: p, Object: o}
}

// InContext returns a copy of st placed in the given context.
func (st Statement) InContext(ctx Term) Statement {
	st.Context = ctx
	return st
}

// Triple strips the context.
func (st Statement) Triple() Statement {
	st.Context = Term{}
	return st
}

// Valid reports whether the statement is well formed: a resource subject, an
// IRI predicate and a non-empty object.
func (st Statement) Valid() bool {
	if !st.Subject.IsResource() || !st.Predicate.IsIRI() || st.Object.IsZero() {
		return false
	}
	return st.Context.IsZero() || st.Context.IsResource()
}

// String renders the statement as one N-Quads line without the trailing
// newline.
func (st Statement) String() string {
	var b strings.Builder
	b.WriteString(st.Subject.String())
	b.WriteByte(' ')
	b.WriteString(st.Predicate.String())
	b.WriteByte(' ')
	b.WriteString(st.Object.String())
	if !st.Context.IsZero() {
		b.WriteByte(' ')
		b.WriteString(st.Context.String())
	}
	b.WriteString(" .")
	return b.String()
}

// Compare orders statements by context, subject, predicate and object.
func (st Statement) Compare(o Statement) int {
	if c := st.Context.Compare(o.Context); c != 0 {
		return c
	}
	if c := st.Subject.Compare(o.Subject); c != 0 {
		return c
	}
	if c := st.Predicate.Compare(o.Predicate); c != 0 {
		return c
	}
	return st.Object.Compare(o.Object)
}

// IdentifierMapping records that every reference to Old has been redirected
// to New.
type IdentifierMapping struct {
	Old Term `json:"old"`
	New Term `json:"new"`
}
