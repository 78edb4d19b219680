package rdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_AddKeepsInsertionOrderAndDropsRepeats(t *testing.T) {
	a := NewStatement(IRI("urn:a"), Label, Literal("A"))
	b := NewStatement(IRI("urn:b"), Label, Literal("B"))

	g := NewGraph(b, a, b)

	require.Equal(t, 2, g.Len())
	assert.Equal(t, []Statement{b, a}, g.Statements())
	assert.True(t, g.Contains(a))
}

func TestGraph_Remove(t *testing.T) {
	a := NewStatement(IRI("urn:a"), Label, Literal("A"))
	b := NewStatement(IRI("urn:b"), Label, Literal("B"))
	missing := NewStatement(IRI("urn:c"), Label, Literal("C"))

	g := NewGraph(a, b)
	assert.Equal(t, 1, g.Remove(a, missing))
	assert.Equal(t, []Statement{b}, g.Statements())
	assert.False(t, g.Contains(a))

	// Index must still be consistent after compaction.
	g.Add(a)
	assert.Equal(t, []Statement{b, a}, g.Statements())
}

func TestGraph_Filter(t *testing.T) {
	s := IRI("urn:s")
	g := NewGraph(
		NewStatement(s, Type, IRI("urn:T")),
		NewStatement(s, Label, Literal("x")),
		NewStatement(IRI("urn:o"), Label, Literal("y")),
	)

	assert.Len(t, g.Filter(s, Term{}, Term{}), 2)
	assert.Len(t, g.Filter(Term{}, Label, Term{}), 2)
	assert.Len(t, g.Filter(Term{}, Label, Literal("y")), 1)

	obj, ok := g.FirstObject(s, Type)
	require.True(t, ok)
	assert.Equal(t, IRI("urn:T"), obj)
}

func TestGraph_SubjectsFirstSeen(t *testing.T) {
	g := NewGraph(
		NewStatement(Blank("b2"), Label, Literal("2")),
		NewStatement(Blank("b1"), Label, Literal("1")),
		NewStatement(Blank("b2"), Type, IRI("urn:T")),
	)
	assert.Equal(t, []Term{Blank("b2"), Blank("b1")}, g.Subjects())
}

func TestGraph_RewriteSubjectsAndObjects(t *testing.T) {
	old := Blank("n")
	replacement := IRI("urn:new")
	g := NewGraph(
		NewStatement(old, Type, IRI("urn:T")),
		NewStatement(IRI("urn:parent"), IRI("urn:has"), old),
		NewStatement(old, IRI("urn:self"), old),
	)

	out := g.Rewrite(old, replacement)

	assert.Equal(t, []Statement{
		NewStatement(replacement, Type, IRI("urn:T")),
		NewStatement(IRI("urn:parent"), IRI("urn:has"), replacement),
		NewStatement(replacement, IRI("urn:self"), replacement),
	}, out.Statements())
	// The receiver is untouched.
	assert.True(t, g.HasSubject(old))
	assert.False(t, out.HasSubject(old))
	assert.False(t, out.References(old))
}

func TestGraph_RewriteMergesCollidingStatements(t *testing.T) {
	a, b := Blank("a"), Blank("b")
	g := NewGraph(
		NewStatement(a, Type, IRI("urn:T")),
		NewStatement(b, Type, IRI("urn:T")),
	)
	out := g.Rewrite(b, a)
	assert.Equal(t, 1, out.Len())
}

func TestGraph_Without(t *testing.T) {
	s := IRI("urn:s")
	g := NewGraph(
		NewStatement(s, Type, IRI("urn:T")),
		NewStatement(IRI("urn:x"), IRI("urn:p"), s),
	)
	out := g.Without(s)
	assert.Equal(t, 1, out.Len())
	assert.True(t, out.References(s))
	assert.Equal(t, 2, g.Len())
}

func TestGraph_Equal(t *testing.T) {
	a := NewStatement(IRI("urn:a"), Label, Literal("A"))
	b := NewStatement(IRI("urn:b"), Label, Literal("B"))
	assert.True(t, NewGraph(a, b).Equal(NewGraph(b, a)))
	assert.False(t, NewGraph(a).Equal(NewGraph(b)))
}

func TestExpand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"rdfs:label", NSRDFS + "label"},
		{"sdo:identifier", NSSchema + "identifier"},
		{"urn:pwid:meg:e:x", "urn:pwid:meg:e:x"},
		{"http://example.org/x", "http://example.org/x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.in))
		})
	}
}
