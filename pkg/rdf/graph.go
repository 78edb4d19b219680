package rdf

// Graph is an ordered, duplicate-free set of statements. Iteration always
// follows insertion order so that every stage built on it is reproducible.
//
// The zero value is an empty graph ready to use.
type Graph struct {
	stmts []Statement
	index map[Statement]int
}

// NewGraph returns a graph holding the given statements, dropping repeats.
func NewGraph(stmts ...Statement) *Graph {
	g := &Graph{}
	g.Add(stmts...)
	return g
}

// Len returns the number of statements.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.stmts)
}

// Statements returns a copy of the statements in insertion order.
func (g *Graph) Statements() []Statement {
	if g == nil {
		return nil
	}
	out := make([]Statement, len(g.stmts))
	copy(out, g.stmts)
	return out
}

// Add appends statements not already present.
func (g *Graph) Add(stmts ...Statement) {
	if g.index == nil {
		g.index = make(map[Statement]int, len(stmts))
	}
	for _, st := range stmts {
		if _, ok := g.index[st]; ok {
			continue
		}
		g.index[st] = len(g.stmts)
		g.stmts = append(g.stmts, st)
	}
}

// Contains reports whether st is in the graph.
func (g *Graph) Contains(st Statement) bool {
	if g == nil || g.index == nil {
		return false
	}
	_, ok := g.index[st]
	return ok
}

// Remove deletes the given statements and reports how many were present.
func (g *Graph) Remove(stmts ...Statement) int {
	if g.Len() == 0 {
		return 0
	}
	drop := make(map[Statement]struct{}, len(stmts))
	for _, st := range stmts {
		if g.Contains(st) {
			drop[st] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return 0
	}
	g.retain(func(st Statement) bool {
		_, gone := drop[st]
		return !gone
	})
	return len(drop)
}

// RemoveMatching deletes every statement matching the pattern and returns
// them. Zero terms act as wildcards.
func (g *Graph) RemoveMatching(s, p, o Term) []Statement {
	removed := g.Filter(s, p, o)
	g.Remove(removed...)
	return removed
}

func (g *Graph) retain(keep func(Statement) bool) {
	kept := g.stmts[:0:0]
	for _, st := range g.stmts {
		if keep(st) {
			kept = append(kept, st)
		}
	}
	g.stmts = kept
	g.index = make(map[Statement]int, len(kept))
	for i, st := range kept {
		g.index[st] = i
	}
}

// Filter returns the statements matching the pattern in insertion order.
// Zero terms act as wildcards.
func (g *Graph) Filter(s, p, o Term) []Statement {
	if g == nil {
		return nil
	}
	var out []Statement
	for _, st := range g.stmts {
		if matches(st, s, p, o) {
			out = append(out, st)
		}
	}
	return out
}

func matches(st Statement, s, p, o Term) bool {
	if !s.IsZero() && st.Subject != s {
		return false
	}
	if !p.IsZero() && st.Predicate != p {
		return false
	}
	if !o.IsZero() && st.Object != o {
		return false
	}
	return true
}

// Subjects returns distinct subjects in first-seen order.
func (g *Graph) Subjects() []Term {
	if g == nil {
		return nil
	}
	seen := make(map[Term]struct{})
	var out []Term
	for _, st := range g.stmts {
		if _, ok := seen[st.Subject]; ok {
			continue
		}
		seen[st.Subject] = struct{}{}
		out = append(out, st.Subject)
	}
	return out
}

// ObjectsOf returns the objects of (s, p, *) in insertion order.
func (g *Graph) ObjectsOf(s, p Term) []Term {
	var out []Term
	for _, st := range g.Filter(s, p, Term{}) {
		out = append(out, st.Object)
	}
	return out
}

// FirstObject returns the first object of (s, p, *).
func (g *Graph) FirstObject(s, p Term) (Term, bool) {
	if g == nil {
		return Term{}, false
	}
	for _, st := range g.stmts {
		if st.Subject == s && st.Predicate == p {
			return st.Object, true
		}
	}
	return Term{}, false
}

// HasSubject reports whether any statement is about s.
func (g *Graph) HasSubject(s Term) bool {
	_, ok := g.firstIndex(func(st Statement) bool { return st.Subject == s })
	return ok
}

// References reports whether any statement points at o.
func (g *Graph) References(o Term) bool {
	_, ok := g.firstIndex(func(st Statement) bool { return st.Object == o })
	return ok
}

func (g *Graph) firstIndex(pred func(Statement) bool) (int, bool) {
	if g == nil {
		return -1, false
	}
	for i, st := range g.stmts {
		if pred(st) {
			return i, true
		}
	}
	return -1, false
}

// Clone returns an independent copy.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return &Graph{}
	}
	return NewGraph(g.stmts...)
}

// Union returns a new graph holding g followed by o.
func (g *Graph) Union(o *Graph) *Graph {
	out := g.Clone()
	if o != nil {
		out.Add(o.stmts...)
	}
	return out
}

// Without returns a copy of g with every statement about subject removed.
func (g *Graph) Without(subject Term) *Graph {
	out := g.Clone()
	out.retain(func(st Statement) bool { return st.Subject != subject })
	return out
}

// Rewrite returns a copy of g in which every occurrence of old as subject or
// object is replaced by replacement. Subjects are rewritten against the
// original snapshot first, objects second, so no pass reads what the other
// has already written.
func (g *Graph) Rewrite(old, replacement Term) *Graph {
	if g == nil {
		return &Graph{}
	}
	snapshot := g.Statements()

	pass := make([]Statement, len(snapshot))
	for i, st := range snapshot {
		if st.Subject == old {
			st.Subject = replacement
		}
		pass[i] = st
	}
	for i, st := range pass {
		if st.Object == old {
			st.Object = replacement
			pass[i] = st
		}
	}
	return NewGraph(pass...)
}

// RewriteAll applies the mappings in order.
func (g *Graph) RewriteAll(mappings []IdentifierMapping) *Graph {
	out := g.Clone()
	for _, m := range mappings {
		out = out.Rewrite(m.Old, m.New)
	}
	return out
}

// Equal reports whether both graphs hold the same statements regardless of
// order.
func (g *Graph) Equal(o *Graph) bool {
	if g.Len() != o.Len() {
		return false
	}
	for _, st := range g.Statements() {
		if !o.Contains(st) {
			return false
		}
	}
	return true
}
