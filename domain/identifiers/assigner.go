// Package identifiers replaces blank nodes and external subject IRIs with
// identifiers in the local namespace.
package identifiers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/pipeline"
	"github.com/emergent-company/graphmerge/pkg/ident"
	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/metrics"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// Name is the transformer name used in pipeline files.
const Name = "assign-identifiers"

// ErrMissingType marks a node that cannot be identified because it has no
// rdf:type.
var ErrMissingType = errors.New("missing rdf:type")

// CharacteristicPredicates are consulted in order for the value a
// reproducible identifier is derived from.
var CharacteristicPredicates = []rdf.Term{
	rdf.Label,
	rdf.DCIdentifier,
	rdf.DCTermsIdentifier,
	rdf.PrefLabel,
	rdf.DCTermsTitle,
	rdf.SchemaIdentifier,
	rdf.SchemaTermCode,
	rdf.SchemaName,
}

// Result is the outcome of Assign.
type Result struct {
	Patch    changeset.Patch
	Mappings []rdf.IdentifierMapping
	// Skipped lists blank nodes left as they are because they carry no type.
	Skipped []rdf.Term
}

// Assigner is the assign-identifiers transformer.
type Assigner struct {
	log *slog.Logger
}

// NewAssigner returns the transformer.
func NewAssigner(log *slog.Logger) *Assigner {
	return &Assigner{log: log.With(logger.Scope("identifiers"))}
}

func (a *Assigner) Name() string { return Name }

// Assign computes the identifier rewrites for g. It is pure: byte-identical
// input yields byte-identical identifiers, except for typed nodes without a
// characteristic value, which get random ones.
func Assign(g *rdf.Graph, ns ident.Namespace) Result {
	var res Result

	for _, b := range blankNodes(g) {
		typ, ok := TypeOf(g, b)
		if !ok {
			res.Skipped = append(res.Skipped, b)
			continue
		}
		var id string
		if v, ok := characteristicValue(g, b); ok {
			id = ns.Reproducible(typ.Value, v.Value)
		} else {
			id = ns.Random()
		}
		res.Mappings = append(res.Mappings, rdf.IdentifierMapping{Old: b, New: rdf.IRI(id)})
	}

	for _, s := range g.Subjects() {
		if !s.IsIRI() || ns.IsLocal(s.Value) || ns.IsTransaction(s.Value) {
			continue
		}
		local := rdf.IRI(ns.Reproducible(s.Value))
		res.Mappings = append(res.Mappings, rdf.IdentifierMapping{Old: s, New: local})
		// Inserted after the rewrites, so the old IRI survives as the object.
		res.Patch.Insert = append(res.Patch.Insert, rdf.NewStatement(local, rdf.SameAs, s))
	}

	res.Patch.Rewrites = res.Mappings
	return res
}

// Localize rewrites the external subject IRIs of g to the local identifiers
// Assign gives them. Removals are passed through it, so they name the
// statements the store actually holds.
func Localize(g *rdf.Graph, ns ident.Namespace) *rdf.Graph {
	var mappings []rdf.IdentifierMapping
	for _, s := range g.Subjects() {
		if !s.IsIRI() || ns.IsLocal(s.Value) || ns.IsTransaction(s.Value) {
			continue
		}
		mappings = append(mappings, rdf.IdentifierMapping{Old: s, New: rdf.IRI(ns.Reproducible(s.Value))})
	}
	return g.RewriteAll(mappings)
}

// Handle implements pipeline.Transformer.
func (a *Assigner) Handle(ctx context.Context, cs *changeset.Changeset, p pipeline.Params) (*changeset.Changeset, error) {
	res := Assign(cs.Model(), p.Namespace)

	if len(res.Skipped) > 0 {
		if p.Strict {
			return nil, fmt.Errorf("node %s: %w", res.Skipped[0], ErrMissingType)
		}
		metrics.SkippedNodes.WithLabelValues(Name).Add(float64(len(res.Skipped)))
		for _, n := range res.Skipped {
			a.log.Warn("blank node has no rdf:type, left unidentified",
				slog.String("node", n.String()),
				slog.String("tx", cs.ID().Value))
		}
	}

	next, err := cs.Apply(res.Patch)
	if err != nil {
		return nil, err
	}
	a.log.Debug("identifiers assigned",
		slog.String("tx", cs.ID().Value),
		slog.Int("mappings", len(res.Mappings)),
		slog.Int("skipped", len(res.Skipped)))
	return next, nil
}

// blankNodes returns the distinct blank nodes of g in first-seen order,
// looking at the subject before the object of each statement.
func blankNodes(g *rdf.Graph) []rdf.Term {
	seen := make(map[rdf.Term]struct{})
	var out []rdf.Term
	add := func(t rdf.Term) {
		if !t.IsBlank() {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, st := range g.Statements() {
		add(st.Subject)
		add(st.Object)
	}
	return out
}

// TypeOf returns the type a node is identified by: the lexically lowest of
// its rdf:type values, so the choice does not depend on statement order.
func TypeOf(g *rdf.Graph, node rdf.Term) (rdf.Term, bool) {
	var best rdf.Term
	for _, t := range g.ObjectsOf(node, rdf.Type) {
		if best.IsZero() || t.Compare(best) < 0 {
			best = t
		}
	}
	return best, !best.IsZero()
}

func characteristicValue(g *rdf.Graph, node rdf.Term) (rdf.Term, bool) {
	for _, p := range CharacteristicPredicates {
		if v, ok := g.FirstObject(node, p); ok {
			return v, true
		}
	}
	return rdf.Term{}, false
}
