// Package classify sorts typed resources into the local entity classes:
// individuals, classifiers and embedded objects.
package classify

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/identifiers"
	"github.com/emergent-company/graphmerge/domain/pipeline"
	"github.com/emergent-company/graphmerge/pkg/ident"
	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// Name is the transformer name used in pipeline files.
const Name = "assign-local-types"

// IndividualTypes mark a resource as an individual whatever else it says.
var IndividualTypes = []rdf.Term{
	rdf.IRI(rdf.NSSchema + "CreativeWork"),
	rdf.IRI(rdf.NSSchema + "Thing"),
	rdf.IRI(rdf.NSSchema + "Organization"),
	rdf.IRI(rdf.NSSchema + "Person"),
	rdf.IRI(rdf.NSSchema + "Place"),
	rdf.IRI(rdf.NSSchema + "Product"),
}

// ClassifierTypes mark concepts used to categorize individuals.
var ClassifierTypes = []rdf.Term{
	rdf.IRI(rdf.NSSchema + "DefinedTerm"),
	rdf.IRI(rdf.NSSchema + "CategoryCode"),
	rdf.IRI(rdf.NSSKOS + "Concept"),
}

// CharacteristicProperties induce uniqueness: a resource carrying one is an
// individual unless its type says it is a classifier.
var CharacteristicProperties = append(slices.Clone(identifiers.CharacteristicPredicates), rdf.SchemaURL)

var namingPredicate = regexp.MustCompile(`(?i)(name|title|label|id|key|code)`)

// Of returns the local class of node in g. Individuals win over classifiers,
// classifiers over embedded objects; a node without rdf:type that shows no
// sign of being an individual has no class.
func Of(g *rdf.Graph, node rdf.Term, ns ident.Namespace) (rdf.Term, bool) {
	types := g.ObjectsOf(node, rdf.Type)
	classifier := containsAny(types, ClassifierTypes)

	individual := containsAny(types, IndividualTypes)
	if !individual && !classifier {
		for _, st := range g.Filter(node, rdf.Term{}, rdf.Term{}) {
			if slices.Contains(CharacteristicProperties, st.Predicate) || namingPredicate.MatchString(localName(st.Predicate)) {
				individual = true
				break
			}
		}
	}

	switch {
	case individual:
		return rdf.IRI(ns.Class(ident.ClassIndividual)), true
	case classifier:
		return rdf.IRI(ns.Class(ident.ClassClassifier)), true
	case len(types) > 0:
		return rdf.IRI(ns.Class(ident.ClassEmbedded)), true
	default:
		return rdf.Term{}, false
	}
}

// Classified reports whether node already carries a local class.
func Classified(g *rdf.Graph, node rdf.Term, ns ident.Namespace) bool {
	for _, t := range g.ObjectsOf(node, rdf.Type) {
		if t.IsIRI() && slices.Contains(ns.Classes(), t.Value) {
			return true
		}
	}
	return false
}

// Statements returns the class statements missing from g, one per IRI
// subject that can be classified.
func Statements(g *rdf.Graph, ns ident.Namespace) (out []rdf.Statement, unclassified []rdf.Term) {
	for _, s := range g.Subjects() {
		if !s.IsIRI() || ns.IsTransaction(s.Value) || Classified(g, s, ns) {
			continue
		}
		class, ok := Of(g, s, ns)
		if !ok {
			unclassified = append(unclassified, s)
			continue
		}
		out = append(out, rdf.NewStatement(s, rdf.Type, class))
	}
	return out, unclassified
}

func containsAny(types, set []rdf.Term) bool {
	for _, t := range types {
		if slices.Contains(set, t) {
			return true
		}
	}
	return false
}

func localName(iri rdf.Term) string {
	v := iri.Value
	if i := strings.LastIndexAny(v, "#/:"); i >= 0 {
		return v[i+1:]
	}
	return v
}

// Transformer is the assign-local-types pipeline stage.
type Transformer struct {
	log *slog.Logger
}

// NewTransformer returns the transformer.
func NewTransformer(log *slog.Logger) *Transformer {
	return &Transformer{log: log.With(logger.Scope("classify"))}
}

func (t *Transformer) Name() string { return Name }

// Handle implements pipeline.Transformer.
func (t *Transformer) Handle(_ context.Context, cs *changeset.Changeset, p pipeline.Params) (*changeset.Changeset, error) {
	stmts, unclassified := Statements(cs.Model(), p.Namespace)
	for _, s := range unclassified {
		t.log.Debug("resource has no local class",
			slog.String("resource", s.String()),
			slog.String("tx", cs.ID().Value))
	}
	return cs.Apply(changeset.Patch{Insert: stmts})
}
