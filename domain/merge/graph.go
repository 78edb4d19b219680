package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/identifiers"
	"github.com/emergent-company/graphmerge/domain/pipeline"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/ident"
	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// GraphName is the transformer name of the graph merge.
const GraphName = "graph-merge"

// DefaultLookupConcurrency bounds the lookups in flight for one changeset.
const DefaultLookupConcurrency = 8

var (
	// ErrDuplicateRecords is returned when the store already holds more than
	// one entity for a key that should be unique.
	ErrDuplicateRecords = errors.New("duplicate records")
	// ErrNoStore is returned when the graph merge runs without store access.
	ErrNoStore = errors.New("graph merge requires a store")
)

// Candidate is a named entity of the changeset that may already be
// persisted.
type Candidate struct {
	ID    rdf.Term
	Type  rdf.Term
	Label rdf.Term
}

// GraphMerger is the graph-merge transformer.
type GraphMerger struct {
	log         *slog.Logger
	concurrency int
}

// NewGraphMerger returns the transformer. A concurrency below one uses
// DefaultLookupConcurrency.
func NewGraphMerger(log *slog.Logger, concurrency int) *GraphMerger {
	if concurrency < 1 {
		concurrency = DefaultLookupConcurrency
	}
	return &GraphMerger{log: log.With(logger.Scope("merge.graph")), concurrency: concurrency}
}

func (m *GraphMerger) Name() string { return GraphName }

// Candidates returns the local named objects of the inserted partition that
// carry both a type and a label, in first-seen order.
func Candidates(cs *changeset.Changeset, ns ident.Namespace) []Candidate {
	inserted := cs.Inserted()
	model := cs.Model()
	seen := make(map[rdf.Term]struct{})
	var out []Candidate
	for _, st := range inserted.Statements() {
		o := st.Object
		if !o.IsIRI() || !ns.IsLocal(o.Value) {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		typ, ok := identifiers.TypeOf(model, o)
		if !ok {
			continue
		}
		label, ok := model.FirstObject(o, rdf.Label)
		if !ok {
			continue
		}
		out = append(out, Candidate{ID: o, Type: typ, Label: label})
	}
	return out
}

// LookupQuery finds persisted entities other than c with the same type and
// label.
func LookupQuery(c Candidate) store.Query {
	return store.Query{
		Select:   []string{"id"},
		Distinct: true,
		Where: []store.Pattern{
			{Subject: store.Var("id"), Predicate: store.Const(rdf.Type), Object: store.Const(c.Type)},
			{Subject: store.Var("id"), Predicate: store.Const(rdf.Label), Object: store.Const(c.Label)},
		},
		Filters: []store.Filter{
			{Op: store.FilterIsIRI, Var: "id"},
			{Op: store.FilterNotEqual, Var: "id", Value: c.ID},
		},
		OrderBy: []string{"id"},
		// Two rows are enough to tell a unique match from a duplicate.
		Limit: 2,
	}
}

// Handle implements pipeline.Transformer. Lookups run concurrently, results
// are applied in candidate order.
func (m *GraphMerger) Handle(ctx context.Context, cs *changeset.Changeset, p pipeline.Params) (*changeset.Changeset, error) {
	if p.Store == nil {
		return nil, ErrNoStore
	}
	candidates := Candidates(cs, p.Namespace)
	if len(candidates) == 0 {
		return cs, nil
	}

	found := make([]rdf.Term, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			id, err := m.lookup(gctx, p.Store, c)
			if err != nil {
				return err
			}
			found[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	inserted := cs.Inserted()
	var patch changeset.Patch
	for i, c := range candidates {
		existing := found[i]
		if existing.IsZero() {
			continue
		}
		m.log.Debug("rerouted to persisted entity",
			slog.String("local", c.ID.String()),
			slog.String("persisted", existing.String()),
			slog.String("tx", cs.ID().Value))
		patch.Drop = append(patch.Drop, inserted.Filter(c.ID, rdf.Term{}, rdf.Term{})...)
		patch.Rewrites = append(patch.Rewrites, rdf.IdentifierMapping{Old: c.ID, New: existing})
	}
	if patch.IsEmpty() {
		return cs, nil
	}
	return cs.Apply(patch)
}

// lookup returns the persisted twin of c, or the zero term when there is
// none.
func (m *GraphMerger) lookup(ctx context.Context, st store.Store, c Candidate) (rdf.Term, error) {
	rows, err := store.QueryAll(ctx, st, LookupQuery(c))
	if err != nil {
		return rdf.Term{}, fmt.Errorf("lookup %s: %w", c.ID, err)
	}
	switch len(rows) {
	case 0:
		return rdf.Term{}, nil
	case 1:
		return rows[0]["id"], nil
	default:
		return rdf.Term{}, fmt.Errorf("%w: more than one %s labelled %s", ErrDuplicateRecords, c.Type, c.Label)
	}
}
