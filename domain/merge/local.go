// Package merge collapses duplicate entities, first within one changeset and
// then against the persisted graph.
package merge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/identifiers"
	"github.com/emergent-company/graphmerge/domain/pipeline"
	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/metrics"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// LocalName is the transformer name of the local merge.
const LocalName = "local-merge"

// key identifies an entity by type and label.
type key struct {
	typ   rdf.Term
	label rdf.Term
}

// LocalResult is the outcome of MergeLocal.
type LocalResult struct {
	Patch changeset.Patch
	// Merged maps each duplicate to the node it was folded into.
	Merged []rdf.IdentifierMapping
	// Skipped lists anonymous nodes without rdf:type.
	Skipped []rdf.Term
}

// LocalMerger is the local-merge transformer.
type LocalMerger struct {
	log *slog.Logger
}

// NewLocalMerger returns the transformer.
func NewLocalMerger(log *slog.Logger) *LocalMerger {
	return &LocalMerger{log: log.With(logger.Scope("merge.local"))}
}

func (m *LocalMerger) Name() string { return LocalName }

// MergeLocal finds anonymous objects of g that share (rdf:type, rdfs:label).
// Objects are visited in statement order and the first occurrence of a key
// is kept. Each later occurrence loses its own statements and every
// reference to it is pointed at the survivor.
func MergeLocal(g *rdf.Graph, anonymous func(rdf.Term) bool) LocalResult {
	var res LocalResult
	canonical := make(map[key]rdf.Term)
	visited := make(map[rdf.Term]struct{})

	for _, st := range g.Statements() {
		o := st.Object
		if !anonymous(o) {
			continue
		}
		if _, ok := visited[o]; ok {
			continue
		}
		visited[o] = struct{}{}

		typ, ok := identifiers.TypeOf(g, o)
		if !ok {
			res.Skipped = append(res.Skipped, o)
			continue
		}
		label, ok := g.FirstObject(o, rdf.Label)
		if !ok {
			continue
		}
		k := key{typ: typ, label: label}
		survivor, seen := canonical[k]
		if !seen {
			canonical[k] = o
			continue
		}
		res.Merged = append(res.Merged, rdf.IdentifierMapping{Old: o, New: survivor})
		res.Patch.Drop = append(res.Patch.Drop, g.Filter(o, rdf.Term{}, rdf.Term{})...)
	}

	res.Patch.Rewrites = res.Merged
	return res
}

// Handle implements pipeline.Transformer. Only the inserted partition is
// searched: anonymous entities never reach the updated one.
func (m *LocalMerger) Handle(ctx context.Context, cs *changeset.Changeset, p pipeline.Params) (*changeset.Changeset, error) {
	res := MergeLocal(cs.Inserted(), anonymousIn(cs))

	if len(res.Skipped) > 0 {
		if p.Strict {
			return nil, fmt.Errorf("node %s: %w", res.Skipped[0], identifiers.ErrMissingType)
		}
		metrics.SkippedNodes.WithLabelValues(LocalName).Add(float64(len(res.Skipped)))
		for _, n := range res.Skipped {
			m.log.Warn("anonymous node has no rdf:type, not merged",
				slog.String("node", n.String()),
				slog.String("tx", cs.ID().Value))
		}
	}
	if len(res.Merged) == 0 {
		return cs, nil
	}

	for _, mm := range res.Merged {
		m.log.Debug("merged duplicate within changeset",
			slog.String("duplicate", mm.Old.String()),
			slog.String("survivor", mm.New.String()))
	}
	return cs.Apply(res.Patch)
}

// anonymousIn reports blank nodes and identifiers minted for blank nodes
// earlier in this changeset's pipeline run.
func anonymousIn(cs *changeset.Changeset) func(rdf.Term) bool {
	minted := make(map[rdf.Term]struct{})
	for _, m := range cs.Mappings() {
		if m.Old.IsBlank() {
			minted[m.New] = struct{}{}
		}
	}
	return func(t rdf.Term) bool {
		if t.IsBlank() {
			return true
		}
		_, ok := minted[t]
		return ok
	}
}
