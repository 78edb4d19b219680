package postprocess

import (
	"context"
	"slices"
	"strings"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/events"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// MergeEmbeddedDuplicates collapses embedded objects that carry identical
// statements. Survivors are chosen once across all resources of the event:
// the object with the lowest identifier wins, the others are deleted and
// every statement pointing at them points at the survivor instead.
func (p *Processors) MergeEmbeddedDuplicates(ctx context.Context, event events.EntityEvent) error {
	st, err := p.registry.ForTenant(ctx, event.Tenant)
	if err != nil {
		return err
	}
	frags, err := p.individuals(ctx, st, event)
	if err != nil {
		return err
	}
	patch, err := p.embeddedDuplicates(ctx, st, frags)
	if err != nil {
		return err
	}
	return p.commit(ctx, st, event.Tenant, MergeEmbeddedDuplicatesName, patch)
}

func (p *Processors) embeddedDuplicates(ctx context.Context, st store.Store, owners []fragment) (changeset.Patch, error) {
	isOwner := make(map[rdf.Term]bool, len(owners))
	for _, f := range owners {
		isOwner[f.id] = true
	}
	var embeds []rdf.Term
	for _, f := range owners {
		for _, s := range f.graph.Statements() {
			o := s.Object
			if !o.IsIRI() || isOwner[o] || !p.ns.IsLocal(o.Value) || slices.Contains(embeds, o) {
				continue
			}
			embeds = append(embeds, o)
		}
	}
	slices.SortFunc(embeds, rdf.Term.Compare)

	survivors := make(map[string]rdf.Term)
	replaced := make(map[rdf.Term]rdf.Term)
	var patch changeset.Patch
	for _, e := range embeds {
		own, err := store.StatementsAbout(ctx, st, e)
		if err != nil {
			return changeset.Patch{}, err
		}
		g := rdf.NewGraph(own...)
		if _, typed := g.FirstObject(e, rdf.Type); !typed {
			continue
		}
		sig := signature(own)
		if _, seen := survivors[sig]; !seen {
			survivors[sig] = e
			continue
		}
		replaced[e] = survivors[sig]
		patch.Remove = append(patch.Remove, own...)
	}

	for _, dup := range embeds {
		survivor, ok := replaced[dup]
		if !ok {
			continue
		}
		refs, err := store.StatementsReferencing(ctx, st, dup)
		if err != nil {
			return changeset.Patch{}, err
		}
		for _, ref := range refs {
			if _, deleted := replaced[ref.Subject]; deleted {
				continue
			}
			patch.Remove = append(patch.Remove, ref)
			patch.Update = append(patch.Update, rdf.NewStatement(ref.Subject, ref.Predicate, survivor))
		}
	}
	return patch, nil
}

// signature is the order-independent fingerprint of an object's
// predicate/value pairs. Literals compare by lexical form, ignoring case
// and datatype.
func signature(stmts []rdf.Statement) string {
	parts := make([]string, 0, len(stmts))
	for _, s := range stmts {
		parts = append(parts, s.Predicate.Value+"="+valueKey(s.Object))
	}
	slices.Sort(parts)
	parts = slices.Compact(parts)
	return strings.Join(parts, "\n")
}

func valueKey(t rdf.Term) string {
	if !t.IsLiteral() {
		return t.Kind.String() + ":" + t.Value
	}
	return "literal:" + strings.ToLower(t.Value) + "@" + t.Lang
}
