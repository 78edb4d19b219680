package postprocess

import (
	"context"
	"time"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/events"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// timestamp renders t as an xsd:dateTime in UTC with seconds precision.
func timestamp(t time.Time) rdf.Term {
	return rdf.TypedLiteral(t.UTC().Truncate(time.Second).Format(time.RFC3339), rdf.XSDDateTime)
}

// InjectCreationDate adds dcterms:created to the created resources that do
// not carry one yet.
func (p *Processors) InjectCreationDate(ctx context.Context, event events.EntityEvent) error {
	st, err := p.registry.ForTenant(ctx, event.Tenant)
	if err != nil {
		return err
	}
	frags, err := p.individuals(ctx, st, event)
	if err != nil {
		return err
	}

	now := timestamp(p.now())
	var patch changeset.Patch
	for _, f := range frags {
		if _, ok := f.graph.FirstObject(f.id, rdf.DCTermsCreated); ok {
			continue
		}
		patch.Insert = append(patch.Insert, rdf.NewStatement(f.id, rdf.DCTermsCreated, now))
	}
	return p.commit(ctx, st, event.Tenant, InjectCreationDateName, patch)
}

// UpdateModifiedDate replaces dcterms:modified of the updated resources with
// the current time.
func (p *Processors) UpdateModifiedDate(ctx context.Context, event events.EntityEvent) error {
	st, err := p.registry.ForTenant(ctx, event.Tenant)
	if err != nil {
		return err
	}
	frags, err := p.individuals(ctx, st, event)
	if err != nil {
		return err
	}

	now := timestamp(p.now())
	var patch changeset.Patch
	for _, f := range frags {
		current := rdf.NewStatement(f.id, rdf.DCTermsModified, now)
		// Removes are written after updates, so the new value must never be
		// in the remove set.
		fresh := true
		for _, old := range f.graph.Filter(f.id, rdf.DCTermsModified, rdf.Term{}) {
			if old == current {
				fresh = false
				continue
			}
			patch.Remove = append(patch.Remove, old)
		}
		if fresh {
			patch.Update = append(patch.Update, current)
		}
	}
	return p.commit(ctx, st, event.Tenant, UpdateModifiedDateName, patch)
}
