// Package changeset models one transaction: the statements it inserts,
// updates and removes, and its provenance.
package changeset

import (
	"errors"
	"time"

	"github.com/emergent-company/graphmerge/pkg/ident"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// ErrFinalized is returned when a finalized changeset is mutated or
// finalized again.
var ErrFinalized = errors.New("changeset already finalized")

// Status is the provenance status of a changeset.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Activity classifies how a resource was touched.
type Activity int

const (
	ActivityInserted Activity = iota
	ActivityUpdated
	ActivityRemoved
)

func (a Activity) String() string {
	switch a {
	case ActivityInserted:
		return "inserted"
	case ActivityUpdated:
		return "updated"
	case ActivityRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Predicate is the provenance edge recorded for the activity.
func (a Activity) Predicate() rdf.Term {
	switch a {
	case ActivityUpdated:
		return rdf.TrxUpdated
	case ActivityRemoved:
		return rdf.TrxRemoved
	default:
		return rdf.TrxInserted
	}
}

// Changeset is one transaction against a tenant store. Values are never
// mutated in place: Apply, Complete and Fail return new changesets, so every
// pipeline stage works on its own snapshot.
type Changeset struct {
	id            rdf.Term
	tenant        string
	startedAt     time.Time
	completedAt   time.Time
	status        Status
	failureReason string

	affected *rdf.Graph
	inserted *rdf.Graph
	updated  *rdf.Graph
	removed  *rdf.Graph

	mappings []rdf.IdentifierMapping
}

// New returns an empty RUNNING changeset with a freshly minted id.
func New(tenant string, ns ident.Namespace) *Changeset {
	return &Changeset{
		id:        rdf.IRI(ns.Transaction()),
		tenant:    tenant,
		startedAt: time.Now().UTC(),
		status:    StatusRunning,
		affected:  &rdf.Graph{},
		inserted:  &rdf.Graph{},
		updated:   &rdf.Graph{},
		removed:   &rdf.Graph{},
	}
}

// FromGraph returns a RUNNING changeset whose inserted partition is g.
func FromGraph(tenant string, ns ident.Namespace, g *rdf.Graph) *Changeset {
	cs := New(tenant, ns)
	cs.inserted = g.Clone()
	return cs
}

func (c *Changeset) ID() rdf.Term           { return c.id }
func (c *Changeset) Tenant() string         { return c.tenant }
func (c *Changeset) StartedAt() time.Time   { return c.startedAt }
func (c *Changeset) CompletedAt() time.Time { return c.completedAt }
func (c *Changeset) Status() Status         { return c.status }
func (c *Changeset) FailureReason() string  { return c.failureReason }
func (c *Changeset) Finalized() bool        { return c.status != StatusRunning }
func (c *Changeset) Affected() *rdf.Graph   { return c.affected.Clone() }
func (c *Changeset) Inserted() *rdf.Graph   { return c.inserted.Clone() }
func (c *Changeset) Updated() *rdf.Graph    { return c.updated.Clone() }
func (c *Changeset) Removed() *rdf.Graph    { return c.removed.Clone() }
func (c *Changeset) Succeeded() bool        { return c.status == StatusSuccess }

// Mappings returns the identifier rewrites applied so far, in order.
func (c *Changeset) Mappings() []rdf.IdentifierMapping {
	out := make([]rdf.IdentifierMapping, len(c.mappings))
	copy(out, c.mappings)
	return out
}

// IsEmpty reports whether the changeset carries no mutation.
func (c *Changeset) IsEmpty() bool {
	return c.inserted.Len() == 0 && c.updated.Len() == 0 && c.removed.Len() == 0
}

// Model returns inserted and updated statements together: the new state the
// caller asked for.
func (c *Changeset) Model() *rdf.Graph {
	return c.inserted.Union(c.updated)
}

func (c *Changeset) clone() *Changeset {
	cp := *c
	cp.affected = c.affected.Clone()
	cp.inserted = c.inserted.Clone()
	cp.updated = c.updated.Clone()
	cp.removed = c.removed.Clone()
	cp.mappings = c.Mappings()
	return &cp
}

// Apply returns a new changeset with the patch applied. The receiver is left
// untouched.
//
// Drops are applied first, then rewrites, then additions. A stage can
// therefore drop statements by their pre-rewrite identity and add statements
// that must not be rewritten.
func (c *Changeset) Apply(p Patch) (*Changeset, error) {
	if c.Finalized() {
		return nil, ErrFinalized
	}
	next := c.clone()
	if p.IsEmpty() {
		return next, nil
	}

	next.inserted.Remove(p.Drop...)
	for _, m := range p.Rewrites {
		next.inserted = next.inserted.Rewrite(m.Old, m.New)
		next.updated = next.updated.Rewrite(m.Old, m.New)
		next.mappings = append(next.mappings, m)
	}
	next.inserted.Add(p.Insert...)
	next.updated.Add(p.Update...)
	next.removed.Add(p.Remove...)
	next.affected.Add(p.Affect...)
	return next, nil
}

// Include is shorthand for applying a patch that adds statements under one
// activity.
func (c *Changeset) Include(stmts []rdf.Statement, activity Activity) (*Changeset, error) {
	var p Patch
	switch activity {
	case ActivityInserted:
		p.Insert = stmts
	case ActivityUpdated:
		p.Update = stmts
	case ActivityRemoved:
		p.Remove = stmts
	}
	return c.Apply(p)
}

// Complete finalizes the changeset as SUCCESS.
func (c *Changeset) Complete(at time.Time) (*Changeset, error) {
	if c.Finalized() {
		return nil, ErrFinalized
	}
	next := c.clone()
	next.status = StatusSuccess
	next.completedAt = at.UTC()
	return next, nil
}

// Fail finalizes the changeset as FAILURE with the given reason.
func (c *Changeset) Fail(at time.Time, reason string) (*Changeset, error) {
	if c.Finalized() {
		return nil, ErrFinalized
	}
	next := c.clone()
	next.status = StatusFailure
	next.completedAt = at.UTC()
	next.failureReason = reason
	return next, nil
}

// TouchedSubjects returns the distinct subjects touched by the given
// activities in first-seen order. With no activities all are considered.
func (c *Changeset) TouchedSubjects(activities ...Activity) []rdf.Term {
	if len(activities) == 0 {
		activities = []Activity{ActivityInserted, ActivityUpdated, ActivityRemoved}
	}
	seen := make(map[rdf.Term]struct{})
	var out []rdf.Term
	for _, a := range activities {
		for _, s := range c.partition(a).Subjects() {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func (c *Changeset) partition(a Activity) *rdf.Graph {
	switch a {
	case ActivityUpdated:
		return c.updated
	case ActivityRemoved:
		return c.removed
	default:
		return c.inserted
	}
}
