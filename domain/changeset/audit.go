package changeset

import (
	"time"

	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// Named context suffixes appended to the transaction IRI.
const (
	ContextCreated    = "#created"
	ContextDeleted    = "#deleted"
	ContextAffected   = "#affected"
	ContextProvenance = "#provenance"
)

// Context returns the named context of this transaction with the given
// suffix.
func (c *Changeset) Context(suffix string) rdf.Term {
	return rdf.IRI(c.id.Value + suffix)
}

// Provenance returns the provenance record: type, status, time, tenant,
// failure reason and one activity edge per touched resource. The statements
// carry no context.
func (c *Changeset) Provenance() []rdf.Statement {
	at := c.startedAt
	if !c.completedAt.IsZero() {
		at = c.completedAt
	}
	out := []rdf.Statement{
		rdf.NewStatement(c.id, rdf.Type, rdf.TrxTransaction),
		rdf.NewStatement(c.id, rdf.TrxStatus, rdf.Literal(string(c.status))),
		rdf.NewStatement(c.id, rdf.ProvAtTime, rdf.TypedLiteral(at.Format(time.RFC3339), rdf.XSDDateTime)),
	}
	if c.tenant != "" {
		out = append(out, rdf.NewStatement(c.id, rdf.TrxTenant, rdf.Literal(c.tenant)))
	}
	if c.failureReason != "" {
		out = append(out, rdf.NewStatement(c.id, rdf.TrxReason, rdf.Literal(c.failureReason)))
	}
	for _, a := range []Activity{ActivityInserted, ActivityUpdated, ActivityRemoved} {
		for _, s := range c.partition(a).Subjects() {
			out = append(out, rdf.NewStatement(c.id, a.Predicate(), s))
		}
	}
	return out
}

// AuditQuads renders the transaction's audit trail into its named contexts so
// it can be persisted next to the data and reconstructed later.
func (c *Changeset) AuditQuads() []rdf.Statement {
	created := c.Context(ContextCreated)
	deleted := c.Context(ContextDeleted)
	affected := c.Context(ContextAffected)
	prov := c.Context(ContextProvenance)

	var out []rdf.Statement
	for _, st := range c.Model().Statements() {
		out = append(out, st.InContext(created), st.InContext(affected))
	}
	for _, st := range c.removed.Statements() {
		out = append(out, st.InContext(deleted), st.InContext(affected))
	}
	for _, st := range c.Provenance() {
		out = append(out, st.InContext(prov))
	}
	return out
}
