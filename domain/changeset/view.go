package changeset

import (
	"encoding/json"
	"time"

	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// View is the JSON representation returned to callers.
type View struct {
	ID            string                  `json:"id"`
	Tenant        string                  `json:"tenant"`
	Status        Status                  `json:"status"`
	FailureReason string                  `json:"failure_reason,omitempty"`
	StartedAt     time.Time               `json:"started_at"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
	Inserted      []rdf.Statement         `json:"inserted"`
	Updated       []rdf.Statement         `json:"updated"`
	Removed       []rdf.Statement         `json:"removed"`
	Affected      []rdf.Statement         `json:"affected,omitempty"`
	Mappings      []rdf.IdentifierMapping `json:"mappings,omitempty"`
}

// View returns a JSON-friendly snapshot of the changeset.
func (c *Changeset) View() View {
	v := View{
		ID:            c.id.Value,
		Tenant:        c.tenant,
		Status:        c.status,
		FailureReason: c.failureReason,
		StartedAt:     c.startedAt,
		Inserted:      nonNil(c.inserted.Statements()),
		Updated:       nonNil(c.updated.Statements()),
		Removed:       nonNil(c.removed.Statements()),
		Affected:      c.affected.Statements(),
		Mappings:      c.Mappings(),
	}
	if !c.completedAt.IsZero() {
		at := c.completedAt
		v.CompletedAt = &at
	}
	return v
}

// MarshalJSON renders the View.
func (c *Changeset) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.View())
}

func nonNil(s []rdf.Statement) []rdf.Statement {
	if s == nil {
		return []rdf.Statement{}
	}
	return s
}
