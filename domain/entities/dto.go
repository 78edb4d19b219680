package entities

import (
	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/internal/store"
)

// ChangeRequest is the JSON body of POST and PATCH /api/entities. Both
// fields hold N-Quads documents.
type ChangeRequest struct {
	Insert string `json:"insert"`
	Remove string `json:"remove,omitempty"`
}

// QueryResponse is the response of POST /api/query.
type QueryResponse struct {
	Columns  []string        `json:"columns"`
	Bindings []store.Binding `json:"bindings"`
}

// ChangeResponse wraps the finished transaction.
type ChangeResponse struct {
	Transaction changeset.View `json:"transaction"`
}
