package events

// EntityEventType represents the type of entity event
type EntityEventType string

const (
	EventTypeCreated EntityEventType = "entity.created"
	EventTypeUpdated EntityEventType = "entity.updated"
	EventTypeDeleted EntityEventType = "entity.deleted"
)

// EntityEvent is emitted after a transaction committed successfully. It is
// also the payload sent via SSE.
type EntityEvent struct {
	Type          EntityEventType `json:"type"`
	Tenant        string          `json:"tenant"`
	TransactionID string          `json:"transactionId"`
	// Resources are the subjects the transaction touched
	Resources []string `json:"resources"`
	Timestamp string   `json:"timestamp"`
}

// Valid reports whether t is a known event type.
func (t EntityEventType) Valid() bool {
	switch t {
	case EventTypeCreated, EventTypeUpdated, EventTypeDeleted:
		return true
	}
	return false
}

// ConnectedEvent is sent when a client connects
type ConnectedEvent struct {
	ConnectionID string `json:"connectionId"`
	Tenant       string `json:"tenant"`
}

// HeartbeatEvent is sent periodically to keep connections alive
type HeartbeatEvent struct {
	Timestamp   string `json:"timestamp"`
	Connections int    `json:"connections"`
}
