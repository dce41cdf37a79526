package router

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/niranworks/compass/pkg/models"
)

// DocumentEvent is the wire format for document routing events. The relay
// publishes one per outbox entry; routing agents consume them.
type DocumentEvent struct {
	ID           uint                   `json:"id"` // outbox entry ID
	DocumentUUID string                 `json:"documentUuid"`
	Collection   string                 `json:"collection"`
	EventType    string                 `json:"eventType"`
	Source       string                 `json:"source"`
	ContentHash  string                 `json:"contentHash"`
	Payload      map[string]interface{} `json:"payload"`
	Timestamp    time.Time              `json:"timestamp"`
}

// NewDocumentEvent builds the wire event for an outbox entry.
func NewDocumentEvent(entry *models.RoutingOutbox) DocumentEvent {
	return DocumentEvent{
		ID:           entry.ID,
		DocumentUUID: entry.DocumentUUID.String(),
		Collection:   entry.Collection,
		EventType:    entry.EventType,
		Source:       entry.Source,
		ContentHash:  entry.ContentHash,
		Payload:      entry.Payload,
		Timestamp:    entry.CreatedAt,
	}
}

// Update reconstructs a routing update from the event payload. Consumers
// use this to route without a database round trip; the payload carries a
// full copy of the document fields.
func (e *DocumentEvent) Update() (*Update, error) {
	documentUUID, err := uuid.Parse(e.DocumentUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid document uuid %q: %w", e.DocumentUUID, err)
	}

	fieldsRaw, ok := e.Payload["fields"]
	if !ok {
		return nil, fmt.Errorf("event payload for %s has no fields", e.DocumentUUID)
	}
	fields, ok := fieldsRaw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("event payload fields for %s have unexpected type %T", e.DocumentUUID, fieldsRaw)
	}

	u := NewUpdate(documentUUID, e.Collection, fields)
	u.OutboxID = e.ID
	u.ContentHash = e.ContentHash
	return u, nil
}
