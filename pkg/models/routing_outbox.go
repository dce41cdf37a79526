package models

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoutingOutbox stores document events for reliable routing. Implements
// the transactional outbox pattern: the entry is written in the same
// transaction as the document, then relayed to the event stream.
type RoutingOutbox struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Document identification
	DocumentID   uint      `gorm:"not null;index:idx_routing_outbox_document_id" json:"documentId"`
	DocumentUUID uuid.UUID `gorm:"type:uuid;not null;index:idx_routing_outbox_document_uuid" json:"documentUuid"`
	Collection   string    `gorm:"type:varchar(100);not null" json:"collection"`

	// Idempotency key: {document_uuid}:{content_hash}
	IdempotentKey string `gorm:"type:varchar(128);not null;uniqueIndex" json:"idempotentKey"`
	ContentHash   string `gorm:"type:varchar(64);not null" json:"contentHash"`

	// Event metadata
	EventType string `gorm:"type:varchar(50);not null" json:"eventType"` // 'document.received', 'document.updated', 'document.deleted'
	Source    string `gorm:"type:varchar(50);not null" json:"source"`    // 'api', 'file', 's3'

	// Event payload (full document fields + metadata)
	Payload JSONMap `gorm:"type:jsonb;not null" json:"payload"`

	// Outbox state
	Status          string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_routing_outbox_pending,where:status = 'pending'" json:"status"` // 'pending', 'published', 'failed'
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	PublishAttempts int        `gorm:"default:0" json:"publishAttempts"`
	LastError       string     `gorm:"type:text" json:"lastError,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Associations
	Document *Document `gorm:"foreignKey:DocumentID" json:"-"`
}

// TableName specifies the table name.
func (RoutingOutbox) TableName() string {
	return "routing_outbox"
}

// DocumentEventType constants
const (
	DocumentEventReceived = "document.received"
	DocumentEventUpdated  = "document.updated"
	DocumentEventDeleted  = "document.deleted"
)

// OutboxStatus constants
const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
	OutboxStatusFailed    = "failed"
)

// GenerateIdempotentKey creates a unique key for this document event.
// Format: {document_uuid}:{event_type}:{content_hash}. The event type is
// part of the key because deleting an unchanged document must not collide
// with its original received event.
func GenerateIdempotentKey(documentUUID uuid.UUID, eventType, contentHash string) string {
	return fmt.Sprintf("%s:%s:%s", documentUUID.String(), eventType, contentHash)
}

// ComputeContentHash computes SHA-256 hash of the event payload.
func ComputeContentHash(payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}

// BeforeCreate hook to ensure required fields.
func (o *RoutingOutbox) BeforeCreate(tx *gorm.DB) error {
	if o.DocumentUUID == uuid.Nil {
		return fmt.Errorf("document_uuid is required")
	}
	if o.DocumentID == 0 {
		return fmt.Errorf("document_id is required")
	}
	if o.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if o.ContentHash == "" {
		return fmt.Errorf("content_hash is required")
	}
	if o.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if o.Source == "" {
		return fmt.Errorf("source is required")
	}
	if o.Payload == nil {
		return fmt.Errorf("payload is required")
	}

	// Generate idempotent key if not set
	if o.IdempotentKey == "" {
		o.IdempotentKey = GenerateIdempotentKey(o.DocumentUUID, o.EventType, o.ContentHash)
	}

	// Set default status
	if o.Status == "" {
		o.Status = OutboxStatusPending
	}

	return nil
}

// NewDocumentOutboxEntry creates a new outbox entry for a document event.
func NewDocumentOutboxEntry(doc *Document, eventType, source string) (*RoutingOutbox, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is required")
	}

	payload := JSONMap{
		"uuid":       doc.UUID.String(),
		"collection": doc.Collection,
		"fields":     map[string]interface{}(doc.Fields),
	}

	contentHash, err := ComputeContentHash(doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to compute content hash: %w", err)
	}

	return &RoutingOutbox{
		DocumentID:    doc.ID,
		DocumentUUID:  doc.UUID,
		Collection:    doc.Collection,
		ContentHash:   contentHash,
		IdempotentKey: GenerateIdempotentKey(doc.UUID, eventType, contentHash),
		EventType:     eventType,
		Source:        source,
		Payload:       payload,
		Status:        OutboxStatusPending,
	}, nil
}

// FindPendingOutboxEntries retrieves pending outbox entries for publishing,
// oldest first so relay order follows ingest order.
func FindPendingOutboxEntries(db *gorm.DB, limit int) ([]RoutingOutbox, error) {
	var entries []RoutingOutbox

	err := db.
		Where("status = ?", OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error

	return entries, err
}

// MarkAsPublished marks the outbox entry as successfully published.
func (o *RoutingOutbox) MarkAsPublished(db *gorm.DB) error {
	now := time.Now()
	return db.Model(o).Updates(map[string]interface{}{
		"status":       OutboxStatusPublished,
		"published_at": now,
		"updated_at":   now,
	}).Error
}

// MarkAsFailed marks the outbox entry as failed with error details.
func (o *RoutingOutbox) MarkAsFailed(db *gorm.DB, err error) error {
	o.PublishAttempts++
	o.Status = OutboxStatusFailed
	o.LastError = err.Error()

	return db.Model(o).Updates(map[string]interface{}{
		"status":           OutboxStatusFailed,
		"publish_attempts": o.PublishAttempts,
		"last_error":       err.Error(),
		"updated_at":       time.Now(),
	}).Error
}

// Retry resets the outbox entry status to pending for retry.
func (o *RoutingOutbox) Retry(db *gorm.DB) error {
	return db.Model(o).Updates(map[string]interface{}{
		"status":     OutboxStatusPending,
		"last_error": "",
		"updated_at": time.Now(),
	}).Error
}

// DeleteOldPublishedEntries removes published entries older than the
// specified duration. Used for cleanup to prevent unbounded table growth.
func DeleteOldPublishedEntries(db *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := db.
		Where("status = ? AND published_at < ?", OutboxStatusPublished, cutoff).
		Delete(&RoutingOutbox{})

	return result.RowsAffected, result.Error
}

// GetOutboxByIdempotentKey retrieves an outbox entry by its idempotent key.
// Used to check if an event was already recorded.
func GetOutboxByIdempotentKey(db *gorm.DB, key string) (*RoutingOutbox, error) {
	var entry RoutingOutbox
	err := db.Where("idempotent_key = ?", key).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetFailedOutboxEntries retrieves failed outbox entries for manual review/retry.
func GetFailedOutboxEntries(db *gorm.DB, limit int) ([]RoutingOutbox, error) {
	var entries []RoutingOutbox
	err := db.
		Where("status = ?", OutboxStatusFailed).
		Order("updated_at DESC").
		Limit(limit).
		Find(&entries).Error

	return entries, err
}

// CountOutboxByStatus returns the count of entries for a given status.
func CountOutboxByStatus(db *gorm.DB, status string) (int64, error) {
	var count int64
	err := db.Model(&RoutingOutbox{}).
		Where("status = ?", status).
		Count(&count).Error

	return count, err
}
