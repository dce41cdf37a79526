package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document is a routed unit of data. Every document belongs to a named
// collection, carries a free-form field map, and picks up a shard key as
// it moves through the routing pipeline.
type Document struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Stable identity across ingest sources and re-deliveries.
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_documents_uuid" json:"uuid"`

	// Collection selects the schema and key configuration that apply.
	Collection string `gorm:"type:varchar(100);not null;index:idx_documents_collection" json:"collection"`

	// Fields holds the document body as submitted by the source.
	Fields JSONMap `gorm:"type:jsonb;not null" json:"fields"`

	// ShardKey is the composite key assigned during routing. Empty until
	// the document has passed the key step.
	ShardKey string `gorm:"type:varchar(512);index:idx_documents_shard_key" json:"shardKey,omitempty"`

	// ContentHash is the SHA-256 of the field map, used for idempotent
	// outbox entries and change detection.
	ContentHash string `gorm:"type:varchar(64);index:idx_documents_hash" json:"contentHash"`

	// Status tracks progress through the pipeline.
	Status string `gorm:"type:varchar(20);not null;default:'received';index:idx_documents_status" json:"status"`

	// RejectReason records why a rejected document was refused a key.
	RejectReason string `gorm:"type:text" json:"rejectReason,omitempty"`
}

// DocumentStatus constants
const (
	DocumentStatusReceived = "received" // Persisted, not yet routed
	DocumentStatusRouted   = "routed"   // Key assigned and sinks updated
	DocumentStatusRejected = "rejected" // Key could not be built
)

// TableName specifies the table name.
func (Document) TableName() string {
	return "documents"
}

// BeforeCreate hook to ensure identity and defaults.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if d.Fields == nil {
		return fmt.Errorf("fields are required")
	}

	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DocumentStatusReceived
	}
	if d.ContentHash == "" {
		hash, err := ComputeContentHash(d.Fields)
		if err != nil {
			return err
		}
		d.ContentHash = hash
	}

	return nil
}

// Field returns the named field value and whether it is present.
// Satisfies the field source contract used by key builders.
func (d *Document) Field(name string) (interface{}, bool) {
	return d.Fields.Field(name)
}

// SetField stores a value in the document's field map.
func (d *Document) SetField(name string, value interface{}) {
	if d.Fields == nil {
		d.Fields = make(JSONMap)
	}
	d.Fields[name] = value
}

// MarkAsRouted records the assigned shard key and flips status.
func (d *Document) MarkAsRouted(db *gorm.DB, shardKey string) error {
	d.ShardKey = shardKey
	d.Status = DocumentStatusRouted
	return db.Model(d).Updates(map[string]interface{}{
		"shard_key":  shardKey,
		"status":     DocumentStatusRouted,
		"updated_at": time.Now(),
	}).Error
}

// SaveRouted persists the routed field map and the assigned shard key in
// one update. The persist step writes the normalized working copy back
// through this; an empty shardKey records a routed document whose key
// construction is disabled.
func (d *Document) SaveRouted(db *gorm.DB, fields JSONMap, shardKey string) error {
	d.Fields = fields
	d.ShardKey = shardKey
	d.Status = DocumentStatusRouted
	return db.Model(d).Updates(map[string]interface{}{
		"fields":     fields,
		"shard_key":  shardKey,
		"status":     DocumentStatusRouted,
		"updated_at": time.Now(),
	}).Error
}

// MarkAsRejected records why no key could be built for the document.
func (d *Document) MarkAsRejected(db *gorm.DB, reason string) error {
	d.Status = DocumentStatusRejected
	d.RejectReason = reason
	return db.Model(d).Updates(map[string]interface{}{
		"status":        DocumentStatusRejected,
		"reject_reason": reason,
		"updated_at":    time.Now(),
	}).Error
}

// GetDocumentByUUID retrieves a document by its stable identity.
func GetDocumentByUUID(db *gorm.DB, documentUUID uuid.UUID) (*Document, error) {
	var doc Document
	err := db.Where("uuid = ?", documentUUID).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindDocumentsByCollection retrieves the most recent documents in a collection.
func FindDocumentsByCollection(db *gorm.DB, collection string, limit int) ([]Document, error) {
	var docs []Document
	err := db.Where("collection = ?", collection).
		Order("created_at DESC").
		Limit(limit).
		Find(&docs).Error
	return docs, err
}

// FindDocumentsWithoutKey retrieves documents in a collection that never
// received a shard key, oldest first.
func FindDocumentsWithoutKey(db *gorm.DB, collection string, limit int) ([]Document, error) {
	var docs []Document
	err := db.Where("collection = ? AND (shard_key = '' OR shard_key IS NULL)", collection).
		Order("created_at ASC").
		Limit(limit).
		Find(&docs).Error
	return docs, err
}

// FindDocumentsByStatus retrieves the oldest documents with a given status.
// The routing orchestrator drains received documents through this in batches.
func FindDocumentsByStatus(db *gorm.DB, status string, limit int) ([]Document, error) {
	var docs []Document
	err := db.Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&docs).Error
	return docs, err
}

// FindDocumentsByCollectionAfter pages through a collection by row ID.
// Used by rebuilds, where status does not change between batches and a
// cursor is the only way to make progress.
func FindDocumentsByCollectionAfter(db *gorm.DB, collection string, afterID uint, limit int) ([]Document, error) {
	var docs []Document
	err := db.Where("collection = ? AND id > ?", collection, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&docs).Error
	return docs, err
}

// CountDocumentsByStatus returns the number of documents with a given status.
func CountDocumentsByStatus(db *gorm.DB, status string) (int64, error) {
	var count int64
	err := db.Model(&Document{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
