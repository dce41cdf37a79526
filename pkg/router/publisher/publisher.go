// Package publisher is the transactional write path for document ingest.
// A document row and its routing outbox entry commit together, so every
// stored document eventually reaches the broker even if the relay or the
// process dies between write and publish.
package publisher

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/niranworks/compass/pkg/models"
)

// Publisher writes documents and their routing events to the outbox.
type Publisher struct {
	db     *gorm.DB
	logger hclog.Logger
}

// New creates a new Publisher.
func New(db *gorm.DB, logger hclog.Logger) *Publisher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Publisher{
		db:     db,
		logger: logger.Named("outbox-publisher"),
	}
}

// IngestResult reports what Ingest did with a document body.
type IngestResult struct {
	Document *models.Document

	// Event is the outbox event type queued for this ingest, or empty
	// when the body was a duplicate and nothing was queued.
	Event string
}

// Ingest stores a document body and queues its routing event in one
// transaction.
//
// With a zero UUID a new document is created and a document.received event
// queued. With a known UUID the stored document is updated when the body
// changed (document.updated) or left untouched when the content hash
// matches, making redelivery from any source safe.
func (p *Publisher) Ingest(ctx context.Context, collection string, documentUUID uuid.UUID, fields map[string]interface{}, source string) (*IngestResult, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("fields are required")
	}

	result := &IngestResult{}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if documentUUID != uuid.Nil {
			existing, err := models.GetDocumentByUUID(tx, documentUUID)
			if err == nil {
				return p.ingestExisting(tx, existing, fields, source, result)
			}
			if err != gorm.ErrRecordNotFound {
				return fmt.Errorf("failed to look up document: %w", err)
			}
		}

		doc := &models.Document{
			UUID:       documentUUID,
			Collection: collection,
			Fields:     models.JSONMap(fields),
		}
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}

		result.Document = doc
		result.Event = models.DocumentEventReceived
		return p.publishEvent(tx, doc, models.DocumentEventReceived, source)
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("document ingested",
		"document_uuid", result.Document.UUID,
		"collection", result.Document.Collection,
		"event", result.Event,
		"source", source,
	)

	return result, nil
}

// ingestExisting updates a stored document when its body changed.
func (p *Publisher) ingestExisting(tx *gorm.DB, doc *models.Document, fields map[string]interface{}, source string, result *IngestResult) error {
	newHash, err := models.ComputeContentHash(models.JSONMap(fields))
	if err != nil {
		return fmt.Errorf("failed to compute content hash: %w", err)
	}

	result.Document = doc

	if newHash == doc.ContentHash {
		p.logger.Debug("skipping unchanged document",
			"document_uuid", doc.UUID,
			"content_hash", newHash,
		)
		return nil
	}

	doc.Fields = models.JSONMap(fields)
	doc.ContentHash = newHash
	// Changed bodies are re-routed from scratch: the previous key may no
	// longer be derivable from the new field values.
	doc.Status = models.DocumentStatusReceived
	doc.ShardKey = ""
	doc.RejectReason = ""

	if err := tx.Model(doc).Updates(map[string]interface{}{
		"fields":        doc.Fields,
		"content_hash":  doc.ContentHash,
		"status":        doc.Status,
		"shard_key":     "",
		"reject_reason": "",
	}).Error; err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	result.Event = models.DocumentEventUpdated
	return p.publishEvent(tx, doc, models.DocumentEventUpdated, source)
}

// Delete removes a document and queues a document.deleted event carrying
// the shard key the document was indexed under, so consumers can clear
// the search backend.
func (p *Publisher) Delete(ctx context.Context, documentUUID uuid.UUID, source string) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := models.GetDocumentByUUID(tx, documentUUID)
		if err != nil {
			return fmt.Errorf("failed to look up document: %w", err)
		}

		entry, err := models.NewDocumentOutboxEntry(doc, models.DocumentEventDeleted, source)
		if err != nil {
			return fmt.Errorf("failed to create outbox entry: %w", err)
		}
		entry.Payload["shardKey"] = doc.ShardKey

		if err := p.createEntry(tx, entry); err != nil {
			return err
		}

		if err := tx.Delete(doc).Error; err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}

		p.logger.Debug("document deleted",
			"document_uuid", documentUUID,
			"shard_key", doc.ShardKey,
		)
		return nil
	})
}

// publishEvent creates and saves the outbox entry within tx.
func (p *Publisher) publishEvent(tx *gorm.DB, doc *models.Document, eventType, source string) error {
	entry, err := models.NewDocumentOutboxEntry(doc, eventType, source)
	if err != nil {
		return fmt.Errorf("failed to create outbox entry: %w", err)
	}
	return p.createEntry(tx, entry)
}

func (p *Publisher) createEntry(tx *gorm.DB, entry *models.RoutingOutbox) error {
	// Check for duplicate (idempotency)
	existing, err := models.GetOutboxByIdempotentKey(tx, entry.IdempotentKey)
	if err != nil && err != gorm.ErrRecordNotFound {
		return fmt.Errorf("failed to check for existing outbox entry: %w", err)
	}
	if existing != nil {
		p.logger.Debug("skipping duplicate outbox entry",
			"idempotent_key", entry.IdempotentKey,
			"existing_id", existing.ID,
		)
		return nil
	}

	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create outbox entry: %w", err)
	}
	return nil
}

// WithTransaction wraps a function in a database transaction and queues the
// event it returns. Handlers that shape the document themselves use this to
// keep the write and the event atomic.
func (p *Publisher) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) (*models.Document, string, error)) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, eventType, err := fn(tx)
		if err != nil {
			return err
		}
		if doc == nil || eventType == "" {
			return nil
		}
		return p.publishEvent(tx, doc, eventType, "transaction")
	})
}
