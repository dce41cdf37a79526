// Package search defines the sink contract for routed documents. A
// Provider keeps one object per shard key when documents are upserted,
// which gives downstream consumers the overwrite-by-key behavior the
// routing pipeline promises.
package search

import "context"

// Document is the payload written to a search backend. ObjectID is the
// backend identity: the shard key for upserts, the document UUID for
// plain indexing.
type Document struct {
	ObjectID   string                 `json:"objectID"`
	UUID       string                 `json:"uuid"`
	Collection string                 `json:"collection"`
	ShardKey   string                 `json:"shardKey,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	IndexedAt  int64                  `json:"indexedAt,omitempty"`
}

// Stats reports the state of a backend index.
type Stats struct {
	Provider  string `json:"provider"`
	Documents uint64 `json:"documents"`
}

// Provider is a search backend that stores routed documents.
//
// Index writes the document under its ObjectID as given; repeated
// writes with distinct ObjectIDs accumulate. Upsert writes the document
// under its ShardKey, replacing any previous document with the same
// key.
type Provider interface {
	// Name returns the backend identifier (e.g. "bleve").
	Name() string

	// Index adds or replaces the document under doc.ObjectID.
	Index(ctx context.Context, doc *Document) error

	// Upsert replaces the document stored under doc.ShardKey.
	Upsert(ctx context.Context, doc *Document) error

	// Delete removes the object with the given identity.
	Delete(ctx context.Context, objectID string) error

	// Get retrieves the object with the given identity.
	Get(ctx context.Context, objectID string) (*Document, error)

	// Stats reports index size for health and operator commands.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases backend resources.
	Close() error
}
