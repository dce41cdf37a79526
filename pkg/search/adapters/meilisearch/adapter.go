// Package meilisearch implements the search provider contract for a
// Meilisearch server. The index primary key is objectID, so document
// writes replace by identity the same way the other backends do.
package meilisearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/meilisearch/meilisearch-go"

	"github.com/niranworks/compass/pkg/search"
)

// Adapter implements search.Provider for Meilisearch.
type Adapter struct {
	client meilisearch.ServiceManager
	index  meilisearch.IndexManager
}

// Config contains Meilisearch configuration.
type Config struct {
	Host      string
	APIKey    string
	IndexName string
}

// NewAdapter creates a new Meilisearch adapter and verifies the server
// is reachable.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("meilisearch host required")
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("meilisearch index name required")
	}

	client := meilisearch.New(cfg.Host, meilisearch.WithAPIKey(cfg.APIKey))

	if !client.IsHealthy() {
		client.Close()
		return nil, fmt.Errorf("meilisearch is not healthy at %s", cfg.Host)
	}

	return &Adapter{
		client: client,
		index:  client.Index(cfg.IndexName),
	}, nil
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return "meilisearch"
}

// Index adds or replaces the document under its ObjectID.
func (a *Adapter) Index(ctx context.Context, doc *search.Document) error {
	if doc.ObjectID == "" {
		return &search.Error{Op: "Index", Err: search.ErrIndexingFailed, Msg: "document has no object id"}
	}

	if _, err := a.index.AddDocumentsWithContext(ctx, []*search.Document{doc}, "objectID"); err != nil {
		return &search.Error{Op: "Index", Err: search.ErrIndexingFailed, Msg: err.Error()}
	}
	return nil
}

// Upsert replaces the document stored under its shard key. The index
// primary key is objectID, so adding with the key as objectID replaces
// the previous document with the same key.
func (a *Adapter) Upsert(ctx context.Context, doc *search.Document) error {
	if doc.ShardKey == "" {
		return &search.Error{Op: "Upsert", Err: search.ErrIndexingFailed, Msg: "document has no shard key"}
	}
	doc.ObjectID = doc.ShardKey

	if _, err := a.index.AddDocumentsWithContext(ctx, []*search.Document{doc}, "objectID"); err != nil {
		return &search.Error{Op: "Upsert", Err: search.ErrIndexingFailed, Msg: err.Error()}
	}
	return nil
}

// Delete removes the object with the given identity.
func (a *Adapter) Delete(ctx context.Context, objectID string) error {
	if _, err := a.index.DeleteDocumentWithContext(ctx, objectID); err != nil {
		return &search.Error{Op: "Delete", Err: classify(err), Msg: err.Error()}
	}
	return nil
}

// Get retrieves the object with the given identity.
func (a *Adapter) Get(ctx context.Context, objectID string) (*search.Document, error) {
	var doc search.Document
	err := a.index.GetDocumentWithContext(ctx, objectID, nil, &doc)
	if err != nil {
		return nil, &search.Error{Op: "Get", Err: classify(err), Msg: objectID}
	}
	return &doc, nil
}

// Stats reports the document count.
func (a *Adapter) Stats(ctx context.Context) (*search.Stats, error) {
	stats, err := a.index.GetStatsWithContext(ctx)
	if err != nil {
		return nil, &search.Error{Op: "Stats", Err: search.ErrBackendUnavailable, Msg: err.Error()}
	}
	return &search.Stats{Provider: a.Name(), Documents: uint64(stats.NumberOfDocuments)}, nil
}

// Close shuts down the client's idle connections.
func (a *Adapter) Close() error {
	a.client.Close()
	return nil
}

// classify maps Meilisearch API errors onto the sink sentinels.
func classify(err error) error {
	var merr *meilisearch.Error
	if errors.As(err, &merr) && merr.StatusCode == 404 {
		return search.ErrNotFound
	}
	return search.ErrBackendUnavailable
}
