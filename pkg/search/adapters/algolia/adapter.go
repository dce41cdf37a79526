// Package algolia implements the search provider contract for Algolia.
// Writes go through the admin key; the search key is only handed to
// read-side consumers.
package algolia

import (
	"context"
	"errors"
	"fmt"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/errs"
	"github.com/algolia/algoliasearch-client-go/v3/algolia/opt"
	algoliasearch "github.com/algolia/algoliasearch-client-go/v3/algolia/search"

	"github.com/niranworks/compass/pkg/search"
)

// Adapter implements search.Provider for Algolia.
type Adapter struct {
	client *algoliasearch.Client
	index  *algoliasearch.Index
}

// Config contains Algolia configuration.
type Config struct {
	AppID        string
	WriteAPIKey  string
	SearchAPIKey string
	IndexName    string
}

// NewAdapter creates a new Algolia search adapter. No network call is
// made until the first operation.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg.AppID == "" {
		return nil, fmt.Errorf("algolia app id required")
	}
	if cfg.WriteAPIKey == "" {
		return nil, fmt.Errorf("algolia write api key required")
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("algolia index name required")
	}

	client := algoliasearch.NewClient(cfg.AppID, cfg.WriteAPIKey)

	return &Adapter{
		client: client,
		index:  client.InitIndex(cfg.IndexName),
	}, nil
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return "algolia"
}

// Index adds or replaces the document under its ObjectID.
func (a *Adapter) Index(ctx context.Context, doc *search.Document) error {
	if doc.ObjectID == "" {
		return &search.Error{Op: "Index", Err: search.ErrIndexingFailed, Msg: "document has no object id"}
	}

	if _, err := a.index.SaveObject(doc, ctx); err != nil {
		return &search.Error{Op: "Index", Err: search.ErrIndexingFailed, Msg: err.Error()}
	}
	return nil
}

// Upsert replaces the document stored under its shard key. Algolia
// replaces objects by objectID, so saving with the key as objectID is a
// replace-by-key.
func (a *Adapter) Upsert(ctx context.Context, doc *search.Document) error {
	if doc.ShardKey == "" {
		return &search.Error{Op: "Upsert", Err: search.ErrIndexingFailed, Msg: "document has no shard key"}
	}
	doc.ObjectID = doc.ShardKey

	if _, err := a.index.SaveObject(doc, ctx); err != nil {
		return &search.Error{Op: "Upsert", Err: search.ErrIndexingFailed, Msg: err.Error()}
	}
	return nil
}

// Delete removes the object with the given identity.
func (a *Adapter) Delete(ctx context.Context, objectID string) error {
	if _, err := a.index.DeleteObject(objectID, ctx); err != nil {
		return &search.Error{Op: "Delete", Err: classify(err), Msg: err.Error()}
	}
	return nil
}

// Get retrieves the object with the given identity.
func (a *Adapter) Get(ctx context.Context, objectID string) (*search.Document, error) {
	var doc search.Document
	if err := a.index.GetObject(objectID, &doc, ctx); err != nil {
		return nil, &search.Error{Op: "Get", Err: classify(err), Msg: objectID}
	}
	return &doc, nil
}

// Stats reports the document count via an empty query.
func (a *Adapter) Stats(ctx context.Context) (*search.Stats, error) {
	res, err := a.index.Search("", opt.HitsPerPage(0), ctx)
	if err != nil {
		return nil, &search.Error{Op: "Stats", Err: search.ErrBackendUnavailable, Msg: err.Error()}
	}
	return &search.Stats{Provider: a.Name(), Documents: uint64(res.NbHits)}, nil
}

// Close is a no-op; the Algolia client holds no persistent connections.
func (a *Adapter) Close() error {
	return nil
}

// classify maps Algolia API errors onto the sink sentinels.
func classify(err error) error {
	var aerr *errs.AlgoliaErr
	if errors.As(err, &aerr) && aerr.Status == 404 {
		return search.ErrNotFound
	}
	return search.ErrBackendUnavailable
}
