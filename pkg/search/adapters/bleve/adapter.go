// Package bleve implements the search provider contract on top of an
// embedded Bleve index. It is the default sink for single-node and test
// deployments: no external service required.
package bleve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/niranworks/compass/pkg/search"
)

// Adapter implements search.Provider for Bleve (embedded full-text search).
type Adapter struct {
	index bleve.Index
	path  string
}

// Config contains Bleve configuration.
type Config struct {
	IndexPath string // Base path for the index (e.g. "./data/compass.index")
}

// NewAdapter opens or creates the Bleve index.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg.IndexPath == "" {
		return nil, fmt.Errorf("bleve index path required")
	}

	if err := os.MkdirAll(cfg.IndexPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	path := filepath.Join(cfg.IndexPath, "documents.bleve")
	idx, err := openOrCreateIndex(path, createIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to open documents index: %w", err)
	}

	return &Adapter{index: idx, path: path}, nil
}

// openOrCreateIndex opens an existing Bleve index or creates a new one.
func openOrCreateIndex(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		return bleve.New(path, indexMapping)
	}
	return idx, err
}

// createIndexMapping creates the index mapping for routed documents.
// Identity fields are keywords for exact matching; the document field
// map stays dynamic since collections declare their own schemas.
func createIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	numericFieldMapping := bleve.NewNumericFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("objectID", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("uuid", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("collection", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("shardKey", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("indexedAt", numericFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return "bleve"
}

// Index adds or replaces the document under its ObjectID.
func (a *Adapter) Index(ctx context.Context, doc *search.Document) error {
	if doc.ObjectID == "" {
		return &search.Error{Op: "Index", Err: search.ErrIndexingFailed, Msg: "document has no object id"}
	}
	stamp(doc)

	if err := a.index.Index(doc.ObjectID, doc); err != nil {
		return &search.Error{Op: "Index", Err: search.ErrIndexingFailed, Msg: err.Error()}
	}
	return nil
}

// Upsert replaces the document stored under its shard key. Bleve writes
// by id, so indexing with the key as id is a replace-by-key.
func (a *Adapter) Upsert(ctx context.Context, doc *search.Document) error {
	if doc.ShardKey == "" {
		return &search.Error{Op: "Upsert", Err: search.ErrIndexingFailed, Msg: "document has no shard key"}
	}
	doc.ObjectID = doc.ShardKey
	stamp(doc)

	if err := a.index.Index(doc.ObjectID, doc); err != nil {
		return &search.Error{Op: "Upsert", Err: search.ErrIndexingFailed, Msg: err.Error()}
	}
	return nil
}

// Delete removes the object with the given identity.
func (a *Adapter) Delete(ctx context.Context, objectID string) error {
	if err := a.index.Delete(objectID); err != nil {
		return &search.Error{Op: "Delete", Err: search.ErrBackendUnavailable, Msg: err.Error()}
	}
	return nil
}

// Get retrieves a document by identity. Bleve does not hand back stored
// documents directly, so this runs a doc-id query requesting all fields.
func (a *Adapter) Get(ctx context.Context, objectID string) (*search.Document, error) {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{objectID}))
	req.Fields = []string{"*"}

	res, err := a.index.Search(req)
	if err != nil {
		return nil, &search.Error{Op: "Get", Err: search.ErrBackendUnavailable, Msg: err.Error()}
	}
	if res.Total == 0 {
		return nil, &search.Error{Op: "Get", Err: search.ErrNotFound, Msg: objectID}
	}

	hit := res.Hits[0]
	doc := &search.Document{ObjectID: hit.ID}

	if v, ok := hit.Fields["uuid"].(string); ok {
		doc.UUID = v
	}
	if v, ok := hit.Fields["collection"].(string); ok {
		doc.Collection = v
	}
	if v, ok := hit.Fields["shardKey"].(string); ok {
		doc.ShardKey = v
	}
	if v, ok := hit.Fields["indexedAt"].(float64); ok {
		doc.IndexedAt = int64(v)
	}

	// Stored document fields come back flattened as "fields.<name>".
	for k, v := range hit.Fields {
		if name, ok := strings.CutPrefix(k, "fields."); ok {
			if doc.Fields == nil {
				doc.Fields = make(map[string]interface{})
			}
			doc.Fields[name] = v
		}
	}

	return doc, nil
}

// Stats reports the document count.
func (a *Adapter) Stats(ctx context.Context) (*search.Stats, error) {
	count, err := a.index.DocCount()
	if err != nil {
		return nil, &search.Error{Op: "Stats", Err: search.ErrBackendUnavailable, Msg: err.Error()}
	}
	return &search.Stats{Provider: a.Name(), Documents: count}, nil
}

// Close closes the Bleve index.
func (a *Adapter) Close() error {
	return a.index.Close()
}

func stamp(doc *search.Document) {
	if doc.IndexedAt == 0 {
		doc.IndexedAt = time.Now().Unix()
	}
}
