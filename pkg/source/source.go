// Package source streams documents from bulk stores into the ingest
// pipeline. A source walks its backing store (a directory tree, an S3
// bucket) and emits decoded field maps one at a time; the ingest command
// hands them to the publisher.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a single document read from a bulk source, not yet
// persisted or routed.
type Document struct {
	// Collection the document belongs to.
	Collection string

	// Fields is the decoded field map.
	Fields map[string]interface{}

	// Origin is the file path or object key the document was read from.
	Origin string
}

// Source streams documents to a callback. Implementations stop at the
// first error the callback returns.
type Source interface {
	// Name identifies the source kind, e.g. "file" or "s3".
	Name() string

	// Read walks the backing store and calls fn for every document it can
	// decode. Undecodable entries are logged and skipped; an error from fn
	// aborts the walk.
	Read(ctx context.Context, fn func(Document) error) error
}

// Supported reports whether the path names a decodable document format.
func Supported(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// DecodeFields decodes raw document bytes into a field map based on the
// path extension. Empty documents are an error: a document with no
// fields can never contribute to a shard key or match a route.
func DecodeFields(p string, data []byte) (map[string]interface{}, error) {
	fields := make(map[string]interface{})

	switch ext := strings.ToLower(path.Ext(p)); ext {
	case ".json":
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode JSON document: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode YAML document: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported document format %q", ext)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("document has no fields")
	}

	return fields, nil
}

// CollectionFromPath infers the collection from the first segment of a
// slash-separated relative path, e.g. "people/alice.json" -> "people".
// Returns "" when the path has no directory component.
func CollectionFromPath(rel string) string {
	rel = strings.TrimPrefix(path.Clean(rel), "/")
	if i := strings.Index(rel, "/"); i > 0 {
		return rel[:i]
	}
	return ""
}
