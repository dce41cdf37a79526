// Package file reads documents from a directory tree. The walker runs
// against an afero filesystem so tests use an in-memory one.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/niranworks/compass/pkg/source"
)

// Source walks a directory tree and emits every .json, .yaml and .yml
// file as a document. The collection is the first directory under the
// root unless one is forced with WithCollection.
type Source struct {
	fs         afero.Fs
	root       string
	collection string
	logger     hclog.Logger
}

// Option customizes a file source.
type Option func(*Source)

// WithFs replaces the backing filesystem. Tests pass afero.NewMemMapFs().
func WithFs(fs afero.Fs) Option {
	return func(s *Source) { s.fs = fs }
}

// WithCollection forces every document into the named collection instead
// of inferring it from the directory layout.
func WithCollection(name string) Option {
	return func(s *Source) { s.collection = name }
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(s *Source) { s.logger = logger }
}

// New creates a file source rooted at dir.
func New(dir string, opts ...Option) *Source {
	s := &Source{
		fs:     afero.NewOsFs(),
		root:   dir,
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the source kind.
func (s *Source) Name() string { return "file" }

// Read walks the tree under the root and calls fn for every document it
// can decode. Undecodable files are logged and skipped. Files directly
// under the root are skipped unless a collection is forced, because
// there is no directory to infer one from.
func (s *Source) Read(ctx context.Context, fn func(source.Document) error) error {
	return afero.Walk(s.fs, s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || !source.Supported(path) {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		collection := s.collection
		if collection == "" {
			collection = source.CollectionFromPath(rel)
		}
		if collection == "" {
			s.logger.Warn("skipping file outside a collection directory", "path", rel)
			return nil
		}

		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}

		fields, err := source.DecodeFields(path, data)
		if err != nil {
			s.logger.Warn("skipping undecodable document", "path", rel, "error", err)
			return nil
		}

		return fn(source.Document{
			Collection: collection,
			Fields:     fields,
			Origin:     rel,
		})
	})
}
