package router

import (
	"time"

	"github.com/google/uuid"

	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/shardkey"
)

// Update holds all information about a document moving through a routing
// chain. It accumulates state as steps execute: the normalize step rewrites
// the field map, the key step attaches the build result, and the sink steps
// read both.
type Update struct {
	// Stable identity of the document being routed.
	DocumentUUID uuid.UUID

	// Database row identifiers. Zero when running stateless (no database);
	// audit records and status updates are skipped in that case.
	DocumentID uint
	OutboxID   uint

	// Collection selects the schema and key configuration that apply.
	Collection string

	// Fields is the working copy of the document body. Steps mutate this
	// copy; the stored document is only touched by the persist step.
	Fields models.JSONMap

	// ContentHash carried from the source document, for sink idempotency.
	ContentHash string

	// KeyResult is the composite key build outcome, set by the key step.
	// Sink steps act on it without re-running the builder.
	KeyResult shardkey.Result

	// Tracking
	StartTime    time.Time
	Errors       []error
	RejectReason string

	// Custom data that steps can use to pass information down the chain.
	Custom map[string]any
}

// NewUpdate creates an update for a document body arriving from any source.
func NewUpdate(documentUUID uuid.UUID, collection string, fields map[string]interface{}) *Update {
	working := make(models.JSONMap, len(fields))
	for k, v := range fields {
		working[k] = v
	}
	return &Update{
		DocumentUUID: documentUUID,
		Collection:   collection,
		Fields:       working,
		StartTime:    time.Now(),
		Custom:       make(map[string]any),
	}
}

// FromDocument creates an update backed by a stored document row.
func FromDocument(doc *models.Document) *Update {
	u := NewUpdate(doc.UUID, doc.Collection, doc.Fields)
	u.DocumentID = doc.ID
	u.ContentHash = doc.ContentHash
	return u
}

// Field returns the named field value and whether it is present.
// Satisfies the field source contract used by key builders.
func (u *Update) Field(name string) (interface{}, bool) {
	return u.Fields.Field(name)
}

// SetField stores a value in the update's working field map.
func (u *Update) SetField(name string, value interface{}) {
	if u.Fields == nil {
		u.Fields = make(models.JSONMap)
	}
	u.Fields[name] = value
}

// AddError adds an error to the update without failing immediately.
// This allows the chain to collect multiple errors for reporting.
func (u *Update) AddError(err error) {
	u.Errors = append(u.Errors, err)
}

// HasErrors returns true if any errors occurred during processing.
func (u *Update) HasErrors() bool {
	return len(u.Errors) > 0
}

// Reject marks the update as permanently refused a key. The first reason
// sticks; later rejections are ignored.
func (u *Update) Reject(reason string) {
	if u.RejectReason == "" {
		u.RejectReason = reason
	}
}

// Rejected reports whether the update has been rejected.
func (u *Update) Rejected() bool {
	return u.RejectReason != ""
}

// SetCustom sets a custom value that steps can use to pass information
// down the chain.
func (u *Update) SetCustom(key string, value any) {
	if u.Custom == nil {
		u.Custom = make(map[string]any)
	}
	u.Custom[key] = value
}

// GetCustom retrieves a custom value from the update.
func (u *Update) GetCustom(key string) (any, bool) {
	if u.Custom == nil {
		return nil, false
	}
	val, ok := u.Custom[key]
	return val, ok
}

// UpdateFilter is a function that determines whether an update should be
// processed by a chain.
type UpdateFilter func(*Update) bool

// CollectionFilter creates a filter that only processes updates from the
// specified collections.
func CollectionFilter(collections ...string) UpdateFilter {
	collectionMap := make(map[string]bool)
	for _, c := range collections {
		collectionMap[c] = true
	}

	return func(u *Update) bool {
		return collectionMap[u.Collection]
	}
}

// HasFieldFilter creates a filter that only processes updates carrying all
// of the named fields.
func HasFieldFilter(names ...string) UpdateFilter {
	return func(u *Update) bool {
		for _, name := range names {
			if _, ok := u.Field(name); !ok {
				return false
			}
		}
		return true
	}
}

// CombineFilters combines multiple filters with AND logic.
// The update must pass all filters to be processed.
func CombineFilters(filters ...UpdateFilter) UpdateFilter {
	return func(u *Update) bool {
		for _, filter := range filters {
			if !filter(u) {
				return false
			}
		}
		return true
	}
}
