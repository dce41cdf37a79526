package search

import "errors"

// Sentinel errors for search sink operations. Adapters wrap these in
// *Error so callers can branch with errors.Is regardless of backend.
var (
	// ErrNotFound indicates the requested document is not in the index.
	ErrNotFound = errors.New("document not found in search index")

	// ErrInvalidQuery indicates the query could not be parsed or executed.
	ErrInvalidQuery = errors.New("invalid search query")

	// ErrBackendUnavailable indicates the search backend is unreachable.
	ErrBackendUnavailable = errors.New("search backend unavailable")

	// ErrIndexingFailed indicates a document could not be written.
	ErrIndexingFailed = errors.New("failed to index document")
)

// Error describes a failed search sink operation.
type Error struct {
	// Op is the operation that failed (e.g. "Index", "Upsert").
	Op string

	// Err is the underlying error, usually one of the sentinels.
	Err error

	// Msg is optional human-readable context.
	Msg string
}

// Error returns "Op: Msg: Err", omitting Msg when empty.
func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Msg + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the document is not in the index.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ProviderType identifies a search backend implementation.
type ProviderType string

// Supported search backends.
const (
	ProviderTypeBleve       ProviderType = "bleve"
	ProviderTypeAlgolia     ProviderType = "algolia"
	ProviderTypeMeilisearch ProviderType = "meilisearch"
)
