package steps

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/niranworks/compass/pkg/router"
	"github.com/niranworks/compass/pkg/search"
)

// SearchIndexStep writes the routed document to the search sink. When the
// key build asked for overwrite, the document is upserted under its shard
// key so the sink keeps one object per key; otherwise it is indexed under
// its UUID and repeated deliveries accumulate.
type SearchIndexStep struct {
	provider search.Provider
	logger   hclog.Logger
}

// NewSearchIndexStep creates a new search index step.
func NewSearchIndexStep(provider search.Provider, logger hclog.Logger) *SearchIndexStep {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &SearchIndexStep{
		provider: provider,
		logger:   logger.Named("search-index-step"),
	}
}

// Name returns the step name.
func (s *SearchIndexStep) Name() string {
	return "search_index"
}

// Execute writes the update to the search sink.
func (s *SearchIndexStep) Execute(ctx context.Context, update *router.Update, config map[string]interface{}) error {
	if s.provider == nil {
		s.logger.Debug("no search provider configured, skipping",
			"document_uuid", update.DocumentUUID,
		)
		return nil
	}

	doc := &search.Document{
		ObjectID:   update.DocumentUUID.String(),
		UUID:       update.DocumentUUID.String(),
		Collection: update.Collection,
		Fields:     update.Fields,
		IndexedAt:  time.Now().Unix(),
	}

	overwrite := update.KeyResult.Overwrite && !update.KeyResult.Key.IsZero()
	if overwrite {
		doc.ShardKey = update.KeyResult.Key.String()
		if err := s.provider.Upsert(ctx, doc); err != nil {
			return err
		}
	} else {
		if err := s.provider.Index(ctx, doc); err != nil {
			return err
		}
	}

	s.logger.Info("indexed document in search",
		"document_uuid", update.DocumentUUID,
		"collection", update.Collection,
		"provider", s.provider.Name(),
		"object_id", doc.ObjectID,
		"overwrite", overwrite,
	)

	return nil
}

// IsRetryable determines if an error should trigger a retry.
func (s *SearchIndexStep) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, search.ErrBackendUnavailable) {
		return true
	}

	// Check for retryable errors
	errMsg := strings.ToLower(err.Error())

	// Network errors are retryable
	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "temporary") {
		return true
	}

	// Rate limiting is retryable
	if strings.Contains(errMsg, "rate limit") ||
		strings.Contains(errMsg, "too many requests") {
		return true
	}

	// Backend unavailable is retryable
	if strings.Contains(errMsg, "unavailable") ||
		strings.Contains(errMsg, "service unavailable") {
		return true
	}

	// Other errors are not retryable (e.g., malformed documents)
	return false
}
