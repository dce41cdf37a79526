package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/niranworks/compass/pkg/router"
	"github.com/niranworks/compass/pkg/shardkey"
)

// CompositeKeyStep builds the composite shard key for a document update
// and writes it into the working field map. Builders are validated at
// startup; a build failure here is a per-document problem and rejects
// only that document.
type CompositeKeyStep struct {
	builders map[string]*shardkey.Builder
	logger   hclog.Logger
}

// NewCompositeKeyStep creates a new composite key step. The builders map
// is keyed by collection name.
func NewCompositeKeyStep(builders map[string]*shardkey.Builder, logger hclog.Logger) *CompositeKeyStep {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &CompositeKeyStep{
		builders: builders,
		logger:   logger.Named("composite-key-step"),
	}
}

// Name returns the step name.
func (s *CompositeKeyStep) Name() string {
	return "composite_key"
}

// Execute computes the composite key for the given update.
func (s *CompositeKeyStep) Execute(ctx context.Context, update *router.Update, config map[string]interface{}) error {
	builder, ok := s.builders[update.Collection]
	if !ok {
		// A route sent us a collection with no key configuration. This is
		// configuration drift, not a bad document.
		return fmt.Errorf("no key configuration for collection %q", update.Collection)
	}

	result, err := builder.Build(update)
	if err != nil {
		if errors.Is(err, shardkey.ErrInvalidFieldValue) {
			// The document lacks a usable value for a contributing field.
			// Reject this document; the batch keeps going.
			update.Reject(err.Error())
		}
		return err
	}

	update.KeyResult = result

	if result.Skipped {
		s.logger.Debug("key construction disabled for collection",
			"collection", update.Collection,
			"document_uuid", update.DocumentUUID,
		)
		return nil
	}

	// The key is carried in the document itself under the configured
	// field, alongside the result on the update for the sink steps.
	update.SetField(builder.Config().CompositeIDField, result.Key.String())

	s.logger.Debug("built composite key",
		"collection", update.Collection,
		"document_uuid", update.DocumentUUID,
		"shard_key", result.Key.String(),
		"overwrite", result.Overwrite,
	)

	return nil
}

// IsRetryable determines if an error should trigger a retry.
// Key construction is deterministic: the same document and configuration
// always produce the same outcome, so retrying never helps.
func (s *CompositeKeyStep) IsRetryable(err error) bool {
	return false
}
