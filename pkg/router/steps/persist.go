package steps

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/router"
)

// PersistStep writes the routing outcome back to the document store: the
// normalized field map, the assigned shard key and the routed status.
type PersistStep struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewPersistStep creates a new persist step. A nil database puts the step
// in stateless mode where it does nothing.
func NewPersistStep(db *gorm.DB, logger hclog.Logger) *PersistStep {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &PersistStep{
		db:     db,
		logger: logger.Named("persist-step"),
	}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Execute stores the routing outcome for the given update.
func (s *PersistStep) Execute(ctx context.Context, update *router.Update, config map[string]interface{}) error {
	if s.db == nil {
		s.logger.Debug("stateless mode, skipping persist",
			"document_uuid", update.DocumentUUID,
		)
		return nil
	}

	if update.DocumentUUID == uuid.Nil {
		s.logger.Warn("update has no document identity, skipping persist")
		return nil
	}

	doc, err := models.GetDocumentByUUID(s.db, update.DocumentUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The event outlived its document row. Routing still proceeds
			// for the sinks; there is just nothing to update here.
			s.logger.Warn("document not found in store, skipping persist",
				"document_uuid", update.DocumentUUID,
			)
			return nil
		}
		return err
	}

	shardKey := ""
	if !update.KeyResult.Skipped {
		shardKey = update.KeyResult.Key.String()
	}

	if err := doc.SaveRouted(s.db, update.Fields, shardKey); err != nil {
		return err
	}

	update.DocumentID = doc.ID

	s.logger.Debug("persisted routing outcome",
		"document_uuid", update.DocumentUUID,
		"shard_key", shardKey,
	)

	return nil
}

// IsRetryable determines if an error should trigger a retry.
func (s *PersistStep) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Transient database conditions are retryable
	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "connection") ||
		strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadlock") ||
		strings.Contains(errMsg, "locked") ||
		strings.Contains(errMsg, "too many clients") {
		return true
	}

	return false
}
