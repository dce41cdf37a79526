package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RoutingExecution tracks a chain run for a single document event.
// Records which route matched and what steps were executed, with
// per-step results.
type RoutingExecution struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Links to document and outbox
	DocumentID uint `gorm:"not null;index:idx_routing_exec_document_id" json:"documentId"`
	OutboxID   uint `gorm:"not null;index:idx_routing_exec_outbox_id" json:"outboxId"`

	// Execution metadata
	RouteName string   `gorm:"type:varchar(100);not null;index:idx_routing_exec_route" json:"routeName"`
	Steps     []string `gorm:"serializer:json;type:jsonb;not null" json:"steps"` // ['normalize', 'composite_key', 'search_index']

	// Execution state
	Status      string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_routing_exec_status" json:"status"` // 'pending', 'running', 'completed', 'failed', 'partial'
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Results per step
	// Example: {"composite_key": {"status": "success", "key": "Person!42"}}
	StepResults JSONMap `gorm:"type:jsonb" json:"stepResults,omitempty"`

	// Error details for debugging
	ErrorDetails JSONMap `gorm:"type:jsonb" json:"errorDetails,omitempty"`

	// Retry tracking
	AttemptNumber int `gorm:"not null;default:1" json:"attemptNumber"`
	MaxAttempts   int `gorm:"not null;default:3" json:"maxAttempts"`

	// Timestamps
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Associations
	Document *Document      `gorm:"foreignKey:DocumentID" json:"-"`
	Outbox   *RoutingOutbox `gorm:"foreignKey:OutboxID" json:"-"`
}

// TableName specifies the table name.
func (RoutingExecution) TableName() string {
	return "routing_executions"
}

// ExecutionStatus constants
const (
	ExecutionStatusPending   = "pending"   // Not yet started
	ExecutionStatusRunning   = "running"   // Currently executing
	ExecutionStatusCompleted = "completed" // All steps succeeded
	ExecutionStatusFailed    = "failed"    // At least one step failed
	ExecutionStatusPartial   = "partial"   // Some steps succeeded, some failed
)

// StepStatus constants for individual step results
const (
	StepStatusSuccess = "success"
	StepStatusFailed  = "failed"
	StepStatusSkipped = "skipped"
)

// BeforeCreate hook to ensure required fields.
func (e *RoutingExecution) BeforeCreate(tx *gorm.DB) error {
	if e.DocumentID == 0 {
		return fmt.Errorf("document_id is required")
	}
	if e.OutboxID == 0 {
		return fmt.Errorf("outbox_id is required")
	}
	if e.RouteName == "" {
		return fmt.Errorf("route_name is required")
	}
	if len(e.Steps) == 0 {
		return fmt.Errorf("steps are required")
	}

	// Set default status
	if e.Status == "" {
		e.Status = ExecutionStatusPending
	}

	// Initialize step results if not set
	if e.StepResults == nil {
		e.StepResults = make(JSONMap)
	}

	return nil
}

// NewRoutingExecution creates a new execution record for a chain run.
func NewRoutingExecution(documentID, outboxID uint, routeName string, steps []string) *RoutingExecution {
	return &RoutingExecution{
		DocumentID:    documentID,
		OutboxID:      outboxID,
		RouteName:     routeName,
		Steps:         steps,
		Status:        ExecutionStatusPending,
		AttemptNumber: 1,
		MaxAttempts:   3,
		StepResults:   make(JSONMap),
	}
}

// Start marks the execution as running.
func (e *RoutingExecution) Start(db *gorm.DB) error {
	now := time.Now()
	e.Status = ExecutionStatusRunning
	e.StartedAt = &now
	e.UpdatedAt = now

	return db.Save(e).Error
}

// RecordStepResult records the result of a chain step.
func (e *RoutingExecution) RecordStepResult(db *gorm.DB, stepName, status string, details map[string]interface{}) error {
	if e.StepResults == nil {
		e.StepResults = make(JSONMap)
	}

	result := map[string]interface{}{
		"status":       status,
		"completed_at": time.Now(),
	}

	// Merge additional details
	for k, v := range details {
		result[k] = v
	}

	e.StepResults[stepName] = result
	e.UpdatedAt = time.Now()

	return db.Save(e).Error
}

// MarkAsCompleted marks the execution as completed successfully.
func (e *RoutingExecution) MarkAsCompleted(db *gorm.DB) error {
	now := time.Now()
	e.Status = ExecutionStatusCompleted
	e.CompletedAt = &now
	e.UpdatedAt = now

	return db.Save(e).Error
}

// MarkAsFailed marks the execution as failed with error details.
func (e *RoutingExecution) MarkAsFailed(db *gorm.DB, stepName string, err error) error {
	now := time.Now()
	e.Status = ExecutionStatusFailed
	e.CompletedAt = &now
	e.UpdatedAt = now

	if e.ErrorDetails == nil {
		e.ErrorDetails = make(JSONMap)
	}

	e.ErrorDetails["failed_step"] = stepName
	e.ErrorDetails["error"] = err.Error()
	e.ErrorDetails["failed_at"] = now

	return db.Save(e).Error
}

// MarkAsPartial marks the execution as partially completed (some steps failed).
func (e *RoutingExecution) MarkAsPartial(db *gorm.DB) error {
	now := time.Now()
	e.Status = ExecutionStatusPartial
	e.CompletedAt = &now
	e.UpdatedAt = now

	return db.Save(e).Error
}

// ShouldRetry determines if the execution should be retried.
func (e *RoutingExecution) ShouldRetry() bool {
	return e.Status == ExecutionStatusFailed && e.AttemptNumber < e.MaxAttempts
}

// Retry increments the attempt counter and resets status for retry.
func (e *RoutingExecution) Retry(db *gorm.DB) error {
	e.AttemptNumber++
	e.Status = ExecutionStatusPending
	e.StartedAt = nil
	e.CompletedAt = nil
	e.UpdatedAt = time.Now()

	return db.Save(e).Error
}

// GetExecutionsByDocument retrieves all executions for a document.
func GetExecutionsByDocument(db *gorm.DB, documentID uint) ([]RoutingExecution, error) {
	var executions []RoutingExecution
	err := db.Where("document_id = ?", documentID).
		Order("created_at DESC").
		Find(&executions).Error

	return executions, err
}

// GetExecutionsByOutbox retrieves all executions for an outbox entry.
func GetExecutionsByOutbox(db *gorm.DB, outboxID uint) ([]RoutingExecution, error) {
	var executions []RoutingExecution
	err := db.Where("outbox_id = ?", outboxID).
		Order("created_at DESC").
		Find(&executions).Error

	return executions, err
}

// GetFailedExecutionsForRetry retrieves failed executions that should be retried.
func GetFailedExecutionsForRetry(db *gorm.DB, limit int) ([]RoutingExecution, error) {
	var executions []RoutingExecution
	err := db.Where("status = ? AND attempt_number < max_attempts", ExecutionStatusFailed).
		Order("updated_at ASC").
		Limit(limit).
		Find(&executions).Error

	return executions, err
}

// GetExecutionStats returns per-status counts of routing executions.
func GetExecutionStats(db *gorm.DB) (map[string]int64, error) {
	stats := make(map[string]int64)

	statuses := []string{
		ExecutionStatusPending,
		ExecutionStatusRunning,
		ExecutionStatusCompleted,
		ExecutionStatusFailed,
		ExecutionStatusPartial,
	}

	for _, status := range statuses {
		var count int64
		err := db.Model(&RoutingExecution{}).
			Where("status = ?", status).
			Count(&count).Error

		if err != nil {
			return nil, err
		}

		stats[status] = count
	}

	return stats, nil
}

// DeleteOldCompletedExecutions removes completed executions older than the
// specified duration.
func DeleteOldCompletedExecutions(db *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := db.
		Where("status IN (?, ?) AND completed_at < ?",
			ExecutionStatusCompleted, ExecutionStatusPartial, cutoff).
		Delete(&RoutingExecution{})

	return result.RowsAffected, result.Error
}
