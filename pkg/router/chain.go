package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/router/ruleset"
)

// Chain executes the ordered steps of a route on document updates.
// It handles filtering, parallel processing, per-update execution audit,
// and error collection. A failing update never aborts the batch.
type Chain struct {
	Name   string
	Route  *ruleset.Route
	Steps  []Step
	Filter UpdateFilter
	Logger hclog.Logger

	// DB is optional. When nil, execution tracking and document status
	// updates are skipped (stateless mode).
	DB *gorm.DB

	// MaxParallel caps the number of updates processed concurrently.
	MaxParallel int
}

// BuildChains resolves each route's step names against the registry and
// returns one chain per route, keyed by route name.
func BuildChains(routes ruleset.Routes, registry map[string]Step, db *gorm.DB, logger hclog.Logger, maxParallel int) (map[string]*Chain, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	chains := make(map[string]*Chain, len(routes))
	for i := range routes {
		route := &routes[i]

		steps := make([]Step, 0, len(route.Steps))
		for _, name := range route.Steps {
			step, ok := registry[name]
			if !ok {
				return nil, fmt.Errorf("route %s: no registered step %q", route.Name, name)
			}
			steps = append(steps, step)
		}

		chains[route.Name] = &Chain{
			Name:        route.Name,
			Route:       route,
			Steps:       steps,
			Logger:      logger.Named("chain").Named(route.Name),
			DB:          db,
			MaxParallel: maxParallel,
		}
	}

	return chains, nil
}

// Execute runs the chain on a set of updates. Updates are filtered first,
// then processed in parallel; each update runs the steps in order. Failures
// are recorded on the update and the batch continues.
func (c *Chain) Execute(ctx context.Context, updates []*Update) error {
	logger := c.logger()
	logger.Info("starting chain",
		"name", c.Name,
		"updates", len(updates),
	)

	// Apply filter
	filtered := updates
	if c.Filter != nil {
		filtered = make([]*Update, 0, len(updates))
		for _, u := range updates {
			if c.Filter(u) {
				filtered = append(filtered, u)
			}
		}
		if len(filtered) < len(updates) {
			logger.Info("filtered updates",
				"before", len(updates),
				"after", len(filtered),
			)
		}
	}

	if len(filtered) == 0 {
		logger.Debug("no updates to process after filtering")
		return nil
	}

	maxParallel := c.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 5 // Default
	}

	// Per-update failures are recorded on the update, never aborting the
	// batch. Only context cancellation stops processing early.
	err := ParallelProcess(ctx, filtered, func(ctx context.Context, u *Update) error {
		if perr := c.Process(ctx, u); perr != nil {
			u.AddError(perr)
		}
		return nil
	}, maxParallel)
	if err != nil {
		return err
	}

	// Count updates with errors
	errorCount := 0
	for _, u := range filtered {
		if u.HasErrors() {
			errorCount++
		}
	}

	logger.Info("chain completed",
		"name", c.Name,
		"updates", len(filtered),
		"errors", errorCount,
	)

	if errorCount > 0 {
		return fmt.Errorf("chain completed with %d updates having errors", errorCount)
	}

	return nil
}

// Process runs the chain's steps in order for a single update.
func (c *Chain) Process(ctx context.Context, u *Update) error {
	logger := c.logger()
	logger.Debug("processing update",
		"route", c.Name,
		"document_uuid", u.DocumentUUID,
		"collection", u.Collection,
		"steps", c.stepNames(),
	)

	// Create execution record (only for persisted documents)
	var execution *models.RoutingExecution
	if c.DB != nil && u.DocumentID != 0 {
		execution = models.NewRoutingExecution(u.DocumentID, u.OutboxID, c.Name, c.stepNames())
		if err := c.DB.Create(execution).Error; err != nil {
			return fmt.Errorf("failed to create routing execution: %w", err)
		}
		if err := execution.Start(c.DB); err != nil {
			return fmt.Errorf("failed to mark execution as running: %w", err)
		}
	}

	// Execute each step in order
	allSucceeded := true
	var firstError error

	for _, step := range c.Steps {
		stepConfig := c.stepConfig(step.Name())

		stepStart := time.Now()
		err := step.Execute(ctx, u, stepConfig)
		stepDuration := time.Since(stepStart)

		if err != nil {
			logger.Error("chain step failed",
				"step", step.Name(),
				"route", c.Name,
				"document_uuid", u.DocumentUUID,
				"error", err,
			)

			if execution != nil {
				execution.RecordStepResult(c.DB, step.Name(), models.StepStatusFailed, map[string]interface{}{
					"error":       err.Error(),
					"duration_ms": stepDuration.Milliseconds(),
				})
			}

			allSucceeded = false
			if firstError == nil {
				firstError = err
			}

			// Permanent failures stop the chain for this update. Retryable
			// failures continue; redelivery retries the whole chain.
			if !step.IsRetryable(err) {
				if execution != nil {
					execution.MarkAsFailed(c.DB, step.Name(), err)
				}
				if u.Rejected() {
					c.rejectDocument(u)
				}
				return fmt.Errorf("chain failed at step %s: %w", step.Name(), err)
			}

			continue
		}

		logger.Debug("chain step succeeded",
			"step", step.Name(),
			"route", c.Name,
			"document_uuid", u.DocumentUUID,
			"duration_ms", stepDuration.Milliseconds(),
		)

		if execution != nil {
			execution.RecordStepResult(c.DB, step.Name(), models.StepStatusSuccess, map[string]interface{}{
				"duration_ms": stepDuration.Milliseconds(),
			})
		}
	}

	if allSucceeded {
		if execution != nil {
			if err := execution.MarkAsCompleted(c.DB); err != nil {
				return fmt.Errorf("failed to mark execution as completed: %w", err)
			}
		}

		logger.Info("update routed",
			"route", c.Name,
			"document_uuid", u.DocumentUUID,
			"shard_key", u.KeyResult.Key.String(),
			"steps", len(c.Steps),
		)

		return nil
	}

	// Some steps failed but we continued (partial success)
	if execution != nil {
		if err := execution.MarkAsPartial(c.DB); err != nil {
			return fmt.Errorf("failed to mark execution as partial: %w", err)
		}
	}

	logger.Warn("chain completed with failures",
		"route", c.Name,
		"document_uuid", u.DocumentUUID,
		"error", firstError,
	)

	return firstError
}

// rejectDocument records the rejection on the stored document row.
func (c *Chain) rejectDocument(u *Update) {
	if c.DB == nil || u.DocumentUUID == uuid.Nil {
		return
	}

	doc, err := models.GetDocumentByUUID(c.DB, u.DocumentUUID)
	if err != nil {
		c.logger().Warn("could not load document to record rejection",
			"document_uuid", u.DocumentUUID,
			"error", err,
		)
		return
	}

	if err := doc.MarkAsRejected(c.DB, u.RejectReason); err != nil {
		c.logger().Warn("could not mark document as rejected",
			"document_uuid", u.DocumentUUID,
			"error", err,
		)
	}
}

func (c *Chain) stepNames() []string {
	names := make([]string, len(c.Steps))
	for i, step := range c.Steps {
		names[i] = step.Name()
	}
	return names
}

func (c *Chain) stepConfig(name string) map[string]interface{} {
	if c.Route == nil {
		return nil
	}
	return c.Route.StepConfig(name)
}

func (c *Chain) logger() hclog.Logger {
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	return c.Logger
}

// ParallelProcess processes items in parallel using a worker pool.
// This is a generic helper that can be used by any step.
func ParallelProcess[T any](ctx context.Context, items []T, fn func(context.Context, T) error, maxWorkers int) error {
	if len(items) == 0 {
		return nil
	}

	// Create worker pool
	workers := maxWorkers
	if len(items) < workers {
		workers = len(items)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	ch := make(chan T, len(items))

	// Start workers
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-ch:
					if !ok {
						return
					}
					if err := fn(ctx, item); err != nil {
						mu.Lock()
						errs = append(errs, err)
						mu.Unlock()
					}
				}
			}
		}()
	}

	// Send items to workers
	for _, item := range items {
		select {
		case <-ctx.Done():
			close(ch)
			wg.Wait()
			return ctx.Err()
		case ch <- item:
		}
	}
	close(ch)

	// Wait for completion
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("parallel processing had %d errors: %v", len(errs), errs[0])
	}

	return nil
}
