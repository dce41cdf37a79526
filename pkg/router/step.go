package router

import (
	"context"
)

// Step represents a single unit of routing work.
type Step interface {
	// Name returns the step name (e.g., "composite_key", "search_index").
	Name() string

	// Execute runs the step for the given update.
	Execute(ctx context.Context, update *Update, config map[string]interface{}) error

	// IsRetryable determines if an error should trigger a retry.
	IsRetryable(err error) bool
}

// StepSet builds a name-indexed registry from step implementations.
// Later steps with the same name replace earlier ones.
func StepSet(steps ...Step) map[string]Step {
	registry := make(map[string]Step, len(steps))
	for _, step := range steps {
		registry[step.Name()] = step
	}
	return registry
}
