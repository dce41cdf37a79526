package router

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/router/ruleset"
)

// Orchestrator drives routing cycles against the database. It drains
// received documents in batches, matches each against the route table,
// and executes the matched chain. The consumer agent covers the streaming
// path; the orchestrator covers catch-up and operator-driven rebuilds.
type Orchestrator struct {
	db          *gorm.DB
	logger      hclog.Logger
	routes      ruleset.Routes
	steps       map[string]Step
	matcher     *ruleset.Matcher
	chains      map[string]*Chain
	maxParallel int
	batchSize   int
	dryRun      bool

	// rebuildCollection switches the cycle from draining received
	// documents to re-keying every document in one collection.
	// rebuildCursor pages through the collection by row ID.
	rebuildCollection string
	rebuildCursor     uint
}

// CycleStats summarizes one routing cycle.
type CycleStats struct {
	Fetched   int
	Routed    int
	Failed    int
	Unmatched int
}

// Option is a functional option for creating an Orchestrator.
type Option func(*Orchestrator)

// WithDatabase sets the database connection.
func WithDatabase(db *gorm.DB) Option {
	return func(o *Orchestrator) {
		o.db = db
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithRoutes sets the route table.
func WithRoutes(routes ruleset.Routes) Option {
	return func(o *Orchestrator) {
		o.routes = routes
	}
}

// WithSteps registers the step implementations routes may reference.
func WithSteps(steps ...Step) Option {
	return func(o *Orchestrator) {
		o.steps = StepSet(steps...)
	}
}

// WithMaxParallelUpdates sets the maximum updates processed concurrently.
func WithMaxParallelUpdates(max int) Option {
	return func(o *Orchestrator) {
		o.maxParallel = max
	}
}

// WithBatchSize sets how many documents one cycle drains.
func WithBatchSize(size int) Option {
	return func(o *Orchestrator) {
		o.batchSize = size
	}
}

// WithDryRun enables or disables dry-run mode. In dry-run the write steps
// are stripped from every chain: keys are computed and logged, nothing is
// stored or indexed.
func WithDryRun(dryRun bool) Option {
	return func(o *Orchestrator) {
		o.dryRun = dryRun
	}
}

// WithRebuildCollection re-keys every document in the named collection
// instead of draining received documents. Used after a key configuration
// change.
func WithRebuildCollection(collection string) Option {
	return func(o *Orchestrator) {
		o.rebuildCollection = collection
	}
}

// NewOrchestrator creates a new routing orchestrator.
func NewOrchestrator(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		maxParallel: 5,   // Default
		batchSize:   100, // Default
		logger: hclog.New(&hclog.LoggerOptions{
			Name: "router",
		}),
	}

	// Apply options
	for _, opt := range opts {
		opt(o)
	}

	// Validate required fields
	if o.db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if len(o.routes) == 0 {
		return nil, fmt.Errorf("at least one route is required")
	}
	if len(o.steps) == 0 {
		return nil, fmt.Errorf("at least one step is required")
	}
	if err := o.routes.ValidateAll(); err != nil {
		return nil, err
	}

	routes := o.routes
	chainDB := o.db
	if o.dryRun {
		routes = stripWriteSteps(routes)
		chainDB = nil
	}

	chains, err := BuildChains(routes, o.steps, chainDB, o.logger, o.maxParallel)
	if err != nil {
		return nil, err
	}

	o.matcher = ruleset.NewMatcher(o.routes)
	o.chains = chains

	return o, nil
}

// stripWriteSteps removes persist and search_index from every route so a
// dry-run computes keys without touching storage.
func stripWriteSteps(routes ruleset.Routes) ruleset.Routes {
	stripped := make(ruleset.Routes, len(routes))
	for i, route := range routes {
		kept := make([]string, 0, len(route.Steps))
		for _, step := range route.Steps {
			if step == "persist" || step == "search_index" {
				continue
			}
			kept = append(kept, step)
		}
		route.Steps = kept
		stripped[i] = route
	}
	return stripped
}

// Run executes routing cycles continuously with the given interval.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run once immediately
	if _, err := o.runCycle(ctx); err != nil {
		o.logger.Error("initial routing cycle failed", "error", err)
		// Continue anyway
	}

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("router stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := o.runCycle(ctx); err != nil {
				o.logger.Error("routing cycle failed", "error", err)
				// Continue to next cycle
			}
		}
	}
}

// RunOnce executes a single routing cycle and returns its stats.
func (o *Orchestrator) RunOnce(ctx context.Context) (CycleStats, error) {
	return o.runCycle(ctx)
}

// Drain runs cycles until no documents remain or no progress is made.
// Returns accumulated stats across all cycles.
func (o *Orchestrator) Drain(ctx context.Context) (CycleStats, error) {
	var total CycleStats

	for {
		stats, err := o.runCycle(ctx)
		total.Fetched += stats.Fetched
		total.Routed += stats.Routed
		total.Failed += stats.Failed
		total.Unmatched += stats.Unmatched
		if err != nil {
			return total, err
		}
		if stats.Fetched == 0 {
			return total, nil
		}

		// Dry-run over the received backlog changes nothing, so a second
		// cycle would fetch the same batch forever.
		if o.dryRun && o.rebuildCollection == "" {
			return total, nil
		}

		// In drain mode failed documents stay received; stop rather than
		// refetch a batch that cannot make progress.
		if o.rebuildCollection == "" && stats.Failed >= stats.Fetched {
			return total, fmt.Errorf("draining stalled: all %d documents in the batch failed", stats.Fetched)
		}
	}
}

// runCycle drains one batch of documents through the route table.
func (o *Orchestrator) runCycle(ctx context.Context) (CycleStats, error) {
	startTime := time.Now()
	var stats CycleStats

	docs, err := o.fetchBatch()
	if err != nil {
		return stats, fmt.Errorf("failed to fetch documents: %w", err)
	}
	if len(docs) == 0 {
		o.logger.Debug("no documents to route")
		return stats, nil
	}
	stats.Fetched = len(docs)

	o.logger.Info("starting routing cycle",
		"documents", len(docs),
		"dry_run", o.dryRun,
	)

	// Group updates by matched route. First matching route wins.
	byRoute := make(map[string][]*Update)
	for i := range docs {
		u := FromDocument(&docs[i])

		route, ok := o.matcher.Match(u.Collection, u.Fields)
		if !ok {
			stats.Unmatched++
			o.logger.Warn("no route matches document",
				"document_uuid", u.DocumentUUID,
				"collection", u.Collection,
			)
			if !o.dryRun {
				// Park it as rejected so the next cycle does not pick
				// it up again.
				docs[i].MarkAsRejected(o.db, "no matching route")
			}
			continue
		}

		byRoute[route.Name] = append(byRoute[route.Name], u)
	}

	// Execute each chain on its group
	for name, updates := range byRoute {
		chain, ok := o.chains[name]
		if !ok {
			// Cannot happen once NewOrchestrator built chains for every
			// route, but guard anyway.
			o.logger.Error("no chain for route", "route", name)
			continue
		}

		if err := chain.Execute(ctx, updates); err != nil {
			o.logger.Warn("chain reported errors", "route", name, "error", err)
		}

		for _, u := range updates {
			if u.HasErrors() {
				stats.Failed++
				continue
			}
			stats.Routed++
			if o.dryRun && !u.KeyResult.Skipped {
				o.logger.Info("computed key",
					"document_uuid", u.DocumentUUID,
					"collection", u.Collection,
					"shard_key", u.KeyResult.Key.String(),
					"overwrite", u.KeyResult.Overwrite,
				)
			}
		}
	}

	o.logger.Info("routing cycle completed",
		"documents", len(docs),
		"routed", stats.Routed,
		"failed", stats.Failed,
		"unmatched", stats.Unmatched,
		"duration", time.Since(startTime),
	)

	return stats, nil
}

// fetchBatch selects the documents for this cycle.
func (o *Orchestrator) fetchBatch() ([]models.Document, error) {
	if o.rebuildCollection != "" {
		docs, err := models.FindDocumentsByCollectionAfter(o.db, o.rebuildCollection, o.rebuildCursor, o.batchSize)
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			o.rebuildCursor = docs[len(docs)-1].ID
		}
		return docs, nil
	}
	return models.FindDocumentsByStatus(o.db, models.DocumentStatusReceived, o.batchSize)
}
