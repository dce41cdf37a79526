// Package consumer is the streaming half of the routing system: it reads
// document events from the broker, matches them against the route table,
// and runs the matched chain. Agents scale horizontally through the
// consumer group; per-document order is preserved by the partition key.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/gorm"

	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/router"
	"github.com/niranworks/compass/pkg/router/ruleset"
	"github.com/niranworks/compass/pkg/search"
)

// Consumer consumes document routing events and executes chains.
type Consumer struct {
	kafkaClient *kgo.Client
	db          *gorm.DB
	matcher     *ruleset.Matcher
	chains      map[string]*router.Chain
	provider    search.Provider
	logger      hclog.Logger
	stopCh      chan struct{}
}

// Config holds configuration for the consumer.
type Config struct {
	// Database connection. Optional: without it the agent runs stateless,
	// skipping idempotency checks and execution tracking.
	DB *gorm.DB

	// Kafka/Redpanda configuration
	Brokers       []string
	Topic         string
	ConsumerGroup string

	// Consumer offset configuration (optional, defaults to AtEnd for new consumers)
	// Use AtStart for testing to ensure messages are consumed even if published before consumer joins
	ConsumeFromStart bool

	// Routing configuration
	Routes ruleset.Routes
	Steps  []router.Step

	// Search backend for document.deleted events. Optional.
	Provider search.Provider

	// MaxParallel caps concurrent updates per chain execution.
	MaxParallel int

	// Logger
	Logger hclog.Logger
}

// New creates a new routing agent consumer.
func New(cfg Config) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = "compass-routing-agents"
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if len(cfg.Steps) == 0 {
		return nil, fmt.Errorf("at least one step is required")
	}

	if err := cfg.Routes.ValidateAll(); err != nil {
		return nil, fmt.Errorf("invalid routes: %w", err)
	}

	chains, err := router.BuildChains(cfg.Routes, router.StepSet(cfg.Steps...), cfg.DB, cfg.Logger, cfg.MaxParallel)
	if err != nil {
		return nil, err
	}

	// Determine offset strategy
	offset := kgo.NewOffset().AtEnd() // Start from latest for new consumers by default
	if cfg.ConsumeFromStart {
		offset = kgo.NewOffset().AtStart() // Start from beginning (useful for testing)
	}

	kafkaClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),

		// Consumer configuration
		kgo.ConsumeResetOffset(offset),
		kgo.SessionTimeout(10*time.Second),
		kgo.RebalanceTimeout(30*time.Second),

		// Commit manually after successful processing
		kgo.DisableAutoCommit(),

		// Fetch configuration
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.FetchMinBytes(1),
		kgo.FetchMaxBytes(5<<20), // 5MB
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Consumer{
		kafkaClient: kafkaClient,
		db:          cfg.DB,
		matcher:     ruleset.NewMatcher(cfg.Routes),
		chains:      chains,
		provider:    cfg.Provider,
		logger:      cfg.Logger.Named("routing-agent"),
		stopCh:      make(chan struct{}),
	}, nil
}

// Start starts the consumer polling loop.
func (c *Consumer) Start(ctx context.Context) error {
	group, _ := c.kafkaClient.GroupMetadata()
	c.logger.Info("starting routing agent",
		"consumer_group", group,
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("routing agent stopped by context")
			return ctx.Err()

		case <-c.stopCh:
			c.logger.Info("routing agent stopped")
			return nil

		default:
			fetches := c.kafkaClient.PollFetches(ctx)

			if errs := fetches.Errors(); len(errs) > 0 {
				for _, err := range errs {
					c.logger.Error("kafka fetch error", "error", err.Err)
				}
				continue
			}

			fetches.EachPartition(func(p kgo.FetchTopicPartition) {
				for _, record := range p.Records {
					if err := c.processRecord(ctx, record); err != nil {
						c.logger.Error("failed to process record",
							"partition", record.Partition,
							"offset", record.Offset,
							"error", err,
						)
						// Continue processing other records
						// TODO: route permanently failed events to a dead letter topic
						continue
					}

					// Commit offset after successful processing
					if err := c.kafkaClient.CommitRecords(ctx, record); err != nil {
						c.logger.Warn("failed to commit Kafka offset",
							"partition", record.Partition,
							"offset", record.Offset,
							"error", err)
					}
				}
			})
		}
	}
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() {
	select {
	case <-c.stopCh:
		// Already stopped
		return
	default:
		close(c.stopCh)
		c.kafkaClient.Close()
	}
}

// processRecord processes a single Kafka record.
func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) error {
	c.logger.Debug("processing record",
		"partition", record.Partition,
		"offset", record.Offset,
		"key", string(record.Key),
	)

	var event router.DocumentEvent
	if err := json.Unmarshal(record.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.EventType == models.DocumentEventDeleted {
		return c.processDelete(ctx, &event)
	}

	// Check for idempotency (only if database is available)
	if c.db != nil {
		executions, err := models.GetExecutionsByOutbox(c.db, event.ID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return fmt.Errorf("failed to check for existing executions: %w", err)
		}

		if len(executions) > 0 {
			c.logger.Debug("event already processed, skipping",
				"document_uuid", event.DocumentUUID,
				"outbox_id", event.ID,
				"executions", len(executions),
			)
			return nil
		}
	}

	// Reconstruct the update from the payload (no database fetch needed)
	update, err := event.Update()
	if err != nil {
		return fmt.Errorf("failed to reconstruct update from payload: %w", err)
	}

	// With a database, anchor the update to the stored row so execution
	// tracking and document status updates work.
	if c.db != nil {
		doc, err := models.GetDocumentByUUID(c.db, update.DocumentUUID)
		if err == gorm.ErrRecordNotFound {
			c.logger.Debug("document no longer exists, skipping",
				"document_uuid", update.DocumentUUID,
			)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load document: %w", err)
		}
		update.DocumentID = doc.ID
	}

	route, ok := c.matcher.Match(update.Collection, update.Fields)
	if !ok {
		c.logger.Debug("no route matches event, skipping",
			"document_uuid", update.DocumentUUID,
			"collection", update.Collection,
		)
		return nil
	}

	chain, ok := c.chains[route.Name]
	if !ok {
		return fmt.Errorf("no chain for route %s", route.Name)
	}

	if err := chain.Process(ctx, update); err != nil {
		return fmt.Errorf("route %s: %w", route.Name, err)
	}

	c.logger.Info("successfully routed event",
		"document_uuid", update.DocumentUUID,
		"collection", update.Collection,
		"route", route.Name,
		"shard_key", update.KeyResult.Key.String(),
	)

	return nil
}

// processDelete clears a deleted document from the search backend. The
// event payload carries the shard key the document was indexed under;
// documents indexed unkeyed are stored under their UUID.
func (c *Consumer) processDelete(ctx context.Context, event *router.DocumentEvent) error {
	if c.provider == nil {
		c.logger.Debug("no search backend configured, ignoring delete",
			"document_uuid", event.DocumentUUID,
		)
		return nil
	}

	objectID := event.DocumentUUID
	if shardKey, ok := event.Payload["shardKey"].(string); ok && shardKey != "" {
		objectID = shardKey
	}

	if err := c.provider.Delete(ctx, objectID); err != nil {
		if search.IsNotFound(err) {
			c.logger.Debug("document already absent from index",
				"document_uuid", event.DocumentUUID,
				"object_id", objectID,
			)
			return nil
		}
		return fmt.Errorf("failed to delete from search index: %w", err)
	}

	c.logger.Info("removed document from search index",
		"document_uuid", event.DocumentUUID,
		"object_id", objectID,
	)

	return nil
}
