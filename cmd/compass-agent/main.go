package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/niranworks/compass/internal/server"
	"github.com/niranworks/compass/pkg/kafka"
	"github.com/niranworks/compass/pkg/router/config"
	"github.com/niranworks/compass/pkg/router/consumer"
	"github.com/niranworks/compass/pkg/router/steps"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config.hcl", "Path to configuration file")
	fromStart := flag.Bool("from-start", false, "Consume the topic from the earliest offset")
	flag.Parse()

	// Create logger
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "compass-agent",
		Level: hclog.Info,
	})

	logger.Info("starting compass-agent", "config", *configPath)

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if level := hclog.LevelFromString(cfg.LogLevel); level != hclog.NoLevel {
		logger.SetLevel(level)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	// Run the routing agent
	if err := runConsumer(ctx, cfg, *fromStart, logger); err != nil &&
		!errors.Is(err, context.Canceled) {
		logger.Error("routing agent failed", "error", err)
		cancel() // Ensure context is canceled before exit
		os.Exit(1)
	}

	logger.Info("compass-agent stopped gracefully")
}

// runConsumer runs the stateless routing agent. All document data comes
// from the event payload, so no database connection is made: the persist
// step skips itself and routed documents flow straight to the search
// backend.
func runConsumer(ctx context.Context, cfg *config.Config, fromStart bool, logger hclog.Logger) error {
	logger.Info("starting routing agent consumer")

	// Initialize search provider
	searchProvider, err := server.NewSearchProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize search provider: %w", err)
	}
	if searchProvider != nil {
		defer searchProvider.Close()
	}

	// Create the routing agent
	agent, err := consumer.New(consumer.Config{
		DB:               nil, // No database - the agent is stateless
		Brokers:          kafka.GetBrokers(cfg),
		Topic:            kafka.GetDocumentTopic(cfg),
		ConsumerGroup:    kafka.GetConsumerGroup(cfg),
		ConsumeFromStart: fromStart,
		Routes:           cfg.RouteTable(),
		Steps:            steps.NewDefaultSteps(nil, cfg.Builders(), searchProvider, logger),
		Provider:         searchProvider,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	// Start consuming
	return agent.Start(ctx)
}
