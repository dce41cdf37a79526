package agent

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/niranworks/compass/internal/cmd/base"
	"github.com/niranworks/compass/internal/server"
	"github.com/niranworks/compass/pkg/database"
	"github.com/niranworks/compass/pkg/kafka"
	"github.com/niranworks/compass/pkg/router/config"
	"github.com/niranworks/compass/pkg/router/consumer"
	"github.com/niranworks/compass/pkg/router/steps"
)

type Command struct {
	*base.Command

	flagConfig      string
	flagFromStart   bool
	flagMaxParallel int
}

func (c *Command) Synopsis() string {
	return "Run a routing agent consuming document events"
}

func (c *Command) Help() string {
	return `Usage: compass agent -config=config.hcl

This command runs a routing agent that consumes document events from the
broker and runs them through the configured routing chains. Without a
database block the agent runs stateless, routing events straight into the
search backend. Broker settings come from the kafka block and can be
overridden with COMPASS_KAFKA_BROKERS, COMPASS_KAFKA_TOPIC and
COMPASS_KAFKA_GROUP.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("agent", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[COMPASS_CONFIG] Path to the configuration file",
	)
	f.BoolVar(
		&c.flagFromStart, "from-start", false,
		"Consume the topic from the earliest offset instead of the latest",
	)
	f.IntVar(
		&c.flagMaxParallel, "max-parallel", 0,
		"Maximum concurrent chain executions (0 uses the default)",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	// Get configuration from flags or environment
	configPath := c.flagConfig
	if val, ok := os.LookupEnv("COMPASS_CONFIG"); ok && configPath == "" {
		configPath = val
	}
	if configPath == "" {
		c.UI.Error("config file is required (--config or COMPASS_CONFIG)")
		return 1
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	if level := hclog.LevelFromString(cfg.LogLevel); level != hclog.NoLevel {
		c.Log.SetLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The database is optional for agents. Schema setup belongs to the
	// server or compass-migrate, so no migration runs here.
	var db *gorm.DB
	if cfg.Database != nil {
		db, err = database.ConnectWithRetry(ctx, cfg.Database.ToDatabase(), c.Log)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error connecting to database: %v", err))
			return 1
		}
	} else {
		c.UI.Info("No database configured, running stateless")
	}

	provider, err := server.NewSearchProvider(cfg, c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing search provider: %v", err))
		return 1
	}
	if provider != nil {
		defer provider.Close()
	}

	agent, err := consumer.New(consumer.Config{
		DB:               db,
		Brokers:          kafka.GetBrokers(cfg),
		Topic:            kafka.GetDocumentTopic(cfg),
		ConsumerGroup:    kafka.GetConsumerGroup(cfg),
		ConsumeFromStart: c.flagFromStart,
		Routes:           cfg.RouteTable(),
		Steps:            steps.NewDefaultSteps(db, cfg.Builders(), provider, c.Log),
		Provider:         provider,
		MaxParallel:      c.flagMaxParallel,
		Logger:           c.Log.Named("agent"),
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating routing agent: %v", err))
		return 1
	}

	errCh := make(chan error, 1)
	go func() {
		if err := agent.Start(ctx); err != nil &&
			!errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exit := 0
	select {
	case sig := <-sigCh:
		c.UI.Info(fmt.Sprintf("Received %v, shutting down...", sig))
	case err := <-errCh:
		c.UI.Error(fmt.Sprintf("routing agent error: %v", err))
		exit = 1
	}

	cancel()
	agent.Stop()

	return exit
}
