package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/niranworks/compass/internal/api"
	"github.com/niranworks/compass/internal/cmd/base"
	"github.com/niranworks/compass/internal/server"
	"github.com/niranworks/compass/pkg/database"
	"github.com/niranworks/compass/pkg/kafka"
	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/router"
	"github.com/niranworks/compass/pkg/router/config"
	"github.com/niranworks/compass/pkg/router/relay"
	"github.com/niranworks/compass/pkg/router/steps"
)

type Command struct {
	*base.Command

	flagConfig          string
	flagNoRouting       bool
	flagRoutingInterval time.Duration
}

func (c *Command) Synopsis() string {
	return "Run the Compass server"
}

func (c *Command) Help() string {
	return `Usage: compass server -config=config.hcl

This command runs the Compass API server. Documents accepted over the API
are routed in-process on a fixed interval unless -no-routing is set, in
which case routing is left to separately deployed agents consuming from
the broker. When the configuration has a kafka block, the outbox relay is
started alongside the server to publish accepted documents.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("server", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[COMPASS_CONFIG] Path to the configuration file",
	)
	f.BoolVar(
		&c.flagNoRouting, "no-routing", false,
		"Disable in-process routing (use when routing agents are deployed)",
	)
	f.DurationVar(
		&c.flagRoutingInterval, "routing-interval", 5*time.Second,
		"Interval between in-process routing cycles",
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

	if cfg.Database == nil {
		c.UI.Error("a database block is required to run the server")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.ConnectWithRetry(ctx, cfg.Database.ToDatabase(), c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting to database: %v", err))
		return 1
	}

	if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
		c.UI.Error(fmt.Sprintf("error migrating database: %v", err))
		return 1
	}

	provider, err := server.NewSearchProvider(cfg, c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing search provider: %v", err))
		return 1
	}
	if provider != nil {
		defer provider.Close()
	}

	srv := server.Server{
		Config:         cfg,
		DB:             db,
		SearchProvider: provider,
		Routes:         cfg.RouteTable(),
		Catalogs:       cfg.Catalogs(),
		Builders:       cfg.Builders(),
		Logger:         c.Log,
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.New(srv),
	}

	errCh := make(chan error, 3)

	go func() {
		c.UI.Info(fmt.Sprintf("Listening on %s...", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server stopped: %w", err)
		}
	}()

	// Without a kafka block the outbox stays inert and in-process routing
	// covers everything, so the relay is only started when brokers are
	// configured.
	var outboxRelay *relay.Relay
	if cfg.Kafka != nil {
		outboxRelay, err = relay.New(relay.Config{
			DB:      db,
			Brokers: kafka.GetBrokers(cfg),
			Topic:   kafka.GetDocumentTopic(cfg),
			Logger:  c.Log.Named("relay"),
		})
		if err != nil {
			c.UI.Error(fmt.Sprintf("error creating outbox relay: %v", err))
			return 1
		}
		go func() {
			if err := outboxRelay.Start(ctx); err != nil &&
				!errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("outbox relay stopped: %w", err)
			}
		}()
	}

	if !c.flagNoRouting {
		orchestrator, err := router.NewOrchestrator(
			router.WithDatabase(db),
			router.WithLogger(c.Log.Named("router")),
			router.WithRoutes(cfg.RouteTable()),
			router.WithSteps(steps.NewDefaultSteps(db, cfg.Builders(), provider, c.Log)...),
		)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error creating routing orchestrator: %v", err))
			return 1
		}
		go func() {
			if err := orchestrator.Run(ctx, c.flagRoutingInterval); err != nil &&
				!errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("routing orchestrator stopped: %w", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exit := 0
	select {
	case sig := <-sigCh:
		c.UI.Info(fmt.Sprintf("Received %v, shutting down...", sig))
	case err := <-errCh:
		c.UI.Error(fmt.Sprintf("server error: %v", err))
		exit = 1
	}

	cancel()
	if outboxRelay != nil {
		outboxRelay.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		c.UI.Error(fmt.Sprintf("error shutting down http server: %v", err))
		exit = 1
	}

	return exit
}
