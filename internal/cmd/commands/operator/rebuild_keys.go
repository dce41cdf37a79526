package operator

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	gormlogger "gorm.io/gorm/logger"

	"github.com/niranworks/compass/internal/cmd/base"
	"github.com/niranworks/compass/internal/server"
	"github.com/niranworks/compass/pkg/database"
	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/router"
	"github.com/niranworks/compass/pkg/router/config"
	"github.com/niranworks/compass/pkg/router/steps"
	"github.com/niranworks/compass/pkg/search"
)

type RebuildKeysCommand struct {
	*base.Command

	flagConfig     string
	flagCollection string
	flagDryRun     bool
	flagBatchSize  int
	flagVerbose    bool
}

func (c *RebuildKeysCommand) Synopsis() string {
	return "Recompute shard keys for stored documents"
}

func (c *RebuildKeysCommand) Help() string {
	return `Usage: compass operator rebuild-keys -config=config.hcl -collection=<name>

  This command re-routes every stored document of a collection through
  the configured routing chain, recomputing shard keys and reindexing.
  Run it after changing a collection's key block so stored documents
  pick up the new key layout. Documents are processed in batches with
  progress logging.` + c.Flags().Help()
}

func (c *RebuildKeysCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(
		flag.NewFlagSet("rebuild-keys", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[COMPASS_CONFIG] Path to the configuration file",
	)
	f.StringVar(
		&c.flagCollection, "collection", "",
		"(Required) Collection whose documents should be re-keyed",
	)
	f.BoolVar(
		&c.flagDryRun, "dry-run", false,
		"Only print what would be done without making changes.",
	)
	f.IntVar(
		&c.flagBatchSize, "batch-size", 100,
		"Number of documents to process per batch.",
	)
	f.BoolVar(
		&c.flagVerbose, "verbose", false,
		"Print extra information including database statements.",
	)

	return f
}

func (c *RebuildKeysCommand) Run(args []string) int {
	logger, ui := c.Log, c.UI

	// Parse flags.
	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	configPath := c.flagConfig
	if val, ok := os.LookupEnv("COMPASS_CONFIG"); ok && configPath == "" {
		configPath = val
	}

	// Validate flags.
	if configPath == "" {
		ui.Error("config file is required (--config or COMPASS_CONFIG)")
		return 1
	}
	if c.flagCollection == "" {
		ui.Error("collection flag is required")
		return 1
	}
	if c.flagBatchSize < 1 {
		ui.Error("batch-size must be at least 1")
		return 1
	}

	// Parse configuration.
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		ui.Error(fmt.Sprintf("error parsing config file: %v", err))
		return 1
	}

	if cfg.Catalog(c.flagCollection) == nil {
		ui.Error(fmt.Sprintf(
			"collection %q is not defined in the configuration", c.flagCollection))
		return 1
	}

	if cfg.Database == nil {
		ui.Error("a database block is required to rebuild keys")
		return 1
	}

	ctx := context.Background()

	// Initialize database.
	db, err := database.ConnectWithRetry(ctx, cfg.Database.ToDatabase(), logger)
	if err != nil {
		ui.Error(fmt.Sprintf("error initializing database: %v", err))
		return 1
	}

	// Create GORM-compatible logger.
	stdLogger := logger.StandardLogger(&hclog.StandardLoggerOptions{
		InferLevels: true,
	})
	logLevel := gormlogger.Silent
	if c.flagVerbose {
		logLevel = gormlogger.Info
	}
	db.Logger = gormlogger.New(
		stdLogger,
		gormlogger.Config{
			SlowThreshold:             0,
			IgnoreRecordNotFoundError: true,
			LogLevel:                  logLevel,
		},
	)

	// Count documents to rebuild.
	var totalCount int64
	if err := db.Model(&models.Document{}).
		Where("collection = ?", c.flagCollection).
		Count(&totalCount).Error; err != nil {
		ui.Error(fmt.Sprintf("error counting documents: %v", err))
		return 1
	}

	if totalCount == 0 {
		ui.Info(fmt.Sprintf("Collection %q has no stored documents", c.flagCollection))
		return 0
	}

	// Display summary.
	ui.Info(fmt.Sprintf("Found %d documents in collection %q",
		totalCount, c.flagCollection))
	if c.flagDryRun {
		ui.Warn("DRY RUN mode enabled - no changes will be made")
	}
	ui.Info(fmt.Sprintf("Processing in batches of %d documents", c.flagBatchSize))

	// The search backend is only touched outside dry-run mode, where the
	// indexing step runs for real.
	var provider search.Provider
	if !c.flagDryRun {
		provider, err = server.NewSearchProvider(cfg, logger)
		if err != nil {
			ui.Error(fmt.Sprintf("error initializing search provider: %v", err))
			return 1
		}
		if provider != nil {
			defer provider.Close()
		}
	}

	orchestrator, err := router.NewOrchestrator(
		router.WithDatabase(db),
		router.WithLogger(logger.Named("router")),
		router.WithRoutes(cfg.RouteTable()),
		router.WithSteps(steps.NewDefaultSteps(db, cfg.Builders(), provider, logger)...),
		router.WithBatchSize(c.flagBatchSize),
		router.WithDryRun(c.flagDryRun),
		router.WithRebuildCollection(c.flagCollection),
	)
	if err != nil {
		ui.Error(fmt.Sprintf("error creating routing orchestrator: %v", err))
		return 1
	}

	stats, err := orchestrator.Drain(ctx)
	if err != nil {
		ui.Error(fmt.Sprintf("error rebuilding keys: %v", err))
		return 1
	}

	// Final summary.
	ui.Info("")
	ui.Info("=== Summary ===")
	ui.Info(fmt.Sprintf("Total documents processed: %d", stats.Fetched))
	if c.flagDryRun {
		ui.Info(fmt.Sprintf("Would re-route: %d documents", stats.Routed))
	} else {
		ui.Info(fmt.Sprintf("Re-routed: %d documents", stats.Routed))
	}
	if stats.Unmatched > 0 {
		ui.Warn(fmt.Sprintf("No matching route: %d documents", stats.Unmatched))
	}
	if stats.Failed > 0 {
		ui.Error(fmt.Sprintf("Errors encountered: %d", stats.Failed))
		return 1
	}

	if c.flagDryRun {
		ui.Warn("DRY RUN completed - no changes were made")
	} else {
		ui.Info("Key rebuild completed successfully")
	}

	return 0
}
