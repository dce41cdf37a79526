package ingest

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/niranworks/compass/internal/cmd/base"
	"github.com/niranworks/compass/pkg/database"
	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/router/config"
	"github.com/niranworks/compass/pkg/router/publisher"
	"github.com/niranworks/compass/pkg/source"
	"github.com/niranworks/compass/pkg/source/file"
	"github.com/niranworks/compass/pkg/source/s3"
)

type Command struct {
	*base.Command

	flagConfig     string
	flagDir        string
	flagCollection string
	flagS3Bucket   string
	flagS3Region   string
	flagS3Prefix   string
	flagS3Endpoint string
}

func (c *Command) Synopsis() string {
	return "Bulk ingest documents from a directory or S3 bucket"
}

func (c *Command) Help() string {
	return `Usage: compass ingest -config=config.hcl -dir=./documents
       compass ingest -config=config.hcl -s3-bucket=archive -s3-region=us-east-1

This command walks a directory tree or an S3 bucket and ingests every
JSON or YAML document it finds through the publisher, queueing routing
events exactly as the HTTP API does. The collection is inferred from the
subdirectory or key prefix unless -collection forces one. Documents for
collections the configuration does not define are skipped with a
warning. S3 credentials come from the default AWS credential chain.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("ingest", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[COMPASS_CONFIG] Path to the configuration file",
	)
	f.StringVar(
		&c.flagDir, "dir", "",
		"Directory tree to ingest documents from",
	)
	f.StringVar(
		&c.flagCollection, "collection", "",
		"Force every document into this collection",
	)
	f.StringVar(
		&c.flagS3Bucket, "s3-bucket", "",
		"S3 bucket to ingest documents from instead of a directory",
	)
	f.StringVar(
		&c.flagS3Region, "s3-region", "",
		"AWS region of the S3 bucket",
	)
	f.StringVar(
		&c.flagS3Prefix, "s3-prefix", "",
		"Only ingest objects under this key prefix",
	)
	f.StringVar(
		&c.flagS3Endpoint, "s3-endpoint", "",
		"Override the S3 endpoint, for MinIO and other compatible services",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	configPath := c.flagConfig
	if val, ok := os.LookupEnv("COMPASS_CONFIG"); ok && configPath == "" {
		configPath = val
	}
	if configPath == "" {
		c.UI.Error("config file is required (--config or COMPASS_CONFIG)")
		return 1
	}
	if c.flagDir == "" && c.flagS3Bucket == "" {
		c.UI.Error("either -dir or -s3-bucket is required")
		return 1
	}
	if c.flagDir != "" && c.flagS3Bucket != "" {
		c.UI.Error("-dir and -s3-bucket are mutually exclusive")
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
		c.UI.Error("a database block is required to ingest documents")
		return 1
	}

	ctx := context.Background()

	db, err := database.ConnectWithRetry(ctx, cfg.Database.ToDatabase(), c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting to database: %v", err))
		return 1
	}

	if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
		c.UI.Error(fmt.Sprintf("error migrating database: %v", err))
		return 1
	}

	var src source.Source
	if c.flagS3Bucket != "" {
		src, err = s3.New(ctx, &s3.Config{
			Endpoint:   c.flagS3Endpoint,
			Region:     c.flagS3Region,
			Bucket:     c.flagS3Bucket,
			Prefix:     c.flagS3Prefix,
			Collection: c.flagCollection,
		}, c.Log)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error creating S3 source: %v", err))
			return 1
		}
	} else {
		opts := []file.Option{file.WithLogger(c.Log)}
		if c.flagCollection != "" {
			opts = append(opts, file.WithCollection(c.flagCollection))
		}
		src = file.New(c.flagDir, opts...)
	}

	pub := publisher.New(db, c.Log)

	var ingested, updated, duplicates, skipped int64
	err = src.Read(ctx, func(doc source.Document) error {
		if cfg.Catalog(doc.Collection) == nil {
			c.UI.Warn(fmt.Sprintf("Skipping %s: unknown collection %q",
				doc.Origin, doc.Collection))
			skipped++
			return nil
		}

		// Identity derives from the origin so re-running an import
		// updates documents in place instead of duplicating them.
		id := uuid.NewSHA1(uuid.NameSpaceURL,
			[]byte("compass://"+doc.Collection+"/"+doc.Origin))

		result, err := pub.Ingest(ctx, doc.Collection, id, doc.Fields, src.Name())
		if err != nil {
			return fmt.Errorf("error ingesting %s: %w", doc.Origin, err)
		}

		switch result.Event {
		case models.DocumentEventReceived:
			ingested++
		case models.DocumentEventUpdated:
			updated++
		default:
			duplicates++
		}
		return nil
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error reading source: %v", err))
		return 1
	}

	c.UI.Info("")
	c.UI.Info("=== Summary ===")
	c.UI.Info(fmt.Sprintf("Ingested:   %d", ingested))
	c.UI.Info(fmt.Sprintf("Updated:    %d", updated))
	c.UI.Info(fmt.Sprintf("Duplicates: %d", duplicates))
	if skipped > 0 {
		c.UI.Warn(fmt.Sprintf("Skipped:    %d", skipped))
	}

	return 0
}
