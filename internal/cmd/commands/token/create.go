package token

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/niranworks/compass/internal/cmd/base"
	"github.com/niranworks/compass/pkg/database"
	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/router/config"
)

type CreateCommand struct {
	*base.Command

	flagConfig      string
	flagType        string
	flagDescription string
	flagExpiresIn   time.Duration
}

func (c *CreateCommand) Synopsis() string {
	return "Create a new service token"
}

func (c *CreateCommand) Help() string {
	return `Usage: compass token create -config=config.hcl -type=api

This command creates a service token and prints it once. Only the
SHA-256 hash is stored, so the plaintext cannot be recovered later.` +
		c.Flags().Help()
}

func (c *CreateCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("token create", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[COMPASS_CONFIG] Path to the configuration file",
	)
	f.StringVar(
		&c.flagType, "type", models.TokenTypeAPI,
		"Token type: api, agent or operator",
	)
	f.StringVar(
		&c.flagDescription, "description", "",
		"Free-form description of what the token is for",
	)
	f.DurationVar(
		&c.flagExpiresIn, "expires-in", 0,
		"Lifetime of the token, e.g. 720h (0 means no expiration)",
	)

	return f
}

func (c *CreateCommand) Run(args []string) int {
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

	switch c.flagType {
	case models.TokenTypeAPI, models.TokenTypeAgent, models.TokenTypeOperator:
	default:
		c.UI.Error(fmt.Sprintf(
			"invalid token type %q (want api, agent or operator)", c.flagType))
		return 1
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	if cfg.Database == nil {
		c.UI.Error("a database block is required to manage tokens")
		return 1
	}

	db, err := database.ConnectWithRetry(
		context.Background(), cfg.Database.ToDatabase(), c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting to database: %v", err))
		return 1
	}

	if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
		c.UI.Error(fmt.Sprintf("error migrating database: %v", err))
		return 1
	}

	plaintext, err := models.GenerateToken(c.flagType)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error generating token: %v", err))
		return 1
	}

	token := models.ServiceToken{
		TokenType:   c.flagType,
		Description: c.flagDescription,
	}
	if c.flagExpiresIn > 0 {
		expiresAt := time.Now().Add(c.flagExpiresIn)
		token.ExpiresAt = &expiresAt
	}

	if err := token.Create(db, plaintext); err != nil {
		c.UI.Error(fmt.Sprintf("error creating token: %v", err))
		return 1
	}

	c.UI.Info(fmt.Sprintf("Created %s token %s", token.TokenType, token.ID))
	if token.ExpiresAt != nil {
		c.UI.Info(fmt.Sprintf("Expires at: %s", token.ExpiresAt.Format(time.RFC3339)))
	}
	c.UI.Info("")
	c.UI.Info("The token is only shown once, store it now:")
	c.UI.Output(plaintext)

	return 0
}
