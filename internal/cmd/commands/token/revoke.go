package token

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/niranworks/compass/internal/cmd/base"
	"github.com/niranworks/compass/pkg/database"
	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/router/config"
)

type RevokeCommand struct {
	*base.Command

	flagConfig string
	flagID     string
	flagReason string
}

func (c *RevokeCommand) Synopsis() string {
	return "Revoke a service token"
}

func (c *RevokeCommand) Help() string {
	return `Usage: compass token revoke -config=config.hcl -id=<token-id>

This command revokes a service token by its ID. Revocation takes effect
on the next request authenticated with the token.` + c.Flags().Help()
}

func (c *RevokeCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("token revoke", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[COMPASS_CONFIG] Path to the configuration file",
	)
	f.StringVar(
		&c.flagID, "id", "",
		"(Required) ID of the token to revoke",
	)
	f.StringVar(
		&c.flagReason, "reason", "revoked by operator",
		"Reason recorded with the revocation",
	)

	return f
}

func (c *RevokeCommand) Run(args []string) int {
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
	if c.flagID == "" {
		c.UI.Error("id flag is required")
		return 1
	}

	id, err := uuid.Parse(c.flagID)
	if err != nil {
		c.UI.Error(fmt.Sprintf("invalid token ID %q: %v", c.flagID, err))
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

	token := models.ServiceToken{ID: id}
	if err := token.Get(db); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.UI.Error(fmt.Sprintf("token %s not found", id))
		} else {
			c.UI.Error(fmt.Sprintf("error looking up token: %v", err))
		}
		return 1
	}

	if token.Revoked {
		c.UI.Warn(fmt.Sprintf("Token %s is already revoked", id))
		return 0
	}

	if err := token.Revoke(db, c.flagReason); err != nil {
		c.UI.Error(fmt.Sprintf("error revoking token: %v", err))
		return 1
	}

	c.UI.Info(fmt.Sprintf("Revoked %s token %s", token.TokenType, id))
	return 0
}
