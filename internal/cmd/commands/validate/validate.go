package validate

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/niranworks/compass/internal/cmd/base"
	"github.com/niranworks/compass/pkg/router/config"
)

type Command struct {
	*base.Command

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Validate a configuration file"
}

func (c *Command) Help() string {
	return `Usage: compass validate -config=config.hcl

This command loads a configuration file and runs the same validation the
server performs at startup: every collection catalog is checked, every
key block is resolved against its catalog, and every route is checked
against the registered steps. All failures are reported, not just the
first one.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("validate", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[COMPASS_CONFIG] Path to the configuration file",
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

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		c.UI.Error(fmt.Sprintf("Configuration %s is invalid:", configPath))

		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				c.UI.Error(fmt.Sprintf("  - %v", e))
			}
		} else {
			c.UI.Error(fmt.Sprintf("  - %v", err))
		}
		return 1
	}

	for _, col := range cfg.Collections {
		desc := "unkeyed"
		if builder := cfg.Builder(col.Name); builder != nil {
			bc := builder.Config()
			if bc.Enabled {
				desc = fmt.Sprintf("key prefix [%s], postfix %s",
					strings.Join(bc.PrefixFields, " "), bc.PostfixField)
			} else {
				desc = "key disabled"
			}
		}
		c.UI.Info(fmt.Sprintf("Collection %q: %d fields, %s",
			col.Name, len(col.Fields), desc))
	}

	for _, route := range cfg.Routes {
		target := route.Collection
		if target == "" {
			target = "*"
		}
		c.UI.Info(fmt.Sprintf("Route %q: collection %s, steps [%s]",
			route.Name, target, strings.Join(route.Steps, " ")))
	}

	c.UI.Info(fmt.Sprintf("Configuration %s is valid", configPath))
	return 0
}
