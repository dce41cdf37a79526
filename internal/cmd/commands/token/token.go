package token

import (
	"github.com/mitchellh/cli"

	"github.com/niranworks/compass/internal/cmd/base"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Manage service tokens"
}

func (c *Command) Help() string {
	return `Usage: compass token <subcommand> [options]

  This command groups subcommands for managing the service tokens that
  authenticate API clients, routing agents and operators.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}
