package version

import (
	"github.com/niranworks/compass/internal/cmd/base"
	"github.com/niranworks/compass/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version"
}

func (c *Command) Help() string {
	return `Usage: compass version

  This command prints the Compass version.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output(version.Version)
	return 0
}
