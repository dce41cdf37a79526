package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/niranworks/compass/internal/cmd/base"
	"github.com/niranworks/compass/internal/cmd/commands/agent"
	"github.com/niranworks/compass/internal/cmd/commands/ingest"
	"github.com/niranworks/compass/internal/cmd/commands/operator"
	"github.com/niranworks/compass/internal/cmd/commands/server"
	"github.com/niranworks/compass/internal/cmd/commands/token"
	"github.com/niranworks/compass/internal/cmd/commands/validate"
	"github.com/niranworks/compass/internal/cmd/commands/version"
)

// Commands is the mapping of all available CLI commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	baseCommand := &base.Command{
		Log: log,
		UI:  ui,
	}

	Commands = map[string]cli.CommandFactory{
		"server": func() (cli.Command, error) {
			return &server.Command{Command: baseCommand}, nil
		},
		"agent": func() (cli.Command, error) {
			return &agent.Command{Command: baseCommand}, nil
		},
		"validate": func() (cli.Command, error) {
			return &validate.Command{Command: baseCommand}, nil
		},
		"ingest": func() (cli.Command, error) {
			return &ingest.Command{Command: baseCommand}, nil
		},
		"token": func() (cli.Command, error) {
			return &token.Command{Command: baseCommand}, nil
		},
		"token create": func() (cli.Command, error) {
			return &token.CreateCommand{Command: baseCommand}, nil
		},
		"token revoke": func() (cli.Command, error) {
			return &token.RevokeCommand{Command: baseCommand}, nil
		},
		"operator": func() (cli.Command, error) {
			return &operator.Command{Command: baseCommand}, nil
		},
		"operator rebuild-keys": func() (cli.Command, error) {
			return &operator.RebuildKeysCommand{Command: baseCommand}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: baseCommand}, nil
		},
	}
}
