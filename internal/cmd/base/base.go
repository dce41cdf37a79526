// Package base contains the pieces shared by all CLI subcommands.
package base

import (
	"bytes"
	"flag"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
)

// Command is embedded in all subcommands and carries the shared logger
// and UI.
type Command struct {
	// Log is the logger to use.
	Log hclog.Logger

	// UI is used to output to the CLI.
	UI cli.Ui
}

// FlagSet wraps a standard flag set so commands can render their options
// in help output.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet creates a new wrapped flag set.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	return &FlagSet{
		FlagSet: f,
	}
}

// Help returns the formatted options section for the flag set.
func (f *FlagSet) Help() string {
	var buf bytes.Buffer

	f.SetOutput(&buf)
	f.PrintDefaults()

	return "\n\nCommand options:\n\n" + buf.String()
}
