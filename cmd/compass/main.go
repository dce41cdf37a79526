package main

import (
	"os"

	"github.com/niranworks/compass/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
