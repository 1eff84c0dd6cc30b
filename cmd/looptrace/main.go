// Package main implements the looptrace CLI.
// It reconstructs loop nests from recorded basic-block execution traces.
package main

import (
	"os"

	"github.com/l3aro/looptrace/cmd/looptrace/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (built " + buildTime + ")"
	}
	commands.RootCmd.SetVersionTemplate(`looptrace version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
