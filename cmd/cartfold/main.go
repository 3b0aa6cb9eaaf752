// cartfold is the command-line interface for event-sourced shopping carts.
//
// Usage:
//
//	cartfold <command> [flags]
//
// Commands:
//
//	init        Create a cartfold.yaml configuration
//	demo        Append the sample cart events and fold them
//	cart        Open, change, confirm and show carts
//	stream      Inspect raw event streams and tombstone records
//	diagnose    Run diagnostic checks on your setup
//	version     Show version information
//
// Examples:
//
//	# Create a configuration backed by a sqlite file
//	cartfold init --non-interactive
//
//	# Fold the sample cart, skipping the record at version 2
//	cartfold demo --tombstone 2
//
//	# Work with a cart
//	cartfold cart open U1 --id C1
//	cartfold cart add C1 A 2
//	cartfold cart show C1 --history
package main

import (
	"os"

	"github.com/AshkanYarmoradi/go-fold/cli/commands"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
