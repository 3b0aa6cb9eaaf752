// Package commands provides the CLI command implementations for cartfold.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-fold/cli/styles"
	"github.com/AshkanYarmoradi/go-fold/cli/ui"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Globals holds the persistent flags shared by every command.
type Globals struct {
	ConfigPath string
	NoColor    bool
	Verbose    bool
	Trace      bool
	Metrics    bool
}

// NewRootCommand creates the root command for the cartfold CLI
func NewRootCommand() *cobra.Command {
	g := &Globals{}

	rootCmd := &cobra.Command{
		Use:   "cartfold",
		Short: "Event-sourced shopping carts",
		Long: ui.SimpleBanner() + `

cartfold rebuilds shopping carts by folding their event logs.
Every command reads the cart's stream, folds it into the current state and
appends the new events at the version it read.

` + styles.Title.Render("Quick Start:") + `

  ` + styles.Code.Render("cartfold init") + `              Create cartfold.yaml
  ` + styles.Code.Render("cartfold demo") + `              Fold the sample cart
  ` + styles.Code.Render("cartfold cart open U1") + `      Open a cart
  ` + styles.Code.Render("cartfold diagnose") + `          Check your setup`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.NoColor {
				styles.DisableColors()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.ConfigPath, "config", "c", "", "Path to cartfold.yaml (default: search upwards from the working directory)")
	flags.BoolVar(&g.NoColor, "no-color", false, "Disable colored output")
	flags.BoolVarP(&g.Verbose, "verbose", "v", false, "Log store operations to stderr")
	flags.BoolVar(&g.Trace, "trace", false, "Export spans to stderr")
	flags.BoolVar(&g.Metrics, "metrics", false, "Print collected metrics after the command")

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewDemoCommand(g))
	rootCmd.AddCommand(NewCartCommand(g))
	rootCmd.AddCommand(NewStreamCommand(g))
	rootCmd.AddCommand(NewDiagnoseCommand(g))
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.FormatError(err.Error()))
		return err
	}

	return nil
}
