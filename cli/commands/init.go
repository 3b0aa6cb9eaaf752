package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-fold/cli/config"
	"github.com/AshkanYarmoradi/go-fold/cli/styles"
	"github.com/AshkanYarmoradi/go-fold/cli/ui"
)

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	var (
		name           string
		driver         string
		url            string
		path           string
		format         string
		nonInteractive bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a cartfold.yaml configuration",
		Long: `Create a cartfold.yaml configuration file.

Examples:
  cartfold init                                   # Interactive setup in the current directory
  cartfold init shop --non-interactive            # Defaults: sqlite file store, json payloads
  cartfold init --driver=postgres --url='${DATABASE_URL}' --non-interactive`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			if config.Exists(absDir) {
				fmt.Fprintln(out, styles.FormatWarning(config.ConfigFileName+" already exists in this directory"))
				return nil
			}

			cfg := config.DefaultConfig()
			cfg.Project.Name = filepath.Base(absDir)
			if name != "" {
				cfg.Project.Name = name
			}
			if driver != "" {
				cfg.Store.Driver = driver
			}
			if url != "" {
				cfg.Store.URL = url
			}
			if path != "" {
				cfg.Store.Path = path
			}
			if format != "" {
				cfg.Serializer.Format = format
			}

			if !nonInteractive {
				fmt.Fprintln(out, ui.SimpleBanner())
				fmt.Fprintln(out)
				if err := newInitForm(cfg).Run(); err != nil {
					return err
				}
			}

			if problems := cfg.Validate(); len(problems) > 0 {
				return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
			}

			if err := os.MkdirAll(absDir, 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			configPath := filepath.Join(absDir, config.ConfigFileName)
			if err := os.WriteFile(configPath, []byte(config.GenerateYAML(cfg)), 0644); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}
			fmt.Fprintln(out, styles.FormatSuccess("Created "+configPath))

			fmt.Fprintln(out, styles.InfoBox.Render(nextSteps(cfg)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Project name")
	cmd.Flags().StringVarP(&driver, "driver", "d", "", "Store driver (memory, sqlite, postgres, redis)")
	cmd.Flags().StringVar(&url, "url", "", "Store URL (postgres) or address (redis)")
	cmd.Flags().StringVar(&path, "path", "", "Database file (sqlite)")
	cmd.Flags().StringVar(&format, "serializer", "", "Payload format (json, msgpack, protobuf)")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Run in non-interactive mode")

	return cmd
}

func newInitForm(cfg *config.Config) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project Name").
				Description("Used as the service name in metrics and traces").
				Value(&cfg.Project.Name),
		).Title("Project"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Store Driver").
				Description("Where cart events are kept").
				Options(
					huh.NewOption("SQLite file (no server needed)", config.DriverSQLite),
					huh.NewOption("PostgreSQL", config.DriverPostgres),
					huh.NewOption("Redis streams", config.DriverRedis),
					huh.NewOption("In-Memory (lost on exit)", config.DriverMemory),
				).
				Value(&cfg.Store.Driver),

			huh.NewSelect[string]().
				Title("Payload Format").
				Options(
					huh.NewOption("JSON", config.FormatJSON),
					huh.NewOption("MessagePack", config.FormatMsgpack),
					huh.NewOption("Protocol Buffers", config.FormatProtobuf),
				).
				Value(&cfg.Serializer.Format),
		).Title("Store"),

		huh.NewGroup(
			huh.NewInput().
				Title("Database File").
				Value(&cfg.Store.Path),
		).WithHideFunc(func() bool {
			return cfg.Store.Driver != config.DriverSQLite
		}),

		huh.NewGroup(
			huh.NewInput().
				Title("Connection").
				Description("Postgres URL or Redis address. ${VAR} references are expanded at run time.").
				Placeholder("${CARTFOLD_STORE_URL}").
				Value(&cfg.Store.URL),
		).WithHideFunc(func() bool {
			return cfg.Store.Driver != config.DriverPostgres && cfg.Store.Driver != config.DriverRedis
		}),
	).WithTheme(huh.ThemeDracula())
}

func nextSteps(cfg *config.Config) string {
	steps := []string{styles.Bold.Render("Next Steps:"), ""}

	var items []string
	switch cfg.Store.Driver {
	case config.DriverPostgres, config.DriverRedis:
		if strings.Contains(cfg.Store.URL, "${") || cfg.Store.URL == "" {
			items = append(items, "Export the store URL: "+styles.Code.Render("export CARTFOLD_STORE_URL=..."))
		}
	case config.DriverMemory:
		items = append(items, "The memory store forgets every cart when the command exits")
	}
	items = append(items,
		"Check the setup: "+styles.Code.Render("cartfold diagnose"),
		"Fold the sample cart: "+styles.Code.Render("cartfold demo"),
	)

	steps = append(steps, ui.NumberedList(items))
	return strings.Join(steps, "\n")
}
