package commands

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-fold"
	"github.com/AshkanYarmoradi/go-fold/cli/styles"
	"github.com/AshkanYarmoradi/go-fold/cli/ui"
	"github.com/AshkanYarmoradi/go-fold/shoppingcart"
)

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Run diagnostic checks",
		Long: `Run diagnostic checks on your cartfold setup.

This command verifies:
  • Configuration file validity
  • Store connectivity
  • Payload serializer round trips
  • The cart fold itself`,
		Aliases: []string{"diag", "doctor"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(ensureContext(cmd.Context()), 10*time.Second)
			defer cancel()
			runDiagnose(ctx, g, cmd.OutOrStdout())
			return nil
		},
	}
}

func runDiagnose(ctx context.Context, g *Globals, out io.Writer) []CheckResult {
	fmt.Fprintln(out, ui.SimpleBanner())
	fmt.Fprintln(out)
	fmt.Fprintln(out, styles.Title.Render(styles.IconHealth+" Running Diagnostics"))
	fmt.Fprintln(out)

	checks := []DiagnosticCheck{
		{Name: "Go Version", Check: checkGoVersion},
		{Name: "Configuration", Check: checkConfiguration},
		{Name: "Store Connection", Check: checkStoreConnection},
		{Name: "Serializer", Check: checkSerializer},
		{Name: "Cart Fold", Check: checkCartFold},
	}

	results := make([]CheckResult, 0, len(checks))
	allPassed := true

	for _, check := range checks {
		fmt.Fprintf(out, "  %s Checking %s... ", styles.IconPending, check.Name)

		result := check.Check(ctx, g)
		results = append(results, result)

		switch result.Status {
		case StatusOK:
			fmt.Fprintln(out, styles.SuccessStyle.Render("OK"))
		case StatusWarning:
			fmt.Fprintln(out, styles.WarningStyle.Render("WARNING"))
			allPassed = false
		default:
			fmt.Fprintln(out, styles.ErrorStyle.Render("FAILED"))
			allPassed = false
		}

		if result.Message != "" {
			fmt.Fprintf(out, "    %s\n", styles.Muted.Render(result.Message))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.Divider(50))
	fmt.Fprintln(out)

	if allPassed {
		fmt.Fprintln(out, styles.FormatSuccess("All checks passed! Your cartfold setup is healthy."))
		return results
	}

	fmt.Fprintln(out, styles.FormatWarning("Some checks failed or have warnings."))
	fmt.Fprintln(out)

	var recommendations []string
	for _, r := range results {
		if r.Recommendation != "" {
			recommendations = append(recommendations, r.Recommendation)
		}
	}
	if len(recommendations) > 0 {
		fmt.Fprintln(out, styles.Subtitle.Render("Recommendations:"))
		fmt.Fprint(out, ui.ListItems(recommendations))
	}

	return results
}

// CheckStatus represents the status of a diagnostic check
type CheckStatus int

const (
	StatusOK CheckStatus = iota
	StatusWarning
	StatusError
)

// CheckResult represents the result of a diagnostic check
type CheckResult struct {
	Name           string
	Status         CheckStatus
	Message        string
	Recommendation string
}

func newCheckResult(name string, status CheckStatus, message string) CheckResult {
	return CheckResult{Name: name, Status: status, Message: message}
}

func (r CheckResult) withRecommendation(rec string) CheckResult {
	r.Recommendation = rec
	return r
}

// DiagnosticCheck represents a diagnostic check function
type DiagnosticCheck struct {
	Name  string
	Check func(ctx context.Context, g *Globals) CheckResult
}

func checkGoVersion(context.Context, *Globals) CheckResult {
	return newCheckResult("Go Version", StatusOK, runtime.Version())
}

func checkConfiguration(_ context.Context, g *Globals) CheckResult {
	const name = "Configuration"
	cfg, dir, err := loadConfig(g)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).
			withRecommendation("Fix cartfold.yaml or run 'cartfold init'")
	}
	return newCheckResult(name, StatusOK,
		fmt.Sprintf("Project: %s, Driver: %s, Serializer: %s (%s)", cfg.Project.Name, cfg.Store.Driver, cfg.SerializerFormat(), dir))
}

func checkStoreConnection(ctx context.Context, g *Globals) CheckResult {
	const name = "Store Connection"
	cfg, _, err := loadConfig(g)
	if err != nil {
		return newCheckResult(name, StatusWarning, "Skipped (invalid configuration)")
	}

	factory := NewAdapterFactory(cfg)
	adapter, err := factory.CreateAdapter(ctx)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).
			withRecommendation("Verify store.url and that the " + cfg.Store.Driver + " server is reachable")
	}
	defer adapter.Close()

	position, err := adapter.GetLastPosition(ctx)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Check store permissions")
	}

	if factory.IsMemoryDriver() {
		return newCheckResult(name, StatusWarning, "Using in-memory store (nothing is persisted)").
			withRecommendation("Set store.driver to sqlite, postgres or redis to keep carts between runs")
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("Connected to %s, last position %d", cfg.Store.Driver, position))
}

func checkSerializer(_ context.Context, g *Globals) CheckResult {
	const name = "Serializer"
	format := "json"
	if cfg, _, err := loadConfig(g); err == nil {
		format = cfg.SerializerFormat()
	}

	serializer, err := NewSerializer(format)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error())
	}
	if rp, ok := serializer.(fold.RegistryProvider); ok {
		rp.Registry().RegisterAll(shoppingcart.EventExamples()...)
	}

	events := shoppingcart.SampleEvents("diagnose", "diagnose", time.Now())
	for _, event := range events {
		data, err := serializer.Serialize(event)
		if err != nil {
			return newCheckResult(name, StatusError, err.Error())
		}
		decoded, err := serializer.Deserialize(data, event.EventType())
		if err != nil {
			return newCheckResult(name, StatusError, err.Error())
		}
		if _, ok := decoded.(shoppingcart.Event); !ok {
			return newCheckResult(name, StatusError, fmt.Sprintf("%s decoded as %T", event.EventType(), decoded))
		}
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("%d cart events round-trip with %s", len(events), format))
}

func checkCartFold(ctx context.Context, _ *Globals) CheckResult {
	const name = "Cart Fold"
	events := shoppingcart.SampleEvents("diagnose", "diagnose", time.Now())

	cart, err := fold.Reconstruct(ctx, shoppingcart.Evolve, fold.FromEvents(events...))
	if err != nil {
		return newCheckResult(name, StatusError, err.Error())
	}
	if cart.Status != shoppingcart.StatusConfirmed || cart.ProductItems.Quantity("A") != 1 || cart.ProductItems.Quantity("B") != 2 {
		return newCheckResult(name, StatusError, fmt.Sprintf("unexpected cart %+v", cart))
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("Folded %d sample events", len(events)))
}

// NewVersionCommand creates the version command
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.SimpleBanner())
			fmt.Fprintln(out)

			table := ui.NewTable("Component", "Value")
			table.AddRow("Version", version)
			table.AddRow("Commit", commit)
			table.AddRow("Built", date)
			table.AddRow("Library", fold.Version())
			table.AddRow("Go", runtime.Version())
			table.AddRow("OS/Arch", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))

			fmt.Fprintln(out, table.Render())
			return nil
		},
	}
}
