package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-fold"
	"github.com/AshkanYarmoradi/go-fold/cli/styles"
	"github.com/AshkanYarmoradi/go-fold/shoppingcart"
)

// NewDemoCommand creates the demo command
func NewDemoCommand(g *Globals) *cobra.Command {
	var (
		cartID    string
		clientID  string
		tombstone int64
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Append the sample cart events and fold them",
		Long: `Append the sample events for a fresh cart and print the folded cart.

The sample log opens a cart, adds 1 × A and 3 × B, removes 1 × B and
confirms, so the folded cart holds A×1 and B×2.

With --tombstone the record at that version is scrubbed before folding,
showing that the fold skips it.`,
		Args: cobra.NoArgs,
		RunE: envRunE(g, func(cmd *cobra.Command, env *Env, args []string) error {
			ctx := ensureContext(cmd.Context())
			out := cmd.OutOrStdout()

			if cartID == "" {
				cartID = uuid.NewString()
			}
			streamID := shoppingcart.StreamID(cartID)

			total := 2
			if tombstone > 0 {
				total = 3
			}
			step := 1

			events := shoppingcart.SampleEvents(cartID, clientID, time.Now())
			records := make([]interface{}, len(events))
			for i, e := range events {
				records[i] = e
			}
			if err := env.Store.Append(ctx, streamID, records, fold.ExpectVersion(fold.NoStream)); err != nil {
				return err
			}
			fmt.Fprintln(out, styles.FormatStep(step, total, fmt.Sprintf("Appended %d events to %s", len(events), streamID)))
			step++

			if tombstone > 0 {
				if err := env.Store.Tombstone(ctx, streamID, tombstone); err != nil {
					return err
				}
				fmt.Fprintln(out, styles.FormatStep(step, total, fmt.Sprintf("Tombstoned version %d", tombstone)))
				step++
			}

			cart, err := env.LoadCart(ctx, cartID)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, styles.FormatStep(step, total, "Folded the stream"))
			fmt.Fprintln(out)
			fmt.Fprint(out, renderCart(cart))

			return nil
		}),
	}

	cmd.Flags().StringVar(&cartID, "cart-id", "", "Cart ID (default: generated)")
	cmd.Flags().StringVar(&clientID, "client", "U1", "Client ID")
	cmd.Flags().Int64Var(&tombstone, "tombstone", 0, "Tombstone this version before folding")

	return cmd
}
