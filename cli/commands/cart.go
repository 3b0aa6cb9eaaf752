package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-fold/cli/styles"
	"github.com/AshkanYarmoradi/go-fold/cli/ui"
	"github.com/AshkanYarmoradi/go-fold/shoppingcart"
)

// envRunE opens the Env around run and closes it afterwards, joining any
// close error into the result.
func envRunE(g *Globals, run func(cmd *cobra.Command, env *Env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		env, err := OpenEnv(ensureContext(cmd.Context()), g, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, env.Close())
		}()
		return run(cmd, env, args)
	}
}

// ensureContext returns the provided context or a background context if nil.
func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// NewCartCommand creates the cart command group
func NewCartCommand(g *Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Open, change and inspect shopping carts",
		Long: `Run cart commands against the configured store.

Every change folds the cart from its stream first, so rules such as
"no changes after confirmation" and "cannot remove more than is held"
are checked against the current state.`,
	}

	cmd.AddCommand(newCartOpenCommand(g))
	cmd.AddCommand(newCartItemCommand(g, "add", "Add a quantity of a product to a cart"))
	cmd.AddCommand(newCartItemCommand(g, "remove", "Remove a quantity of a product from a cart"))
	cmd.AddCommand(newCartConfirmCommand(g))
	cmd.AddCommand(newCartShowCommand(g))

	return cmd
}

func newCartOpenCommand(g *Globals) *cobra.Command {
	var cartID string

	cmd := &cobra.Command{
		Use:   "open <client-id>",
		Short: "Open a new cart for a client",
		Args:  cobra.ExactArgs(1),
		RunE: envRunE(g, func(cmd *cobra.Command, env *Env, args []string) error {
			ctx := ensureContext(cmd.Context())
			clientID := args[0]

			return ui.RunSpinner(cmd.OutOrStdout(), "Opening cart...", func() (string, error) {
				if cartID == "" {
					id, err := env.Carts.Open(ctx, clientID)
					if err != nil {
						return "", err
					}
					cartID = id
				} else if err := env.Carts.OpenWithID(ctx, cartID, clientID); err != nil {
					return "", err
				}
				return fmt.Sprintf("Opened cart %s for %s", cartID, clientID), nil
			})
		}),
	}

	cmd.Flags().StringVar(&cartID, "id", "", "Cart ID to use instead of a generated one")

	return cmd
}

func newCartItemCommand(g *Globals, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <cart-id> <product-id> <quantity>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: envRunE(g, func(cmd *cobra.Command, env *Env, args []string) error {
			ctx := ensureContext(cmd.Context())
			cartID := args[0]

			quantity, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[2], err)
			}
			item := shoppingcart.ProductItem{ProductID: args[1], Quantity: quantity}

			return ui.RunSpinner(cmd.OutOrStdout(), "Updating cart...", func() (string, error) {
				if action == "add" {
					if err := env.Carts.AddProductItem(ctx, cartID, item); err != nil {
						return "", err
					}
					return fmt.Sprintf("Added %d × %s to cart %s", item.Quantity, item.ProductID, cartID), nil
				}
				if err := env.Carts.RemoveProductItem(ctx, cartID, item); err != nil {
					return "", err
				}
				return fmt.Sprintf("Removed %d × %s from cart %s", item.Quantity, item.ProductID, cartID), nil
			})
		}),
	}
}

func newCartConfirmCommand(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <cart-id>",
		Short: "Confirm a cart for checkout",
		Args:  cobra.ExactArgs(1),
		RunE: envRunE(g, func(cmd *cobra.Command, env *Env, args []string) error {
			ctx := ensureContext(cmd.Context())
			cartID := args[0]

			return ui.RunSpinner(cmd.OutOrStdout(), "Confirming cart...", func() (string, error) {
				if err := env.Carts.Confirm(ctx, cartID); err != nil {
					return "", err
				}
				return fmt.Sprintf("Confirmed cart %s", cartID), nil
			})
		}),
	}
}

func newCartShowCommand(g *Globals) *cobra.Command {
	var (
		asJSON  bool
		history bool
	)

	cmd := &cobra.Command{
		Use:   "show <cart-id>",
		Short: "Fold a cart's events and print its state",
		Long: `Fold a cart's events and print its state.

Tombstoned events are skipped. With --history the state after every folded
event is printed instead of only the final one.`,
		Args: cobra.ExactArgs(1),
		RunE: envRunE(g, func(cmd *cobra.Command, env *Env, args []string) error {
			ctx := ensureContext(cmd.Context())
			out := cmd.OutOrStdout()
			cartID := args[0]

			if history {
				states, err := env.Carts.History(ctx, cartID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, states)
				}
				fmt.Fprintln(out, styles.Title.Render(styles.IconStream+" History of cart "+cartID))
				fmt.Fprintln(out, renderHistory(states))
				return nil
			}

			cart, err := env.LoadCart(ctx, cartID)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, cart)
			}
			fmt.Fprint(out, renderCart(cart))
			return nil
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	cmd.Flags().BoolVar(&history, "history", false, "Print the state after every event")

	return cmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
