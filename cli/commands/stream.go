package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-fold/adapters"
	"github.com/AshkanYarmoradi/go-fold/cli/styles"
	"github.com/AshkanYarmoradi/go-fold/cli/ui"
)

// NewStreamCommand creates the stream command group
func NewStreamCommand(g *Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Inspect and manage raw event streams",
	}

	cmd.AddCommand(newStreamEventsCommand(g))
	cmd.AddCommand(newStreamInfoCommand(g))
	cmd.AddCommand(newStreamTombstoneCommand(g))

	return cmd
}

func newStreamEventsCommand(g *Globals) *cobra.Command {
	var from int64

	cmd := &cobra.Command{
		Use:   "events <stream-id>",
		Short: "List the records of a stream",
		Long: `List the records of a stream in version order, without decoding them.

Tombstoned records are listed with their type and version but no payload.`,
		Args: cobra.ExactArgs(1),
		RunE: envRunE(g, func(cmd *cobra.Command, env *Env, args []string) error {
			ctx := ensureContext(cmd.Context())
			out := cmd.OutOrStdout()
			streamID := args[0]

			it, err := adapters.OpenStream(ctx, env.Store.Adapter(), streamID, from)
			if err != nil {
				return err
			}
			defer it.Close()

			table := ui.NewTable("Version", "Type", "Position", "Recorded", "Payload")
			for {
				record, err := it.Next(ctx)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}

				payload := ui.StatusBadge("live")
				if record.Tombstoned {
					payload = ui.StatusBadge("tombstoned")
				}
				table.AddRow(
					strconv.FormatInt(record.Version, 10),
					record.Type,
					strconv.FormatUint(record.GlobalPosition, 10),
					formatTime(record.Timestamp),
					payload,
				)
			}

			if table.Len() == 0 {
				fmt.Fprintln(out, styles.FormatInfo(fmt.Sprintf("No records in %s", streamID)))
				return nil
			}
			fmt.Fprintln(out, styles.Title.Render(styles.IconStream+" "+streamID))
			fmt.Fprintln(out, table.Render())
			return nil
		}),
	}

	cmd.Flags().Int64Var(&from, "from", 0, "Only list records after this version")

	return cmd
}

func newStreamInfoCommand(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "info <stream-id>",
		Short: "Show stream metadata",
		Args:  cobra.ExactArgs(1),
		RunE: envRunE(g, func(cmd *cobra.Command, env *Env, args []string) error {
			info, err := env.Store.GetStreamInfo(ensureContext(cmd.Context()), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.Title.Render(styles.IconStream+" "+info.StreamID))
			fmt.Fprintln(out, styles.FormatKeyValue("Category", info.Category))
			fmt.Fprintln(out, styles.FormatKeyValue("Version", strconv.FormatInt(info.Version, 10)))
			fmt.Fprintln(out, styles.FormatKeyValue("Events", strconv.FormatInt(info.EventCount, 10)))
			fmt.Fprintln(out, styles.FormatKeyValue("Created", formatTime(info.CreatedAt)))
			fmt.Fprintln(out, styles.FormatKeyValue("Updated", formatTime(info.UpdatedAt)))
			return nil
		}),
	}
}

func newStreamTombstoneCommand(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tombstone <stream-id> <version>",
		Short: "Scrub the payload of one record",
		Long: `Scrub the payload of one record while keeping its slot in the stream.

Later folds skip the record as if it had never been appended. Versions and
the expected version of the next append are unchanged.`,
		Args: cobra.ExactArgs(2),
		RunE: envRunE(g, func(cmd *cobra.Command, env *Env, args []string) error {
			streamID := args[0]
			version, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[1], err)
			}

			if err := env.Store.Tombstone(ensureContext(cmd.Context()), streamID, version); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.FormatSuccess(fmt.Sprintf("Tombstoned %s version %d", streamID, version)))
			return nil
		}),
	}
}
