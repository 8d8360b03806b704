package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/orgtree/internal/core/events"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event bus commands",
	Long:  `Inspect the domain events emitted by the node and user services`,
}

var listEventsCmd = &cobra.Command{
	Use:   "list",
	Short: "List every event type the audit log subscribes to",
	Run: func(cmd *cobra.Command, args []string) {
		for _, t := range events.AllEventTypes {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
	},
}

// newAuditHandler writes one structured audit line per domain event.
func newAuditHandler(lg *slog.Logger) events.Handler {
	audit := lg.With("component", "audit")
	return func(ctx context.Context, event events.Event) error {
		attrs := []any{
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"occurred_at", event.OccurredAt(),
		}
		if data, ok := event.Payload().(map[string]interface{}); ok {
			for k, v := range data {
				attrs = append(attrs, k, v)
			}
		}
		audit.InfoContext(ctx, "audit", attrs...)
		return nil
	}
}

func init() {
	eventCmd.AddCommand(listEventsCmd)
}
