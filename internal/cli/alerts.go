package cli

import (
	"github.com/spf13/cobra"

	"modelctl/internal/models"
	"modelctl/internal/store"
)

// newAlertsCmd manages the performance alert trail.
func newAlertsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Performance alert management",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			all, _ := cmd.Flags().GetBool("all")
			severity, _ := cmd.Flags().GetString("severity")
			limit, _ := cmd.Flags().GetInt("limit")

			alerts, err := app.Store.ListAlerts(cmd.Context(), store.AlertFilter{
				Severity:       models.AlertSeverity(severity),
				UnresolvedOnly: !all,
				Limit:          limit,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(alerts)
			}
			if len(alerts) == 0 {
				output.Success("No open alerts")
				return nil
			}

			table := NewTable(output, "ID", "SEVERITY", "TYPE", "AGE", "ACK", "MESSAGE")
			for _, a := range alerts {
				ack := "-"
				if a.Acknowledged {
					ack = "yes"
				}
				table.AddRow(shortID(a.ID), output.SeverityTag(a.Severity), string(a.Type), FormatAge(a.Timestamp), ack, truncate(a.Message, 60))
			}
			table.Render()
			return nil
		},
	}
	listCmd.Flags().Bool("all", false, "include resolved alerts")
	listCmd.Flags().String("severity", "", "filter by severity")
	listCmd.Flags().Int("limit", 50, "maximum alerts to list")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Monitoring.AcknowledgeAlert(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.Success("Acknowledged %s", args[0])
			return nil
		},
	})

	resolveCmd := &cobra.Command{
		Use:   "resolve <alert-id>",
		Short: "Resolve an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			resolution, _ := cmd.Flags().GetString("note")
			if err := app.Monitoring.ResolveAlert(cmd.Context(), args[0], resolution); err != nil {
				return err
			}
			output.Success("Resolved %s", args[0])
			return nil
		},
	}
	resolveCmd.Flags().String("note", "", "resolution note")
	cmd.AddCommand(resolveCmd)

	return cmd
}
