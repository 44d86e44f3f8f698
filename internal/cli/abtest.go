package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"modelctl/internal/models"
)

// newABTestCmd manages A/B rollouts.
func newABTestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abtest",
		Short: "A/B rollout management",
	}

	startCmd := &cobra.Command{
		Use:   "start <version-a> <version-b>",
		Short: "Start an A/B test between two versions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			split, _ := cmd.Flags().GetInt("split")

			rollout, err := app.Deployment.StartABTest(cmd.Context(), args[0], args[1], split)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(rollout)
			}
			output.Success("A/B test %s started: %s vs %s (%d%% to B)",
				shortID(rollout.ID), rollout.ModelAVersion, rollout.ModelBVersion, rollout.TrafficSplit)
			return nil
		},
	}
	startCmd.Flags().Int("split", 0, "traffic percentage to version B (default from config)")
	cmd.AddCommand(startCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status [rollout-id]",
		Short: "Show rollout results and recommendation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			id := ""
			if len(args) == 1 {
				id = args[0]
			} else {
				rollout, err := app.Deployment.GetActiveRollout(ctx)
				if err != nil {
					return err
				}
				id = rollout.ID
			}

			results, err := app.Deployment.GetABTestResults(ctx, id)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(results)
			}
			printResults(output, results)
			return nil
		},
	})

	endCmd := &cobra.Command{
		Use:   "end <rollout-id>",
		Short: "End an active rollout, recording the winner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			deployWinner, _ := cmd.Flags().GetBool("deploy-winner")

			results, err := app.Deployment.EndABTest(cmd.Context(), args[0], deployWinner)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(results)
			}
			output.Success("Rollout ended, winner: %s", results.Rollout.Winner)
			printResults(output, results)
			return nil
		},
	}
	endCmd.Flags().Bool("deploy-winner", false, "deploy the winning version when the decision names one")
	cmd.AddCommand(endCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <rollout-id>",
		Short: "Cancel an active rollout without a verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Deployment.CancelABTest(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.Success("Rollout cancelled")
			return nil
		},
	})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent rollouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")

			rollouts, err := app.Deployment.ListRollouts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(rollouts)
			}
			if len(rollouts) == 0 {
				output.Dim("No rollouts recorded")
				return nil
			}

			table := NewTable(output, "ID", "A", "B", "STATUS", "STARTED", "WINNER")
			for _, r := range rollouts {
				winner := string(r.Winner)
				if winner == "" {
					winner = "-"
				}
				table.AddRow(shortID(r.ID), r.ModelAVersion, r.ModelBVersion, string(r.Status), FormatAge(r.StartTime), winner)
			}
			table.Render()
			return nil
		},
	}
	listCmd.Flags().Int("limit", 10, "maximum rollouts to list")
	cmd.AddCommand(listCmd)

	return cmd
}

func printResults(output *Output, results *models.ABTestResults) {
	r := results.Rollout
	output.Bold("Rollout %s (%s)", shortID(r.ID), r.Status)
	output.Printf("  Split: %d%% to B\n", r.TrafficSplit)
	output.Println()

	table := NewTable(output, "ARM", "VERSION", "TRADES", "WINS", "WIN RATE", "NET P&L")
	table.AddRow("A", r.ModelAVersion,
		fmt.Sprintf("%d", r.Metrics.ModelA.Trades),
		fmt.Sprintf("%d", r.Metrics.ModelA.Wins),
		fmt.Sprintf("%.2f", r.Metrics.ModelA.WinRate),
		fmt.Sprintf("%.2f", r.Metrics.ModelA.NetProfit))
	table.AddRow("B", r.ModelBVersion,
		fmt.Sprintf("%d", r.Metrics.ModelB.Trades),
		fmt.Sprintf("%d", r.Metrics.ModelB.Wins),
		fmt.Sprintf("%.2f", r.Metrics.ModelB.WinRate),
		fmt.Sprintf("%.2f", r.Metrics.ModelB.NetProfit))
	table.Render()

	output.Println()
	output.Printf("  Delta:          %+.3f\n", results.Delta)
	output.Printf("  Z-score:        %.3f\n", results.ZScore)
	output.Printf("  P-value:        %.4f\n", results.PValue)
	output.Printf("  Recommendation: %s (confidence %.2f)\n", results.Recommendation, results.Confidence)
}
