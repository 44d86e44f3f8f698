package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionsCmd manages the model version catalog.
func newVersionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Model version catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List model versions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			versions, err := app.Repo.ListVersions(cmd.Context())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(versions)
			}
			if len(versions) == 0 {
				output.Dim("No model versions")
				return nil
			}

			table := NewTable(output, "VERSION", "STATUS", "CREATED", "SCORE", "WIN RATE", "PF", "TRADES")
			for _, v := range versions {
				table.AddRow(
					v.Version,
					output.StatusTag(v.Status),
					FormatAge(v.CreatedAt),
					fmt.Sprintf("%.1f", v.PerformanceScore),
					fmt.Sprintf("%.2f", v.Metrics.WinRate),
					fmt.Sprintf("%.2f", v.Metrics.ProfitFactor),
					fmt.Sprintf("%d", v.Metrics.TotalTrades),
				)
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <version>",
		Short: "Show one version in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			v, err := app.Repo.LoadModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(v)
			}

			output.Bold("Version %s", v.Version)
			output.Printf("  Status:      %s\n", output.StatusTag(v.Status))
			output.Printf("  Type:        %s\n", v.ModelType)
			output.Printf("  Created:     %s\n", v.CreatedAt.Format("2006-01-02 15:04:05"))
			output.Printf("  Deployed:    %s\n", FormatTime(v.DeployedAt))
			output.Printf("  Trained on:  %s to %s (%d points)\n",
				v.TrainedOn.Start.Format("2006-01-02"), v.TrainedOn.End.Format("2006-01-02"), v.DataPoints)
			output.Printf("  Artifact:    %s\n", v.ArtifactRef)
			if v.RollbackReason != "" {
				output.Warning("  Rolled back: %s", v.RollbackReason)
			}
			output.Println()
			output.Bold("Metrics")
			output.Printf("  Score:         %.1f\n", v.PerformanceScore)
			output.Printf("  Win Rate:      %.2f (%d/%d)\n", v.Metrics.WinRate, v.Metrics.WinningTrades, v.Metrics.TotalTrades)
			output.Printf("  Profit Factor: %.2f\n", v.Metrics.ProfitFactor)
			output.Printf("  Sharpe:        %.2f\n", v.Metrics.SharpeRatio)
			output.Printf("  Max Drawdown:  %.2f\n", v.Metrics.MaxDrawdown)
			output.Printf("  Consistency:   %.2f\n", v.Metrics.ConsistencyScore)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <version>",
		Short: "Delete a version (deployed versions are protected)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Repo.DeleteModel(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.Success("Deleted %s", args[0])
			return nil
		},
	})

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old non-deployed versions beyond retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			keep, _ := cmd.Flags().GetInt("keep")
			if keep == 0 {
				keep = app.Config.Deployment.RetentionCount
			}

			deleted, err := app.Repo.CleanupOldModels(cmd.Context(), keep)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"deleted": deleted})
			}
			if len(deleted) == 0 {
				output.Dim("Nothing to clean up")
				return nil
			}
			output.Success("Deleted %d versions: %v", len(deleted), deleted)
			return nil
		},
	}
	cleanupCmd.Flags().Int("keep", 0, "versions to retain (default from config)")
	cmd.AddCommand(cleanupCmd)

	return cmd
}
