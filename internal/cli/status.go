package cli

import (
	"github.com/spf13/cobra"
)

// newStatusCmd shows the deployment and scheduler status surface.
func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show deployment and scheduler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			status, err := app.Deployment.GetDeploymentStatus(ctx)
			if err != nil {
				return err
			}

			schedStatus := app.Scheduler.GetStatus()

			if output.IsJSON() {
				payload := map[string]interface{}{
					"scheduler": schedStatus,
				}
				if status.Deployed != nil {
					payload["deployed"] = status.Deployed
				}
				if status.ActiveRollout != nil {
					payload["active_rollout"] = status.ActiveRollout
				}
				return output.JSON(payload)
			}

			output.Bold("Deployment")
			if current := status.Deployed; current != nil {
				output.Printf("  Version:   %s (%s)\n", current.Version, output.StatusTag(current.Status))
				output.Printf("  Deployed:  %s\n", FormatTime(current.DeployedAt))
				output.Printf("  Score:     %.1f\n", current.PerformanceScore)
				output.Printf("  Win Rate:  %.2f  PF: %.2f\n", current.Metrics.WinRate, current.Metrics.ProfitFactor)
			} else {
				output.Warning("  No model deployed")
			}
			output.Println()

			output.Bold("A/B Rollout")
			if rollout := status.ActiveRollout; rollout != nil {
				output.Printf("  ID:        %s\n", rollout.ID)
				output.Printf("  Arms:      %s vs %s (%d%% to B)\n", rollout.ModelAVersion, rollout.ModelBVersion, rollout.TrafficSplit)
				output.Printf("  Started:   %s\n", FormatAge(rollout.StartTime))
				output.Printf("  Trades:    A=%d B=%d\n", rollout.Metrics.ModelA.Trades, rollout.Metrics.ModelB.Trades)
			} else {
				output.Dim("  None active")
			}
			output.Println()

			output.Bold("Scheduler")
			if !schedStatus.Running {
				output.Dim("  Not running (start with 'modelctl serve')")
			}
			if len(schedStatus.Jobs) > 0 {
				table := NewTable(output, "NAME", "CRON", "ENABLED", "LAST RUN", "NEXT RUN")
				for _, j := range schedStatus.Jobs {
					enabled := "yes"
					if !j.Enabled {
						enabled = "no"
					}
					table.AddRow(j.Name, j.Cron, enabled, FormatTime(j.LastRun), FormatTime(j.NextRun))
				}
				table.Render()
			}

			if app.Ring != nil && app.Ring.Len() > 0 {
				output.Println()
				output.Bold("Recent Events")
				for _, line := range app.Ring.Recent(5) {
					output.Dim("  %s", line)
				}
			}
			return nil
		},
	}
}

// newHealthCmd shows the aggregate system health verdict.
func newHealthCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show aggregate system health",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			deployedVersion := ""
			if current, err := app.Repo.GetCurrentModel(ctx); err == nil {
				deployedVersion = current.Version
			}

			health := app.Monitoring.GetSystemHealth(ctx, deployedVersion)

			if output.IsJSON() {
				return output.JSON(health)
			}

			output.Printf("Health: %s\n", output.HealthTag(health.Level))
			output.Printf("Open alerts: %d (%d critical)\n", health.OpenAlerts, health.CriticalOpen)
			for _, issue := range health.Issues {
				output.Warning("  - %s", issue)
			}
			return nil
		},
	}
}
