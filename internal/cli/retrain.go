package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"modelctl/internal/models"
	"modelctl/internal/store"
)

// newRetrainCmd triggers a retraining run immediately.
func newRetrainCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "retrain",
		Short: "Run a retraining job now",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Info("Starting retraining job...")
			job, err := app.Training.StartRetraining(cmd.Context())
			if job == nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(job)
			}

			if job.Status == models.JobCompleted {
				output.Success("Job %s completed, produced %s", job.ID, job.OutputVersion)
			} else {
				output.Error("Job %s %s: %s", job.ID, job.Status, job.Error)
			}
			for _, entry := range job.Logs {
				output.Dim("  [%s] %s", entry.Stage, entry.Message)
			}
			if len(job.Warnings) > 0 {
				output.Warning("Warnings:")
				for _, w := range job.Warnings {
					output.Warning("  - %s", w)
				}
			}
			return err
		},
	}
}

// newJobsCmd lists and inspects retraining job history.
func newJobsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Retraining job history",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")
			status, _ := cmd.Flags().GetString("status")

			jobs, err := app.Training.ListJobs(cmd.Context(), store.JobFilter{
				Status: models.JobStatus(status),
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(jobs)
			}
			if len(jobs) == 0 {
				output.Dim("No jobs recorded")
				return nil
			}

			table := NewTable(output, "ID", "STATUS", "STARTED", "OUTPUT", "ERROR")
			for _, j := range jobs {
				table.AddRow(shortID(j.ID), string(j.Status), FormatAge(j.StartTime), j.OutputVersion, truncate(j.Error, 40))
			}
			table.Render()
			return nil
		},
	}
	listCmd.Flags().Int("limit", 20, "maximum jobs to list")
	listCmd.Flags().String("status", "", "filter by status")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with its stage logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			job, err := app.Training.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(job)
			}

			output.Bold("Job %s", job.ID)
			output.Printf("  Status:    %s\n", job.Status)
			output.Printf("  Started:   %s\n", job.StartTime.Format("2006-01-02 15:04:05"))
			output.Printf("  Ended:     %s\n", FormatTime(job.EndTime))
			output.Printf("  Output:    %s\n", job.OutputVersion)
			output.Printf("  Trades:    %d (%d profitable)\n", job.DataStats.TotalTrades, job.DataStats.ProfitableTrades)
			if job.Error != "" {
				output.Error("  Error:     %s", job.Error)
			}
			if len(job.Logs) > 0 {
				output.Println()
				output.Bold("Stage Log")
				for _, entry := range job.Logs {
					output.Printf("  %s  [%s] %s\n", entry.Timestamp.Format("15:04:05"), entry.Stage, entry.Message)
				}
			}
			if len(job.Warnings) > 0 {
				output.Println()
				output.Warning("Warnings:")
				for _, w := range job.Warnings {
					output.Warning("  - %s", w)
				}
			}
			return nil
		},
	})

	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
