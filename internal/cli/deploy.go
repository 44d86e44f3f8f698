package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"modelctl/internal/deployment"
)

// newDeployCmd promotes a ready version to deployed.
func newDeployCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <version>",
		Short: "Deploy a ready model version",
		Long: `Promotes a ready version to deployed. The currently deployed version,
if any, returns to ready. Any active A/B rollout is terminated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Deployment.DeployModel(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.Success("Deployed %s", args[0])
			return nil
		},
	}
}

// newRollbackCmd reverts to the previous ready version.
func newRollbackCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back to the previous ready version",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			reason, _ := cmd.Flags().GetString("reason")
			if reason == "" {
				reason = "manual rollback"
			}

			previous, err := app.Deployment.RollbackModel(cmd.Context(), reason)
			if err != nil {
				return err
			}
			output.Success("Rolled back to %s", previous.Version)
			return nil
		},
	}
	cmd.Flags().String("reason", "", "rollback reason recorded on the version")
	return cmd
}

// degradationRollback rolls the deployed model back when monitoring
// reports degradation. Installed only when rollback_on_degradation is
// enabled.
type degradationRollback struct {
	manager *deployment.Manager
}

func (p *degradationRollback) OnDegradation(ctx context.Context, version string, breached []string) error {
	_, err := p.manager.RollbackModel(ctx, "automatic: degraded "+strings.Join(breached, ", "))
	return err
}
