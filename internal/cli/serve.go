package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"modelctl/internal/errors"
	"modelctl/internal/telemetry"
)

// newServeCmd runs the control plane daemon: scheduler, metrics
// endpoint and event bus, until interrupted.
func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane daemon",
		Long: `Starts the scheduler with the configured default jobs (retraining,
health checks, drift monitoring, version cleanup, alert sweep) and the
Prometheus metrics endpoint, then blocks until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := registerDefaultJobs(app); err != nil {
				return err
			}

			if app.Config.Telemetry.Enabled {
				go telemetry.Serve(ctx, app.Config.Telemetry.Addr, app.Logger)
			}

			app.Scheduler.Start(ctx)
			output.Success("Control plane running, %d scheduled jobs", len(app.Scheduler.GetStatus().Jobs))
			output.Dim("Press Ctrl+C to stop")

			<-ctx.Done()

			app.Scheduler.Stop()
			app.Bus.Close()
			if err := app.Store.Close(); err != nil {
				app.Logger.Warn().Err(err).Msg("Store close failed")
			}
			output.Println()
			output.Info("Shutdown complete")
			return nil
		},
	}
}

// registerDefaultJobs wires the standing jobs onto the scheduler.
func registerDefaultJobs(app *App) error {
	sched := app.Config.Scheduler

	jobs := []struct {
		name string
		cron string
		fn   func(ctx context.Context) error
	}{
		{"retrain", sched.RetrainCron, func(ctx context.Context) error {
			_, err := app.Training.StartRetraining(ctx)
			if errors.Is(err, errors.ErrAlreadyRunning) {
				return nil
			}
			return err
		}},
		{"health-check", sched.HealthCheckCron, func(ctx context.Context) error {
			_, err := app.Deployment.CheckDeploymentHealth(ctx)
			return err
		}},
		{"drift-monitor", sched.MonitoringCron, func(ctx context.Context) error {
			current, err := app.Repo.GetCurrentModel(ctx)
			if errors.Is(err, errors.ErrNoDeployedModel) {
				return nil
			}
			if err != nil {
				return err
			}
			app.Monitoring.SweepVersion(ctx, current.Version)
			return nil
		}},
		{"cleanup", sched.CleanupCron, func(ctx context.Context) error {
			_, err := app.Repo.CleanupOldModels(ctx, app.Config.Deployment.RetentionCount)
			return err
		}},
		{"alert-sweep", sched.AlertSweepCron, func(ctx context.Context) error {
			app.Monitoring.SweepAlerts(ctx)
			return nil
		}},
	}

	for _, j := range jobs {
		if _, err := app.Scheduler.RegisterJob(j.name, j.cron, j.fn); err != nil {
			return err
		}
	}
	return nil
}
