package cli

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelctl/internal/config"
	"modelctl/internal/deployment"
	"modelctl/internal/events"
	"modelctl/internal/logging"
	"modelctl/internal/monitoring"
	"modelctl/internal/notify"
	"modelctl/internal/repository"
	"modelctl/internal/scheduler"
	"modelctl/internal/store"
	"modelctl/internal/telemetry"
	"modelctl/internal/training"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the wired application dependencies shared by commands.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Ring       *logging.RingBuffer
	Store      store.ControlPlaneStore
	Repo       *repository.ModelRepository
	Bus        *events.Bus
	Recorder   *telemetry.Recorder
	Notifier   notify.Notifier
	Monitoring *monitoring.Service
	Deployment *deployment.Manager
	Training   *training.Service
	Scheduler  *scheduler.Scheduler
}

// NewRootCmd creates the root command and wires the application.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger, ring *logging.RingBuffer) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
		Ring:   ring,
	}

	dataStore, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to open store, falling back to in-memory")
		app.Store = store.NewMemoryStore()
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Storage.Path).Msg("SQLite store opened")
	}

	app.Bus = events.NewBus(logger)
	app.Recorder = telemetry.New()
	app.Repo = repository.New(app.Store, logger, cfg.Storage.CacheTTL)

	if cfg.Notifications.Enabled {
		app.Notifier = notify.NewMultiNotifier(&cfg.Notifications)
	}

	app.Monitoring = monitoring.NewService(cfg.Monitoring, app.Store, app.Notifier, app.Bus, app.Recorder, logger)
	app.Deployment = deployment.NewManager(app.Repo, app.Store, cfg.Deployment, app.Bus, app.Recorder, logger)

	if cfg.Monitoring.RollbackOnDegradation {
		app.Monitoring.SetRollbackPolicy(&degradationRollback{manager: app.Deployment})
	}

	collector := training.NewMemoryCollector()
	trainer := training.NewSimTrainer(42)
	app.Training = training.NewService(cfg.Retraining, collector, trainer, app.Repo, app.Store, app.Deployment, app.Monitoring, app.Bus, app.Recorder, logger)

	app.Scheduler = scheduler.New(logger, app.Recorder)

	rootCmd := &cobra.Command{
		Use:   "modelctl",
		Short: "Model lifecycle control plane for trading signal models",
		Long: `modelctl orchestrates the lifecycle of trading signal models:
scheduled retraining, versioned model storage, guarded deployments
with rollback, A/B rollouts, and drift monitoring with alerting.

Use 'modelctl help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/modelctl)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newHealthCmd(app))
	rootCmd.AddCommand(newRetrainCmd(app))
	rootCmd.AddCommand(newJobsCmd(app))
	rootCmd.AddCommand(newVersionsCmd(app))
	rootCmd.AddCommand(newDeployCmd(app))
	rootCmd.AddCommand(newRollbackCmd(app))
	rootCmd.AddCommand(newABTestCmd(app))
	rootCmd.AddCommand(newAlertsCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("modelctl v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a commented config.toml template",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			configDir, _ := cmd.Flags().GetString("config")
			path, err := config.WriteTemplate(configDir)
			if err != nil {
				return err
			}
			if path == "" {
				output.Info("Config already exists at %s", filepath.Join(config.DefaultConfigDir(), "config.toml"))
			} else {
				output.Success("Wrote %s", path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Retraining")
	output.Printf("  Lookback:         %d days\n", cfg.Retraining.LookbackDays)
	output.Printf("  Min Trades:       %d\n", cfg.Retraining.MinTradesThreshold)
	output.Printf("  Gate:             win_rate>=%.2f pf>=%.2f dd<=%.2f\n",
		cfg.Retraining.MinWinRate, cfg.Retraining.MinProfitFactor, cfg.Retraining.MaxDrawdownThreshold)
	output.Printf("  Auto Deploy:      %v\n", cfg.Retraining.AutoDeploy)
	output.Println()

	output.Bold("Deployment")
	output.Printf("  Traffic Split:    %d%%\n", cfg.Deployment.DefaultTrafficSplit)
	output.Printf("  Min Trades/Arm:   %d\n", cfg.Deployment.MinTradesPerArm)
	output.Printf("  Significance:     %.2f\n", cfg.Deployment.SignificanceLevel)
	output.Printf("  Retention:        %d versions\n", cfg.Deployment.RetentionCount)
	output.Println()

	output.Bold("Scheduler")
	output.Printf("  Retrain:          %s\n", cfg.Scheduler.RetrainCron)
	output.Printf("  Health Check:     %s\n", cfg.Scheduler.HealthCheckCron)
	output.Printf("  Monitoring:       %s\n", cfg.Scheduler.MonitoringCron)
	output.Printf("  Cleanup:          %s\n", cfg.Scheduler.CleanupCron)
	output.Printf("  Alert Sweep:      %s\n", cfg.Scheduler.AlertSweepCron)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Path:             %s\n", cfg.Storage.Path)
	output.Printf("  Cache TTL:        %s\n", cfg.Storage.CacheTTL)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:          %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:            %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:          %v\n", cfg.Notifications.Webhook.Enabled)
}
