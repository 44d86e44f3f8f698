// Package config provides configuration management for the control plane.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"modelctl/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Retraining    RetrainingConfig   `mapstructure:"retraining"`
	Deployment    DeploymentConfig   `mapstructure:"deployment"`
	Monitoring    MonitoringConfig   `mapstructure:"monitoring"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Telemetry     TelemetryConfig    `mapstructure:"telemetry"`
}

// RetrainingConfig holds retraining pipeline configuration.
type RetrainingConfig struct {
	LookbackDays           int           `mapstructure:"lookback_days"`
	MinTradesThreshold     int           `mapstructure:"min_trades_threshold"`
	MaxTradesPerBatch      int           `mapstructure:"max_trades_per_batch"`
	HoldoutFraction        float64       `mapstructure:"holdout_fraction"`
	HyperparameterSearch   bool          `mapstructure:"hyperparameter_search"`
	SearchTrials           int           `mapstructure:"search_trials"`
	OptimizationMetric     string        `mapstructure:"optimization_metric"`
	MinWinRate             float64       `mapstructure:"min_win_rate"`
	MinProfitFactor        float64       `mapstructure:"min_profit_factor"`
	MaxDrawdownThreshold   float64       `mapstructure:"max_drawdown_threshold"`
	MinTradesForValidation int           `mapstructure:"min_trades_for_validation"`
	MinQualityScore        float64       `mapstructure:"min_quality_score"`
	AutoDeploy             bool          `mapstructure:"auto_deploy"`
	CollectTimeout         time.Duration `mapstructure:"collect_timeout"`
	TrainTimeout           time.Duration `mapstructure:"train_timeout"`
}

// DeploymentConfig holds deployment and rollout configuration.
type DeploymentConfig struct {
	DefaultTrafficSplit int           `mapstructure:"default_traffic_split"`
	MinTradesPerArm     int           `mapstructure:"min_trades_per_arm"`
	InconclusiveFloor   int           `mapstructure:"inconclusive_floor"`
	SignificanceLevel   float64       `mapstructure:"significance_level"`
	MinPracticalDelta   float64       `mapstructure:"min_practical_delta"`
	MaxRolloutAge       time.Duration `mapstructure:"max_rollout_age"`
	StaleDeploymentAge  time.Duration `mapstructure:"stale_deployment_age"`
	RetentionCount      int           `mapstructure:"retention_count"`
}

// MonitoringConfig holds drift and degradation monitoring configuration.
type MonitoringConfig struct {
	WinRateDriftThreshold      float64 `mapstructure:"win_rate_drift_threshold"`
	ProfitFactorDriftThreshold float64 `mapstructure:"profit_factor_drift_threshold"`
	SharpeDriftThreshold       float64 `mapstructure:"sharpe_drift_threshold"`
	DrawdownDriftThreshold     float64 `mapstructure:"drawdown_drift_threshold"`
	CriticalWinRate            float64 `mapstructure:"critical_win_rate"`
	WarningWinRate             float64 `mapstructure:"warning_win_rate"`
	CriticalDrawdown           float64 `mapstructure:"critical_drawdown"`
	MaxOpenWarnings            int     `mapstructure:"max_open_warnings"`
	RollbackOnDegradation      bool    `mapstructure:"rollback_on_degradation"`
}

// SchedulerConfig holds cron expressions for the default jobs.
type SchedulerConfig struct {
	RetrainCron     string `mapstructure:"retrain_cron"`
	HealthCheckCron string `mapstructure:"health_check_cron"`
	MonitoringCron  string `mapstructure:"monitoring_cron"`
	CleanupCron     string `mapstructure:"cleanup_cron"`
	AlertSweepCron  string `mapstructure:"alert_sweep_cron"`
}

// StorageConfig holds version store configuration.
type StorageConfig struct {
	Path     string        `mapstructure:"path"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Level   string        `mapstructure:"level"` // all, critical_only
	Console ConsoleConfig `mapstructure:"console"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// ConsoleConfig holds console notification configuration.
type ConsoleConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelemetryConfig holds the metrics endpoint configuration.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/modelctl"
	}
	return filepath.Join(home, ".config", "modelctl")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Retraining: RetrainingConfig{
			LookbackDays:           30,
			MinTradesThreshold:     100,
			MaxTradesPerBatch:      5000,
			HoldoutFraction:        0.2,
			HyperparameterSearch:   false,
			SearchTrials:           10,
			OptimizationMetric:     "composite",
			MinWinRate:             0.45,
			MinProfitFactor:        1.2,
			MaxDrawdownThreshold:   0.25,
			MinTradesForValidation: 50,
			MinQualityScore:        60,
			AutoDeploy:             false,
			CollectTimeout:         2 * time.Minute,
			TrainTimeout:           30 * time.Minute,
		},
		Deployment: DeploymentConfig{
			DefaultTrafficSplit: 50,
			MinTradesPerArm:     100,
			InconclusiveFloor:   1000,
			SignificanceLevel:   0.05,
			MinPracticalDelta:   0.05,
			MaxRolloutAge:       7 * 24 * time.Hour,
			StaleDeploymentAge:  24 * time.Hour,
			RetentionCount:      10,
		},
		Monitoring: MonitoringConfig{
			WinRateDriftThreshold:      0.10,
			ProfitFactorDriftThreshold: 0.20,
			SharpeDriftThreshold:       0.30,
			DrawdownDriftThreshold:     0.50,
			CriticalWinRate:            0.35,
			WarningWinRate:             0.45,
			CriticalDrawdown:           0.30,
			MaxOpenWarnings:            3,
			RollbackOnDegradation:      false,
		},
		Scheduler: SchedulerConfig{
			RetrainCron:     "0 2 * * 7",   // Sunday 02:00
			HealthCheckCron: "0 6 * * *",   // daily 06:00
			MonitoringCron:  "0 */6 * * *", // every 6 hours
			CleanupCron:     "30 3 * * 7",  // Sunday 03:30
			AlertSweepCron:  "0 * * * *",   // hourly
		},
		Storage: StorageConfig{
			Path:     filepath.Join(DefaultConfigDir(), "modelctl.db"),
			CacheTTL: 5 * time.Minute,
		},
		Notifications: NotificationConfig{
			Enabled: true,
			Level:   "critical_only",
			Console: ConsoleConfig{Enabled: true},
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			Addr:    ":9190",
		},
	}
}

// Load loads configuration from the specified directory, falling back
// to defaults for anything not set. If configDir is empty, the default
// config directory is used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MODELCTL_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("MODELCTL_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
		cfg.Notifications.Webhook.Enabled = true
	}
	if v := os.Getenv("MODELCTL_METRICS_ADDR"); v != "" {
		cfg.Telemetry.Addr = v
	}
}

// Validate validates the configuration. All threshold errors surface
// here at load time, never during a scheduled run.
func (c *Config) Validate() error {
	r := c.Retraining
	if r.LookbackDays <= 0 {
		return fmt.Errorf("lookback_days must be positive")
	}
	if r.MinTradesThreshold <= 0 {
		return fmt.Errorf("min_trades_threshold must be positive")
	}
	if r.HoldoutFraction <= 0 || r.HoldoutFraction >= 1 {
		return fmt.Errorf("holdout_fraction must be in (0, 1)")
	}
	if r.MinWinRate < 0 || r.MinWinRate > 1 {
		return fmt.Errorf("min_win_rate must be between 0 and 1")
	}
	if r.MinProfitFactor < 0 {
		return fmt.Errorf("min_profit_factor must be non-negative")
	}
	switch r.OptimizationMetric {
	case "sharpe", "win_rate", "profit_factor", "composite":
	default:
		return fmt.Errorf("invalid optimization_metric: %s", r.OptimizationMetric)
	}

	d := c.Deployment
	if d.DefaultTrafficSplit < 0 || d.DefaultTrafficSplit > 100 {
		return fmt.Errorf("default_traffic_split must be between 0 and 100")
	}
	if d.SignificanceLevel <= 0 || d.SignificanceLevel >= 1 {
		return fmt.Errorf("significance_level must be in (0, 1)")
	}
	if d.RetentionCount < 1 {
		return fmt.Errorf("retention_count must be at least 1")
	}

	m := c.Monitoring
	for name, t := range map[string]float64{
		"win_rate_drift_threshold":      m.WinRateDriftThreshold,
		"profit_factor_drift_threshold": m.ProfitFactorDriftThreshold,
		"sharpe_drift_threshold":        m.SharpeDriftThreshold,
		"drawdown_drift_threshold":      m.DrawdownDriftThreshold,
	} {
		if t <= 0 || t > 1 {
			return fmt.Errorf("%s must be in (0, 1]", name)
		}
	}

	if c.Notifications.Level != "" && c.Notifications.Level != "all" && c.Notifications.Level != "critical_only" {
		return fmt.Errorf("invalid notification level: %s", c.Notifications.Level)
	}

	return nil
}

// TrainingConfig converts the retraining section into the per-job
// config snapshot persisted with each model version.
func (c *Config) TrainingConfig() models.TrainingConfig {
	r := c.Retraining
	return models.TrainingConfig{
		LookbackDays:           r.LookbackDays,
		MinTradesThreshold:     r.MinTradesThreshold,
		MaxTradesPerBatch:      r.MaxTradesPerBatch,
		HoldoutFraction:        r.HoldoutFraction,
		HyperparameterSearch:   r.HyperparameterSearch,
		SearchTrials:           r.SearchTrials,
		OptimizationMetric:     r.OptimizationMetric,
		MinWinRate:             r.MinWinRate,
		MinProfitFactor:        r.MinProfitFactor,
		MaxDrawdownThreshold:   r.MaxDrawdownThreshold,
		MinTradesForValidation: r.MinTradesForValidation,
		AutoDeploy:             r.AutoDeploy,
	}
}
