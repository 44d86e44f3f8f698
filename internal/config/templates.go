package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# modelctl configuration

[retraining]
lookback_days = 30
min_trades_threshold = 100
max_trades_per_batch = 5000
holdout_fraction = 0.2
hyperparameter_search = false
search_trials = 10
optimization_metric = "composite" # sharpe, win_rate, profit_factor, composite
min_win_rate = 0.45
min_profit_factor = 1.2
max_drawdown_threshold = 0.25
min_trades_for_validation = 50
min_quality_score = 60.0
auto_deploy = false
collect_timeout = "2m"
train_timeout = "30m"

[deployment]
default_traffic_split = 50
min_trades_per_arm = 100
inconclusive_floor = 1000
significance_level = 0.05
min_practical_delta = 0.05
max_rollout_age = "168h"
stale_deployment_age = "24h"
retention_count = 10

[monitoring]
win_rate_drift_threshold = 0.10
profit_factor_drift_threshold = 0.20
sharpe_drift_threshold = 0.30
drawdown_drift_threshold = 0.50
critical_win_rate = 0.35
warning_win_rate = 0.45
critical_drawdown = 0.30
max_open_warnings = 3
rollback_on_degradation = false

[scheduler]
retrain_cron = "0 2 * * 7"
health_check_cron = "0 6 * * *"
monitoring_cron = "0 */6 * * *"
cleanup_cron = "30 3 * * 7"
alert_sweep_cron = "0 * * * *"

[notifications]
enabled = true
level = "critical_only" # all, critical_only

[notifications.console]
enabled = true

[notifications.webhook]
enabled = false
url = ""

[telemetry]
enabled = true
addr = ":9190"
`

// WriteTemplate writes a commented config.toml into configDir if one
// does not already exist. Returns the path written, or empty when the
// file was already present.
func WriteTemplate(configDir string) (string, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}
	return path, nil
}
