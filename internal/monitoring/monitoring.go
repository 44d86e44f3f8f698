// Package monitoring computes live model performance, detects drift
// against frozen baselines, and manages the performance alert trail.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"modelctl/internal/config"
	"modelctl/internal/events"
	"modelctl/internal/models"
	"modelctl/internal/notify"
	"modelctl/internal/stats"
	"modelctl/internal/store"
	"modelctl/internal/telemetry"
)

// RollbackPolicy decides whether a degradation should trigger an
// automatic rollback. It is invoked after degradation alerts are
// raised; the default policy does nothing.
type RollbackPolicy interface {
	OnDegradation(ctx context.Context, version string, breached []string) error
}

// Service is the monitoring component. All entry points are
// best-effort: internal failures are logged and never propagated to
// callers feeding trade data.
type Service struct {
	cfg      config.MonitoringConfig
	alerts   store.AlertStore
	notifier notify.Notifier
	bus      *events.Bus
	recorder *telemetry.Recorder
	logger   zerolog.Logger

	mu        sync.RWMutex
	baselines map[string]models.ModelMetrics
	counts    map[string]baselineCounts
	current   map[string]models.ModelMetrics
	policy    RollbackPolicy
}

type baselineCounts struct {
	trades int
	wins   int
}

// NewService creates the monitoring service.
func NewService(cfg config.MonitoringConfig, alerts store.AlertStore, notifier notify.Notifier, bus *events.Bus, recorder *telemetry.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		alerts:    alerts,
		notifier:  notifier,
		bus:       bus,
		recorder:  recorder,
		logger:    logger.With().Str("component", "monitoring").Logger(),
		baselines: make(map[string]models.ModelMetrics),
		counts:    make(map[string]baselineCounts),
		current:   make(map[string]models.ModelMetrics),
	}
}

// SetRollbackPolicy installs the degradation rollback policy.
func (s *Service) SetRollbackPolicy(p RollbackPolicy) {
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
}

// TrackPerformance computes metrics for a version from its trade
// outcomes. The first call for a version freezes the baseline
// snapshot; subsequent calls update the live view and run degradation
// checks against that baseline.
func (s *Service) TrackPerformance(ctx context.Context, version string, trades []models.TradeOutcome) models.ModelMetrics {
	metrics := ComputeMetrics(trades)

	s.mu.Lock()
	baseline, hasBaseline := s.baselines[version]
	if !hasBaseline {
		s.baselines[version] = metrics
		s.counts[version] = baselineCounts{trades: metrics.TotalTrades, wins: metrics.WinningTrades}
	}
	s.current[version] = metrics
	policy := s.policy
	s.mu.Unlock()

	if !hasBaseline {
		s.logger.Info().Str("version", version).Int("trades", metrics.TotalTrades).Msg("Baseline metrics frozen")
		return metrics
	}

	breached := s.breachedMetrics(metrics, baseline)
	for _, metric := range breached {
		s.raiseAlert(ctx, &models.PerformanceAlert{
			Type:         models.AlertPerformanceDegradation,
			Severity:     models.SeverityHigh,
			Message:      fmt.Sprintf("model %s: %s degraded beyond threshold", version, metric),
			ModelVersion: version,
			Metric:       metric,
			Details: map[string]interface{}{
				"baseline": baselineValue(baseline, metric),
				"current":  baselineValue(metrics, metric),
			},
		})
	}

	if len(breached) > 0 && s.cfg.RollbackOnDegradation && policy != nil {
		if err := policy.OnDegradation(ctx, version, breached); err != nil {
			s.logger.Warn().Err(err).Str("version", version).Msg("Degradation rollback policy failed")
		}
	}

	return metrics
}

// GetBaseline returns the frozen baseline for a version, if any.
func (s *Service) GetBaseline(version string) (models.ModelMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[version]
	return b, ok
}

// GetCurrentMetrics returns the latest computed metrics for a version.
func (s *Service) GetCurrentMetrics(version string) (models.ModelMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.current[version]
	return m, ok
}

// DriftReport describes a drift verdict.
type DriftReport struct {
	Drifted         bool
	BreachedMetrics []string
	PValue          float64
	Significant     bool
}

// DetectDrift compares current metrics to a baseline. Drift is flagged
// when any per-metric relative change exceeds its threshold, or when a
// two-proportion z-test on win rate is significant at 5%.
func (s *Service) DetectDrift(current, baseline models.ModelMetrics) DriftReport {
	report := DriftReport{
		BreachedMetrics: s.breachedMetrics(current, baseline),
	}

	zt := stats.TwoProportionZTest(
		baseline.WinningTrades, baseline.TotalTrades,
		current.WinningTrades, current.TotalTrades,
	)
	report.PValue = zt.PValue
	report.Significant = zt.PValue < 0.05

	report.Drifted = len(report.BreachedMetrics) > 0 || report.Significant
	return report
}

// breachedMetrics returns the metric names whose relative change from
// the baseline exceeds the configured per-metric thresholds.
func (s *Service) breachedMetrics(current, baseline models.ModelMetrics) []string {
	var breached []string
	checks := []struct {
		name      string
		current   float64
		baseline  float64
		threshold float64
	}{
		{"win_rate", current.WinRate, baseline.WinRate, s.cfg.WinRateDriftThreshold},
		{"profit_factor", current.ProfitFactor, baseline.ProfitFactor, s.cfg.ProfitFactorDriftThreshold},
		{"sharpe_ratio", current.SharpeRatio, baseline.SharpeRatio, s.cfg.SharpeDriftThreshold},
		{"max_drawdown", current.MaxDrawdown, baseline.MaxDrawdown, s.cfg.DrawdownDriftThreshold},
	}
	for _, c := range checks {
		if stats.RelativeChange(c.current, c.baseline) > c.threshold {
			breached = append(breached, c.name)
		}
	}
	return breached
}

func baselineValue(m models.ModelMetrics, metric string) float64 {
	switch metric {
	case "win_rate":
		return m.WinRate
	case "profit_factor":
		return m.ProfitFactor
	case "sharpe_ratio":
		return m.SharpeRatio
	case "max_drawdown":
		return m.MaxDrawdown
	default:
		return 0
	}
}

// SweepVersion runs drift detection for a version against its frozen
// baseline and raises a drift alert when warranted. Used by the
// periodic monitoring job.
func (s *Service) SweepVersion(ctx context.Context, version string) {
	s.mu.RLock()
	baseline, hasBaseline := s.baselines[version]
	current, hasCurrent := s.current[version]
	s.mu.RUnlock()

	if !hasBaseline || !hasCurrent {
		return
	}

	report := s.DetectDrift(current, baseline)
	if !report.Drifted {
		return
	}

	severity := models.SeverityMedium
	if report.Significant || len(report.BreachedMetrics) >= 2 {
		severity = models.SeverityHigh
	}

	s.raiseAlert(ctx, &models.PerformanceAlert{
		Type:         models.AlertModelDrift,
		Severity:     severity,
		Message:      fmt.Sprintf("model %s drifted from baseline", version),
		ModelVersion: version,
		Details: map[string]interface{}{
			"breached_metrics": report.BreachedMetrics,
			"p_value":          report.PValue,
		},
	})
}

// CreateAlert records a new alert and notifies on critical severity.
func (s *Service) CreateAlert(ctx context.Context, alert *models.PerformanceAlert) *models.PerformanceAlert {
	return s.raiseAlert(ctx, alert)
}

func (s *Service) raiseAlert(ctx context.Context, alert *models.PerformanceAlert) *models.PerformanceAlert {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	if err := s.alerts.SaveAlert(ctx, alert); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist alert")
	}
	if s.recorder != nil {
		s.recorder.RecordAlert(string(alert.Severity))
	}
	if s.bus != nil {
		s.bus.Emit(events.Event{
			Type:    events.AlertTriggered,
			AlertID: alert.ID,
			Version: alert.ModelVersion,
			Message: alert.Message,
		})
	}

	// Critical alerts go out the side channel. Delivery failures are
	// logged, never propagated.
	if alert.Severity == models.SeverityCritical && s.notifier != nil {
		if err := s.notifier.NotifyCritical(ctx, alert); err != nil {
			s.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("Critical alert notification failed")
		}
	}

	s.logger.Warn().
		Str("alert_id", alert.ID).
		Str("type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Msg(alert.Message)
	return alert
}

// AcknowledgeAlert marks an alert acknowledged. Acknowledgement is
// monotone: an acknowledged alert never reverts.
func (s *Service) AcknowledgeAlert(ctx context.Context, id string) error {
	alert, err := s.alerts.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if alert.Acknowledged {
		return nil
	}
	alert.Acknowledged = true
	return s.alerts.SaveAlert(ctx, alert)
}

// ResolveAlert marks an alert resolved with the given resolution note.
func (s *Service) ResolveAlert(ctx context.Context, id, resolution string) error {
	alert, err := s.alerts.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if alert.ResolvedAt != nil {
		return nil
	}
	now := time.Now()
	alert.ResolvedAt = &now
	alert.Resolution = resolution
	return s.alerts.SaveAlert(ctx, alert)
}

// GetActiveAlerts returns unresolved alerts, newest first.
func (s *Service) GetActiveAlerts(ctx context.Context) ([]models.PerformanceAlert, error) {
	return s.alerts.ListAlerts(ctx, store.AlertFilter{UnresolvedOnly: true})
}

// SweepAlerts re-notifies any unacknowledged critical alerts so they
// are not lost between operator sessions. Used by the hourly job.
func (s *Service) SweepAlerts(ctx context.Context) {
	open, err := s.alerts.ListAlerts(ctx, store.AlertFilter{
		Severity:       models.SeverityCritical,
		UnresolvedOnly: true,
		UnackedOnly:    true,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Alert sweep failed to list alerts")
		return
	}

	for i := range open {
		alert := open[i]
		if s.notifier == nil {
			break
		}
		if err := s.notifier.NotifyCritical(ctx, &alert); err != nil {
			s.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("Alert sweep notification failed")
		}
	}
}

// GetSystemHealth aggregates the alert trail and the deployed model's
// live metrics into the operator-facing health verdict.
func (s *Service) GetSystemHealth(ctx context.Context, deployedVersion string) models.SystemHealth {
	health := models.SystemHealth{Level: models.HealthHealthy, CheckedAt: time.Now()}

	open, err := s.alerts.ListAlerts(ctx, store.AlertFilter{UnresolvedOnly: true})
	if err != nil {
		health.Level = models.HealthWarning
		health.Issues = append(health.Issues, "alert store unavailable")
		s.logger.Warn().Err(err).Msg("Health check failed to read alerts")
		return health
	}

	health.OpenAlerts = len(open)
	unackedWarnings := 0
	for _, a := range open {
		if a.Acknowledged {
			continue
		}
		switch a.Severity {
		case models.SeverityCritical:
			health.CriticalOpen++
		case models.SeverityHigh, models.SeverityMedium:
			unackedWarnings++
		}
	}

	if health.CriticalOpen > 0 {
		health.Level = models.HealthError
		health.Issues = append(health.Issues, fmt.Sprintf("%d unacknowledged critical alerts", health.CriticalOpen))
	}

	if deployedVersion != "" {
		if m, ok := s.GetCurrentMetrics(deployedVersion); ok && m.TotalTrades > 0 {
			if m.WinRate < s.cfg.CriticalWinRate {
				health.Level = models.HealthError
				health.Issues = append(health.Issues, fmt.Sprintf("deployed win rate %.2f below critical threshold", m.WinRate))
			} else if m.WinRate < s.cfg.WarningWinRate && health.Level == models.HealthHealthy {
				health.Level = models.HealthWarning
				health.Issues = append(health.Issues, fmt.Sprintf("deployed win rate %.2f below warning threshold", m.WinRate))
			}
			if m.TotalProfit > 0 && m.MaxDrawdown/m.TotalProfit > s.cfg.CriticalDrawdown && health.Level == models.HealthHealthy {
				health.Level = models.HealthWarning
				health.Issues = append(health.Issues, "deployed drawdown above critical threshold")
			}
		}
	}

	if unackedWarnings > s.cfg.MaxOpenWarnings && health.Level == models.HealthHealthy {
		health.Level = models.HealthWarning
		health.Issues = append(health.Issues, fmt.Sprintf("%d unacknowledged warnings", unackedWarnings))
	}

	return health
}
