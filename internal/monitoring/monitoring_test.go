package monitoring

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelctl/internal/config"
	"modelctl/internal/models"
	"modelctl/internal/notify"
	"modelctl/internal/store"
)

type captureNotifier struct {
	mu    sync.Mutex
	sent  []models.PerformanceAlert
	fail  error
	calls int
}

func (c *captureNotifier) NotifyCritical(_ context.Context, alert *models.PerformanceAlert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, *alert)
	return nil
}

func newTestService(notifier notify.Notifier) (*Service, *store.MemoryStore) {
	ms := store.NewMemoryStore()
	cfg := config.Default().Monitoring
	svc := NewService(cfg, ms, notifier, nil, nil, zerolog.Nop())
	return svc, ms
}

// winningTrades builds n trades with the given win rate, winners
// spread evenly so the drawdown curve stays moderate.
func winningTrades(n int, winRate float64) []models.TradeOutcome {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	wins := int(float64(n) * winRate)
	out := make([]models.TradeOutcome, n)
	for i := range out {
		profit := -50.0
		if (i*wins)/n != ((i+1)*wins)/n {
			profit = 100.0
		}
		out[i] = models.TradeOutcome{
			TradeID:  fmt.Sprintf("t%d", i),
			OpenedAt: base.Add(time.Duration(i) * time.Hour),
			ClosedAt: base.Add(time.Duration(i+1) * time.Hour),
			Profit:   profit,
		}
	}
	return out
}

func TestTrackPerformanceFreezesBaseline(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	first := svc.TrackPerformance(ctx, "v1", winningTrades(100, 0.55))
	baseline, ok := svc.GetBaseline("v1")
	if !ok {
		t.Fatal("baseline not frozen on first call")
	}
	if baseline.WinRate != first.WinRate {
		t.Errorf("baseline win rate %v, want %v", baseline.WinRate, first.WinRate)
	}

	// Later calls update the live view but never the baseline.
	svc.TrackPerformance(ctx, "v1", winningTrades(100, 0.35))
	after, _ := svc.GetBaseline("v1")
	if after.WinRate != baseline.WinRate {
		t.Error("baseline changed on second TrackPerformance call")
	}
	current, ok := svc.GetCurrentMetrics("v1")
	if !ok || current.WinRate == baseline.WinRate {
		t.Error("current metrics not updated")
	}
}

func TestTrackPerformanceRaisesDegradationAlerts(t *testing.T) {
	svc, ms := newTestService(nil)
	ctx := context.Background()

	svc.TrackPerformance(ctx, "v1", winningTrades(200, 0.55))
	svc.TrackPerformance(ctx, "v1", winningTrades(200, 0.35))

	alerts, err := ms.ListAlerts(ctx, store.AlertFilter{Type: models.AlertPerformanceDegradation})
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) == 0 {
		t.Fatal("no degradation alerts raised")
	}
	foundWinRate := false
	for _, a := range alerts {
		if a.Severity != models.SeverityHigh {
			t.Errorf("degradation alert severity %s, want high", a.Severity)
		}
		if a.Metric == "win_rate" {
			foundWinRate = true
		}
		if a.ModelVersion != "v1" {
			t.Errorf("alert version %s, want v1", a.ModelVersion)
		}
	}
	if !foundWinRate {
		t.Error("win_rate breach not alerted")
	}
}

func TestDetectDriftRelativeThreshold(t *testing.T) {
	svc, _ := newTestService(nil)

	baseline := models.ModelMetrics{WinRate: 0.55, TotalTrades: 500, WinningTrades: 275}
	current := models.ModelMetrics{WinRate: 0.35, TotalTrades: 500, WinningTrades: 175}

	report := svc.DetectDrift(current, baseline)
	if !report.Drifted {
		t.Fatal("0.55 to 0.35 win rate should be drift")
	}
	if len(report.BreachedMetrics) == 0 || report.BreachedMetrics[0] != "win_rate" {
		t.Errorf("breached = %v, want win_rate", report.BreachedMetrics)
	}
	if !report.Significant {
		t.Error("z-test on 500-trade arms should be significant")
	}
}

func TestDetectDriftStableMetrics(t *testing.T) {
	svc, _ := newTestService(nil)

	baseline := models.ModelMetrics{WinRate: 0.55, ProfitFactor: 1.8, SharpeRatio: 0.5, MaxDrawdown: 100, TotalTrades: 500, WinningTrades: 275}
	current := models.ModelMetrics{WinRate: 0.54, ProfitFactor: 1.75, SharpeRatio: 0.48, MaxDrawdown: 110, TotalTrades: 500, WinningTrades: 270}

	report := svc.DetectDrift(current, baseline)
	if report.Drifted {
		t.Errorf("small changes flagged as drift: %+v", report)
	}
}

func TestAcknowledgeAndResolveAreMonotone(t *testing.T) {
	svc, ms := newTestService(nil)
	ctx := context.Background()

	alert := svc.CreateAlert(ctx, &models.PerformanceAlert{
		Type:     models.AlertModelDrift,
		Severity: models.SeverityMedium,
		Message:  "drift on v1",
	})

	if err := svc.AcknowledgeAlert(ctx, alert.ID); err != nil {
		t.Fatal(err)
	}
	// A second acknowledge is a no-op, not an error.
	if err := svc.AcknowledgeAlert(ctx, alert.ID); err != nil {
		t.Fatal(err)
	}

	if err := svc.ResolveAlert(ctx, alert.ID, "retrained"); err != nil {
		t.Fatal(err)
	}
	got, err := ms.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatal(err)
	}
	firstResolved := *got.ResolvedAt

	// Resolving again must not move the resolution time.
	if err := svc.ResolveAlert(ctx, alert.ID, "again"); err != nil {
		t.Fatal(err)
	}
	got, _ = ms.GetAlert(ctx, alert.ID)
	if !got.ResolvedAt.Equal(firstResolved) {
		t.Error("ResolvedAt changed on repeat resolve")
	}
	if got.Resolution != "retrained" {
		t.Errorf("resolution overwritten to %q", got.Resolution)
	}
	if !got.Acknowledged {
		t.Error("acknowledged flag reverted")
	}
}

func TestCriticalAlertNotifies(t *testing.T) {
	notifier := &captureNotifier{}
	svc, _ := newTestService(notifier)
	ctx := context.Background()

	svc.CreateAlert(ctx, &models.PerformanceAlert{
		Type:     models.AlertPerformanceDegradation,
		Severity: models.SeverityCritical,
		Message:  "deployed model collapsed",
	})
	if len(notifier.sent) != 1 {
		t.Fatalf("notifier received %d alerts, want 1", len(notifier.sent))
	}

	// Non-critical alerts stay off the side channel.
	svc.CreateAlert(ctx, &models.PerformanceAlert{
		Type:     models.AlertModelDrift,
		Severity: models.SeverityHigh,
		Message:  "drifting",
	})
	if len(notifier.sent) != 1 {
		t.Error("non-critical alert was notified")
	}
}

func TestNotifierFailureDoesNotFailAlert(t *testing.T) {
	notifier := &captureNotifier{fail: context.DeadlineExceeded}
	svc, ms := newTestService(notifier)
	ctx := context.Background()

	alert := svc.CreateAlert(ctx, &models.PerformanceAlert{
		Type:     models.AlertPerformanceDegradation,
		Severity: models.SeverityCritical,
		Message:  "webhook is down",
	})
	if alert == nil || alert.ID == "" {
		t.Fatal("alert not created despite notifier failure")
	}
	if _, err := ms.GetAlert(ctx, alert.ID); err != nil {
		t.Error("alert not persisted despite notifier failure")
	}
}

func TestGetSystemHealth(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	health := svc.GetSystemHealth(ctx, "")
	if health.Level != models.HealthHealthy {
		t.Errorf("empty system health %s, want healthy", health.Level)
	}

	svc.CreateAlert(ctx, &models.PerformanceAlert{
		Type:     models.AlertPerformanceDegradation,
		Severity: models.SeverityCritical,
		Message:  "critical issue",
	})
	health = svc.GetSystemHealth(ctx, "")
	if health.Level != models.HealthError {
		t.Errorf("health %s with open critical alert, want error", health.Level)
	}
	if health.CriticalOpen != 1 {
		t.Errorf("CriticalOpen = %d, want 1", health.CriticalOpen)
	}
}

func TestGetSystemHealthDeployedWinRate(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	svc.TrackPerformance(ctx, "v1", winningTrades(200, 0.55))
	// Live win rate 30% is below the critical threshold.
	svc.TrackPerformance(ctx, "v1", winningTrades(200, 0.30))

	health := svc.GetSystemHealth(ctx, "v1")
	if health.Level != models.HealthError {
		t.Errorf("health %s with collapsed win rate, want error", health.Level)
	}
}

type recordingPolicy struct {
	mu       sync.Mutex
	versions []string
	breaches [][]string
}

func (p *recordingPolicy) OnDegradation(_ context.Context, version string, breached []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.versions = append(p.versions, version)
	p.breaches = append(p.breaches, breached)
	return nil
}

func TestRollbackPolicyInvokedOnlyWhenEnabled(t *testing.T) {
	ctx := context.Background()

	// Disabled by default: the policy must not fire.
	svc, _ := newTestService(nil)
	off := &recordingPolicy{}
	svc.SetRollbackPolicy(off)
	svc.TrackPerformance(ctx, "v1", winningTrades(200, 0.55))
	svc.TrackPerformance(ctx, "v1", winningTrades(200, 0.35))
	if len(off.versions) != 0 {
		t.Error("policy fired with rollback_on_degradation disabled")
	}

	// Enabled: a degradation invokes the policy with the breaches.
	cfg := config.Default().Monitoring
	cfg.RollbackOnDegradation = true
	ms := store.NewMemoryStore()
	svc2 := NewService(cfg, ms, nil, nil, nil, zerolog.Nop())
	on := &recordingPolicy{}
	svc2.SetRollbackPolicy(on)
	svc2.TrackPerformance(ctx, "v1", winningTrades(200, 0.55))
	svc2.TrackPerformance(ctx, "v1", winningTrades(200, 0.35))
	if len(on.versions) != 1 || on.versions[0] != "v1" {
		t.Fatalf("policy calls = %v, want one for v1", on.versions)
	}
	if len(on.breaches[0]) == 0 {
		t.Error("policy called without breached metrics")
	}
}
