// Package deployment drives the model deployment state machine and
// A/B rollouts between a deployed version and a challenger.
package deployment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"modelctl/internal/config"
	"modelctl/internal/errors"
	"modelctl/internal/events"
	"modelctl/internal/models"
	"modelctl/internal/repository"
	"modelctl/internal/stats"
	"modelctl/internal/store"
	"modelctl/internal/telemetry"
)

// Manager owns deployment transitions and rollout lifecycle. All
// mutating operations are serialized through one mutex so the
// single-active-rollout invariant holds alongside the repository's
// single-deployed-version invariant.
type Manager struct {
	repo     *repository.ModelRepository
	rollouts store.RolloutStore
	cfg      config.DeploymentConfig
	bus      *events.Bus
	recorder *telemetry.Recorder
	logger   zerolog.Logger

	mu sync.Mutex
}

// NewManager creates a deployment manager.
func NewManager(repo *repository.ModelRepository, rollouts store.RolloutStore, cfg config.DeploymentConfig, bus *events.Bus, recorder *telemetry.Recorder, logger zerolog.Logger) *Manager {
	return &Manager{
		repo:     repo,
		rollouts: rollouts,
		cfg:      cfg,
		bus:      bus,
		recorder: recorder,
		logger:   logger.With().Str("component", "deployment").Logger(),
	}
}

// DeployModel promotes a ready version to deployed. Any active rollout
// is terminated first: a direct deployment supersedes a running test.
func (m *Manager) DeployModel(ctx context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.terminateActive(ctx, models.TerminationCancelledDueToDeploy); err != nil {
		return err
	}

	target, previous, err := m.repo.Deploy(ctx, version)
	if err != nil {
		return err
	}

	if m.recorder != nil {
		m.recorder.RecordDeployment()
		m.recorder.SetDeployedAge(0)
	}
	prevLabel := ""
	if previous != nil {
		prevLabel = previous.Version
	}
	m.bus.Emit(events.Event{
		Type:    events.ModelDeployed,
		Version: target.Version,
		Message: fmt.Sprintf("deployed %s (previous: %s)", target.Version, prevLabel),
	})
	return nil
}

// RollbackModel reverts to the most recent ready version created
// strictly before the deployed one. The deployed version is marked
// rolled_back with the given reason; that state is terminal.
func (m *Manager) RollbackModel(ctx context.Context, reason string) (*models.ModelVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.repo.GetCurrentModel(ctx)
	if err != nil {
		return nil, err
	}

	versions, err := m.repo.ListVersions(ctx)
	if err != nil {
		return nil, err
	}

	var previous *models.ModelVersion
	for i := range versions {
		v := versions[i]
		if v.Status != models.StatusReady {
			continue
		}
		if !v.CreatedAt.Before(current.CreatedAt) {
			continue
		}
		if previous == nil || v.CreatedAt.After(previous.CreatedAt) {
			previous = &v
		}
	}
	if previous == nil {
		return nil, errors.NewDeploymentError(current.Version, "rollback", errors.ErrNoPreviousVersion)
	}

	if err := m.terminateActive(ctx, models.TerminationCancelledDueToDeploy); err != nil {
		return nil, err
	}

	if err := m.repo.MarkRolledBack(ctx, current.Version, reason); err != nil {
		return nil, err
	}
	if _, _, err := m.repo.Deploy(ctx, previous.Version); err != nil {
		return nil, err
	}

	if m.recorder != nil {
		m.recorder.RecordRollback()
	}
	m.bus.Emit(events.Event{
		Type:    events.ModelRolledBack,
		Version: current.Version,
		Message: fmt.Sprintf("rolled back %s to %s: %s", current.Version, previous.Version, reason),
	})
	m.logger.Warn().
		Str("from", current.Version).
		Str("to", previous.Version).
		Str("reason", reason).
		Msg("Model rolled back")
	return previous, nil
}

// StartABTest begins a rollout splitting traffic between two distinct
// versions. A prior active rollout is terminated as replaced. The
// traffic split is the percentage routed to version B; zero selects
// the configured default.
func (m *Manager) StartABTest(ctx context.Context, versionA, versionB string, trafficSplit int) (*models.ABRollout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if versionA == versionB {
		return nil, errors.ErrSameVersion
	}
	if trafficSplit == 0 {
		trafficSplit = m.cfg.DefaultTrafficSplit
	}
	if trafficSplit < 0 || trafficSplit > 100 {
		return nil, errors.NewConfigError("traffic_split", trafficSplit, "must be between 0 and 100")
	}

	for _, version := range []string{versionA, versionB} {
		v, err := m.repo.LoadModel(ctx, version)
		if err != nil {
			return nil, err
		}
		if v.Status != models.StatusReady && v.Status != models.StatusDeployed {
			return nil, errors.NewDeploymentError(version, "ab_test", errors.ErrModelNotReady)
		}
	}

	if err := m.terminateActive(ctx, models.TerminationReplacedByNewTest); err != nil {
		return nil, err
	}

	rollout := &models.ABRollout{
		ID:            uuid.NewString(),
		ModelAVersion: versionA,
		ModelBVersion: versionB,
		TrafficSplit:  trafficSplit,
		StartTime:     time.Now(),
		Status:        models.RolloutActive,
	}
	if err := m.rollouts.SaveRollout(ctx, rollout); err != nil {
		return nil, err
	}

	if m.recorder != nil {
		m.recorder.SetActiveRollout(true)
	}
	m.bus.Emit(events.Event{
		Type:      events.ABTestStarted,
		RolloutID: rollout.ID,
		Message:   fmt.Sprintf("A/B test started: %s vs %s (%d%% to B)", versionA, versionB, trafficSplit),
	})
	return rollout, nil
}

// UpdateABTestMetrics merges fresh per-arm aggregates into an active
// rollout and refreshes the significance verdict.
func (m *Manager) UpdateABTestMetrics(ctx context.Context, id string, armA, armB models.ArmMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rollout, err := m.rollouts.GetRollout(ctx, id)
	if err != nil {
		return err
	}
	if rollout.Status != models.RolloutActive {
		return errors.ErrRolloutNotActive
	}

	armA.WinRate = winRate(armA)
	armB.WinRate = winRate(armB)

	zt := stats.TwoProportionZTest(armA.Wins, armA.Trades, armB.Wins, armB.Trades)
	rollout.Metrics = models.RolloutMetrics{
		ModelA:                  armA,
		ModelB:                  armB,
		PValue:                  zt.PValue,
		StatisticalSignificance: zt.PValue < m.cfg.SignificanceLevel,
	}
	return m.rollouts.SaveRollout(ctx, rollout)
}

// GetABTestResults evaluates a rollout against the decision rule:
// continue until both arms clear the trade floor; stop and deploy the
// better arm when the win-rate difference is both statistically
// significant and practically meaningful; stop inconclusive once both
// arms are large without a significant difference.
func (m *Manager) GetABTestResults(ctx context.Context, id string) (*models.ABTestResults, error) {
	rollout, err := m.rollouts.GetRollout(ctx, id)
	if err != nil {
		return nil, err
	}
	results := m.evaluate(rollout)
	return results, nil
}

func (m *Manager) evaluate(rollout *models.ABRollout) *models.ABTestResults {
	a := rollout.Metrics.ModelA
	b := rollout.Metrics.ModelB

	zt := stats.TwoProportionZTest(a.Wins, a.Trades, b.Wins, b.Trades)
	results := &models.ABTestResults{
		Rollout: *rollout,
		Delta:   zt.Delta,
		ZScore:  zt.ZScore,
		PValue:  zt.PValue,
	}

	if a.Trades < m.cfg.MinTradesPerArm || b.Trades < m.cfg.MinTradesPerArm {
		results.Recommendation = models.RecommendContinue
		results.Confidence = 0.5
		return results
	}

	significant := zt.PValue < m.cfg.SignificanceLevel
	practical := abs(zt.Delta) > m.cfg.MinPracticalDelta

	switch {
	case significant && practical:
		if zt.Delta > 0 {
			results.Recommendation = models.RecommendStopAndDeployB
		} else {
			results.Recommendation = models.RecommendStopAndDeployA
		}
		results.Confidence = 1 - zt.PValue
	case a.Trades > m.cfg.InconclusiveFloor && b.Trades > m.cfg.InconclusiveFloor:
		results.Recommendation = models.RecommendStopInconclusive
		results.Confidence = 0.8
	default:
		results.Recommendation = models.RecommendContinue
		results.Confidence = 0.5
	}
	return results
}

// EndABTest completes an active rollout, recording the winner from the
// current decision rule. When deployWinner is set and the rule names a
// winner, that version is deployed.
func (m *Manager) EndABTest(ctx context.Context, id string, deployWinner bool) (*models.ABTestResults, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rollout, err := m.rollouts.GetRollout(ctx, id)
	if err != nil {
		return nil, err
	}
	if rollout.Status != models.RolloutActive {
		return nil, errors.ErrRolloutNotActive
	}

	results := m.evaluate(rollout)

	now := time.Now()
	rollout.Status = models.RolloutCompleted
	rollout.EndTime = &now

	var winnerVersion string
	switch results.Recommendation {
	case models.RecommendStopAndDeployA:
		rollout.Winner = models.WinnerA
		winnerVersion = rollout.ModelAVersion
	case models.RecommendStopAndDeployB:
		rollout.Winner = models.WinnerB
		winnerVersion = rollout.ModelBVersion
	default:
		rollout.Winner = models.WinnerInconclusive
	}

	if err := m.rollouts.SaveRollout(ctx, rollout); err != nil {
		return nil, err
	}
	results.Rollout = *rollout

	if m.recorder != nil {
		m.recorder.SetActiveRollout(false)
	}
	m.bus.Emit(events.Event{
		Type:      events.ABTestCompleted,
		RolloutID: rollout.ID,
		Message:   fmt.Sprintf("A/B test completed: winner %s (%s)", rollout.Winner, results.Recommendation),
	})

	if deployWinner && winnerVersion != "" {
		if _, _, err := m.repo.Deploy(ctx, winnerVersion); err != nil {
			return results, err
		}
		if m.recorder != nil {
			m.recorder.RecordDeployment()
		}
		m.bus.Emit(events.Event{
			Type:    events.ModelDeployed,
			Version: winnerVersion,
			Message: fmt.Sprintf("deployed A/B winner %s", winnerVersion),
		})
	}
	return results, nil
}

// CancelABTest terminates an active rollout by operator action without
// recording a winner.
func (m *Manager) CancelABTest(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rollout, err := m.rollouts.GetRollout(ctx, id)
	if err != nil {
		return err
	}
	if rollout.Status != models.RolloutActive {
		return errors.ErrRolloutNotActive
	}
	return m.terminateRollout(ctx, rollout, models.TerminationCancelledByOperator)
}

// GetActiveRollout returns the active rollout, or ErrRolloutNotFound
// when none is running.
func (m *Manager) GetActiveRollout(ctx context.Context) (*models.ABRollout, error) {
	rollouts, err := m.rollouts.ListRollouts(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := range rollouts {
		if rollouts[i].Status == models.RolloutActive {
			r := rollouts[i]
			return &r, nil
		}
	}
	return nil, errors.ErrRolloutNotFound
}

// ListRollouts returns recent rollouts, newest first.
func (m *Manager) ListRollouts(ctx context.Context, limit int) ([]models.ABRollout, error) {
	return m.rollouts.ListRollouts(ctx, limit)
}

// DeploymentStatus is the combined deployment view for the status
// surface. Either field may be nil.
type DeploymentStatus struct {
	Deployed      *models.ModelVersion
	ActiveRollout *models.ABRollout
}

// GetDeploymentStatus reports the deployed version and the active
// rollout, if any.
func (m *Manager) GetDeploymentStatus(ctx context.Context) (*DeploymentStatus, error) {
	status := &DeploymentStatus{}

	current, err := m.repo.GetCurrentModel(ctx)
	switch {
	case err == nil:
		status.Deployed = current
	case errors.Is(err, errors.ErrNoDeployedModel):
	default:
		return nil, err
	}

	rollout, err := m.GetActiveRollout(ctx)
	switch {
	case err == nil:
		status.ActiveRollout = rollout
	case errors.Is(err, errors.ErrRolloutNotFound):
	default:
		return nil, err
	}
	return status, nil
}

// HealthReport is the outcome of a deployment health sweep.
type HealthReport struct {
	DeployedVersion string
	DeployedAge     time.Duration
	StaleDeployment bool
	RolloutSwept    string
	Issues          []string
}

// CheckDeploymentHealth runs the periodic sweep: rollouts past the
// maximum age are terminated, and a deployment older than the stale
// threshold is reported so the retrain schedule can be inspected.
func (m *Manager) CheckDeploymentHealth(ctx context.Context) (*HealthReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &HealthReport{}

	current, err := m.repo.GetCurrentModel(ctx)
	switch {
	case err == nil:
		report.DeployedVersion = current.Version
		if current.DeployedAt != nil {
			report.DeployedAge = time.Since(*current.DeployedAt)
		}
		if m.cfg.StaleDeploymentAge > 0 && report.DeployedAge > m.cfg.StaleDeploymentAge {
			report.StaleDeployment = true
			report.Issues = append(report.Issues, fmt.Sprintf("deployed version %s is %s old", current.Version, report.DeployedAge.Round(time.Minute)))
		}
		if m.recorder != nil {
			m.recorder.SetDeployedAge(report.DeployedAge)
		}
	case errors.Is(err, errors.ErrNoDeployedModel):
		report.Issues = append(report.Issues, "no model version deployed")
	default:
		return nil, err
	}

	rollouts, err := m.rollouts.ListRollouts(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := range rollouts {
		r := rollouts[i]
		if r.Status != models.RolloutActive {
			continue
		}
		if m.cfg.MaxRolloutAge > 0 && time.Since(r.StartTime) > m.cfg.MaxRolloutAge {
			if err := m.terminateRollout(ctx, &r, models.TerminationCancelledByHealthSweep); err != nil {
				m.logger.Warn().Err(err).Str("rollout_id", r.ID).Msg("Health sweep failed to terminate rollout")
				continue
			}
			report.RolloutSwept = r.ID
			report.Issues = append(report.Issues, fmt.Sprintf("terminated stale rollout %s", r.ID))
		}
	}

	return report, nil
}

// terminateActive ends any active rollout with the given reason. A
// missing active rollout is not an error.
func (m *Manager) terminateActive(ctx context.Context, reason string) error {
	rollouts, err := m.rollouts.ListRollouts(ctx, 0)
	if err != nil {
		return err
	}
	for i := range rollouts {
		if rollouts[i].Status != models.RolloutActive {
			continue
		}
		r := rollouts[i]
		if err := m.terminateRollout(ctx, &r, reason); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) terminateRollout(ctx context.Context, rollout *models.ABRollout, reason string) error {
	now := time.Now()
	rollout.Status = models.RolloutTerminated
	rollout.TerminationReason = reason
	rollout.EndTime = &now
	rollout.Winner = models.WinnerInconclusive

	if err := m.rollouts.SaveRollout(ctx, rollout); err != nil {
		return err
	}
	if m.recorder != nil {
		m.recorder.SetActiveRollout(false)
	}
	m.logger.Info().Str("rollout_id", rollout.ID).Str("reason", reason).Msg("Rollout terminated")
	return nil
}

func winRate(a models.ArmMetrics) float64 {
	if a.Trades == 0 {
		return 0
	}
	return float64(a.Wins) / float64(a.Trades)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
