package deployment

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelctl/internal/config"
	"modelctl/internal/errors"
	"modelctl/internal/events"
	"modelctl/internal/models"
	"modelctl/internal/repository"
	"modelctl/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *repository.ModelRepository, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	repo := repository.New(ms, zerolog.Nop(), time.Minute)
	bus := events.NewBus(zerolog.Nop())
	t.Cleanup(bus.Close)

	cfg := config.Default().Deployment
	m := NewManager(repo, ms, cfg, bus, nil, zerolog.Nop())
	return m, repo, ms
}

func saveReady(t *testing.T, repo *repository.ModelRepository, label string, createdAt time.Time) {
	t.Helper()
	err := repo.SaveModel(context.Background(), &models.ModelVersion{
		ID:        label + "-id",
		Version:   label,
		ModelType: models.ModelTypeDQN,
		CreatedAt: createdAt,
		Status:    models.StatusReady,
	})
	require.NoError(t, err)
}

func TestDeployModel(t *testing.T) {
	m, repo, ms := newTestManager(t)
	ctx := context.Background()

	saveReady(t, repo, "v1", time.Now())
	require.NoError(t, m.DeployModel(ctx, "v1"))

	deployed, err := ms.QueryByStatus(ctx, models.StatusDeployed)
	require.NoError(t, err)
	require.Len(t, deployed, 1)
	assert.Equal(t, "v1", deployed[0].Version)
}

func TestDeployTerminatesActiveRollout(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	saveReady(t, repo, "v1", now)
	saveReady(t, repo, "v2", now.Add(time.Hour))
	saveReady(t, repo, "v3", now.Add(2*time.Hour))

	rollout, err := m.StartABTest(ctx, "v1", "v2", 50)
	require.NoError(t, err)

	require.NoError(t, m.DeployModel(ctx, "v3"))

	got, err := m.ListRollouts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rollout.ID, got[0].ID)
	assert.Equal(t, models.RolloutTerminated, got[0].Status)
	assert.Equal(t, models.TerminationCancelledDueToDeploy, got[0].TerminationReason)

	_, err = m.GetActiveRollout(ctx)
	assert.ErrorIs(t, err, errors.ErrRolloutNotFound)
}

func TestRollbackModel(t *testing.T) {
	m, repo, ms := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	saveReady(t, repo, "v1", now)
	saveReady(t, repo, "v2", now.Add(time.Hour))

	require.NoError(t, m.DeployModel(ctx, "v2"))

	previous, err := m.RollbackModel(ctx, "bad fills in production")
	require.NoError(t, err)
	assert.Equal(t, "v1", previous.Version)

	deployed, err := ms.QueryByStatus(ctx, models.StatusDeployed)
	require.NoError(t, err)
	require.Len(t, deployed, 1)
	assert.Equal(t, "v1", deployed[0].Version)

	v2, err := repo.LoadModel(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRolledBack, v2.Status)
	assert.Equal(t, "bad fills in production", v2.RollbackReason)
}

func TestRollbackWithoutPreviousVersion(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	saveReady(t, repo, "v1", time.Now())
	require.NoError(t, m.DeployModel(ctx, "v1"))

	_, err := m.RollbackModel(ctx, "no target")
	assert.ErrorIs(t, err, errors.ErrNoPreviousVersion)

	// Still deployed: rollback must not leave the system without a model.
	current, err := repo.GetCurrentModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", current.Version)
}

func TestRollbackIgnoresNewerReadyVersions(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	saveReady(t, repo, "v1", now)
	saveReady(t, repo, "v2", now.Add(time.Hour))
	saveReady(t, repo, "v3", now.Add(2*time.Hour))

	require.NoError(t, m.DeployModel(ctx, "v2"))

	previous, err := m.RollbackModel(ctx, "regression")
	require.NoError(t, err)
	// v3 is newer than the deployed v2 and is not a rollback target.
	assert.Equal(t, "v1", previous.Version)
}

func TestStartABTestRejectsSameVersion(t *testing.T) {
	m, repo, _ := newTestManager(t)
	saveReady(t, repo, "v1", time.Now())

	_, err := m.StartABTest(context.Background(), "v1", "v1", 50)
	assert.ErrorIs(t, err, errors.ErrSameVersion)
}

func TestStartABTestRequiresExistingVersions(t *testing.T) {
	m, repo, _ := newTestManager(t)
	saveReady(t, repo, "v1", time.Now())

	_, err := m.StartABTest(context.Background(), "v1", "ghost", 50)
	assert.ErrorIs(t, err, errors.ErrModelNotFound)
}

func TestStartABTestReplacesActiveRollout(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	saveReady(t, repo, "v1", now)
	saveReady(t, repo, "v2", now.Add(time.Hour))
	saveReady(t, repo, "v3", now.Add(2*time.Hour))

	first, err := m.StartABTest(ctx, "v1", "v2", 50)
	require.NoError(t, err)
	second, err := m.StartABTest(ctx, "v1", "v3", 30)
	require.NoError(t, err)

	active, err := m.GetActiveRollout(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	old, err := m.ListRollouts(ctx, 0)
	require.NoError(t, err)
	for _, r := range old {
		if r.ID == first.ID {
			assert.Equal(t, models.RolloutTerminated, r.Status)
			assert.Equal(t, models.TerminationReplacedByNewTest, r.TerminationReason)
		}
	}
}

func TestABDecisionDeploysClearWinner(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	saveReady(t, repo, "v1", now)
	saveReady(t, repo, "v2", now.Add(time.Hour))

	rollout, err := m.StartABTest(ctx, "v1", "v2", 50)
	require.NoError(t, err)

	// 150 trades per arm: A wins 50%, B wins 62%.
	err = m.UpdateABTestMetrics(ctx, rollout.ID,
		models.ArmMetrics{Trades: 150, Wins: 75},
		models.ArmMetrics{Trades: 150, Wins: 93},
	)
	require.NoError(t, err)

	results, err := m.GetABTestResults(ctx, rollout.ID)
	require.NoError(t, err)
	assert.Less(t, results.PValue, 0.05)
	assert.Equal(t, models.RecommendStopAndDeployB, results.Recommendation)
	assert.InDelta(t, 1-results.PValue, results.Confidence, 1e-9)
}

func TestABDecisionContinuesBelowTradeFloor(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	saveReady(t, repo, "v1", now)
	saveReady(t, repo, "v2", now.Add(time.Hour))

	rollout, err := m.StartABTest(ctx, "v1", "v2", 50)
	require.NoError(t, err)

	// A big difference on tiny samples is still "continue".
	err = m.UpdateABTestMetrics(ctx, rollout.ID,
		models.ArmMetrics{Trades: 50, Wins: 20},
		models.ArmMetrics{Trades: 50, Wins: 40},
	)
	require.NoError(t, err)

	results, err := m.GetABTestResults(ctx, rollout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecommendContinue, results.Recommendation)
	assert.Equal(t, 0.5, results.Confidence)
}

func TestABDecisionInconclusiveOnLargeEqualArms(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	saveReady(t, repo, "v1", now)
	saveReady(t, repo, "v2", now.Add(time.Hour))

	rollout, err := m.StartABTest(ctx, "v1", "v2", 50)
	require.NoError(t, err)

	err = m.UpdateABTestMetrics(ctx, rollout.ID,
		models.ArmMetrics{Trades: 1200, Wins: 600},
		models.ArmMetrics{Trades: 1200, Wins: 606},
	)
	require.NoError(t, err)

	results, err := m.GetABTestResults(ctx, rollout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecommendStopInconclusive, results.Recommendation)
	assert.Equal(t, 0.8, results.Confidence)
}

func TestEndABTestDeploysWinner(t *testing.T) {
	m, repo, ms := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	saveReady(t, repo, "v1", now)
	saveReady(t, repo, "v2", now.Add(time.Hour))

	rollout, err := m.StartABTest(ctx, "v1", "v2", 50)
	require.NoError(t, err)

	err = m.UpdateABTestMetrics(ctx, rollout.ID,
		models.ArmMetrics{Trades: 150, Wins: 75},
		models.ArmMetrics{Trades: 150, Wins: 93},
	)
	require.NoError(t, err)

	results, err := m.EndABTest(ctx, rollout.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.WinnerB, results.Rollout.Winner)
	assert.Equal(t, models.RolloutCompleted, results.Rollout.Status)
	require.NotNil(t, results.Rollout.EndTime)

	deployed, err := ms.QueryByStatus(ctx, models.StatusDeployed)
	require.NoError(t, err)
	require.Len(t, deployed, 1)
	assert.Equal(t, "v2", deployed[0].Version)

	// Ending again fails: the rollout is no longer active.
	_, err = m.EndABTest(ctx, rollout.ID, false)
	assert.ErrorIs(t, err, errors.ErrRolloutNotActive)
}

func TestGetDeploymentStatus(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	status, err := m.GetDeploymentStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.Deployed)
	assert.Nil(t, status.ActiveRollout)

	now := time.Now()
	saveReady(t, repo, "v1", now)
	saveReady(t, repo, "v2", now.Add(time.Hour))
	require.NoError(t, m.DeployModel(ctx, "v1"))
	rollout, err := m.StartABTest(ctx, "v1", "v2", 50)
	require.NoError(t, err)

	status, err = m.GetDeploymentStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.Deployed)
	assert.Equal(t, "v1", status.Deployed.Version)
	require.NotNil(t, status.ActiveRollout)
	assert.Equal(t, rollout.ID, status.ActiveRollout.ID)
}

func TestCancelABTest(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	saveReady(t, repo, "v1", now)
	saveReady(t, repo, "v2", now.Add(time.Hour))

	rollout, err := m.StartABTest(ctx, "v1", "v2", 50)
	require.NoError(t, err)

	require.NoError(t, m.CancelABTest(ctx, rollout.ID))

	got, err := m.ListRollouts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.RolloutTerminated, got[0].Status)
	assert.Equal(t, models.TerminationCancelledByOperator, got[0].TerminationReason)
	assert.Equal(t, models.WinnerInconclusive, got[0].Winner)
}

func TestCheckDeploymentHealthSweepsStaleRollout(t *testing.T) {
	m, repo, ms := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	saveReady(t, repo, "v1", now)
	saveReady(t, repo, "v2", now.Add(time.Hour))
	require.NoError(t, m.DeployModel(ctx, "v1"))

	// Plant an active rollout that started past the maximum age.
	stale := &models.ABRollout{
		ID:            "stale-rollout",
		ModelAVersion: "v1",
		ModelBVersion: "v2",
		TrafficSplit:  50,
		StartTime:     now.Add(-8 * 24 * time.Hour),
		Status:        models.RolloutActive,
	}
	require.NoError(t, ms.SaveRollout(ctx, stale))

	report, err := m.CheckDeploymentHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", report.DeployedVersion)
	assert.Equal(t, "stale-rollout", report.RolloutSwept)

	got, err := ms.GetRollout(ctx, "stale-rollout")
	require.NoError(t, err)
	assert.Equal(t, models.RolloutTerminated, got.Status)
	assert.Equal(t, models.TerminationCancelledByHealthSweep, got.TerminationReason)
}
