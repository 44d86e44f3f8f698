package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelctl/internal/errors"
	"modelctl/internal/models"
	"modelctl/internal/store"
)

func newTestRepo() (*ModelRepository, *store.MemoryStore) {
	ms := store.NewMemoryStore()
	return New(ms, zerolog.Nop(), time.Minute), ms
}

func readyVersion(label string, createdAt time.Time) *models.ModelVersion {
	return &models.ModelVersion{
		ID:        label + "-id",
		Version:   label,
		ModelType: models.ModelTypeDQN,
		CreatedAt: createdAt,
		Status:    models.StatusReady,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	v := readyVersion("v1", time.Now())
	v.Metrics.WinRate = 0.55
	v.PerformanceScore = 72.5
	if err := repo.SaveModel(ctx, v); err != nil {
		t.Fatal(err)
	}

	got, err := repo.LoadModel(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "v1" || got.Metrics.WinRate != 0.55 || got.PerformanceScore != 72.5 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestLoadModelNotFound(t *testing.T) {
	repo, _ := newTestRepo()
	if _, err := repo.LoadModel(context.Background(), "missing"); !errors.Is(err, errors.ErrModelNotFound) {
		t.Errorf("got %v, want ErrModelNotFound", err)
	}
}

func TestDeployEnforcesSingleDeployed(t *testing.T) {
	repo, ms := newTestRepo()
	ctx := context.Background()

	now := time.Now()
	for i := 1; i <= 3; i++ {
		v := readyVersion(fmt.Sprintf("v%d", i), now.Add(time.Duration(i)*time.Hour))
		if err := repo.SaveModel(ctx, v); err != nil {
			t.Fatal(err)
		}
	}

	for _, target := range []string{"v1", "v3", "v2"} {
		if _, _, err := repo.Deploy(ctx, target); err != nil {
			t.Fatalf("Deploy(%s): %v", target, err)
		}
		deployed, err := ms.QueryByStatus(ctx, models.StatusDeployed)
		if err != nil {
			t.Fatal(err)
		}
		if len(deployed) != 1 {
			t.Fatalf("after Deploy(%s): %d deployed versions, want 1", target, len(deployed))
		}
		if deployed[0].Version != target {
			t.Errorf("deployed %s, want %s", deployed[0].Version, target)
		}
	}
}

func TestDeployIsIdempotent(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	if err := repo.SaveModel(ctx, readyVersion("v1", time.Now())); err != nil {
		t.Fatal(err)
	}

	first, _, err := repo.Deploy(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	second, previous, err := repo.Deploy(ctx, "v1")
	if err != nil {
		t.Fatalf("second deploy: %v", err)
	}
	if previous != nil {
		t.Errorf("idempotent deploy returned previous %s", previous.Version)
	}
	if second.Status != models.StatusDeployed {
		t.Errorf("status %s after second deploy, want deployed", second.Status)
	}
	if first.DeployedAt == nil || second.DeployedAt == nil {
		t.Fatal("DeployedAt not set")
	}
	if !first.DeployedAt.Equal(*second.DeployedAt) {
		t.Error("second deploy changed DeployedAt")
	}
}

func TestDeployDemotesPrevious(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	now := time.Now()
	repo.SaveModel(ctx, readyVersion("v1", now))
	repo.SaveModel(ctx, readyVersion("v2", now.Add(time.Hour)))

	if _, _, err := repo.Deploy(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	_, previous, err := repo.Deploy(ctx, "v2")
	if err != nil {
		t.Fatal(err)
	}
	if previous == nil || previous.Version != "v1" {
		t.Fatalf("previous = %+v, want v1", previous)
	}
	if previous.Status != models.StatusReady || previous.DeployedAt != nil {
		t.Errorf("demoted version not returned to ready: %+v", previous)
	}
}

func TestDeployRejectsNotReady(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	v := readyVersion("v1", time.Now())
	v.Status = models.StatusTraining
	repo.SaveModel(ctx, v)

	if _, _, err := repo.Deploy(ctx, "v1"); !errors.Is(err, errors.ErrModelNotReady) {
		t.Errorf("got %v, want ErrModelNotReady", err)
	}
}

func TestGetCurrentModel(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	if _, err := repo.GetCurrentModel(ctx); !errors.Is(err, errors.ErrNoDeployedModel) {
		t.Fatalf("got %v, want ErrNoDeployedModel", err)
	}

	repo.SaveModel(ctx, readyVersion("v1", time.Now()))
	if _, _, err := repo.Deploy(ctx, "v1"); err != nil {
		t.Fatal(err)
	}

	current, err := repo.GetCurrentModel(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if current.Version != "v1" {
		t.Errorf("current = %s, want v1", current.Version)
	}
}

func TestCacheInvalidatedOnWrite(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	repo.SaveModel(ctx, readyVersion("v1", time.Now()))
	if _, err := repo.LoadModel(ctx, "v1"); err != nil {
		t.Fatal(err)
	}

	// Update through the repository; the cached copy must not be served.
	updated := readyVersion("v1", time.Now())
	updated.PerformanceScore = 99
	if err := repo.SaveModel(ctx, updated); err != nil {
		t.Fatal(err)
	}

	got, err := repo.LoadModel(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if got.PerformanceScore != 99 {
		t.Errorf("stale read after write: score %.0f, want 99", got.PerformanceScore)
	}
}

func TestDeleteModelRejectsDeployed(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	repo.SaveModel(ctx, readyVersion("v1", time.Now()))
	repo.Deploy(ctx, "v1")

	if err := repo.DeleteModel(ctx, "v1"); !errors.Is(err, errors.ErrModelDeployed) {
		t.Errorf("got %v, want ErrModelDeployed", err)
	}
}

func TestMarkRolledBack(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	repo.SaveModel(ctx, readyVersion("v1", time.Now()))
	repo.Deploy(ctx, "v1")

	if err := repo.MarkRolledBack(ctx, "v1", "degraded win rate"); err != nil {
		t.Fatal(err)
	}
	got, err := repo.LoadModel(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusRolledBack {
		t.Errorf("status %s, want rolled_back", got.Status)
	}
	if got.RollbackReason != "degraded win rate" {
		t.Errorf("reason %q not recorded", got.RollbackReason)
	}
	if got.DeployedAt != nil {
		t.Error("DeployedAt not cleared on rollback")
	}
}

func TestCleanupOldModels(t *testing.T) {
	repo, _ := newTestRepo()
	ctx := context.Background()

	now := time.Now()
	for i := 1; i <= 5; i++ {
		repo.SaveModel(ctx, readyVersion(fmt.Sprintf("v%d", i), now.Add(time.Duration(i)*time.Hour)))
	}
	// The deployed version never counts against retention.
	repo.Deploy(ctx, "v1")

	deleted, err := repo.CleanupOldModels(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	// Non-deployed: v2..v5; keep the 2 newest, delete v2 and v3.
	if len(deleted) != 2 {
		t.Fatalf("deleted %v, want 2 versions", deleted)
	}
	for _, label := range []string{"v2", "v3"} {
		if _, err := repo.LoadModel(ctx, label); !errors.Is(err, errors.ErrModelNotFound) {
			t.Errorf("%s still present after cleanup", label)
		}
	}
	if _, err := repo.LoadModel(ctx, "v1"); err != nil {
		t.Error("deployed version was cleaned up")
	}
}
