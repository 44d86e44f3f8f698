package store

import (
	"context"
	"testing"
	"time"

	"modelctl/internal/errors"
	"modelctl/internal/models"
)

func TestMemoryStoreCopiesOnWriteAndRead(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	v := &models.ModelVersion{
		ID:        "id-1",
		Version:   "v1",
		ModelType: models.ModelTypeDQN,
		CreatedAt: time.Now(),
		Status:    models.StatusReady,
	}
	if err := ms.Put(ctx, v); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's value after Put must not leak in.
	v.Status = models.StatusRolledBack
	got, err := ms.Get(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusReady {
		t.Errorf("store shares state with caller: status %s", got.Status)
	}

	// Mutating a returned value must not leak back in.
	got.PerformanceScore = 99
	again, _ := ms.Get(ctx, "v1")
	if again.PerformanceScore != 0 {
		t.Errorf("store shares state with reader: score %v", again.PerformanceScore)
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	if err := ms.Close(); err != nil {
		t.Fatal(err)
	}

	if err := ms.Put(ctx, &models.ModelVersion{Version: "v1"}); !errors.Is(err, errors.ErrStoreClosed) {
		t.Errorf("Put after close: %v, want ErrStoreClosed", err)
	}
	if _, err := ms.Get(ctx, "v1"); !errors.Is(err, errors.ErrStoreClosed) {
		t.Errorf("Get after close: %v, want ErrStoreClosed", err)
	}
	if _, err := ms.List(ctx); !errors.Is(err, errors.ErrStoreClosed) {
		t.Errorf("List after close: %v, want ErrStoreClosed", err)
	}
}

func TestMemoryStoreListJobsFilter(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	statuses := []models.JobStatus{models.JobCompleted, models.JobFailed, models.JobCompleted, models.JobRunning}
	for i, status := range statuses {
		ms.SaveJob(ctx, &models.TrainingJob{
			ID:        string(rune('a' + i)),
			Status:    status,
			StartTime: base.Add(time.Duration(i) * time.Hour),
		})
	}

	completed, err := ms.ListJobs(ctx, JobFilter{Status: models.JobCompleted})
	if err != nil {
		t.Fatal(err)
	}
	if len(completed) != 2 {
		t.Fatalf("got %d completed jobs, want 2", len(completed))
	}
	// Newest first.
	if !completed[0].StartTime.After(completed[1].StartTime) {
		t.Error("jobs not ordered newest first")
	}

	limited, _ := ms.ListJobs(ctx, JobFilter{Limit: 1})
	if len(limited) != 1 || limited[0].Status != models.JobRunning {
		t.Errorf("limit 1 returned %+v, want the newest job", limited)
	}

	windowed, _ := ms.ListJobs(ctx, JobFilter{StartDate: base.Add(90 * time.Minute)})
	if len(windowed) != 2 {
		t.Errorf("start date filter returned %d jobs, want 2", len(windowed))
	}
}

func TestMemoryStoreListAlertsFilter(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	resolved := base.Add(time.Hour)

	ms.SaveAlert(ctx, &models.PerformanceAlert{
		ID: "a1", Type: models.AlertModelDrift, Severity: models.SeverityHigh,
		Timestamp: base,
	})
	ms.SaveAlert(ctx, &models.PerformanceAlert{
		ID: "a2", Type: models.AlertModelDrift, Severity: models.SeverityMedium,
		Timestamp: base.Add(time.Minute), ResolvedAt: &resolved,
	})
	ms.SaveAlert(ctx, &models.PerformanceAlert{
		ID: "a3", Type: models.AlertTrainingFailure, Severity: models.SeverityHigh,
		Timestamp: base.Add(2 * time.Minute), Acknowledged: true,
	})

	unresolved, err := ms.ListAlerts(ctx, AlertFilter{UnresolvedOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(unresolved) != 2 {
		t.Errorf("got %d unresolved alerts, want 2", len(unresolved))
	}

	unackedHigh, _ := ms.ListAlerts(ctx, AlertFilter{Severity: models.SeverityHigh, UnackedOnly: true})
	if len(unackedHigh) != 1 || unackedHigh[0].ID != "a1" {
		t.Errorf("got %+v, want only a1", unackedHigh)
	}

	drift, _ := ms.ListAlerts(ctx, AlertFilter{Type: models.AlertModelDrift})
	if len(drift) != 2 {
		t.Errorf("got %d drift alerts, want 2", len(drift))
	}
}
