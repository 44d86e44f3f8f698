// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"modelctl/internal/models"
)

// VersionStore defines durable keyed storage for model version records.
type VersionStore interface {
	Put(ctx context.Context, v *models.ModelVersion) error
	Get(ctx context.Context, version string) (*models.ModelVersion, error)
	List(ctx context.Context) ([]models.ModelVersion, error)
	Delete(ctx context.Context, version string) error
	QueryByStatus(ctx context.Context, status models.VersionStatus) ([]models.ModelVersion, error)

	// Lifecycle
	Close() error
}

// JobStore persists retraining job records for the status surface.
type JobStore interface {
	SaveJob(ctx context.Context, job *models.TrainingJob) error
	GetJob(ctx context.Context, id string) (*models.TrainingJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]models.TrainingJob, error)
}

// RolloutStore persists A/B rollout records.
type RolloutStore interface {
	SaveRollout(ctx context.Context, r *models.ABRollout) error
	GetRollout(ctx context.Context, id string) (*models.ABRollout, error)
	ListRollouts(ctx context.Context, limit int) ([]models.ABRollout, error)
}

// AlertStore persists performance alerts.
type AlertStore interface {
	SaveAlert(ctx context.Context, a *models.PerformanceAlert) error
	GetAlert(ctx context.Context, id string) (*models.PerformanceAlert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]models.PerformanceAlert, error)
}

// ControlPlaneStore is the full persistence surface the control plane
// wires at startup. The SQLite implementation backs all of it; tests
// may substitute the in-memory store.
type ControlPlaneStore interface {
	VersionStore
	JobStore
	RolloutStore
	AlertStore
}

// JobFilter represents filters for querying training jobs.
type JobFilter struct {
	Status    models.JobStatus
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// AlertFilter represents filters for querying alerts.
type AlertFilter struct {
	Type           models.AlertType
	Severity       models.AlertSeverity
	UnresolvedOnly bool
	UnackedOnly    bool
	Limit          int
}
