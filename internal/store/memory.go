package store

import (
	"context"
	"sort"
	"sync"

	"modelctl/internal/errors"
	"modelctl/internal/models"
)

// MemoryStore is a map-backed ControlPlaneStore for tests and
// ephemeral runs. Values are copied on the way in and out so callers
// never share mutable state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	versions map[string]models.ModelVersion
	jobs     map[string]models.TrainingJob
	rollouts map[string]models.ABRollout
	alerts   map[string]models.PerformanceAlert
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions: make(map[string]models.ModelVersion),
		jobs:     make(map[string]models.TrainingJob),
		rollouts: make(map[string]models.ABRollout),
		alerts:   make(map[string]models.PerformanceAlert),
	}
}

// Put stores a model version.
func (m *MemoryStore) Put(_ context.Context, v *models.ModelVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.ErrStoreClosed
	}
	m.versions[v.Version] = *v
	return nil
}

// Get returns a model version by label.
func (m *MemoryStore) Get(_ context.Context, version string) (*models.ModelVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.ErrStoreClosed
	}
	v, ok := m.versions[version]
	if !ok {
		return nil, errors.ErrModelNotFound
	}
	cp := v
	return &cp, nil
}

// List returns all versions, newest first.
func (m *MemoryStore) List(_ context.Context) ([]models.ModelVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.ErrStoreClosed
	}
	out := make([]models.ModelVersion, 0, len(m.versions))
	for _, v := range m.versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// QueryByStatus returns versions with the given status, newest first.
func (m *MemoryStore) QueryByStatus(ctx context.Context, status models.VersionStatus) ([]models.ModelVersion, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, v := range all {
		if v.Status == status {
			out = append(out, v)
		}
	}
	return out, nil
}

// Delete removes a version by label.
func (m *MemoryStore) Delete(_ context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.ErrStoreClosed
	}
	if _, ok := m.versions[version]; !ok {
		return errors.ErrModelNotFound
	}
	delete(m.versions, version)
	return nil
}

// SaveJob stores a training job record.
func (m *MemoryStore) SaveJob(_ context.Context, job *models.TrainingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.ErrStoreClosed
	}
	m.jobs[job.ID] = *job
	return nil
}

// GetJob returns a training job by ID.
func (m *MemoryStore) GetJob(_ context.Context, id string) (*models.TrainingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.ErrJobNotFound
	}
	cp := job
	return &cp, nil
}

// ListJobs returns jobs matching the filter, newest first.
func (m *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]models.TrainingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.TrainingJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if !filter.StartDate.IsZero() && j.StartTime.Before(filter.StartDate) {
			continue
		}
		if !filter.EndDate.IsZero() && j.StartTime.After(filter.EndDate) {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// SaveRollout stores a rollout record.
func (m *MemoryStore) SaveRollout(_ context.Context, r *models.ABRollout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.ErrStoreClosed
	}
	m.rollouts[r.ID] = *r
	return nil
}

// GetRollout returns a rollout by ID.
func (m *MemoryStore) GetRollout(_ context.Context, id string) (*models.ABRollout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rollouts[id]
	if !ok {
		return nil, errors.ErrRolloutNotFound
	}
	cp := r
	return &cp, nil
}

// ListRollouts returns the most recent rollouts.
func (m *MemoryStore) ListRollouts(_ context.Context, limit int) ([]models.ABRollout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ABRollout, 0, len(m.rollouts))
	for _, r := range m.rollouts {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveAlert stores an alert record.
func (m *MemoryStore) SaveAlert(_ context.Context, a *models.PerformanceAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.ErrStoreClosed
	}
	m.alerts[a.ID] = *a
	return nil
}

// GetAlert returns an alert by ID.
func (m *MemoryStore) GetAlert(_ context.Context, id string) (*models.PerformanceAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, errors.ErrAlertNotFound
	}
	cp := a
	return &cp, nil
}

// ListAlerts returns alerts matching the filter, newest first.
func (m *MemoryStore) ListAlerts(_ context.Context, filter AlertFilter) ([]models.PerformanceAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.PerformanceAlert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if filter.UnresolvedOnly && a.ResolvedAt != nil {
			continue
		}
		if filter.UnackedOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
