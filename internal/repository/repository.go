// Package repository provides the versioned model artifact catalog.
package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelctl/internal/errors"
	"modelctl/internal/models"
	"modelctl/internal/store"
)

// DefaultCacheTTL is the read-cache lifetime when none is configured.
const DefaultCacheTTL = 5 * time.Minute

// ModelRepository is the versioned artifact catalog. Reads are served
// through a short-TTL cache; every write invalidates the whole cache
// before returning. The cache is advisory: writes always go straight
// to the store.
//
// The repository also owns the one guarded deploy transition. Both
// SetCurrentModel and the deployment manager funnel through Deploy, so
// the single-deployed-version invariant is enforced in exactly one
// place.
type ModelRepository struct {
	store    store.VersionStore
	logger   zerolog.Logger
	cacheTTL time.Duration

	cacheMu      sync.RWMutex
	versionCache map[string]versionEntry
	listCache    *listEntry
	currentCache *currentEntry

	// deployMu serializes the undeploy-then-deploy sequence.
	deployMu sync.Mutex
}

type versionEntry struct {
	version models.ModelVersion
	expires time.Time
}

type listEntry struct {
	versions []models.ModelVersion
	expires  time.Time
}

type currentEntry struct {
	version *models.ModelVersion // nil means "no deployed version" was cached
	expires time.Time
}

// New creates a repository over the given version store.
func New(s store.VersionStore, logger zerolog.Logger, cacheTTL time.Duration) *ModelRepository {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &ModelRepository{
		store:        s,
		logger:       logger.With().Str("component", "repository").Logger(),
		cacheTTL:     cacheTTL,
		versionCache: make(map[string]versionEntry),
	}
}

// SaveModel persists a model version and invalidates the cache.
func (r *ModelRepository) SaveModel(ctx context.Context, v *models.ModelVersion) error {
	if err := r.store.Put(ctx, v); err != nil {
		return err
	}
	r.invalidate()
	r.logger.Info().Str("version", v.Version).Str("status", string(v.Status)).Msg("Model version saved")
	return nil
}

// LoadModel returns a model version by label, from cache when fresh.
func (r *ModelRepository) LoadModel(ctx context.Context, version string) (*models.ModelVersion, error) {
	r.cacheMu.RLock()
	if e, ok := r.versionCache[version]; ok && time.Now().Before(e.expires) {
		cp := e.version
		r.cacheMu.RUnlock()
		return &cp, nil
	}
	r.cacheMu.RUnlock()

	v, err := r.store.Get(ctx, version)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.versionCache[version] = versionEntry{version: *v, expires: time.Now().Add(r.cacheTTL)}
	r.cacheMu.Unlock()
	return v, nil
}

// ListVersions returns all versions newest first, from cache when fresh.
func (r *ModelRepository) ListVersions(ctx context.Context) ([]models.ModelVersion, error) {
	r.cacheMu.RLock()
	if r.listCache != nil && time.Now().Before(r.listCache.expires) {
		out := make([]models.ModelVersion, len(r.listCache.versions))
		copy(out, r.listCache.versions)
		r.cacheMu.RUnlock()
		return out, nil
	}
	r.cacheMu.RUnlock()

	versions, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.listCache = &listEntry{versions: versions, expires: time.Now().Add(r.cacheTTL)}
	r.cacheMu.Unlock()

	out := make([]models.ModelVersion, len(versions))
	copy(out, versions)
	return out, nil
}

// DeleteModel removes a version. Deleting the deployed version is
// rejected.
func (r *ModelRepository) DeleteModel(ctx context.Context, version string) error {
	v, err := r.store.Get(ctx, version)
	if err != nil {
		return err
	}
	if v.Status == models.StatusDeployed {
		return errors.NewDeploymentError(version, "delete", errors.ErrModelDeployed)
	}
	if err := r.store.Delete(ctx, version); err != nil {
		return err
	}
	r.invalidate()
	r.logger.Info().Str("version", version).Msg("Model version deleted")
	return nil
}

// GetCurrentModel returns the currently deployed version, or
// ErrNoDeployedModel when none is deployed. The "no deployed version"
// answer is cached too.
func (r *ModelRepository) GetCurrentModel(ctx context.Context) (*models.ModelVersion, error) {
	r.cacheMu.RLock()
	if r.currentCache != nil && time.Now().Before(r.currentCache.expires) {
		e := r.currentCache
		r.cacheMu.RUnlock()
		if e.version == nil {
			return nil, errors.ErrNoDeployedModel
		}
		cp := *e.version
		return &cp, nil
	}
	r.cacheMu.RUnlock()

	deployed, err := r.store.QueryByStatus(ctx, models.StatusDeployed)
	if err != nil {
		return nil, err
	}

	var current *models.ModelVersion
	if len(deployed) > 0 {
		cp := deployed[0]
		current = &cp
	}

	r.cacheMu.Lock()
	r.currentCache = &currentEntry{version: current, expires: time.Now().Add(r.cacheTTL)}
	r.cacheMu.Unlock()

	if current == nil {
		return nil, errors.ErrNoDeployedModel
	}
	cp := *current
	return &cp, nil
}

// SetCurrentModel promotes the named version to deployed. It is a
// convenience wrapper over the same guarded transition the deployment
// manager uses.
func (r *ModelRepository) SetCurrentModel(ctx context.Context, version string) error {
	_, _, err := r.Deploy(ctx, version)
	return err
}

// Deploy performs the guarded undeploy-then-deploy transition:
// any currently deployed version is returned to ready with its
// DeployedAt cleared, then the target (which must be ready) is marked
// deployed. Deploying the already-deployed version is a no-op.
// Returns the deployed version and the previously deployed one, if any.
func (r *ModelRepository) Deploy(ctx context.Context, version string) (*models.ModelVersion, *models.ModelVersion, error) {
	r.deployMu.Lock()
	defer r.deployMu.Unlock()

	target, err := r.store.Get(ctx, version)
	if err != nil {
		return nil, nil, errors.NewDeploymentError(version, "deploy", err)
	}

	if target.Status == models.StatusDeployed {
		// Idempotent: already the current model.
		return target, nil, nil
	}
	if target.Status != models.StatusReady {
		return nil, nil, errors.NewDeploymentError(version, "deploy", errors.ErrModelNotReady)
	}

	deployed, err := r.store.QueryByStatus(ctx, models.StatusDeployed)
	if err != nil {
		return nil, nil, errors.NewDeploymentError(version, "deploy", err)
	}

	var previous *models.ModelVersion
	for i := range deployed {
		prev := deployed[i]
		prev.Status = models.StatusReady
		prev.DeployedAt = nil
		if err := r.store.Put(ctx, &prev); err != nil {
			return nil, nil, errors.NewDeploymentError(prev.Version, "undeploy", err)
		}
		previous = &prev
	}

	now := time.Now()
	target.Status = models.StatusDeployed
	target.DeployedAt = &now
	if err := r.store.Put(ctx, target); err != nil {
		return nil, nil, errors.NewDeploymentError(version, "deploy", err)
	}

	r.invalidate()

	prevLabel := ""
	if previous != nil {
		prevLabel = previous.Version
	}
	r.logger.Info().Str("version", version).Str("previous", prevLabel).Msg("Model version deployed")
	return target, previous, nil
}

// MarkRolledBack transitions a version to the terminal rolled_back
// state with the given reason.
func (r *ModelRepository) MarkRolledBack(ctx context.Context, version, reason string) error {
	r.deployMu.Lock()
	defer r.deployMu.Unlock()

	v, err := r.store.Get(ctx, version)
	if err != nil {
		return errors.NewDeploymentError(version, "rollback", err)
	}
	v.Status = models.StatusRolledBack
	v.RollbackReason = reason
	v.DeployedAt = nil
	if err := r.store.Put(ctx, v); err != nil {
		return errors.NewDeploymentError(version, "rollback", err)
	}
	r.invalidate()
	return nil
}

// CleanupOldModels deletes the oldest non-deployed versions beyond the
// retention count and returns the deleted labels.
func (r *ModelRepository) CleanupOldModels(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	versions, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []models.ModelVersion
	for _, v := range versions {
		if v.Status != models.StatusDeployed {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) <= keep {
		return nil, nil
	}

	// Oldest first beyond the retention count.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	var deleted []string
	for _, v := range candidates[:len(candidates)-keep] {
		if err := r.store.Delete(ctx, v.Version); err != nil {
			r.logger.Warn().Err(err).Str("version", v.Version).Msg("Cleanup failed to delete version")
			continue
		}
		deleted = append(deleted, v.Version)
	}
	if len(deleted) > 0 {
		r.invalidate()
		r.logger.Info().Strs("versions", deleted).Msg("Old model versions cleaned up")
	}
	return deleted, nil
}

func (r *ModelRepository) invalidate() {
	r.cacheMu.Lock()
	r.versionCache = make(map[string]versionEntry)
	r.listCache = nil
	r.currentCache = nil
	r.cacheMu.Unlock()
}
