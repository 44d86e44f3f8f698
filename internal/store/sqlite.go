// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"modelctl/internal/errors"
	"modelctl/internal/models"
)

// SQLiteStore implements ControlPlaneStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Model versions catalog
	CREATE TABLE IF NOT EXISTS model_versions (
		version TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		model_type TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		trained_start DATETIME,
		trained_end DATETIME,
		data_points INTEGER NOT NULL DEFAULT 0,
		metrics TEXT NOT NULL,
		config TEXT NOT NULL,
		hyperparameters TEXT,
		status TEXT NOT NULL,
		deployed_at DATETIME,
		rollback_reason TEXT,
		performance_score REAL NOT NULL DEFAULT 0,
		artifact_ref TEXT,
		checksum TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_versions_status ON model_versions(status);
	CREATE INDEX IF NOT EXISTS idx_versions_created ON model_versions(created_at);

	-- Retraining job history
	CREATE TABLE IF NOT EXISTS training_jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		input_version TEXT,
		output_version TEXT,
		data_stats TEXT,
		warnings TEXT,
		logs TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_start ON training_jobs(start_time);

	-- A/B rollouts
	CREATE TABLE IF NOT EXISTS ab_rollouts (
		id TEXT PRIMARY KEY,
		model_a TEXT NOT NULL,
		model_b TEXT NOT NULL,
		traffic_split INTEGER NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		status TEXT NOT NULL,
		termination_reason TEXT,
		metrics TEXT,
		winner TEXT
	);

	-- Performance alerts
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		message TEXT NOT NULL,
		model_version TEXT,
		metric TEXT,
		details TEXT,
		acknowledged INTEGER DEFAULT 0,
		resolved_at DATETIME,
		resolution TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or replaces a model version record.
func (s *SQLiteStore) Put(ctx context.Context, v *models.ModelVersion) error {
	metricsJSON, err := json.Marshal(v.Metrics)
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}
	configJSON, err := json.Marshal(v.Config)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	hyperJSON, err := json.Marshal(v.Hyperparameters)
	if err != nil {
		return fmt.Errorf("marshaling hyperparameters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO model_versions
		(version, id, model_type, created_at, trained_start, trained_end,
		 data_points, metrics, config, hyperparameters, status, deployed_at,
		 rollback_reason, performance_score, artifact_ref, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Version, v.ID, string(v.ModelType), v.CreatedAt,
		v.TrainedOn.Start, v.TrainedOn.End, v.DataPoints,
		string(metricsJSON), string(configJSON), string(hyperJSON),
		string(v.Status), nullableTime(v.DeployedAt), v.RollbackReason,
		v.PerformanceScore, v.ArtifactRef, v.Checksum)
	if err != nil {
		return fmt.Errorf("saving model version %s: %w", v.Version, err)
	}
	return nil
}

// Get loads a model version by its version label.
func (s *SQLiteStore) Get(ctx context.Context, version string) (*models.ModelVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, id, model_type, created_at, trained_start, trained_end,
		       data_points, metrics, config, hyperparameters, status, deployed_at,
		       rollback_reason, performance_score, artifact_ref, checksum
		FROM model_versions WHERE version = ?`, version)

	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading model version %s: %w", version, err)
	}
	return v, nil
}

// List returns all model versions ordered newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]models.ModelVersion, error) {
	return s.queryVersions(ctx, `
		SELECT version, id, model_type, created_at, trained_start, trained_end,
		       data_points, metrics, config, hyperparameters, status, deployed_at,
		       rollback_reason, performance_score, artifact_ref, checksum
		FROM model_versions ORDER BY created_at DESC`)
}

// QueryByStatus returns versions in the given status, newest first.
func (s *SQLiteStore) QueryByStatus(ctx context.Context, status models.VersionStatus) ([]models.ModelVersion, error) {
	return s.queryVersions(ctx, `
		SELECT version, id, model_type, created_at, trained_start, trained_end,
		       data_points, metrics, config, hyperparameters, status, deployed_at,
		       rollback_reason, performance_score, artifact_ref, checksum
		FROM model_versions WHERE status = ? ORDER BY created_at DESC`, string(status))
}

// Delete removes a model version record.
func (s *SQLiteStore) Delete(ctx context.Context, version string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM model_versions WHERE version = ?`, version)
	if err != nil {
		return fmt.Errorf("deleting model version %s: %w", version, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrModelNotFound
	}
	return nil
}

func (s *SQLiteStore) queryVersions(ctx context.Context, query string, args ...interface{}) ([]models.ModelVersion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying model versions: %w", err)
	}
	defer rows.Close()

	var out []models.ModelVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning model version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (*models.ModelVersion, error) {
	var v models.ModelVersion
	var modelType, status string
	var metricsJSON, configJSON string
	var hyperJSON, rollbackReason, artifactRef, checksum sql.NullString
	var trainedStart, trainedEnd, deployedAt sql.NullTime

	err := row.Scan(&v.Version, &v.ID, &modelType, &v.CreatedAt,
		&trainedStart, &trainedEnd, &v.DataPoints, &metricsJSON, &configJSON,
		&hyperJSON, &status, &deployedAt, &rollbackReason,
		&v.PerformanceScore, &artifactRef, &checksum)
	if err != nil {
		return nil, err
	}

	v.ModelType = models.ModelType(modelType)
	v.Status = models.VersionStatus(status)
	if trainedStart.Valid {
		v.TrainedOn.Start = trainedStart.Time
	}
	if trainedEnd.Valid {
		v.TrainedOn.End = trainedEnd.Time
	}
	if deployedAt.Valid {
		t := deployedAt.Time
		v.DeployedAt = &t
	}
	v.RollbackReason = rollbackReason.String
	v.ArtifactRef = artifactRef.String
	v.Checksum = checksum.String

	if err := json.Unmarshal([]byte(metricsJSON), &v.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshaling metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &v.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if hyperJSON.Valid && hyperJSON.String != "" && hyperJSON.String != "null" {
		if err := json.Unmarshal([]byte(hyperJSON.String), &v.Hyperparameters); err != nil {
			return nil, fmt.Errorf("unmarshaling hyperparameters: %w", err)
		}
	}
	return &v, nil
}

// SaveJob inserts or replaces a training job record.
func (s *SQLiteStore) SaveJob(ctx context.Context, job *models.TrainingJob) error {
	statsJSON, err := json.Marshal(job.DataStats)
	if err != nil {
		return fmt.Errorf("marshaling data stats: %w", err)
	}
	warningsJSON, err := json.Marshal(job.Warnings)
	if err != nil {
		return fmt.Errorf("marshaling warnings: %w", err)
	}
	logsJSON, err := json.Marshal(job.Logs)
	if err != nil {
		return fmt.Errorf("marshaling logs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO training_jobs
		(id, status, start_time, end_time, input_version, output_version,
		 data_stats, warnings, logs, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), job.StartTime, nullableTime(job.EndTime),
		job.InputVersion, job.OutputVersion, string(statsJSON),
		string(warningsJSON), string(logsJSON), job.Error)
	if err != nil {
		return fmt.Errorf("saving training job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads a training job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*models.TrainingJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, start_time, end_time, input_version, output_version,
		       data_stats, warnings, logs, error
		FROM training_jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading training job %s: %w", id, err)
	}
	return job, nil
}

// ListJobs returns job history matching the filter, newest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]models.TrainingJob, error) {
	query := `
		SELECT id, status, start_time, end_time, input_version, output_version,
		       data_stats, warnings, logs, error
		FROM training_jobs WHERE 1=1`
	var args []interface{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if !filter.StartDate.IsZero() {
		query += " AND start_time >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND start_time <= ?"
		args = append(args, filter.EndDate)
	}
	query += " ORDER BY start_time DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying training jobs: %w", err)
	}
	defer rows.Close()

	var out []models.TrainingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning training job: %w", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func scanJob(row rowScanner) (*models.TrainingJob, error) {
	var job models.TrainingJob
	var status string
	var endTime sql.NullTime
	var inputVersion, outputVersion, statsJSON, warningsJSON, logsJSON, jobErr sql.NullString

	err := row.Scan(&job.ID, &status, &job.StartTime, &endTime,
		&inputVersion, &outputVersion, &statsJSON, &warningsJSON, &logsJSON, &jobErr)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	if endTime.Valid {
		t := endTime.Time
		job.EndTime = &t
	}
	job.InputVersion = inputVersion.String
	job.OutputVersion = outputVersion.String
	job.Error = jobErr.String

	if statsJSON.Valid && statsJSON.String != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &job.DataStats); err != nil {
			return nil, fmt.Errorf("unmarshaling data stats: %w", err)
		}
	}
	if warningsJSON.Valid && warningsJSON.String != "" {
		if err := json.Unmarshal([]byte(warningsJSON.String), &job.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshaling warnings: %w", err)
		}
	}
	if logsJSON.Valid && logsJSON.String != "" {
		if err := json.Unmarshal([]byte(logsJSON.String), &job.Logs); err != nil {
			return nil, fmt.Errorf("unmarshaling logs: %w", err)
		}
	}
	return &job, nil
}

// SaveRollout inserts or replaces a rollout record.
func (s *SQLiteStore) SaveRollout(ctx context.Context, r *models.ABRollout) error {
	metricsJSON, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("marshaling rollout metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO ab_rollouts
		(id, model_a, model_b, traffic_split, start_time, end_time, status,
		 termination_reason, metrics, winner)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ModelAVersion, r.ModelBVersion, r.TrafficSplit,
		r.StartTime, nullableTime(r.EndTime), string(r.Status),
		r.TerminationReason, string(metricsJSON), string(r.Winner))
	if err != nil {
		return fmt.Errorf("saving rollout %s: %w", r.ID, err)
	}
	return nil
}

// GetRollout loads a rollout by ID.
func (s *SQLiteStore) GetRollout(ctx context.Context, id string) (*models.ABRollout, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model_a, model_b, traffic_split, start_time, end_time,
		       status, termination_reason, metrics, winner
		FROM ab_rollouts WHERE id = ?`, id)

	r, err := scanRollout(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrRolloutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading rollout %s: %w", id, err)
	}
	return r, nil
}

// ListRollouts returns the most recent rollouts.
func (s *SQLiteStore) ListRollouts(ctx context.Context, limit int) ([]models.ABRollout, error) {
	query := `
		SELECT id, model_a, model_b, traffic_split, start_time, end_time,
		       status, termination_reason, metrics, winner
		FROM ab_rollouts ORDER BY start_time DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rollouts: %w", err)
	}
	defer rows.Close()

	var out []models.ABRollout
	for rows.Next() {
		r, err := scanRollout(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rollout: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRollout(row rowScanner) (*models.ABRollout, error) {
	var r models.ABRollout
	var status string
	var endTime sql.NullTime
	var terminationReason, metricsJSON, winner sql.NullString

	err := row.Scan(&r.ID, &r.ModelAVersion, &r.ModelBVersion, &r.TrafficSplit,
		&r.StartTime, &endTime, &status, &terminationReason, &metricsJSON, &winner)
	if err != nil {
		return nil, err
	}

	r.Status = models.RolloutStatus(status)
	if endTime.Valid {
		t := endTime.Time
		r.EndTime = &t
	}
	r.TerminationReason = terminationReason.String
	r.Winner = models.Winner(winner.String)
	if metricsJSON.Valid && metricsJSON.String != "" {
		if err := json.Unmarshal([]byte(metricsJSON.String), &r.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshaling rollout metrics: %w", err)
		}
	}
	return &r, nil
}

// SaveAlert inserts or replaces an alert record.
func (s *SQLiteStore) SaveAlert(ctx context.Context, a *models.PerformanceAlert) error {
	detailsJSON, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("marshaling alert details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alerts
		(id, type, severity, timestamp, message, model_version, metric,
		 details, acknowledged, resolved_at, resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), string(a.Severity), a.Timestamp, a.Message,
		a.ModelVersion, a.Metric, string(detailsJSON),
		boolToInt(a.Acknowledged), nullableTime(a.ResolvedAt), a.Resolution)
	if err != nil {
		return fmt.Errorf("saving alert %s: %w", a.ID, err)
	}
	return nil
}

// GetAlert loads an alert by ID.
func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*models.PerformanceAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, severity, timestamp, message, model_version, metric,
		       details, acknowledged, resolved_at, resolution
		FROM alerts WHERE id = ?`, id)

	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading alert %s: %w", id, err)
	}
	return a, nil
}

// ListAlerts returns alerts matching the filter, newest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]models.PerformanceAlert, error) {
	query := `
		SELECT id, type, severity, timestamp, message, model_version, metric,
		       details, acknowledged, resolved_at, resolution
		FROM alerts WHERE 1=1`
	var args []interface{}

	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if filter.UnresolvedOnly {
		query += " AND resolved_at IS NULL"
	}
	if filter.UnackedOnly {
		query += " AND acknowledged = 0"
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var out []models.PerformanceAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAlert(row rowScanner) (*models.PerformanceAlert, error) {
	var a models.PerformanceAlert
	var alertType, severity string
	var acknowledged int
	var resolvedAt sql.NullTime
	var modelVersion, metric, detailsJSON, resolution sql.NullString

	err := row.Scan(&a.ID, &alertType, &severity, &a.Timestamp, &a.Message,
		&modelVersion, &metric, &detailsJSON, &acknowledged, &resolvedAt, &resolution)
	if err != nil {
		return nil, err
	}

	a.Type = models.AlertType(alertType)
	a.Severity = models.AlertSeverity(severity)
	a.ModelVersion = modelVersion.String
	a.Metric = metric.String
	a.Acknowledged = acknowledged != 0
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	a.Resolution = resolution.String
	if detailsJSON.Valid && detailsJSON.String != "" && detailsJSON.String != "null" {
		if err := json.Unmarshal([]byte(detailsJSON.String), &a.Details); err != nil {
			return nil, fmt.Errorf("unmarshaling alert details: %w", err)
		}
	}
	return &a, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
