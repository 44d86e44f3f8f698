// Package training runs the staged retraining pipeline: collect,
// validate, featurize, train, evaluate, gate and persist.
package training

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"modelctl/internal/config"
	"modelctl/internal/errors"
	"modelctl/internal/events"
	"modelctl/internal/models"
	"modelctl/internal/monitoring"
	"modelctl/internal/repository"
	"modelctl/internal/store"
	"modelctl/internal/telemetry"
)

// DataCollector supplies trade history and featurization. It is the
// boundary to the execution layer; calls are wrapped in timeouts.
type DataCollector interface {
	CollectTradeData(ctx context.Context, start, end time.Time) ([]models.TradeOutcome, error)
	ValidateDataQuality(trades []models.TradeOutcome) QualityReport
	GenerateFeatureVectors(trades []models.TradeOutcome) ([]models.TrainingSample, error)
}

// Trainer is the external model training boundary.
type Trainer interface {
	Train(ctx context.Context, samples []models.TrainingSample, cfg models.TrainingConfig, hyperparams map[string]interface{}) (*models.ModelVersion, error)
	Evaluate(ctx context.Context, version *models.ModelVersion, samples []models.TrainingSample) (models.ModelMetrics, error)
	HyperparameterSearch(ctx context.Context, samples []models.TrainingSample, cfg models.TrainingConfig) (map[string]interface{}, error)
}

// Deployer promotes a trained version. Satisfied by the deployment
// manager.
type Deployer interface {
	DeployModel(ctx context.Context, version string) error
}

// AlertSink receives alerts raised by the pipeline. Satisfied by the
// monitoring service.
type AlertSink interface {
	CreateAlert(ctx context.Context, alert *models.PerformanceAlert) *models.PerformanceAlert
}

// Service orchestrates retraining runs. At most one job runs
// process-wide; a second start fails fast rather than queueing.
type Service struct {
	cfg       config.RetrainingConfig
	collector DataCollector
	trainer   Trainer
	repo      *repository.ModelRepository
	jobs      store.JobStore
	deployer  Deployer
	alerts    AlertSink
	bus       *events.Bus
	recorder  *telemetry.Recorder
	logger    zerolog.Logger

	inFlight atomic.Bool
}

// NewService creates a retraining service.
func NewService(cfg config.RetrainingConfig, collector DataCollector, trainer Trainer, repo *repository.ModelRepository, jobs store.JobStore, deployer Deployer, alerts AlertSink, bus *events.Bus, recorder *telemetry.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		collector: collector,
		trainer:   trainer,
		repo:      repo,
		jobs:      jobs,
		deployer:  deployer,
		alerts:    alerts,
		bus:       bus,
		recorder:  recorder,
		logger:    logger.With().Str("component", "training").Logger(),
	}
}

// StartRetraining runs one end-to-end retraining job and returns its
// final record. A concurrent call while a job is in flight fails
// immediately with ErrAlreadyRunning.
func (s *Service) StartRetraining(ctx context.Context) (*models.TrainingJob, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, errors.ErrAlreadyRunning
	}
	defer s.inFlight.Store(false)

	job := &models.TrainingJob{
		ID:        uuid.NewString(),
		Status:    models.JobRunning,
		StartTime: time.Now(),
	}
	if current, err := s.repo.GetCurrentModel(ctx); err == nil {
		job.InputVersion = current.Version
	}
	s.saveJob(ctx, job)

	s.bus.Emit(events.Event{Type: events.JobStarted, JobID: job.ID, Message: "retraining job started"})
	logger := s.logger.With().Str("job_id", job.ID).Logger()
	logger.Info().Msg("Retraining job started")

	if err := s.run(ctx, job, logger); err != nil {
		return s.fail(ctx, job, logger, err)
	}
	return s.complete(ctx, job, logger)
}

// IsRunning reports whether a job is currently in flight.
func (s *Service) IsRunning() bool {
	return s.inFlight.Load()
}

// GetJob returns a job record by id.
func (s *Service) GetJob(ctx context.Context, id string) (*models.TrainingJob, error) {
	return s.jobs.GetJob(ctx, id)
}

// ListJobs returns job history for the status surface.
func (s *Service) ListJobs(ctx context.Context, filter store.JobFilter) ([]models.TrainingJob, error) {
	return s.jobs.ListJobs(ctx, filter)
}

func (s *Service) run(ctx context.Context, job *models.TrainingJob, logger zerolog.Logger) error {
	trades, err := s.collect(ctx, job, logger)
	if err != nil {
		return err
	}
	if err := s.validate(ctx, job, logger, trades); err != nil {
		return err
	}

	samples, err := s.featurize(job, logger, trades)
	if err != nil {
		return err
	}

	trainSamples, holdout := splitSamples(samples, s.cfg.HoldoutFraction)
	version, err := s.train(ctx, job, logger, trainSamples)
	if err != nil {
		return err
	}

	metrics, err := s.evaluate(ctx, job, logger, version, holdout)
	if err != nil {
		return err
	}
	version.Metrics = metrics
	version.PerformanceScore = monitoring.PerformanceScore(metrics)
	version.TrainedOn = job.DataStats.TimeRange
	version.DataPoints = len(samples)

	return s.gateAndPersist(ctx, job, logger, version)
}

func (s *Service) collect(ctx context.Context, job *models.TrainingJob, logger zerolog.Logger) ([]models.TradeOutcome, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -s.cfg.LookbackDays)
	job.AppendLog("collect", fmt.Sprintf("collecting trades since %s", start.Format(time.RFC3339)))

	collectCtx, cancel := context.WithTimeout(ctx, s.cfg.CollectTimeout)
	defer cancel()

	trades, err := s.collector.CollectTradeData(collectCtx, start, end)
	if err != nil {
		if collectCtx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTrainingError(job.ID, "collect", "data collection timed out", errors.ErrTimeout)
		}
		return nil, errors.NewDataError("collect", "data collection failed", err)
	}

	if len(trades) < s.cfg.MinTradesThreshold {
		return nil, errors.NewDataError("collect", fmt.Sprintf("%d trades collected, need at least %d", len(trades), s.cfg.MinTradesThreshold), nil)
	}

	// Cap at the batch limit, keeping the earliest trades so the
	// holdout split stays at the recent end.
	sort.Slice(trades, func(i, j int) bool { return trades[i].ClosedAt.Before(trades[j].ClosedAt) })
	if len(trades) > s.cfg.MaxTradesPerBatch {
		job.AddWarning(fmt.Sprintf("capped %d trades to batch limit %d", len(trades), s.cfg.MaxTradesPerBatch))
		trades = trades[:s.cfg.MaxTradesPerBatch]
	}

	wins := 0
	var totalProfit float64
	for _, t := range trades {
		if t.Profit > 0 {
			wins++
		}
		totalProfit += t.Profit
	}
	job.DataStats = models.DataStats{
		TotalTrades:      len(trades),
		ProfitableTrades: wins,
		AvgProfit:        totalProfit / float64(len(trades)),
		TimeRange:        models.TimeRange{Start: trades[0].ClosedAt, End: trades[len(trades)-1].ClosedAt},
	}
	job.AppendLog("collect", fmt.Sprintf("%d trades collected, %d profitable", len(trades), wins))
	logger.Info().Int("trades", len(trades)).Msg("Trade data collected")
	s.saveJob(ctx, job)
	return trades, nil
}

func (s *Service) validate(ctx context.Context, job *models.TrainingJob, logger zerolog.Logger, trades []models.TradeOutcome) error {
	report := s.collector.ValidateDataQuality(trades)
	job.AppendLog("validate", fmt.Sprintf("data quality score %.0f", report.Score))
	for _, issue := range report.Issues {
		job.AddWarning(issue)
	}

	if !report.Valid || report.Score < s.cfg.MinQualityScore {
		return errors.NewDataError("validate", fmt.Sprintf("data quality score %.0f below floor %.0f", report.Score, s.cfg.MinQualityScore), nil)
	}

	// Usable but marginal data still gets flagged for the operator.
	if s.alerts != nil && report.Score < s.cfg.MinQualityScore+15 {
		s.alerts.CreateAlert(ctx, &models.PerformanceAlert{
			Type:     models.AlertDataQuality,
			Severity: models.SeverityMedium,
			Message:  fmt.Sprintf("training data quality marginal: score %.0f", report.Score),
			Details:  map[string]interface{}{"issues": report.Issues, "job_id": job.ID},
		})
	}

	logger.Info().Float64("score", report.Score).Int("issues", len(report.Issues)).Msg("Data quality validated")
	s.saveJob(ctx, job)
	return nil
}

func (s *Service) featurize(job *models.TrainingJob, logger zerolog.Logger, trades []models.TradeOutcome) ([]models.TrainingSample, error) {
	samples, err := s.collector.GenerateFeatureVectors(trades)
	if err != nil {
		return nil, errors.NewDataError("featurize", "feature generation failed", err)
	}
	if len(samples) == 0 {
		return nil, errors.NewDataError("featurize", "no training samples generated", nil)
	}
	job.AppendLog("featurize", fmt.Sprintf("%d training samples generated", len(samples)))
	logger.Info().Int("samples", len(samples)).Msg("Features generated")
	return samples, nil
}

func (s *Service) train(ctx context.Context, job *models.TrainingJob, logger zerolog.Logger, samples []models.TrainingSample) (*models.ModelVersion, error) {
	trainCtx, cancel := context.WithTimeout(ctx, s.cfg.TrainTimeout)
	defer cancel()

	trainCfg := s.trainingConfig()

	var hyperparams map[string]interface{}
	if s.cfg.HyperparameterSearch {
		job.AppendLog("train", fmt.Sprintf("hyperparameter search, %d trials", s.cfg.SearchTrials))
		hp, err := s.trainer.HyperparameterSearch(trainCtx, samples, trainCfg)
		if err != nil {
			if trainCtx.Err() == context.DeadlineExceeded {
				return nil, errors.NewTrainingError(job.ID, "train", "hyperparameter search timed out", errors.ErrTimeout)
			}
			// A failed search falls back to defaults rather than
			// aborting the job.
			job.AddWarning(fmt.Sprintf("hyperparameter search failed: %v", err))
		} else {
			hyperparams = hp
		}
	}

	version, err := s.trainer.Train(trainCtx, samples, trainCfg, hyperparams)
	if err != nil {
		if trainCtx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTrainingError(job.ID, "train", "training timed out", errors.ErrTimeout)
		}
		return nil, errors.NewTrainingError(job.ID, "train", "trainer failed", err)
	}

	if version.Version == "" {
		version.Version = fmt.Sprintf("v%s", time.Now().UTC().Format("20060102-150405"))
	}
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now()
	}
	version.Config = trainCfg

	job.AppendLog("train", fmt.Sprintf("trained %s", version.Version))
	logger.Info().Str("version", version.Version).Msg("Model trained")
	s.saveJob(ctx, job)
	return version, nil
}

func (s *Service) evaluate(ctx context.Context, job *models.TrainingJob, logger zerolog.Logger, version *models.ModelVersion, holdout []models.TrainingSample) (models.ModelMetrics, error) {
	metrics, err := s.trainer.Evaluate(ctx, version, holdout)
	if err != nil {
		return models.ModelMetrics{}, errors.NewTrainingError(job.ID, "evaluate", "holdout evaluation failed", err)
	}
	job.AppendLog("evaluate", fmt.Sprintf("holdout: %d trades, win rate %.2f, profit factor %.2f", metrics.TotalTrades, metrics.WinRate, metrics.ProfitFactor))
	logger.Info().Float64("win_rate", metrics.WinRate).Float64("profit_factor", metrics.ProfitFactor).Msg("Model evaluated")
	return metrics, nil
}

func (s *Service) gateAndPersist(ctx context.Context, job *models.TrainingJob, logger zerolog.Logger, version *models.ModelVersion) error {
	version.Status = models.StatusReady
	if err := s.repo.SaveModel(ctx, version); err != nil {
		return errors.NewTrainingError(job.ID, "persist", "saving model version failed", err)
	}
	job.OutputVersion = version.Version
	job.AppendLog("persist", fmt.Sprintf("saved %s as ready", version.Version))

	unmet := unmetCriteria(version.Metrics, s.cfg)
	if len(unmet) > 0 {
		// The artifact stays ready for manual review; the job itself
		// fails with the unmet criteria.
		return errors.NewTrainingError(job.ID, "gate", fmt.Sprintf("deployment criteria not met: %v", unmet), nil)
	}
	job.AppendLog("gate", "deployment criteria met")

	if s.cfg.AutoDeploy && s.deployer != nil {
		if err := s.deployer.DeployModel(ctx, version.Version); err != nil {
			return errors.NewTrainingError(job.ID, "deploy", "auto-deploy failed", err)
		}
		job.AppendLog("deploy", fmt.Sprintf("auto-deployed %s", version.Version))
		logger.Info().Str("version", version.Version).Msg("Model auto-deployed")
	}
	return nil
}

func (s *Service) complete(ctx context.Context, job *models.TrainingJob, logger zerolog.Logger) (*models.TrainingJob, error) {
	now := time.Now()
	job.Status = models.JobCompleted
	job.EndTime = &now
	s.saveJob(ctx, job)

	duration := now.Sub(job.StartTime)
	if s.recorder != nil {
		s.recorder.RecordJob(string(models.JobCompleted), duration)
	}
	s.bus.Emit(events.Event{
		Type:    events.JobCompleted,
		JobID:   job.ID,
		Version: job.OutputVersion,
		Message: fmt.Sprintf("retraining completed: %s", job.OutputVersion),
	})
	logger.Info().Str("version", job.OutputVersion).Dur("duration", duration).Msg("Retraining job completed")
	return job, nil
}

func (s *Service) fail(ctx context.Context, job *models.TrainingJob, logger zerolog.Logger, cause error) (*models.TrainingJob, error) {
	now := time.Now()
	job.Status = models.JobFailed
	job.EndTime = &now
	job.Error = cause.Error()
	s.saveJob(ctx, job)

	if s.recorder != nil {
		s.recorder.RecordJob(string(models.JobFailed), now.Sub(job.StartTime))
	}
	s.bus.Emit(events.Event{
		Type:    events.JobFailed,
		JobID:   job.ID,
		Message: cause.Error(),
	})
	if s.alerts != nil {
		s.alerts.CreateAlert(ctx, &models.PerformanceAlert{
			Type:     models.AlertTrainingFailure,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("retraining job %s failed: %v", job.ID, cause),
			Details:  map[string]interface{}{"job_id": job.ID},
		})
	}
	logger.Error().Err(cause).Msg("Retraining job failed")
	return job, cause
}

func (s *Service) saveJob(ctx context.Context, job *models.TrainingJob) {
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist job record")
	}
}

func (s *Service) trainingConfig() models.TrainingConfig {
	return models.TrainingConfig{
		LookbackDays:           s.cfg.LookbackDays,
		MinTradesThreshold:     s.cfg.MinTradesThreshold,
		MaxTradesPerBatch:      s.cfg.MaxTradesPerBatch,
		HoldoutFraction:        s.cfg.HoldoutFraction,
		HyperparameterSearch:   s.cfg.HyperparameterSearch,
		SearchTrials:           s.cfg.SearchTrials,
		OptimizationMetric:     s.cfg.OptimizationMetric,
		MinWinRate:             s.cfg.MinWinRate,
		MinProfitFactor:        s.cfg.MinProfitFactor,
		MaxDrawdownThreshold:   s.cfg.MaxDrawdownThreshold,
		MinTradesForValidation: s.cfg.MinTradesForValidation,
		AutoDeploy:             s.cfg.AutoDeploy,
	}
}

// splitSamples separates the most recent fraction as the holdout set.
func splitSamples(samples []models.TrainingSample, holdoutFraction float64) (train, holdout []models.TrainingSample) {
	h := int(float64(len(samples)) * holdoutFraction)
	if h < 1 {
		h = 1
	}
	if h >= len(samples) {
		return samples, samples
	}
	return samples[:len(samples)-h], samples[len(samples)-h:]
}

// unmetCriteria returns the deployment gate criteria the evaluated
// metrics fail. Drawdown is taken relative to gross profit.
func unmetCriteria(m models.ModelMetrics, cfg config.RetrainingConfig) []string {
	var unmet []string
	if m.WinRate < cfg.MinWinRate {
		unmet = append(unmet, fmt.Sprintf("win_rate %.2f < %.2f", m.WinRate, cfg.MinWinRate))
	}
	if m.ProfitFactor < cfg.MinProfitFactor {
		unmet = append(unmet, fmt.Sprintf("profit_factor %.2f < %.2f", m.ProfitFactor, cfg.MinProfitFactor))
	}
	grossProfit := m.TotalProfit
	if grossProfit < 1 {
		grossProfit = 1
	}
	if dd := m.MaxDrawdown / grossProfit; dd > cfg.MaxDrawdownThreshold {
		unmet = append(unmet, fmt.Sprintf("max_drawdown %.2f > %.2f", dd, cfg.MaxDrawdownThreshold))
	}
	if m.TotalTrades < cfg.MinTradesForValidation {
		unmet = append(unmet, fmt.Sprintf("total_trades %d < %d", m.TotalTrades, cfg.MinTradesForValidation))
	}
	return unmet
}
