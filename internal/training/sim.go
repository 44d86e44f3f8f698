package training

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"modelctl/internal/errors"
	"modelctl/internal/models"
	"modelctl/internal/monitoring"
)

// MemoryCollector is a reference DataCollector backed by an in-memory
// trade log. Production deployments plug the execution layer's
// collector in instead.
type MemoryCollector struct {
	mu     sync.RWMutex
	trades []models.TradeOutcome
}

// NewMemoryCollector creates an empty collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

// AddTrades appends closed trades to the log.
func (c *MemoryCollector) AddTrades(trades ...models.TradeOutcome) {
	c.mu.Lock()
	c.trades = append(c.trades, trades...)
	c.mu.Unlock()
}

// CollectTradeData returns trades closed within [start, end).
func (c *MemoryCollector) CollectTradeData(ctx context.Context, start, end time.Time) ([]models.TradeOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.TradeOutcome
	for _, t := range c.trades {
		if !t.ClosedAt.Before(start) && t.ClosedAt.Before(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

// ValidateDataQuality scores the set; anything above the structural
// floor is considered usable, leaving the configured quality floor to
// the pipeline.
func (c *MemoryCollector) ValidateDataQuality(trades []models.TradeOutcome) QualityReport {
	report := ScoreDataQuality(trades, models.TrainingConfig{MinTradesThreshold: 100, LookbackDays: 30})
	report.Valid = report.Score >= 40
	return report
}

// GenerateFeatureVectors turns each trade into a training sample. The
// reward normalizes realized P&L by risk taken, then shades it by
// holding duration and the model's confidence at entry.
func (c *MemoryCollector) GenerateFeatureVectors(trades []models.TradeOutcome) ([]models.TrainingSample, error) {
	samples := make([]models.TrainingSample, 0, len(trades))
	for i, t := range trades {
		features := tradeFeatures(t)
		action := 0
		if t.Profit > 0 {
			action = 1
		}

		var next []float64
		if i+1 < len(trades) {
			next = tradeFeatures(trades[i+1])
		} else {
			next = features
		}

		samples = append(samples, models.TrainingSample{
			Features:     features,
			Action:       action,
			Reward:       tradeReward(t),
			NextFeatures: next,
			Done:         i == len(trades)-1,
		})
	}
	return samples, nil
}

func tradeFeatures(t models.TradeOutcome) []float64 {
	risk := t.RiskAmount
	if risk <= 0 {
		risk = 1
	}
	return []float64{
		t.Profit / risk,
		t.Duration().Hours() / 24,
		t.Confidence,
		float64(t.ClosedAt.Hour()) / 24,
	}
}

// tradeReward maps a closed trade to a reward in roughly [-1, 1].
func tradeReward(t models.TradeOutcome) float64 {
	risk := t.RiskAmount
	if risk <= 0 {
		risk = 1
	}
	rr := t.Profit / risk
	rr = math.Max(-3, math.Min(3, rr)) / 3

	holdDays := t.Duration().Hours() / 24
	durationFactor := 1 / (1 + holdDays)

	return rr * (0.5 + 0.5*t.Confidence) * (0.5 + 0.5*durationFactor)
}

// SimTrainer is a reference Trainer that fits nothing: it derives a
// deterministic artifact from the sample set so the pipeline, gates
// and repository can be exercised end to end.
type SimTrainer struct {
	rng *rand.Rand
}

// NewSimTrainer creates a trainer seeded for reproducible searches.
func NewSimTrainer(seed int64) *SimTrainer {
	return &SimTrainer{rng: rand.New(rand.NewSource(seed))}
}

// Train produces a model version whose artifact reference is a digest
// of the training inputs.
func (t *SimTrainer) Train(ctx context.Context, samples []models.TrainingSample, cfg models.TrainingConfig, hyperparams map[string]interface{}) (*models.ModelVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.NewDataError("train", "no samples to train on", nil)
	}

	if hyperparams == nil {
		hyperparams = defaultHyperparameters()
	}

	checksum := sampleDigest(samples)
	return &models.ModelVersion{
		ModelType:       models.ModelTypeDQN,
		Hyperparameters: hyperparams,
		ArtifactRef:     fmt.Sprintf("mem://dqn/%s", checksum[:12]),
		Checksum:        checksum,
	}, nil
}

// Evaluate replays the holdout rewards as pseudo-trades and computes
// metrics over them.
func (t *SimTrainer) Evaluate(ctx context.Context, version *models.ModelVersion, samples []models.TrainingSample) (models.ModelMetrics, error) {
	if err := ctx.Err(); err != nil {
		return models.ModelMetrics{}, err
	}

	trades := make([]models.TradeOutcome, len(samples))
	base := time.Now().Add(-time.Duration(len(samples)) * time.Hour)
	for i, s := range samples {
		trades[i] = models.TradeOutcome{
			TradeID:  fmt.Sprintf("eval-%d", i),
			OpenedAt: base.Add(time.Duration(i) * time.Hour),
			ClosedAt: base.Add(time.Duration(i+1) * time.Hour),
			Profit:   s.Reward * 100,
		}
	}
	return monitoring.ComputeMetrics(trades), nil
}

// HyperparameterSearch runs random-search trials over the discrete
// grid and keeps the best-scoring configuration. A failing trial is
// skipped, not fatal.
func (t *SimTrainer) HyperparameterSearch(ctx context.Context, samples []models.TrainingSample, cfg models.TrainingConfig) (map[string]interface{}, error) {
	trials := cfg.SearchTrials
	if trials < 1 {
		trials = 1
	}

	var best map[string]interface{}
	bestScore := math.Inf(-1)

	for i := 0; i < trials; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate := t.sampleHyperparameters()
		version, err := t.Train(ctx, samples, cfg, candidate)
		if err != nil {
			continue
		}
		metrics, err := t.Evaluate(ctx, version, samples)
		if err != nil {
			continue
		}

		score := optimizationScore(metrics, cfg.OptimizationMetric)
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}

	if best == nil {
		return defaultHyperparameters(), nil
	}
	return best, nil
}

var (
	learningRates = []float64{1e-4, 3e-4, 1e-3}
	batchSizes    = []int{32, 64, 128}
	hiddenLayers  = [][]int{{64, 32}, {128, 64}, {256, 128}}
	dropouts      = []float64{0, 0.1, 0.2}
)

func (t *SimTrainer) sampleHyperparameters() map[string]interface{} {
	return map[string]interface{}{
		"learning_rate": learningRates[t.rng.Intn(len(learningRates))],
		"batch_size":    batchSizes[t.rng.Intn(len(batchSizes))],
		"hidden_layers": hiddenLayers[t.rng.Intn(len(hiddenLayers))],
		"dropout":       dropouts[t.rng.Intn(len(dropouts))],
	}
}

func defaultHyperparameters() map[string]interface{} {
	return map[string]interface{}{
		"learning_rate": 3e-4,
		"batch_size":    64,
		"hidden_layers": []int{128, 64},
		"dropout":       0.1,
	}
}

func optimizationScore(m models.ModelMetrics, metric string) float64 {
	switch metric {
	case "sharpe":
		return m.SharpeRatio
	case "win_rate":
		return m.WinRate
	case "profit_factor":
		if math.IsInf(m.ProfitFactor, 1) {
			return 10
		}
		return m.ProfitFactor
	default:
		return monitoring.PerformanceScore(m)
	}
}

func sampleDigest(samples []models.TrainingSample) string {
	h := sha256.New()
	for _, s := range samples {
		for _, f := range s.Features {
			fmt.Fprintf(h, "%.6f,", f)
		}
		fmt.Fprintf(h, "%d,%.6f;", s.Action, s.Reward)
	}
	return hex.EncodeToString(h.Sum(nil))
}
