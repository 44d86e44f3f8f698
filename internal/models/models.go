// Package models provides domain models for the model lifecycle control plane.
package models

import (
	"time"
)

// ModelType identifies the learning architecture of a model version.
type ModelType string

const (
	ModelTypeDQN      ModelType = "dqn"
	ModelTypeEnsemble ModelType = "ensemble"
	ModelTypeBaseline ModelType = "baseline"
)

// VersionStatus represents the lifecycle state of a model version.
type VersionStatus string

const (
	StatusTraining   VersionStatus = "training"
	StatusEvaluating VersionStatus = "evaluating"
	StatusReady      VersionStatus = "ready"
	StatusDeployed   VersionStatus = "deployed"
	StatusRolledBack VersionStatus = "rolled_back"
)

// ModelVersion is one versioned trained artifact tracked by the repository.
// At most one version has StatusDeployed at any time.
type ModelVersion struct {
	ID               string
	Version          string
	ModelType        ModelType
	CreatedAt        time.Time
	TrainedOn        TimeRange
	DataPoints       int
	Metrics          ModelMetrics
	Config           TrainingConfig
	Hyperparameters  map[string]interface{}
	Status           VersionStatus
	DeployedAt       *time.Time
	RollbackReason   string
	PerformanceScore float64 // 0-100 composite
	ArtifactRef      string
	Checksum         string
}

// IsTerminal reports whether the version can no longer change status.
func (v *ModelVersion) IsTerminal() bool {
	return v.Status == StatusRolledBack
}

// TimeRange is a half-open [Start, End) window over trade history.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Duration returns the span of the range.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// TradeDistribution buckets trades by outcome.
type TradeDistribution struct {
	Profitable   int
	Breakeven    int
	Unprofitable int
}

// ModelMetrics holds performance metrics derived from a sequence of
// closed-trade outcomes. Always computed, never hand-edited.
type ModelMetrics struct {
	TotalTrades      int
	WinningTrades    int
	WinRate          float64
	TotalProfit      float64
	TotalLoss        float64
	NetProfit        float64
	ProfitFactor     float64
	SharpeRatio      float64
	MaxDrawdown      float64
	AverageWin       float64
	AverageLoss      float64
	LargestWin       float64
	LargestLoss      float64
	ConsistencyScore float64
	Distribution     TradeDistribution
}

// TradeOutcome is a single closed trade as reported by the execution layer.
type TradeOutcome struct {
	TradeID    string
	Symbol     string
	OpenedAt   time.Time
	ClosedAt   time.Time
	Profit     float64
	RiskAmount float64
	Confidence float64 // model confidence at entry, 0-1
}

// Duration returns the holding period of the trade.
func (t TradeOutcome) Duration() time.Duration {
	return t.ClosedAt.Sub(t.OpenedAt)
}

// TrainingSample is one featurized reinforcement-learning transition.
type TrainingSample struct {
	Features     []float64
	Action       int
	Reward       float64
	NextFeatures []float64
	Done         bool
}

// TrainingConfig is the configuration snapshot a version was trained with.
type TrainingConfig struct {
	LookbackDays           int
	MinTradesThreshold     int
	MaxTradesPerBatch      int
	HoldoutFraction        float64
	HyperparameterSearch   bool
	SearchTrials           int
	OptimizationMetric     string // sharpe, win_rate, profit_factor, composite
	MinWinRate             float64
	MinProfitFactor        float64
	MaxDrawdownThreshold   float64
	MinTradesForValidation int
	AutoDeploy             bool
}
