package models

import "time"

// RolloutStatus represents the state of an A/B rollout.
type RolloutStatus string

const (
	RolloutActive     RolloutStatus = "active"
	RolloutCompleted  RolloutStatus = "completed"
	RolloutTerminated RolloutStatus = "terminated"
)

// Rollout termination reasons recorded when an active test is ended
// without a verdict.
const (
	TerminationReplacedByNewTest      = "replaced_by_new_test"
	TerminationCancelledDueToDeploy   = "cancelled_due_to_deployment"
	TerminationCancelledByOperator    = "cancelled_by_operator"
	TerminationCancelledByHealthSweep = "cancelled_by_health_sweep"
)

// ArmMetrics is the aggregated live performance of one rollout arm.
// The caller aggregates realized trades per arm and merges them in.
type ArmMetrics struct {
	Trades    int
	Wins      int
	WinRate   float64
	NetProfit float64
}

// RolloutMetrics carries both arms plus the current statistical verdict.
type RolloutMetrics struct {
	ModelA                  ArmMetrics
	ModelB                  ArmMetrics
	StatisticalSignificance bool
	PValue                  float64
}

// Winner identifies the outcome of a completed rollout.
type Winner string

const (
	WinnerA            Winner = "a"
	WinnerB            Winner = "b"
	WinnerInconclusive Winner = "inconclusive"
)

// ABRollout is a controlled traffic split between two model versions.
// At most one rollout has RolloutActive status; starting a new one
// terminates the prior active rollout. The two versions are distinct
// and must exist in the repository.
type ABRollout struct {
	ID                string
	ModelAVersion     string
	ModelBVersion     string
	TrafficSplit      int // 0-100, weight of B
	StartTime         time.Time
	EndTime           *time.Time
	Status            RolloutStatus
	TerminationReason string
	Metrics           RolloutMetrics
	Winner            Winner
}

// Recommendation is the decision produced by the rollout statistics.
type Recommendation string

const (
	RecommendContinue         Recommendation = "continue"
	RecommendStopAndDeployA   Recommendation = "stop_and_deploy_a"
	RecommendStopAndDeployB   Recommendation = "stop_and_deploy_b"
	RecommendStopInconclusive Recommendation = "stop_inconclusive"
)

// ABTestResults is the evaluated state of a rollout with its recommendation.
type ABTestResults struct {
	Rollout        ABRollout
	Recommendation Recommendation
	Confidence     float64
	Delta          float64
	ZScore         float64
	PValue         float64
}
