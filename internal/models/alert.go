package models

import "time"

// AlertType classifies a performance alert.
type AlertType string

const (
	AlertPerformanceDegradation AlertType = "performance_degradation"
	AlertModelDrift             AlertType = "model_drift"
	AlertTrainingFailure        AlertType = "training_failure"
	AlertDataQuality            AlertType = "data_quality"
)

// AlertSeverity ranks the urgency of an alert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// PerformanceAlert is an append-only monitoring event. Acknowledged and
// ResolvedAt are monotone: once set by operator action they are never
// reverted.
type PerformanceAlert struct {
	ID           string
	Type         AlertType
	Severity     AlertSeverity
	Timestamp    time.Time
	Message      string
	ModelVersion string
	Metric       string
	// Details carries free-form diagnostic context only; nothing the
	// state machine reads lives here.
	Details      map[string]interface{}
	Acknowledged bool
	ResolvedAt   *time.Time
	Resolution   string
}

// IsOpen reports whether the alert is still unresolved.
func (a *PerformanceAlert) IsOpen() bool {
	return a.ResolvedAt == nil
}

// SystemHealthLevel is the aggregate health verdict.
type SystemHealthLevel string

const (
	HealthHealthy SystemHealthLevel = "healthy"
	HealthWarning SystemHealthLevel = "warning"
	HealthError   SystemHealthLevel = "error"
)

// SystemHealth is the operator-facing aggregate health report.
type SystemHealth struct {
	Level        SystemHealthLevel
	Issues       []string
	OpenAlerts   int
	CriticalOpen int
	CheckedAt    time.Time
}
