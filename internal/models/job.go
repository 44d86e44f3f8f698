package models

import "time"

// JobStatus represents the state of a retraining job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// DataStats summarizes the training data a job collected.
type DataStats struct {
	TotalTrades      int
	ProfitableTrades int
	AvgProfit        float64
	TimeRange        TimeRange
}

// JobLogEntry is one structured progress line appended to a job.
type JobLogEntry struct {
	Timestamp time.Time
	Stage     string
	Message   string
}

// TrainingJob is the record of one end-to-end retraining run.
// It is mutated only by the owning run and is immutable once it
// reaches a terminal status. At most one job is running process-wide.
type TrainingJob struct {
	ID            string
	Status        JobStatus
	StartTime     time.Time
	EndTime       *time.Time
	InputVersion  string
	OutputVersion string
	DataStats     DataStats
	Warnings      []string
	Logs          []JobLogEntry
	Error         string
}

// IsTerminal reports whether the job has finished.
func (j *TrainingJob) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}

// AppendLog records a progress entry for a pipeline stage.
func (j *TrainingJob) AppendLog(stage, message string) {
	j.Logs = append(j.Logs, JobLogEntry{
		Timestamp: time.Now(),
		Stage:     stage,
		Message:   message,
	})
}

// AddWarning records a non-fatal issue observed during the run.
func (j *TrainingJob) AddWarning(w string) {
	j.Warnings = append(j.Warnings, w)
}
