package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"modelctl/internal/models"
)

// Property: For any valid model version record, saving it to the
// database and loading it back produces an equivalent record
// (round-trip consistency).
func TestProperty_VersionRoundTripConsistency(t *testing.T) {
	dbPath := "test_versions_property.db"
	defer os.Remove(dbPath)

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	statusGen := gen.OneConstOf(
		string(models.StatusTraining),
		string(models.StatusEvaluating),
		string(models.StatusReady),
		string(models.StatusDeployed),
		string(models.StatusRolledBack),
	)
	modelTypeGen := gen.OneConstOf(
		string(models.ModelTypeDQN),
		string(models.ModelTypeEnsemble),
		string(models.ModelTypeBaseline),
	)

	properties.Property("Version round-trip: put then get produces equivalent record", prop.ForAll(
		func(status, modelType string, dataPoints int, score, winRate float64, ageMinutes int, deployed bool) bool {
			ctx := context.Background()

			// Unique label per run to avoid conflicts between cases.
			label := fmt.Sprintf("v-prop-%d", time.Now().UnixNano()%100000000)
			createdAt := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(ageMinutes) * time.Minute)

			v := &models.ModelVersion{
				ID:         label + "-id",
				Version:    label,
				ModelType:  models.ModelType(modelType),
				CreatedAt:  createdAt,
				TrainedOn:  models.TimeRange{Start: createdAt.AddDate(0, 0, -30), End: createdAt},
				DataPoints: dataPoints,
				Metrics: models.ModelMetrics{
					TotalTrades:   dataPoints,
					WinRate:       winRate,
					WinningTrades: int(float64(dataPoints) * winRate),
				},
				Hyperparameters: map[string]interface{}{
					"learning_rate": 0.0003,
					"batch_size":    64.0,
				},
				Status:           models.VersionStatus(status),
				PerformanceScore: score,
				ArtifactRef:      "mem://dqn/" + label,
				Checksum:         "sha256-" + label,
			}
			if deployed {
				at := createdAt.Add(time.Hour)
				v.DeployedAt = &at
			}

			if err := store.Put(ctx, v); err != nil {
				t.Logf("Failed to put version: %v", err)
				return false
			}
			got, err := store.Get(ctx, label)
			if err != nil {
				t.Logf("Failed to get version: %v", err)
				return false
			}

			if got.Version != v.Version || got.ID != v.ID {
				t.Logf("Identity mismatch: %+v", got)
				return false
			}
			if got.ModelType != v.ModelType || got.Status != v.Status {
				t.Logf("Type/status mismatch: got %s/%s", got.ModelType, got.Status)
				return false
			}
			if !got.CreatedAt.Equal(v.CreatedAt) {
				t.Logf("CreatedAt mismatch: %v vs %v", got.CreatedAt, v.CreatedAt)
				return false
			}
			if !got.TrainedOn.Start.Equal(v.TrainedOn.Start) || !got.TrainedOn.End.Equal(v.TrainedOn.End) {
				t.Logf("TrainedOn mismatch: %+v", got.TrainedOn)
				return false
			}
			if got.DataPoints != v.DataPoints {
				t.Logf("DataPoints mismatch: %d vs %d", got.DataPoints, v.DataPoints)
				return false
			}
			if math.Abs(got.Metrics.WinRate-v.Metrics.WinRate) > 1e-9 {
				t.Logf("WinRate mismatch: %v vs %v", got.Metrics.WinRate, v.Metrics.WinRate)
				return false
			}
			if math.Abs(got.PerformanceScore-v.PerformanceScore) > 1e-9 {
				t.Logf("Score mismatch: %v vs %v", got.PerformanceScore, v.PerformanceScore)
				return false
			}
			if (got.DeployedAt == nil) != (v.DeployedAt == nil) {
				t.Logf("DeployedAt presence mismatch")
				return false
			}
			if v.DeployedAt != nil && !got.DeployedAt.Equal(*v.DeployedAt) {
				t.Logf("DeployedAt mismatch: %v vs %v", got.DeployedAt, v.DeployedAt)
				return false
			}
			if got.ArtifactRef != v.ArtifactRef || got.Checksum != v.Checksum {
				t.Logf("Artifact mismatch: %s/%s", got.ArtifactRef, got.Checksum)
				return false
			}
			if got.Hyperparameters["learning_rate"] != 0.0003 {
				t.Logf("Hyperparameters mismatch: %+v", got.Hyperparameters)
				return false
			}
			return true
		},
		statusGen,
		modelTypeGen,
		gen.IntRange(0, 100000),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 1),
		gen.IntRange(0, 60*24*90),
		gen.Bool(),
	))

	// Property: QueryByStatus returns only records in that status and
	// always includes a record just saved with it.
	properties.Property("QueryByStatus: saved version appears under its status only", prop.ForAll(
		func(status string, score float64) bool {
			ctx := context.Background()
			label := fmt.Sprintf("v-status-%d", time.Now().UnixNano()%100000000)

			v := &models.ModelVersion{
				ID:               label + "-id",
				Version:          label,
				ModelType:        models.ModelTypeDQN,
				CreatedAt:        time.Now().UTC(),
				Status:           models.VersionStatus(status),
				PerformanceScore: score,
			}
			if err := store.Put(ctx, v); err != nil {
				t.Logf("Failed to put version: %v", err)
				return false
			}

			matched, err := store.QueryByStatus(ctx, models.VersionStatus(status))
			if err != nil {
				t.Logf("QueryByStatus failed: %v", err)
				return false
			}
			found := false
			for _, m := range matched {
				if m.Status != models.VersionStatus(status) {
					t.Logf("Wrong status in result: %s", m.Status)
					return false
				}
				if m.Version == label {
					found = true
				}
			}
			if !found {
				t.Logf("Saved version %s missing from status query", label)
			}
			return found
		},
		statusGen,
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}

// Property: alert records round-trip through the database with their
// acknowledgement and resolution state intact.
func TestProperty_AlertRoundTripConsistency(t *testing.T) {
	dbPath := "test_alerts_property.db"
	defer os.Remove(dbPath)

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	typeGen := gen.OneConstOf(
		string(models.AlertPerformanceDegradation),
		string(models.AlertModelDrift),
		string(models.AlertTrainingFailure),
		string(models.AlertDataQuality),
	)
	severityGen := gen.OneConstOf(
		string(models.SeverityLow),
		string(models.SeverityMedium),
		string(models.SeverityHigh),
		string(models.SeverityCritical),
	)

	properties.Property("Alert round-trip: save then get produces equivalent record", prop.ForAll(
		func(alertType, severity string, acknowledged, resolved bool, ageMinutes int) bool {
			ctx := context.Background()
			id := fmt.Sprintf("alert-prop-%d", time.Now().UnixNano()%100000000)
			ts := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(ageMinutes) * time.Minute)

			a := &models.PerformanceAlert{
				ID:           id,
				Type:         models.AlertType(alertType),
				Severity:     models.AlertSeverity(severity),
				Timestamp:    ts,
				Message:      "property check",
				ModelVersion: "v1",
				Metric:       "win_rate",
				Acknowledged: acknowledged,
			}
			if resolved {
				at := ts.Add(time.Hour)
				a.ResolvedAt = &at
				a.Resolution = "handled"
			}

			if err := store.SaveAlert(ctx, a); err != nil {
				t.Logf("Failed to save alert: %v", err)
				return false
			}
			got, err := store.GetAlert(ctx, id)
			if err != nil {
				t.Logf("Failed to get alert: %v", err)
				return false
			}

			if got.Type != a.Type || got.Severity != a.Severity {
				t.Logf("Type/severity mismatch: %s/%s", got.Type, got.Severity)
				return false
			}
			if !got.Timestamp.Equal(a.Timestamp) {
				t.Logf("Timestamp mismatch: %v vs %v", got.Timestamp, a.Timestamp)
				return false
			}
			if got.Acknowledged != a.Acknowledged {
				t.Logf("Acknowledged mismatch")
				return false
			}
			if (got.ResolvedAt == nil) != (a.ResolvedAt == nil) {
				t.Logf("ResolvedAt presence mismatch")
				return false
			}
			if got.Resolution != a.Resolution {
				t.Logf("Resolution mismatch: %q", got.Resolution)
				return false
			}
			return true
		},
		typeGen,
		severityGen,
		gen.Bool(),
		gen.Bool(),
		gen.IntRange(0, 60*24*30),
	))

	properties.TestingRun(t)
}
