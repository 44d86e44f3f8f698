// Package telemetry exposes control-plane metrics via Prometheus.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Recorder holds the control-plane metric instruments.
type Recorder struct {
	jobsTotal      *prometheus.CounterVec
	deploysTotal   prometheus.Counter
	rollbacksTotal prometheus.Counter
	alertsTotal    *prometheus.CounterVec
	jobDuration    prometheus.Histogram
	scheduledJobs  prometheus.Gauge
	deployedAge    prometheus.Gauge
	activeRollout  prometheus.Gauge
}

// New creates a Recorder registered on the default registry.
func New() *Recorder {
	return &Recorder{
		jobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelctl_training_jobs_total",
				Help: "Total retraining jobs by terminal status",
			},
			[]string{"status"},
		),
		deploysTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "modelctl_deployments_total",
				Help: "Total model deployments",
			},
		),
		rollbacksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "modelctl_rollbacks_total",
				Help: "Total model rollbacks",
			},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelctl_alerts_total",
				Help: "Total performance alerts raised by severity",
			},
			[]string{"severity"},
		),
		jobDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "modelctl_training_job_duration_seconds",
				Help:    "Duration of retraining jobs in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		scheduledJobs: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "modelctl_scheduled_jobs",
				Help: "Number of registered scheduler jobs",
			},
		),
		deployedAge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "modelctl_deployed_version_age_seconds",
				Help: "Age of the currently deployed model version",
			},
		),
		activeRollout: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "modelctl_active_rollout",
				Help: "1 when an A/B rollout is active, 0 otherwise",
			},
		),
	}
}

// RecordJob records a finished retraining job.
func (r *Recorder) RecordJob(status string, duration time.Duration) {
	r.jobsTotal.WithLabelValues(status).Inc()
	r.jobDuration.Observe(duration.Seconds())
}

// RecordDeployment records a model deployment.
func (r *Recorder) RecordDeployment() {
	r.deploysTotal.Inc()
}

// RecordRollback records a model rollback.
func (r *Recorder) RecordRollback() {
	r.rollbacksTotal.Inc()
}

// RecordAlert records a raised alert.
func (r *Recorder) RecordAlert(severity string) {
	r.alertsTotal.WithLabelValues(severity).Inc()
}

// SetScheduledJobs sets the registered job count.
func (r *Recorder) SetScheduledJobs(n int) {
	r.scheduledJobs.Set(float64(n))
}

// SetDeployedAge sets the deployed version age.
func (r *Recorder) SetDeployedAge(age time.Duration) {
	r.deployedAge.Set(age.Seconds())
}

// SetActiveRollout flags whether a rollout is active.
func (r *Recorder) SetActiveRollout(active bool) {
	if active {
		r.activeRollout.Set(1)
	} else {
		r.activeRollout.Set(0)
	}
}

// Serve runs the metrics HTTP endpoint until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn().Err(err).Msg("Metrics endpoint stopped")
	}
}
