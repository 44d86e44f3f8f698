// Package scheduler runs registered jobs on cron schedules. A job's
// next run is armed only after the previous run completes, so a slow
// job never overlaps itself.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"modelctl/internal/errors"
	"modelctl/internal/telemetry"
)

// tickInterval is how often the dispatcher checks for due jobs. Cron
// resolution is one minute, so sub-minute polling is plenty.
const tickInterval = 15 * time.Second

// JobFunc is the work a scheduled job performs.
type JobFunc func(ctx context.Context) error

type job struct {
	id       string
	name     string
	schedule *Schedule
	fn       JobFunc
	enabled  bool
	running  bool
	lastRun  *time.Time
	lastErr  string
	nextRun  *time.Time
}

// JobInfo is the operator-facing view of one registered job.
type JobInfo struct {
	ID      string
	Name    string
	Cron    string
	Enabled bool
	Running bool
	LastRun *time.Time
	LastErr string
	NextRun *time.Time
}

// Status is the scheduler status snapshot.
type Status struct {
	Running bool
	Jobs    []JobInfo
}

// Scheduler dispatches registered jobs when their schedules fire.
type Scheduler struct {
	logger   zerolog.Logger
	recorder *telemetry.Recorder

	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a stopped scheduler.
func New(logger zerolog.Logger, recorder *telemetry.Recorder) *Scheduler {
	return &Scheduler{
		logger:   logger.With().Str("component", "scheduler").Logger(),
		recorder: recorder,
		jobs:     make(map[string]*job),
	}
}

// RegisterJob registers a named job on a cron expression and returns
// its id. The expression is validated here; a bad one never reaches a
// scheduled run.
func (s *Scheduler) RegisterJob(name, cronExpr string, fn JobFunc) (string, error) {
	schedule, err := ParseCron(cronExpr)
	if err != nil {
		return "", errors.NewConfigError("cron", cronExpr, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j := &job{
		id:       uuid.NewString(),
		name:     name,
		schedule: schedule,
		fn:       fn,
		enabled:  true,
	}
	if s.running {
		s.arm(j, time.Now())
	}
	s.jobs[j.id] = j
	s.order = append(s.order, j.id)
	s.setGauge()
	s.logger.Info().Str("job", name).Str("cron", cronExpr).Msg("Job registered")
	return j.id, nil
}

// UnregisterJob removes a job. A run already in flight finishes.
func (s *Scheduler) UnregisterJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return errors.ErrJobNotFound
	}
	delete(s.jobs, id)
	for i, jid := range s.order {
		if jid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.setGauge()
	s.logger.Info().Str("job", j.name).Msg("Job unregistered")
	return nil
}

// EnableJob re-enables a disabled job and arms its next run.
func (s *Scheduler) EnableJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return errors.ErrJobNotFound
	}
	j.enabled = true
	if s.running && !j.running {
		s.arm(j, time.Now())
	}
	return nil
}

// DisableJob stops future runs of a job without removing it.
func (s *Scheduler) DisableJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return errors.ErrJobNotFound
	}
	j.enabled = false
	j.nextRun = nil
	return nil
}

// RunJobNow triggers a job immediately, outside its schedule. A job
// already running is not started again.
func (s *Scheduler) RunJobNow(ctx context.Context, id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return errors.ErrJobNotFound
	}
	if j.running {
		s.mu.Unlock()
		return errors.ErrAlreadyRunning
	}
	j.running = true
	s.mu.Unlock()

	s.execute(ctx, j)
	return nil
}

// Start arms all enabled jobs and begins dispatching.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel

	now := time.Now()
	for _, j := range s.jobs {
		if j.enabled {
			s.arm(j, now)
		}
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(runCtx)
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop halts dispatching and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

// GetStatus returns a snapshot of the scheduler and its jobs in
// registration order.
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Running: s.running}
	for _, id := range s.order {
		j := s.jobs[id]
		status.Jobs = append(status.Jobs, JobInfo{
			ID:      j.id,
			Name:    j.name,
			Cron:    j.schedule.String(),
			Enabled: j.enabled,
			Running: j.running,
			LastRun: j.lastRun,
			LastErr: j.lastErr,
			NextRun: j.nextRun,
		})
	}
	return status
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.dispatch(ctx, now)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if j.enabled && !j.running && j.nextRun != nil && !j.nextRun.After(now) {
			j.running = true
			j.nextRun = nil
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		j := j
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.execute(ctx, j)
		}()
	}
}

// execute runs a job and re-arms it from its completion time. The
// caller has already marked it running.
func (s *Scheduler) execute(ctx context.Context, j *job) {
	start := time.Now()
	s.logger.Info().Str("job", j.name).Msg("Job run started")

	err := func() (jobErr error) {
		defer func() {
			if r := recover(); r != nil {
				jobErr = fmt.Errorf("job panicked: %v", r)
				s.logger.Error().Interface("panic", r).Str("job", j.name).Msg("Job panicked")
			}
		}()
		return j.fn(ctx)
	}()

	finished := time.Now()

	s.mu.Lock()
	j.running = false
	j.lastRun = &finished
	j.lastErr = ""
	if err != nil {
		j.lastErr = err.Error()
	}
	if s.running && j.enabled {
		s.arm(j, finished)
	}
	s.mu.Unlock()

	event := s.logger.Info()
	if err != nil {
		event = s.logger.Warn().Err(err)
	}
	event.Str("job", j.name).Dur("duration", finished.Sub(start)).Msg("Job run finished")
}

// arm computes and stores the job's next run. Caller holds the lock.
func (s *Scheduler) arm(j *job, from time.Time) {
	next, err := j.schedule.Next(from)
	if err != nil {
		s.logger.Warn().Err(err).Str("job", j.name).Msg("Job has no upcoming run")
		j.nextRun = nil
		return
	}
	j.nextRun = &next
}

func (s *Scheduler) setGauge() {
	if s.recorder != nil {
		s.recorder.SetScheduledJobs(len(s.jobs))
	}
}
