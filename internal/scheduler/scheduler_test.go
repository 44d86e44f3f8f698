package scheduler

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"modelctl/internal/errors"
)

func newTestScheduler() *Scheduler {
	return New(zerolog.Nop(), nil)
}

func TestRegisterJobValidatesCron(t *testing.T) {
	s := newTestScheduler()

	if _, err := s.RegisterJob("bad", "not a cron", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}

	id, err := s.RegisterJob("good", "0 2 * * 7", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty job id")
	}
}

func TestRunJobNow(t *testing.T) {
	s := newTestScheduler()

	var runs atomic.Int32
	id, err := s.RegisterJob("counter", "0 0 1 1 *", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RunJobNow(context.Background(), id); err != nil {
		t.Fatalf("RunJobNow: %v", err)
	}
	if got := runs.Load(); got != 1 {
		t.Errorf("job ran %d times, want 1", got)
	}

	status := s.GetStatus()
	if len(status.Jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(status.Jobs))
	}
	if status.Jobs[0].LastRun == nil {
		t.Error("LastRun not recorded after manual run")
	}
}

func TestRunJobNowUnknownID(t *testing.T) {
	s := newTestScheduler()
	if err := s.RunJobNow(context.Background(), "nope"); !errors.Is(err, errors.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestRunJobNowRecordsError(t *testing.T) {
	s := newTestScheduler()
	id, _ := s.RegisterJob("failing", "0 0 1 1 *", func(ctx context.Context) error {
		return errors.ErrTimeout
	})

	if err := s.RunJobNow(context.Background(), id); err != nil {
		t.Fatalf("RunJobNow should not propagate the job error, got %v", err)
	}
	status := s.GetStatus()
	if status.Jobs[0].LastErr == "" {
		t.Error("job error not recorded in status")
	}
}

func TestRunJobNowRecoversPanic(t *testing.T) {
	s := newTestScheduler()
	id, _ := s.RegisterJob("panicky", "0 0 1 1 *", func(ctx context.Context) error {
		panic("boom")
	})

	if err := s.RunJobNow(context.Background(), id); err != nil {
		t.Fatalf("RunJobNow: %v", err)
	}
	status := s.GetStatus()
	if status.Jobs[0].LastErr == "" {
		t.Error("panic not surfaced as job error")
	}
	if status.Jobs[0].Running {
		t.Error("job still marked running after panic")
	}
}

func TestEnableDisable(t *testing.T) {
	s := newTestScheduler()
	id, _ := s.RegisterJob("toggled", "0 2 * * *", func(ctx context.Context) error { return nil })

	if err := s.DisableJob(id); err != nil {
		t.Fatal(err)
	}
	if s.GetStatus().Jobs[0].Enabled {
		t.Error("job still enabled after DisableJob")
	}
	if s.GetStatus().Jobs[0].NextRun != nil {
		t.Error("disabled job still has a next run")
	}

	if err := s.EnableJob(id); err != nil {
		t.Fatal(err)
	}
	if !s.GetStatus().Jobs[0].Enabled {
		t.Error("job not enabled after EnableJob")
	}
}

func TestUnregisterJob(t *testing.T) {
	s := newTestScheduler()
	id, _ := s.RegisterJob("gone", "0 2 * * *", func(ctx context.Context) error { return nil })

	if err := s.UnregisterJob(id); err != nil {
		t.Fatal(err)
	}
	if len(s.GetStatus().Jobs) != 0 {
		t.Error("job still listed after unregister")
	}
	if err := s.UnregisterJob(id); !errors.Is(err, errors.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestStartArmsEnabledJobs(t *testing.T) {
	s := newTestScheduler()
	idA, _ := s.RegisterJob("armed", "0 2 * * *", func(ctx context.Context) error { return nil })
	idB, _ := s.RegisterJob("dormant", "0 3 * * *", func(ctx context.Context) error { return nil })
	_ = idA
	s.DisableJob(idB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	status := s.GetStatus()
	if !status.Running {
		t.Fatal("scheduler not running after Start")
	}
	for _, j := range status.Jobs {
		switch j.Name {
		case "armed":
			if j.NextRun == nil {
				t.Error("enabled job has no next run after Start")
			}
		case "dormant":
			if j.NextRun != nil {
				t.Error("disabled job was armed")
			}
		}
	}
}
