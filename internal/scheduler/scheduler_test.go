package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop(context.Background())

	if err := s.AddJob("catalog-reload", DefaultCatalogReloadSpec, func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("sweep", DefaultSweepSpec, func() {}); err != nil {
		t.Errorf("Expected descriptor schedule to parse, got %v", err)
	}
	if err := s.AddJob("sweep", "* * * * *", func() {}); err == nil {
		t.Error("Expected error for duplicate job name")
	}
	if got := len(s.Jobs()); got != 2 {
		t.Errorf("Jobs() = %d, want 2", got)
	}
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	s := NewScheduler()
	defer s.Stop(context.Background())

	for _, expr := range []string{"", "not a cron", "0 0 * * * *", "61 * * * *"} {
		if err := s.AddJob("bad", expr, func() {}); err == nil {
			t.Errorf("AddJob(%q) expected error", expr)
		}
	}
	if len(s.Jobs()) != 0 {
		t.Error("invalid jobs must not be registered")
	}
}

func TestSchedulerRunsJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop(context.Background())

	var runs atomic.Int32
	if err := s.AddJob("tick", "@every 1s", func() { runs.Add(1) }); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatal("job did not run")
	}

	s.RemoveJob("tick")
	if len(s.Jobs()) != 0 {
		t.Error("RemoveJob did not unschedule")
	}
}

func TestSchedulerStopHonorsContext(t *testing.T) {
	s := NewScheduler()
	block := make(chan struct{})
	started := make(chan struct{})
	if err := s.AddJob("slow", "@every 1s", func() {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
	}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); err == nil {
		t.Error("Stop should report the context error while a job is running")
	}
	close(block)
}
