// Package scheduler runs the bot's periodic maintenance jobs, such as the
// catalog reload and the throttle sweep, on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultCatalogReloadSpec reloads the catalog snapshot every six hours.
const DefaultCatalogReloadSpec = "0 */6 * * *"

// DefaultSweepSpec prunes in-memory caches once a minute.
const DefaultSweepSpec = "@every 1m"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field expressions plus descriptors such as "@every 1m".
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c, jobs: make(map[string]cron.EntryID)}
}

// AddJob schedules task under name using the provided cron expression.
// It returns an error if the expression is invalid or name is taken.
func (s *Scheduler) AddJob(name, expr string, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}
	id, err := s.cron.AddFunc(expr, func() {
		slog.Debug("Scheduler: running job", "job", name)
		task()
	})
	if err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", name, expr, err)
	}
	s.jobs[name] = id
	slog.Info("Scheduler.AddJob: scheduled", "job", name, "schedule", expr)
	return nil
}

// RemoveJob unschedules name. Unknown names are ignored.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
}

// Jobs returns the names of scheduled jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Stop stops the cron scheduler and waits for running jobs to finish or ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
