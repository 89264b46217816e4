// Package scheduler runs cron-driven background maintenance jobs: session
// sweeps, page cache purges, and badger value log GC.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/interfaces"
)

// jobEntry tracks one registered job and its execution history.
type jobEntry struct {
	name      string
	schedule  string
	handler   func() error
	cronID    cron.EntryID
	lastRun   *time.Time
	lastError string
	runCount  int
	isRunning bool
}

// Service implements interfaces.SchedulerService on top of robfig/cron.
// Jobs that are still running when their schedule fires again are skipped.
type Service struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	mu      sync.Mutex
	jobs    map[string]*jobEntry
	running bool
}

var _ interfaces.SchedulerService = (*Service)(nil)

// NewService creates an empty scheduler. Jobs register before or after Start.
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		cron:   cron.New(),
		logger: logger,
		jobs:   make(map[string]*jobEntry),
	}
}

// RegisterJob adds a named job under a standard five-field cron expression.
func (s *Service) RegisterJob(name string, schedule string, handler func() error) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil for job %s", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
	}

	s.jobs[name] = &jobEntry{
		name:     name,
		schedule: schedule,
		handler:  handler,
		cronID:   cronID,
	}

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Maintenance job registered")

	return nil
}

// Start begins executing registered jobs on their schedules.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop halts scheduling and waits for any in-flight job to finish.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// GetJobStatus returns the status of a specific job.
func (s *Service) GetJobStatus(name string) (*interfaces.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return entry.status(), nil
}

// GetAllJobStatuses returns the status of every registered job.
func (s *Service) GetAllJobStatuses() map[string]*interfaces.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make(map[string]*interfaces.JobStatus, len(s.jobs))
	for name, entry := range s.jobs {
		statuses[name] = entry.status()
	}
	return statuses
}

// status snapshots the entry. Callers hold s.mu.
func (e *jobEntry) status() *interfaces.JobStatus {
	status := &interfaces.JobStatus{
		Name:      e.name,
		Schedule:  e.schedule,
		LastError: e.lastError,
		RunCount:  e.runCount,
	}
	if e.lastRun != nil {
		t := *e.lastRun
		status.LastRun = &t
	}
	return status
}

// executeJob runs one job, recording its outcome. A job whose previous run
// has not finished is skipped. Panics are contained so a faulty handler
// cannot kill the cron goroutine.
func (s *Service) executeJob(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic in maintenance job")

			s.mu.Lock()
			if entry, exists := s.jobs[name]; exists {
				entry.isRunning = false
				entry.lastError = fmt.Sprintf("panic: %v", r)
			}
			s.mu.Unlock()
		}
	}()

	s.mu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.mu.Unlock()
		return
	}
	if entry.isRunning {
		s.mu.Unlock()
		s.logger.Debug().Str("job_name", name).Msg("Previous run still active, skipping")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.mu.Unlock()

	start := time.Now()
	err := handler()
	finished := time.Now()

	s.mu.Lock()
	entry.isRunning = false
	entry.lastRun = &finished
	entry.runCount++
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("job_name", name).
			Dur("duration", time.Since(start)).
			Msg("Maintenance job failed")
		return
	}

	s.logger.Debug().
		Str("job_name", name).
		Dur("duration", time.Since(start)).
		Msg("Maintenance job completed")
}
