package interfaces

import "time"

// JobStatus represents the current status of a scheduled job
type JobStatus struct {
	Name      string
	Schedule  string
	LastRun   *time.Time
	LastError string
	RunCount  int
}

// SchedulerService manages cron-based background maintenance
type SchedulerService interface {
	// RegisterJob registers a job under a cron schedule expression
	RegisterJob(name string, schedule string, handler func() error) error

	// Start begins executing registered jobs
	Start() error

	// Stop halts the scheduler and waits for running jobs
	Stop() error

	// IsRunning returns true if scheduler is active
	IsRunning() bool

	// GetJobStatus returns the status of a specific job
	GetJobStatus(name string) (*JobStatus, error)

	// GetAllJobStatuses returns all job statuses
	GetAllJobStatuses() map[string]*JobStatus
}
