// Package jobs runs chat updates as tracked background jobs so that a slow
// extraction never holds up an approver's decision.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeIntake processes an uploaded invoice up to the approval request.
	JobTypeIntake JobType = "intake"
	// JobTypeDecision applies an approve or reject decision.
	JobTypeDecision JobType = "decision"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed. Failed jobs are not retried.
	JobStatusFailed JobStatus = "failed"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// Job is one unit of background work.
type Job struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Type is the kind of work.
	Type JobType `json:"type"`

	// SubmitterID is the chat user the job acts for.
	SubmitterID int64 `json:"submitter_id,omitempty"`

	// SubmissionID is the pending submission the job created or decided.
	SubmissionID string `json:"submission_id,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Result is a short description of what the job produced.
	Result string `json:"result,omitempty"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// Run does the work and returns the Result.
	Run func(ctx context.Context) (string, error) `json:"-"`
}

// Finished reports whether the job reached a final status.
func (j *Job) Finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// Publish enqueues a job.
	Publish(ctx context.Context, job *Job) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
type JobHandler func(ctx context.Context, job *Job) error

// RunJob is the default handler: it calls job.Run and records its result.
func RunJob(ctx context.Context, job *Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has nothing to run", job.JobID)
	}
	result, err := job.Run(ctx)
	job.Result = result
	return err
}

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Type filters jobs by type.
	Type JobType

	// Status filters jobs by status.
	Status JobStatus

	// SubmitterID filters jobs by submitter.
	SubmitterID int64

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
