package queue

import (
	"context"
	"time"
)

// Handler executes a job's payload. It returns nil on success; any error
// (or panic) counts as a failed attempt.
type Handler func(ctx context.Context, payload []byte) error

// Job represents a unit of deferred work. Once enqueued it is owned
// exclusively by the queue; callers must not mutate it.
type Job struct {
	ID             string
	Type           string
	Payload        []byte
	Handler        Handler
	Status         JobStatus
	Retries        int
	MaxRetries     int
	RetryDelayBase time.Duration
	AddedAt        time.Time
	StartedAt      time.Time
	CompletedAt    time.Time
}

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

const (
	// DefaultMaxRetries is the per-job attempt ceiling when none is given.
	DefaultMaxRetries = 3
	// DefaultRetryDelayBase is the base linear backoff delay when none is given.
	DefaultRetryDelayBase = 1 * time.Second
)

// JobOption customizes a job at enqueue time.
type JobOption func(*Job)

// WithMaxRetries sets the attempt ceiling after which a job is
// permanently failed.
func WithMaxRetries(n int) JobOption {
	return func(j *Job) {
		if n > 0 {
			j.MaxRetries = n
		}
	}
}

// WithRetryDelayBase sets the base delay for linear backoff; the actual
// wait scales with the attempt number.
func WithRetryDelayBase(d time.Duration) JobOption {
	return func(j *Job) {
		if d > 0 {
			j.RetryDelayBase = d
		}
	}
}

// ShouldRetry returns true if the job has retry budget left.
func (j *Job) ShouldRetry() bool {
	return j.Retries < j.MaxRetries
}
