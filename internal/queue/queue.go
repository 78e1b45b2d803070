package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/usvsthem-notdev/driftq/internal/backoff"
	"github.com/usvsthem-notdev/driftq/internal/deadletter"
	"github.com/usvsthem-notdev/driftq/internal/metrics"
)

var (
	// ErrMissingType is returned by Enqueue when the job type is empty.
	ErrMissingType = errors.New("job type is required")
	// ErrMissingHandler is returned by Enqueue when no handler is supplied
	// and none is registered for the job type.
	ErrMissingHandler = errors.New("job handler is required")
)

// Queue accepts jobs and executes them one at a time in arrival order.
// Failed jobs are retried with linear backoff up to their MaxRetries, then
// moved to the dead letter store. Enqueue returns immediately; the worker
// loop is started lazily and exits when the queue drains.
type Queue struct {
	mu sync.Mutex

	fifo           []*Job
	processing     bool
	pendingRetries int

	totalJobs     int
	completedJobs int
	failedJobs    int

	handlers map[string]Handler

	dlq *deadletter.Store

	defaultMaxRetries int
	defaultRetryDelay time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithDefaultMaxRetries overrides the default attempt ceiling for jobs
// enqueued without an explicit one.
func WithDefaultMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.defaultMaxRetries = n
		}
	}
}

// WithDefaultRetryDelay overrides the default base backoff delay.
func WithDefaultRetryDelay(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.defaultRetryDelay = d
		}
	}
}

// New creates a Queue backed by the given dead letter store.
func New(dlq *deadletter.Store, opts ...Option) *Queue {
	q := &Queue{
		handlers:          make(map[string]Handler),
		dlq:               dlq,
		defaultMaxRetries: DefaultMaxRetries,
		defaultRetryDelay: DefaultRetryDelayBase,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Register associates a handler with a job type. Jobs enqueued with a nil
// handler fall back to the registered one; dead letter requeues rely on it
// to reconstruct runnable jobs.
func (q *Queue) Register(jobType string, handler Handler) error {
	if jobType == "" {
		return ErrMissingType
	}
	if handler == nil {
		return ErrMissingHandler
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.handlers[jobType]; exists {
		return fmt.Errorf("handler already registered for type %s", jobType)
	}
	q.handlers[jobType] = handler
	return nil
}

// HandlerFor returns the registered handler for a job type, or nil.
func (q *Queue) HandlerFor(jobType string) Handler {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.handlers[jobType]
}

// Enqueue appends a job to the tail of the queue and returns its ID without
// waiting for execution. It fails synchronously if the type is empty or no
// handler can be resolved; nothing is queued in that case.
func (q *Queue) Enqueue(jobType string, payload []byte, handler Handler, opts ...JobOption) (string, error) {
	if jobType == "" {
		return "", ErrMissingType
	}

	q.mu.Lock()
	if handler == nil {
		handler = q.handlers[jobType]
	}
	if handler == nil {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: no handler for type %s", ErrMissingHandler, jobType)
	}

	job := &Job{
		ID:             uuid.New().String(),
		Type:           jobType,
		Payload:        payload,
		Handler:        handler,
		Status:         JobStatusQueued,
		MaxRetries:     q.defaultMaxRetries,
		RetryDelayBase: q.defaultRetryDelay,
		AddedAt:        time.Now(),
	}
	for _, opt := range opts {
		opt(job)
	}

	q.fifo = append(q.fifo, job)
	q.totalJobs++
	metrics.QueueDepth.Set(float64(len(q.fifo)))
	start := q.startLocked()
	q.mu.Unlock()

	metrics.JobsEnqueuedTotal.WithLabelValues(jobType).Inc()
	log.Debug().Str("job_id", job.ID).Str("type", jobType).Msg("job enqueued")

	if start {
		go q.run()
	}
	return job.ID, nil
}

// startLocked claims the worker loop if it is idle and there is work.
// Callers must hold q.mu. Returns true if the caller must start the loop.
func (q *Queue) startLocked() bool {
	if q.processing || len(q.fifo) == 0 {
		return false
	}
	q.processing = true
	metrics.Processing.Set(1)
	return true
}

// run is the single worker loop. It pops jobs in FIFO order until the queue
// is empty, then clears the processing flag and exits. Only one instance is
// ever active; enqueues restart it as needed.
func (q *Queue) run() {
	for {
		q.mu.Lock()
		if len(q.fifo) == 0 {
			q.processing = false
			metrics.Processing.Set(0)
			q.mu.Unlock()
			return
		}
		job := q.fifo[0]
		q.fifo = q.fifo[1:]
		metrics.QueueDepth.Set(float64(len(q.fifo)))
		q.mu.Unlock()

		q.process(job)
	}
}

// process executes one job and handles the success, retry, and dead letter
// outcomes. Handler errors and panics are contained here; a bad job never
// halts the loop.
func (q *Queue) process(job *Job) {
	job.Status = JobStatusProcessing
	job.StartedAt = time.Now()

	err := q.invoke(job)
	if err == nil {
		job.Status = JobStatusCompleted
		job.CompletedAt = time.Now()

		q.mu.Lock()
		q.completedJobs++
		q.mu.Unlock()

		metrics.JobsCompletedTotal.WithLabelValues(job.Type).Inc()
		log.Debug().Str("job_id", job.ID).Str("type", job.Type).Msg("job completed")
		return
	}

	job.Retries++
	if job.ShouldRetry() {
		delay := backoff.Calculate(backoff.Config{BaseDelay: job.RetryDelayBase}, job.Retries)

		q.mu.Lock()
		q.pendingRetries++
		q.mu.Unlock()

		metrics.JobsRetriedTotal.WithLabelValues(job.Type).Inc()
		log.Warn().
			Err(err).
			Str("job_id", job.ID).
			Str("type", job.Type).
			Int("retries", job.Retries).
			Dur("delay", delay).
			Msg("job failed, retry scheduled")

		// Re-enter at the tail after the delay rather than blocking the
		// loop, so one job's backoff never stalls the jobs behind it.
		time.AfterFunc(delay, func() {
			q.resubmit(job)
		})
		return
	}

	job.Status = JobStatusFailed

	q.mu.Lock()
	q.failedJobs++
	q.mu.Unlock()

	entry := deadletter.Entry{
		ID:            job.ID,
		Type:          job.Type,
		Payload:       job.Payload,
		Error:         err.Error(),
		ErrorCategory: deadletter.Categorize(err.Error()),
		Retries:       job.Retries,
		FailedAt:      time.Now(),
	}

	metrics.JobsDeadLetteredTotal.WithLabelValues(job.Type, string(entry.ErrorCategory)).Inc()

	if appendErr := q.dlq.Append(entry); appendErr != nil {
		log.Error().Err(appendErr).Str("job_id", job.ID).Msg("failed to record dead letter entry")
	}
}

// invoke runs the handler, converting panics into errors.
func (q *Queue) invoke(job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return job.Handler(context.Background(), job.Payload)
}

// resubmit returns a retried job to the tail of the queue after its backoff
// delay and restarts the loop if it went idle in the meantime.
func (q *Queue) resubmit(job *Job) {
	job.Status = JobStatusQueued

	q.mu.Lock()
	q.pendingRetries--
	q.fifo = append(q.fifo, job)
	metrics.QueueDepth.Set(float64(len(q.fifo)))
	start := q.startLocked()
	q.mu.Unlock()

	if start {
		go q.run()
	}
}

// Stats is a snapshot of queue counters.
type Stats struct {
	TotalJobs        int    `json:"total_jobs"`
	CompletedJobs    int    `json:"completed_jobs"`
	FailedJobs       int    `json:"failed_jobs"`
	CurrentQueueSize int    `json:"current_queue_size"`
	Processing       bool   `json:"processing"`
	SuccessRate      string `json:"success_rate"`
}

// GetStats returns live statistics.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	rate := "n/a"
	if q.totalJobs > 0 {
		rate = fmt.Sprintf("%.2f%%", float64(q.completedJobs)/float64(q.totalJobs)*100)
	}

	return Stats{
		TotalJobs:        q.totalJobs,
		CompletedJobs:    q.completedJobs,
		FailedJobs:       q.failedJobs,
		CurrentQueueSize: len(q.fifo),
		Processing:       q.processing,
		SuccessRate:      rate,
	}
}

// Clear discards all pending jobs and returns the count discarded. The job
// currently processing, if any, and the dead letter store are unaffected.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.fifo)
	q.fifo = nil
	metrics.QueueDepth.Set(0)

	if n > 0 {
		log.Info().Int("discarded", n).Msg("cleared pending jobs")
	}
	return n
}

// Busy reports whether the queue still owns work: a job in flight, jobs
// waiting in the FIFO, or retries pending their backoff. Shutdown draining
// polls this.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing || len(q.fifo) > 0 || q.pendingRetries > 0
}

// DeadLetters returns a copy of all dead letter entries.
func (q *Queue) DeadLetters() []deadletter.Entry {
	return q.dlq.List()
}

// ClearDeadLetters empties the dead letter store.
func (q *Queue) ClearDeadLetters() error {
	return q.dlq.Clear()
}

// RequeueDeadLetter removes and returns the dead letter entry matching id.
// It does not re-enqueue; the caller reconstructs a job and calls Enqueue.
func (q *Queue) RequeueDeadLetter(id string) (deadletter.Entry, error) {
	return q.dlq.Requeue(id)
}
