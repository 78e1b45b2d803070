package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/usvsthem-notdev/driftq/internal/queue"
)

// State of the coordinator
type State string

const (
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateExiting  State = "exiting"
)

// Coordinator intercepts termination signals and gives in-flight and queued
// work a bounded chance to finish before the process exits. Jobs still
// queued when the drain budget expires are lost; only the dead letter store
// survives a restart.
type Coordinator struct {
	queue        *queue.Queue
	drainTimeout time.Duration
	pollInterval time.Duration
	exit         func(int)

	mu    sync.Mutex
	state State
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDrainTimeout sets the maximum time to wait for the queue to drain.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.drainTimeout = d
		}
	}
}

// WithPollInterval sets how often the queue is polled while draining.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithExitFunc replaces os.Exit, for tests.
func WithExitFunc(f func(int)) Option {
	return func(c *Coordinator) {
		c.exit = f
	}
}

// New creates a Coordinator watching the given queue.
func New(q *queue.Queue, opts ...Option) *Coordinator {
	c := &Coordinator{
		queue:        q,
		drainTimeout: 30 * time.Second,
		pollInterval: 100 * time.Millisecond,
		state:        StateRunning,
		exit:         os.Exit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Watch blocks until a termination signal arrives, drains the queue, then
// exits the process.
func (c *Coordinator) Watch() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("termination signal received, draining")

	c.Drain()
	c.exit(0)
}

// Drain polls the queue until it is idle or the drain budget elapses.
// Returns true if the queue drained cleanly.
func (c *Coordinator) Drain() bool {
	c.setState(StateDraining)
	deadline := time.Now().Add(c.drainTimeout)

	clean := true
	for c.queue.Busy() {
		if time.Now().After(deadline) {
			clean = false
			break
		}
		time.Sleep(c.pollInterval)
	}

	c.setState(StateExiting)

	stats := c.queue.GetStats()
	log.Info().
		Int("total", stats.TotalJobs).
		Int("completed", stats.CompletedJobs).
		Int("failed", stats.FailedJobs).
		Int("queued", stats.CurrentQueueSize).
		Str("success_rate", stats.SuccessRate).
		Msg("final queue stats")

	if !clean {
		log.Warn().Dur("budget", c.drainTimeout).Msg("drain budget exhausted, forcing shutdown")
	}
	return clean
}
