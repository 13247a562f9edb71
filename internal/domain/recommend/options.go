package recommend

import (
	"time"

	"github.com/okian/circlematch/pkg/logger"
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithMaxConcurrency bounds how many pairs of one run are in flight at
// once, on local goroutines or outstanding at the dispatcher.
func WithMaxConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithDeadline sets the overall deadline of one run.
func WithDeadline(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.deadline = d
		}
	}
}

// WithFailurePolicy selects partial or fail-fast semantics.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(c *Coordinator) {
		if p.Valid() {
			c.policy = p
		}
	}
}

// WithDispatcher hands pairs to a shared worker pool instead of scoring
// them on goroutines owned by the run.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Coordinator) {
		c.dispatcher = d
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}
