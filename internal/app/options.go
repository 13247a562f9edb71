package service

import (
	"time"

	"github.com/okian/circlematch/internal/adapters/repository"
	"github.com/okian/circlematch/internal/domain/ranking"
	"github.com/okian/circlematch/internal/domain/recommend"
	"github.com/okian/circlematch/internal/domain/scoring"
	"github.com/okian/circlematch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. The service owns it and closes
// it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithScorer sets the pair scorer run by the worker pool.
func WithScorer(scorer scoring.Scorer) Option {
	return func(s *Service) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkerCount sets the number of scoring workers. It bounds model
// concurrency across every run in the process.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the scoring job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMaxConcurrency bounds in-flight pairs for a single run.
func WithMaxConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithCallTimeout bounds every scorer call made by the worker pool.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithRunDeadline bounds the whole fan-out of one run.
func WithRunDeadline(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.runDeadline = d
		}
	}
}

// WithFailurePolicy selects partial or fail-fast handling of pair failures.
func WithFailurePolicy(p recommend.FailurePolicy) Option {
	return func(s *Service) {
		if p.Valid() {
			s.policy = p
		}
	}
}

// WithTotalPolicy selects how the ranker computes total scores.
func WithTotalPolicy(p ranking.TotalPolicy) Option {
	return func(s *Service) {
		if p.Valid() {
			s.total = p
		}
	}
}
