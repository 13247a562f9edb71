package repository

import (
	"github.com/okian/circlematch/pkg/logger"
)

// Option applies a configuration option to a store.
type Option func(*settings)

type settings struct {
	autoMigrate bool
	logger      logger.Logger
}

// WithAutoMigrate creates or updates the tables on Open.
func WithAutoMigrate(enabled bool) Option {
	return func(s *settings) {
		s.autoMigrate = enabled
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{logger: logger.Get().Named("repository")}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
