package api

import "github.com/okian/circlematch/pkg/logger"

// Option configures a Server.
type Option func(*Server)

// WithAPIKey sets the shared secret expected in X-API-KEY. An empty key
// disables the check.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAuthenticator sets the bearer token verifier for user routes.
func WithAuthenticator(a *Authenticator) Option {
	return func(s *Server) {
		if a != nil {
			s.auth = a
		}
	}
}

// WithSubmitRateLimit limits submissions per client IP per minute. Zero
// disables the limit.
func WithSubmitRateLimit(perMinute int) Option {
	return func(s *Server) {
		if perMinute >= 0 {
			s.submitLimit = perMinute
		}
	}
}

// WithStatsProvider exposes provider on /stats.
func WithStatsProvider(provider StatsProvider) Option {
	return func(s *Server) {
		if provider != nil {
			s.stats = provider
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
