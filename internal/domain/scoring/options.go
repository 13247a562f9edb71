package scoring

import (
	"time"

	"github.com/okian/circlematch/pkg/logger"
)

// Option applies a configuration option to the LLMScorer.
type Option func(*LLMScorer)

// WithSystemPrompt replaces the rubric prompt.
func WithSystemPrompt(prompt string) Option {
	return func(s *LLMScorer) {
		if prompt != "" {
			s.systemPrompt = prompt
		}
	}
}

// WithExamples replaces the few-shot examples. An empty slice disables them.
func WithExamples(examples []Example) Option {
	return func(s *LLMScorer) {
		s.examples = examples
	}
}

// WithCallTimeout bounds a single model call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *LLMScorer) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *LLMScorer) {
		if t >= 0 {
			s.temperature = t
		}
	}
}

// WithMaxTokens caps the model's output tokens.
func WithMaxTokens(n int) Option {
	return func(s *LLMScorer) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *LLMScorer) {
		if l != nil {
			s.logger = l
		}
	}
}
