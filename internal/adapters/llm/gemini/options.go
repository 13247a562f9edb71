package gemini

import (
	"time"

	"github.com/okian/circlematch/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithModel selects the model name, e.g. "gemini-1.5-flash-latest".
func WithModel(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.model = name
		}
	}
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithRequestsPerSecond throttles outgoing calls. Zero disables throttling.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *Client) {
		if rps >= 0 {
			c.rps = rps
		}
	}
}

// WithTimeout bounds each HTTP exchange.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
