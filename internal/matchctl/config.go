package matchctl

import (
	"time"

	"github.com/okian/circlematch/internal/domain/types"
)

// Config holds the settings of one matchctl run.
type Config struct {
	BaseURL  string        // Base URL of the service
	APIKey   string        // Shared secret sent as X-API-KEY
	Token    string        // Bearer token; minted from JWTSecret when empty
	CircleID string        // Circle to match
	Sessions int           // Number of matching sessions to submit
	Workers  int           // Concurrent submissions
	Timeout  time.Duration // HTTP request timeout

	// Token minting.
	JWTSecret  string
	ProjectURL string
	UserID     string

	EventPreferences string
	Budget           string
	Availability     string

	OutputFile string // Output file for session results
	Verbose    bool
}

// Request builds the submit body from the config.
func (c *Config) Request() types.MatchingRequest {
	req := types.MatchingRequest{CircleID: c.CircleID}
	if c.EventPreferences != "" {
		req.EventPreferences = &c.EventPreferences
	}
	if c.Budget != "" {
		req.Budget = &c.Budget
	}
	if c.Availability != "" {
		req.Availability = &c.Availability
	}
	return req
}

// SessionResult is the outcome of one submitted session.
type SessionResult struct {
	Response types.MatchingResponse `json:"response"`
	Latency  time.Duration          `json:"latency"`
	Stored   int                    `json:"stored"`
}

// Stats holds run statistics.
type Stats struct {
	EventsListed       int
	SessionsSubmitted  int
	SessionsSuccessful int
	SessionsFailed     int
	Recommendations    int
	FailedPairs        int
	Mismatches         int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
