// Package matchctl drives the circlematch HTTP API from the command line:
// it checks health, submits matching sessions concurrently, verifies the
// stored recommendations and reports throughput.
package matchctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/okian/circlematch/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
	percent             = 100
)

// ErrNoSessions is returned when every submission failed.
var ErrNoSessions = errors.New("no session succeeded")

// Run executes a complete matchctl run.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("matchctl")

	token := cfg.Token
	if token == "" && cfg.JWTSecret != "" {
		var err error
		if token, err = MintToken(cfg.JWTSecret, cfg.ProjectURL, cfg.UserID); err != nil {
			return stats, fmt.Errorf("mint token: %w", err)
		}
	}
	client := NewClient(cfg, token)

	log.Info(ctx, "starting matchctl run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("circle", cfg.CircleID),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("workers", cfg.Workers),
	)

	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	events, err := client.Events(ctx)
	if err != nil {
		return stats, fmt.Errorf("list events: %w", err)
	}
	stats.EventsListed = events.Count

	results := submitSessions(ctx, cfg, client, stats)
	if stats.SessionsSuccessful == 0 {
		return stats, ErrNoSessions
	}

	for i := range results {
		if err := verifySession(ctx, client, &results[i]); err != nil {
			stats.Mismatches++
			log.Warn(ctx, "session verification failed",
				logger.String("session_id", results[i].Response.SessionID),
				logger.Error(err),
			)
		}
	}

	if cfg.OutputFile != "" {
		if err := saveResults(cfg.OutputFile, results); err != nil {
			log.Warn(ctx, "failed to save results", logger.Error(err))
		} else {
			log.Info(ctx, "results saved", logger.String("file", cfg.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats, results, cfg.Verbose)
	return stats, nil
}

// submitSessions posts cfg.Sessions submissions with at most cfg.Workers
// in flight and returns the successful ones in submission order.
func submitSessions(ctx context.Context, cfg *Config, client *Client, stats *Stats) []SessionResult {
	log := logger.Get().Named("matchctl")
	req := cfg.Request()
	slots := make([]*SessionResult, cfg.Sessions)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(max(cfg.Workers, 1))
	for i := range cfg.Sessions {
		g.Go(func() error {
			start := time.Now()
			resp, err := client.Submit(ctx, req)

			mu.Lock()
			defer mu.Unlock()
			stats.SessionsSubmitted++
			if err != nil {
				stats.SessionsFailed++
				log.Warn(ctx, "submission failed", logger.Int("n", i), logger.Error(err))
				return nil
			}
			stats.SessionsSuccessful++
			stats.Recommendations += len(resp.Recommendations)
			stats.FailedPairs += len(resp.FailedPairs)
			slots[i] = &SessionResult{Response: resp, Latency: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]SessionResult, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func saveResults(path string, results []SessionResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return os.WriteFile(path, data, filePermission)
}

func displayFinalStats(ctx context.Context, stats *Stats, results []SessionResult, verbose bool) {
	var successRate, sessionsPerSecond float64
	if stats.SessionsSubmitted > 0 {
		successRate = float64(stats.SessionsSuccessful) / float64(stats.SessionsSubmitted) * percent
	}
	if stats.Duration > 0 {
		sessionsPerSecond = float64(stats.SessionsSubmitted) / stats.Duration.Seconds()
	}

	log := logger.Get().Named("matchctl")
	log.Info(ctx, "final statistics",
		logger.Int("eventsListed", stats.EventsListed),
		logger.Int("sessionsSubmitted", stats.SessionsSubmitted),
		logger.Int("sessionsSuccessful", stats.SessionsSuccessful),
		logger.Int("sessionsFailed", stats.SessionsFailed),
		logger.Int("recommendations", stats.Recommendations),
		logger.Int("failedPairs", stats.FailedPairs),
		logger.Int("mismatches", stats.Mismatches),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("sessionsPerSecond", sessionsPerSecond),
	)

	if len(results) == 0 {
		return
	}
	top := results[0].Response.Recommendations
	if !verbose && len(top) > topShown {
		top = top[:topShown]
	}
	for i, rec := range top {
		log.Info(ctx, "recommendation",
			logger.Int("rank", i+1),
			logger.String("event_id", rec.EventID),
			logger.String("origin", rec.EventTableOrigin),
			logger.Float64("score_total", rec.ScoreTotal),
		)
	}
}
