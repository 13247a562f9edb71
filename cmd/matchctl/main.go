package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/circlematch/internal/matchctl"
	"github.com/okian/circlematch/pkg/logger"
)

const (
	defaultSessions = 1
	defaultWorkers  = 4
	defaultTimeout  = 6 * time.Minute
	defaultRunLimit = 30 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		apiKey       = flag.String("api-key", os.Getenv("CIRCLEMATCH_API_KEY"), "X-API-KEY value")
		token        = flag.String("token", "", "Bearer token; minted from -jwt-secret when empty")
		jwtSecret    = flag.String("jwt-secret", os.Getenv("CIRCLEMATCH_JWT_SECRET"), "Secret used to mint a token")
		projectURL   = flag.String("project-url", os.Getenv("CIRCLEMATCH_PROJECT_URL"), "Auth project URL")
		userID       = flag.String("user", "", "User id placed in the minted token")
		circleID     = flag.String("circle", "", "Circle to match")
		sessions     = flag.Int("sessions", defaultSessions, "Number of sessions to submit")
		workers      = flag.Int("workers", defaultWorkers, "Concurrent submissions")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		preferences  = flag.String("preferences", "", "Event preferences text")
		budget       = flag.String("budget", "", "Budget text")
		availability = flag.String("availability", "", "Availability text")
		output       = flag.String("output", "", "Write session results as JSON to this file")
		logFormat    = flag.String("log-format", "text", "text or json")
		verbose      = flag.Bool("verbose", false, "Enable debug logging")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || *circleID == "" {
		matchctl.ShowHelp()
		return
	}

	if err := matchctl.SetupLogging(*verbose, *logFormat); err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunLimit)
	defer cancel()

	cfg := &matchctl.Config{
		BaseURL:          *baseURL,
		APIKey:           *apiKey,
		Token:            *token,
		CircleID:         *circleID,
		Sessions:         *sessions,
		Workers:          *workers,
		Timeout:          *timeout,
		JWTSecret:        *jwtSecret,
		ProjectURL:       *projectURL,
		UserID:           *userID,
		EventPreferences: *preferences,
		Budget:           *budget,
		Availability:     *availability,
		OutputFile:       *output,
		Verbose:          *verbose,
	}

	if _, err := matchctl.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "matchctl run failed", logger.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}
