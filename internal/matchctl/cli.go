package matchctl

import (
	"fmt"
	"os"

	"github.com/okian/circlematch/pkg/logger"
)

// SetupLogging initializes the global logger for the CLI.
func SetupLogging(verbose bool, format string) error {
	if err := logger.Init(logger.WithOutput(os.Stderr), logger.WithFormat(format)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information.
func ShowHelp() {
	os.Stdout.WriteString(`matchctl
========

Submits matching sessions to a circlematch server and verifies what it stores.

Usage:
  matchctl -circle <id> [options]

Options:
  -url string           Base URL of the service (default "http://localhost:9080")
  -api-key string       X-API-KEY value (env CIRCLEMATCH_API_KEY)
  -token string         Bearer token; minted from -jwt-secret when empty
  -jwt-secret string    Secret used to mint a token (env CIRCLEMATCH_JWT_SECRET)
  -project-url string   Auth project URL (env CIRCLEMATCH_PROJECT_URL)
  -user string          User id placed in the minted token
  -circle string        Circle to match
  -sessions int         Number of sessions to submit (default 1)
  -workers int          Concurrent submissions (default 4)
  -timeout duration     HTTP request timeout (default 6m)
  -preferences string   Event preferences text
  -budget string        Budget text
  -availability string  Availability text
  -output string        Write session results as JSON to this file
  -log-format string    text or json (default "text")
  -verbose              Enable debug logging
  -help                 Show this help message

Examples:
  matchctl -circle 5f1c... -user 9a2e... -jwt-secret $SECRET -project-url https://abcd.supabase.co
  matchctl -circle 5f1c... -token $TOKEN -sessions 20 -workers 8 -output results.json
`)
}
