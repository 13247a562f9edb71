package matchctl

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/circlematch/internal/domain/types"
)

const topShown = 5

// ErrMismatch reports a session whose stored rows differ from its response.
var ErrMismatch = errors.New("stored recommendations do not match response")

// verifySession reads a session back and checks that every returned
// recommendation was stored and that both lists are ranked.
func verifySession(ctx context.Context, client *Client, res *SessionResult) error {
	stored, err := client.Recommendations(ctx, res.Response.SessionID)
	if err != nil {
		return err
	}
	res.Stored = len(stored.Recommendations)
	return compare(res.Response.Recommendations, stored.Recommendations)
}

func compare(returned, stored []types.RecommendationResult) error {
	if err := ranked(returned); err != nil {
		return fmt.Errorf("response: %w", err)
	}
	if err := ranked(stored); err != nil {
		return fmt.Errorf("stored: %w", err)
	}
	if len(returned) != len(stored) {
		return fmt.Errorf("%w: %d returned, %d stored", ErrMismatch, len(returned), len(stored))
	}
	byID := make(map[string]types.RecommendationResult, len(stored))
	for _, s := range stored {
		byID[s.RecommendationID] = s
	}
	for _, r := range returned {
		s, ok := byID[r.RecommendationID]
		if !ok {
			return fmt.Errorf("%w: %s missing", ErrMismatch, r.RecommendationID)
		}
		if s.EventID != r.EventID || s.ScoreTotal != r.ScoreTotal {
			return fmt.Errorf("%w: %s differs", ErrMismatch, r.RecommendationID)
		}
	}
	return nil
}

func ranked(recs []types.RecommendationResult) error {
	for i := 1; i < len(recs); i++ {
		if recs[i].ScoreTotal > recs[i-1].ScoreTotal {
			return fmt.Errorf("%w: entry %d outranks entry %d", ErrMismatch, i, i-1)
		}
	}
	return nil
}
