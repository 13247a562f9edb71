package api

import (
	"errors"

	service "github.com/okian/circlematch/internal/app"
	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/internal/domain/recommend"
	"github.com/okian/circlematch/internal/domain/scoring"
	"github.com/okian/circlematch/internal/domain/types"
)

// Reason codes reported for failed pairs. The full error stays in the log.
const (
	reasonNotScored          = "not_scored"
	reasonScoreOutOfRange    = "score_out_of_range"
	reasonInvalidOutput      = "invalid_output"
	reasonNoStructuredOutput = "no_structured_output"
	reasonModelError         = "model_error"
	reasonScoringFailed      = "scoring_failed"
)

func failureReason(err error) string {
	switch {
	case errors.Is(err, recommend.ErrPairNotScored):
		return reasonNotScored
	case errors.Is(err, scoring.ErrScoreOutOfRange):
		return reasonScoreOutOfRange
	case errors.Is(err, scoring.ErrInvalidOutput):
		return reasonInvalidOutput
	case errors.Is(err, scoring.ErrNoStructuredOutput):
		return reasonNoStructuredOutput
	case errors.Is(err, scoring.ErrModel):
		return reasonModelError
	default:
		return reasonScoringFailed
	}
}

func scoreDetail(scores map[model.Metric]float64) types.ScoreDetail {
	return types.ScoreDetail{
		ConstraintTime:     scores[model.MetricConstraintTime],
		ConstraintLocation: scores[model.MetricConstraintLocation],
		ConstraintOther:    scores[model.MetricConstraintOther],
		Preference:         scores[model.MetricPreference],
	}
}

func matchingResponse(res service.MatchingResult) types.MatchingResponse {
	out := types.MatchingResponse{
		SessionID:       res.SessionID,
		Recommendations: make([]types.RecommendationResult, 0, len(res.Recommendations)),
	}
	for _, rec := range res.Recommendations {
		out.Recommendations = append(out.Recommendations, types.RecommendationResult{
			RecommendationID: rec.ID,
			EventID:          rec.EventID,
			EventTableOrigin: string(rec.Origin),
			EventData:        recordData(rec.EventData),
			ScoreTotal:       rec.ScoreTotal,
			Scores:           scoreDetail(rec.Scores),
			Reasoning:        rec.Reasoning,
		})
	}
	for _, f := range res.Failures {
		out.FailedPairs = append(out.FailedPairs, types.FailedPair{
			EventID:          f.EventID,
			UserID:           f.UserID,
			EventTableOrigin: string(f.Origin),
			Error:            failureReason(f.Err),
		})
	}
	return out
}

func storedResult(rec model.StoredRecommendation) types.RecommendationResult {
	return types.RecommendationResult{
		RecommendationID: rec.ID,
		EventID:          rec.EventID,
		EventTableOrigin: string(rec.Origin),
		ScoreTotal:       rec.ScoreTotal,
		Scores:           scoreDetail(rec.Scores),
		Reasoning:        rec.Reasoning,
	}
}

func sessionResponse(s model.Session) types.SessionResponse {
	return types.SessionResponse{
		ID:               s.ID,
		CircleID:         s.CircleID,
		CreatedByUserID:  s.CreatedByUserID,
		EventPreferences: s.EventPreferences,
		Budget:           s.Budget,
		Availability:     s.Availability,
		CreatedAt:        s.CreatedAt,
	}
}

func attributeResponse(a model.Attribute) types.AttributeResponse {
	return types.AttributeResponse{
		ID:            a.ID,
		UserID:        a.UserID,
		AttributeType: string(a.Type),
		Description:   a.Description,
		Source:        string(a.Source),
		ExpiresAt:     a.ExpiresAt,
		CreatedAt:     a.CreatedAt,
	}
}
