// Package types contains the request and response bodies of the HTTP API.
package types

import "time"

// MatchingRequest starts a matching run for a circle.
type MatchingRequest struct {
	CircleID         string  `json:"circle_id" validate:"required,max=128"`
	EventPreferences *string `json:"event_preferences,omitempty" validate:"omitempty,max=2000"`
	Budget           *string `json:"budget,omitempty" validate:"omitempty,max=200"`
	Availability     *string `json:"availability,omitempty" validate:"omitempty,max=500"`
}

// ScoreDetail holds the per-category means of a recommendation.
type ScoreDetail struct {
	ConstraintTime     float64 `json:"constraint_time"`
	ConstraintLocation float64 `json:"constraint_location"`
	ConstraintOther    float64 `json:"constraint_other"`
	Preference         float64 `json:"preference"`
}

// RecommendationResult is one ranked event.
type RecommendationResult struct {
	RecommendationID string         `json:"recommendation_id,omitempty"`
	EventID          string         `json:"event_id"`
	EventTableOrigin string         `json:"event_table_origin"`
	EventData        map[string]any `json:"event_data,omitempty"`
	ScoreTotal       float64        `json:"score_total"`
	Scores           ScoreDetail    `json:"scores"`
	Reasoning        string         `json:"reasoning"`
}

// FailedPair reports a pair the model could not score.
type FailedPair struct {
	EventID          string `json:"event_id"`
	UserID           string `json:"user_id"`
	EventTableOrigin string `json:"event_table_origin"`
	Error            string `json:"error"`
}

// MatchingResponse is returned by the submit endpoint.
type MatchingResponse struct {
	SessionID       string                 `json:"session_id"`
	Recommendations []RecommendationResult `json:"recommendations"`
	FailedPairs     []FailedPair           `json:"failed_pairs,omitempty"`
}

// SessionResponse describes a stored matching session.
type SessionResponse struct {
	ID               string    `json:"id"`
	CircleID         string    `json:"circle_id"`
	CreatedByUserID  string    `json:"created_by_user_id"`
	EventPreferences *string   `json:"event_preferences,omitempty"`
	Budget           *string   `json:"budget,omitempty"`
	Availability     *string   `json:"availability,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// RecommendationsResponse lists the stored recommendations of a session.
type RecommendationsResponse struct {
	SessionID       string                 `json:"session_id"`
	Recommendations []RecommendationResult `json:"recommendations"`
}

// AttributeRequest adds a manual preference or constraint for the caller.
type AttributeRequest struct {
	AttributeType string     `json:"attribute_type" validate:"required,oneof=preference constraint"`
	Description   string     `json:"description" validate:"required,max=2000"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// AttributeResponse echoes a stored attribute.
type AttributeResponse struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	AttributeType string     `json:"attribute_type"`
	Description   string     `json:"description"`
	Source        string     `json:"source"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EventsResponse lists circle events as stored.
type EventsResponse struct {
	Events []map[string]any `json:"events"`
	Count  int              `json:"count"`
}

// CircleResponse describes a circle.
type CircleResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CreatedByUserID *string   `json:"created_by_user_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// UsersResponse lists user profiles with their attributes.
type UsersResponse struct {
	SessionID string           `json:"session_id,omitempty"`
	Users     []map[string]any `json:"users"`
	Count     int              `json:"count"`
}
