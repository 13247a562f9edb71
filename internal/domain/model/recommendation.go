package model

import "time"

// Recommendation is the per-event aggregate over every user in a run.
type Recommendation struct {
	EventID      string
	Origin       Origin
	EventData    Record
	Contributors int
	ScoreTotal   float64
	Scores       map[Metric]float64
	Reasoning    string
}

// Session is one matching request for a circle.
type Session struct {
	ID               string
	CircleID         string
	CreatedByUserID  string
	EventPreferences *string
	Budget           *string
	Availability     *string
	CreatedAt        time.Time
}

// StoredRecommendation is a persisted recommendation row.
type StoredRecommendation struct {
	ID         string
	SessionID  string
	Origin     Origin
	EventID    string
	ScoreTotal float64
	Scores     map[Metric]float64
	Reasoning  string
	CreatedAt  time.Time
}
