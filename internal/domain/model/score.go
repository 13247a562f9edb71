package model

import "fmt"

// Score bounds accepted from the scoring model.
const (
	MinScore = 1
	MaxScore = 10
)

// Metric names one of the four evaluation categories.
type Metric string

const (
	MetricConstraintTime     Metric = "constraint_time"
	MetricConstraintLocation Metric = "constraint_location"
	MetricConstraintOther    Metric = "constraint_other"
	MetricPreference         Metric = "preference"
)

// Metrics lists every category in canonical order.
var Metrics = []Metric{ //nolint:gochecknoglobals
	MetricConstraintTime,
	MetricConstraintLocation,
	MetricConstraintOther,
	MetricPreference,
}

// SubScore is one metric's score with the model's justification.
type SubScore struct {
	Reasoning string `json:"reasoning"`
	Score     int    `json:"score"`
}

// InRange reports whether the score lies in [MinScore, MaxScore].
func (s SubScore) InRange() bool {
	return s.Score >= MinScore && s.Score <= MaxScore
}

// ScoreRecord holds the four sub-scores for one (event, user) pair.
// A nil field means the metric was not scored.
type ScoreRecord struct {
	ConstraintTime     *SubScore `json:"constraint_time"`
	ConstraintLocation *SubScore `json:"constraint_location"`
	ConstraintOther    *SubScore `json:"constraint_other"`
	Preference         *SubScore `json:"preference"`
}

// Get returns the sub-score for m, or nil.
func (r ScoreRecord) Get(m Metric) *SubScore {
	switch m {
	case MetricConstraintTime:
		return r.ConstraintTime
	case MetricConstraintLocation:
		return r.ConstraintLocation
	case MetricConstraintOther:
		return r.ConstraintOther
	case MetricPreference:
		return r.Preference
	default:
		return nil
	}
}

// Complete reports whether all four metrics are present.
func (r ScoreRecord) Complete() bool {
	for _, m := range Metrics {
		if r.Get(m) == nil {
			return false
		}
	}
	return true
}

// Validate checks that every metric is present and in range.
func (r ScoreRecord) Validate() error {
	for _, m := range Metrics {
		s := r.Get(m)
		if s == nil {
			return fmt.Errorf("%w: %s", ErrIncompleteScore, m)
		}
		if !s.InRange() {
			return fmt.Errorf("%w: %s=%d", ErrScoreOutOfRange, m, s.Score)
		}
	}
	return nil
}

// PairScore associates a score record with the event and user it was
// computed for. Event and User are the original, unformatted records.
type PairScore struct {
	Event  Record
	Origin Origin
	User   Record
	Score  ScoreRecord
}

// PairFailure reports a pair that could not be scored.
type PairFailure struct {
	EventID string
	UserID  string
	Origin  Origin
	Err     error
}
