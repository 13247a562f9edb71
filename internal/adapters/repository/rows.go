package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/okian/circlematch/internal/domain/model"
)

const memberStatusJoined = "joined"

type eventRow struct {
	ID              string  `gorm:"primaryKey;size:36"`
	CircleID        string  `gorm:"size:36;index"`
	CreatedByUserID *string `gorm:"size:36"`
	Title           string
	Description     *string
	StartTime       *time.Time
	EndTime         *time.Time
	LocationText    *string
	Info            datatypes.JSONMap
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (eventRow) TableName() string { return "events" }

func (r *eventRow) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *eventRow) record() model.Record {
	return model.Record{
		"id":                 r.ID,
		"circle_id":          r.CircleID,
		"created_by_user_id": nullable(r.CreatedByUserID),
		"title":              r.Title,
		"description":        nullable(r.Description),
		"start_time":         timestamp(r.StartTime),
		"end_time":           timestamp(r.EndTime),
		"location_text":      nullable(r.LocationText),
		"info":               jsonMap(r.Info),
		"created_at":         r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":         r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type externalEventRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	Title        string
	Description  *string
	StartTime    *time.Time
	EndTime      *time.Time
	LocationText *string
	Source       *string
	URL          *string `gorm:"column:url"`
	Info         datatypes.JSONMap
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (externalEventRow) TableName() string { return "external_events" }

func (r *externalEventRow) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *externalEventRow) record() model.Record {
	return model.Record{
		"id":            r.ID,
		"title":         r.Title,
		"description":   nullable(r.Description),
		"start_time":    timestamp(r.StartTime),
		"end_time":      timestamp(r.EndTime),
		"location_text": nullable(r.LocationText),
		"source":        nullable(r.Source),
		"url":           nullable(r.URL),
		"info":          jsonMap(r.Info),
		"created_at":    r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":    r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type profileRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Username  string `gorm:"uniqueIndex"`
	FirstName *string
	LastName  *string
	Bio       *string
	Location  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (profileRow) TableName() string { return "user_profiles" }

func (r *profileRow) record(attrs []attributeRow) model.Record {
	list := make([]any, 0, len(attrs))
	for i := range attrs {
		list = append(list, map[string]any(attrs[i].model().Record()))
	}
	return model.Record{
		"id":         r.ID,
		"username":   r.Username,
		"first_name": nullable(r.FirstName),
		"last_name":  nullable(r.LastName),
		"bio":        nullable(r.Bio),
		"location":   nullable(r.Location),
		"created_at": r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"attributes": list,
	}
}

type attributeRow struct {
	ID            string `gorm:"primaryKey;size:36"`
	UserID        string `gorm:"size:36;index"`
	AttributeType string `gorm:"size:32"`
	Description   string
	Source        string `gorm:"size:32"`
	ExpiresAt     *time.Time
	CreatedAt     time.Time
}

func (attributeRow) TableName() string { return "user_attributes" }

func (r *attributeRow) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *attributeRow) model() model.Attribute {
	return model.Attribute{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        model.AttributeType(r.AttributeType),
		Description: r.Description,
		Source:      model.AttributeSource(r.Source),
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
	}
}

func (r *attributeRow) activeAt(now time.Time) bool {
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

func attributeFromModel(a model.Attribute) attributeRow {
	row := attributeRow{
		ID:            a.ID,
		UserID:        a.UserID,
		AttributeType: string(a.Type),
		Description:   a.Description,
		Source:        string(a.Source),
		CreatedAt:     a.CreatedAt,
	}
	if a.ExpiresAt != nil {
		exp := a.ExpiresAt.UTC()
		row.ExpiresAt = &exp
	}
	return row
}

type circleRow struct {
	ID              string `gorm:"primaryKey;size:36"`
	Name            string
	CreatedByUserID *string `gorm:"size:36"`
	CreatedAt       time.Time
}

func (circleRow) TableName() string { return "circles" }

func (r circleRow) model() model.Circle {
	return model.Circle{ID: r.ID, Name: r.Name, CreatedByUserID: r.CreatedByUserID, CreatedAt: r.CreatedAt}
}

type memberRow struct {
	CircleID string `gorm:"primaryKey;size:36"`
	UserID   string `gorm:"primaryKey;size:36"`
	Status   string `gorm:"size:16;index"`
	JoinedAt time.Time
}

func (memberRow) TableName() string { return "circle_members" }

type sessionRow struct {
	ID                   string `gorm:"primaryKey;size:36"`
	CircleID             string `gorm:"size:36;index"`
	CreatedByUserID      string `gorm:"size:36"`
	EventPreferencesText *string
	BudgetText           *string
	AvailabilityText     *string
	CreatedAt            time.Time
}

func (sessionRow) TableName() string { return "event_matching_sessions" }

func (r *sessionRow) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *sessionRow) model() model.Session {
	return model.Session{
		ID:               r.ID,
		CircleID:         r.CircleID,
		CreatedByUserID:  r.CreatedByUserID,
		EventPreferences: r.EventPreferencesText,
		Budget:           r.BudgetText,
		Availability:     r.AvailabilityText,
		CreatedAt:        r.CreatedAt,
	}
}

func sessionFromModel(s model.Session) sessionRow {
	return sessionRow{
		ID:                   s.ID,
		CircleID:             s.CircleID,
		CreatedByUserID:      s.CreatedByUserID,
		EventPreferencesText: s.EventPreferences,
		BudgetText:           s.Budget,
		AvailabilityText:     s.Availability,
		CreatedAt:            s.CreatedAt,
	}
}

type recommendationRow struct {
	ID                      string  `gorm:"primaryKey;size:36"`
	SessionID               string  `gorm:"size:36;index"`
	CircleEventID           *string `gorm:"size:36"`
	ExternalEventID         *string `gorm:"size:36"`
	ScoreTotal              float64
	ScoreConstraintTime     *float64
	ScoreConstraintLocation *float64
	ScoreConstraintOther    *float64
	ScorePreference         *float64
	LLMReasoning            *string `gorm:"column:llm_reasoning"`
	CreatedAt               time.Time
}

func (recommendationRow) TableName() string { return "event_matching_recommendations" }

func (r *recommendationRow) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// recommendationFromModel picks the foreign key from the origin.
func recommendationFromModel(sessionID string, rec model.Recommendation) (recommendationRow, error) {
	if sessionID == "" || rec.EventID == "" || !rec.Origin.Valid() {
		return recommendationRow{}, ErrInvalidInput
	}
	row := recommendationRow{
		SessionID:               sessionID,
		ScoreTotal:              rec.ScoreTotal,
		ScoreConstraintTime:     score(rec.Scores, model.MetricConstraintTime),
		ScoreConstraintLocation: score(rec.Scores, model.MetricConstraintLocation),
		ScoreConstraintOther:    score(rec.Scores, model.MetricConstraintOther),
		ScorePreference:         score(rec.Scores, model.MetricPreference),
	}
	if rec.Reasoning != "" {
		reasoning := rec.Reasoning
		row.LLMReasoning = &reasoning
	}
	eventID := rec.EventID
	if rec.Origin == model.OriginCircleEvent {
		row.CircleEventID = &eventID
	} else {
		row.ExternalEventID = &eventID
	}
	return row, nil
}

func (r *recommendationRow) model() model.StoredRecommendation {
	out := model.StoredRecommendation{
		ID:         r.ID,
		SessionID:  r.SessionID,
		ScoreTotal: r.ScoreTotal,
		Scores:     map[model.Metric]float64{},
		CreatedAt:  r.CreatedAt,
	}
	switch {
	case r.CircleEventID != nil:
		out.Origin, out.EventID = model.OriginCircleEvent, *r.CircleEventID
	case r.ExternalEventID != nil:
		out.Origin, out.EventID = model.OriginExternalEvent, *r.ExternalEventID
	}
	for m, v := range map[model.Metric]*float64{
		model.MetricConstraintTime:     r.ScoreConstraintTime,
		model.MetricConstraintLocation: r.ScoreConstraintLocation,
		model.MetricConstraintOther:    r.ScoreConstraintOther,
		model.MetricPreference:         r.ScorePreference,
	} {
		if v != nil {
			out.Scores[m] = *v
		}
	}
	if r.LLMReasoning != nil {
		out.Reasoning = *r.LLMReasoning
	}
	return out
}

func score(scores map[model.Metric]float64, m model.Metric) *float64 {
	v, ok := scores[m]
	if !ok {
		return nil
	}
	return &v
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func jsonMap(m datatypes.JSONMap) any {
	if m == nil {
		return nil
	}
	return map[string]any(m)
}

func allModels() []any {
	return []any{
		&circleRow{}, &memberRow{}, &profileRow{}, &attributeRow{},
		&eventRow{}, &externalEventRow{}, &sessionRow{}, &recommendationRow{},
	}
}
