package model

import "time"

// AttributeType distinguishes soft preferences from hard constraints.
type AttributeType string

const (
	AttributePreference AttributeType = "preference"
	AttributeConstraint AttributeType = "constraint"
)

// AttributeSource records where an attribute came from.
type AttributeSource string

const (
	SourceManual       AttributeSource = "manual"
	SourceCalendar     AttributeSource = "calendar"
	SourceLLMGenerated AttributeSource = "llm_generated"
)

// Attribute is a free-text preference or constraint attached to a user.
type Attribute struct {
	ID          string
	UserID      string
	Type        AttributeType
	Description string
	Source      AttributeSource
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// Record renders the attribute the way it is shown to the model.
func (a Attribute) Record() Record {
	r := Record{
		"attribute_type": string(a.Type),
		"description":    a.Description,
		"source":         string(a.Source),
	}
	if a.ExpiresAt != nil {
		r["expires_at"] = a.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return r
}

// Circle is a group of users that matches events together.
type Circle struct {
	ID              string
	Name            string
	CreatedByUserID *string
	CreatedAt       time.Time
}
