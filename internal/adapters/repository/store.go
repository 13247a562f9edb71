// Package repository persists circles, events, user profiles, matching
// sessions and their recommendations.
package repository

import (
	"context"

	"github.com/okian/circlematch/internal/domain/model"
)

// Store provides read/write access to the matching data.
//
// List lookups return an empty slice when nothing matches. Single-row
// lookups return ErrNotFound. Driver failures wrap ErrBackend.
type Store interface {
	// Events returns every circle event.
	Events(ctx context.Context) ([]model.Record, error)
	CircleEvents(ctx context.Context, circleID string) ([]model.Record, error)
	ExternalEvents(ctx context.Context) ([]model.Record, error)

	Circle(ctx context.Context, id string) (model.Circle, error)

	// UsersInCircle returns the joined members of a circle, each as a
	// profile record carrying its unexpired attributes under "attributes".
	UsersInCircle(ctx context.Context, circleID string) ([]model.Record, error)
	UserProfile(ctx context.Context, userID string) (model.Record, error)
	AddAttribute(ctx context.Context, attr model.Attribute) (model.Attribute, error)

	CreateSession(ctx context.Context, s model.Session) (model.Session, error)
	Session(ctx context.Context, id string) (model.Session, error)

	// AddRecommendation stores rec under sessionID, linking the event
	// through the foreign key that matches rec.Origin.
	AddRecommendation(ctx context.Context, sessionID string, rec model.Recommendation) (model.StoredRecommendation, error)
	Recommendations(ctx context.Context, sessionID string) ([]model.StoredRecommendation, error)

	// Seed loads fixture rows, used for local runs and tests.
	Seed(ctx context.Context, f Fixture) error

	Close() error
}
