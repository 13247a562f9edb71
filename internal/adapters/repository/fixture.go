package repository

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/circlematch/internal/domain/model"
)

// Fixture is a set of rows loaded into a store before it serves traffic.
// Timestamps are RFC 3339 strings.
type Fixture struct {
	Circles        []FixtureCircle    `koanf:"circles"`
	Members        []FixtureMember    `koanf:"members"`
	Profiles       []FixtureProfile   `koanf:"profiles"`
	Attributes     []FixtureAttribute `koanf:"attributes"`
	Events         []FixtureEvent     `koanf:"events"`
	ExternalEvents []FixtureEvent     `koanf:"external_events"`
}

type FixtureCircle struct {
	ID        string `koanf:"id"`
	Name      string `koanf:"name"`
	CreatedBy string `koanf:"created_by_user_id"`
}

type FixtureMember struct {
	CircleID string `koanf:"circle_id"`
	UserID   string `koanf:"user_id"`
	// Status defaults to "joined".
	Status string `koanf:"status"`
}

type FixtureProfile struct {
	ID        string `koanf:"id"`
	Username  string `koanf:"username"`
	FirstName string `koanf:"first_name"`
	LastName  string `koanf:"last_name"`
	Bio       string `koanf:"bio"`
	Location  string `koanf:"location"`
}

type FixtureAttribute struct {
	UserID        string `koanf:"user_id"`
	AttributeType string `koanf:"attribute_type"`
	Description   string `koanf:"description"`
	Source        string `koanf:"source"`
	ExpiresAt     string `koanf:"expires_at"`
}

// FixtureEvent serves both event tables. CircleID and CreatedBy are
// ignored for external events, Source and URL for circle events.
type FixtureEvent struct {
	ID           string         `koanf:"id"`
	CircleID     string         `koanf:"circle_id"`
	CreatedBy    string         `koanf:"created_by_user_id"`
	Title        string         `koanf:"title"`
	Description  string         `koanf:"description"`
	StartTime    string         `koanf:"start_time"`
	EndTime      string         `koanf:"end_time"`
	LocationText string         `koanf:"location_text"`
	Source       string         `koanf:"source"`
	URL          string         `koanf:"url"`
	Info         map[string]any `koanf:"info"`
}

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (Fixture, error) {
	const op = "repository.LoadFixture"

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Fixture{}, fmt.Errorf("%s: load %s: %w", op, path, err)
	}
	var f Fixture
	if err := k.Unmarshal("", &f); err != nil {
		return Fixture{}, fmt.Errorf("%s: decode: %w", op, err)
	}
	return f, nil
}

// fixtureRows converts f into rows, validating references and timestamps.
type fixtureRows struct {
	circles        []circleRow
	members        []memberRow
	profiles       []profileRow
	attributes     []attributeRow
	events         []eventRow
	externalEvents []externalEventRow
}

func (f Fixture) rows(now time.Time) (fixtureRows, error) {
	var out fixtureRows

	for _, c := range f.Circles {
		if c.ID == "" {
			return out, fmt.Errorf("%w: circle without id", ErrInvalidInput)
		}
		out.circles = append(out.circles, circleRow{ID: c.ID, Name: c.Name, CreatedByUserID: optional(c.CreatedBy), CreatedAt: now})
	}
	for i, m := range f.Members {
		if m.CircleID == "" || m.UserID == "" {
			return out, fmt.Errorf("%w: member %d needs circle_id and user_id", ErrInvalidInput, i)
		}
		status := m.Status
		if status == "" {
			status = memberStatusJoined
		}
		// Members keep fixture order through their join time.
		out.members = append(out.members, memberRow{CircleID: m.CircleID, UserID: m.UserID, Status: status, JoinedAt: now.Add(time.Duration(i) * time.Millisecond)})
	}
	for _, p := range f.Profiles {
		if p.ID == "" {
			return out, fmt.Errorf("%w: profile without id", ErrInvalidInput)
		}
		out.profiles = append(out.profiles, profileRow{
			ID: p.ID, Username: p.Username,
			FirstName: optional(p.FirstName), LastName: optional(p.LastName),
			Bio: optional(p.Bio), Location: optional(p.Location),
			CreatedAt: now, UpdatedAt: now,
		})
	}
	for i, a := range f.Attributes {
		attr := model.Attribute{
			UserID:      a.UserID,
			Type:        model.AttributeType(a.AttributeType),
			Description: a.Description,
			Source:      model.AttributeSource(a.Source),
			CreatedAt:   now.Add(time.Duration(i) * time.Millisecond),
		}
		if attr.Source == "" {
			attr.Source = model.SourceManual
		}
		exp, err := parseOptionalTime(a.ExpiresAt)
		if err != nil {
			return out, fmt.Errorf("%w: attribute %d expires_at: %w", ErrInvalidInput, i, err)
		}
		attr.ExpiresAt = exp
		if err := validateAttribute(attr); err != nil {
			return out, fmt.Errorf("attribute %d: %w", i, err)
		}
		out.attributes = append(out.attributes, attributeFromModel(attr))
	}
	for i, e := range f.Events {
		row, err := e.eventRow(now.Add(time.Duration(i) * time.Millisecond))
		if err != nil {
			return out, fmt.Errorf("event %d: %w", i, err)
		}
		out.events = append(out.events, row)
	}
	for i, e := range f.ExternalEvents {
		row, err := e.externalRow(now.Add(time.Duration(i) * time.Millisecond))
		if err != nil {
			return out, fmt.Errorf("external event %d: %w", i, err)
		}
		out.externalEvents = append(out.externalEvents, row)
	}
	return out, nil
}

func (e FixtureEvent) times() (start, end *time.Time, err error) {
	if start, err = parseOptionalTime(e.StartTime); err != nil {
		return nil, nil, fmt.Errorf("%w: start_time: %w", ErrInvalidInput, err)
	}
	if end, err = parseOptionalTime(e.EndTime); err != nil {
		return nil, nil, fmt.Errorf("%w: end_time: %w", ErrInvalidInput, err)
	}
	return start, end, nil
}

func (e FixtureEvent) eventRow(created time.Time) (eventRow, error) {
	start, end, err := e.times()
	if err != nil {
		return eventRow{}, err
	}
	return eventRow{
		ID: e.ID, CircleID: e.CircleID, CreatedByUserID: optional(e.CreatedBy),
		Title: e.Title, Description: optional(e.Description),
		StartTime: start, EndTime: end, LocationText: optional(e.LocationText),
		Info: e.Info, CreatedAt: created, UpdatedAt: created,
	}, nil
}

func (e FixtureEvent) externalRow(created time.Time) (externalEventRow, error) {
	start, end, err := e.times()
	if err != nil {
		return externalEventRow{}, err
	}
	return externalEventRow{
		ID: e.ID, Title: e.Title, Description: optional(e.Description),
		StartTime: start, EndTime: end, LocationText: optional(e.LocationText),
		Source: optional(e.Source), URL: optional(e.URL),
		Info: e.Info, CreatedAt: created, UpdatedAt: created,
	}, nil
}

func validateAttribute(a model.Attribute) error {
	if a.UserID == "" || a.Description == "" {
		return fmt.Errorf("%w: attribute needs user_id and description", ErrInvalidInput)
	}
	if a.Type != model.AttributePreference && a.Type != model.AttributeConstraint {
		return fmt.Errorf("%w: attribute_type %q", ErrInvalidInput, a.Type)
	}
	switch a.Source {
	case model.SourceManual, model.SourceCalendar, model.SourceLLMGenerated:
	default:
		return fmt.Errorf("%w: source %q", ErrInvalidInput, a.Source)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
