package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/pkg/logger"
	"github.com/okian/circlematch/pkg/metrics"
)

// MemoryStore implements Store in process memory. Rows are kept in the
// same shapes the database store uses, so both return identical records.
type MemoryStore struct {
	mu sync.RWMutex

	circles         map[string]circleRow
	members         []memberRow
	profiles        map[string]profileRow
	attributes      []attributeRow
	events          []eventRow
	externalEvents  []externalEventRow
	sessions        map[string]sessionRow
	recommendations []recommendationRow

	now func() time.Time
	log logger.Logger
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	cfg := newSettings(opts)
	return &MemoryStore{
		circles:  map[string]circleRow{},
		profiles: map[string]profileRow{},
		sessions: map[string]sessionRow{},
		now:      func() time.Time { return time.Now().UTC() },
		log:      cfg.logger,
	}
}

func (s *MemoryStore) observe(op string, start time.Time) {
	metrics.RecordRepositoryQuery(op, float64(time.Since(start).Milliseconds()))
}

func (s *MemoryStore) Events(_ context.Context) ([]model.Record, error) {
	defer s.observe("events", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Record, 0, len(s.events))
	for i := range s.events {
		out = append(out, s.events[i].record())
	}
	return out, nil
}

func (s *MemoryStore) CircleEvents(_ context.Context, circleID string) ([]model.Record, error) {
	defer s.observe("circle_events", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Record{}
	for i := range s.events {
		if s.events[i].CircleID == circleID {
			out = append(out, s.events[i].record())
		}
	}
	return out, nil
}

func (s *MemoryStore) ExternalEvents(_ context.Context) ([]model.Record, error) {
	defer s.observe("external_events", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Record, 0, len(s.externalEvents))
	for i := range s.externalEvents {
		out = append(out, s.externalEvents[i].record())
	}
	return out, nil
}

func (s *MemoryStore) Circle(_ context.Context, id string) (model.Circle, error) {
	defer s.observe("circle", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.circles[id]
	if !ok {
		return model.Circle{}, ErrNotFound
	}
	return c.model(), nil
}

func (s *MemoryStore) UsersInCircle(ctx context.Context, circleID string) ([]model.Record, error) {
	defer s.observe("users_in_circle", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]memberRow, 0)
	for _, m := range s.members {
		if m.CircleID == circleID && m.Status == memberStatusJoined {
			members = append(members, m)
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})

	out := make([]model.Record, 0, len(members))
	for _, m := range members {
		p, ok := s.profiles[m.UserID]
		if !ok {
			s.log.Warn(ctx, "member without profile", logger.String("user_id", m.UserID))
			continue
		}
		out = append(out, p.record(s.activeAttributesLocked(m.UserID)))
	}
	return out, nil
}

func (s *MemoryStore) activeAttributesLocked(userID string) []attributeRow {
	now := s.now()
	var out []attributeRow
	for _, a := range s.attributes {
		if a.UserID == userID && a.activeAt(now) {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemoryStore) UserProfile(_ context.Context, userID string) (model.Record, error) {
	defer s.observe("user_profile", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.record(s.activeAttributesLocked(userID)), nil
}

func (s *MemoryStore) AddAttribute(_ context.Context, attr model.Attribute) (model.Attribute, error) {
	defer s.observe("add_attribute", time.Now())
	if err := validateAttribute(attr); err != nil {
		return model.Attribute{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row := attributeFromModel(attr)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	s.attributes = append(s.attributes, row)
	return row.model(), nil
}

func (s *MemoryStore) CreateSession(_ context.Context, sess model.Session) (model.Session, error) {
	defer s.observe("create_session", time.Now())
	if sess.CircleID == "" || sess.CreatedByUserID == "" {
		return model.Session{}, fmt.Errorf("%w: session needs circle and creator", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row := sessionFromModel(sess)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	s.sessions[row.ID] = row
	return row.model(), nil
}

func (s *MemoryStore) Session(_ context.Context, id string) (model.Session, error) {
	defer s.observe("session", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.sessions[id]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	return row.model(), nil
}

func (s *MemoryStore) AddRecommendation(_ context.Context, sessionID string, rec model.Recommendation) (model.StoredRecommendation, error) {
	defer s.observe("add_recommendation", time.Now())
	row, err := recommendationFromModel(sessionID, rec)
	if err != nil {
		return model.StoredRecommendation{}, fmt.Errorf("%w: recommendation for event %q origin %q", err, rec.EventID, rec.Origin)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row.ID = uuid.NewString()
	row.CreatedAt = s.now()
	s.recommendations = append(s.recommendations, row)
	return row.model(), nil
}

func (s *MemoryStore) Recommendations(_ context.Context, sessionID string) ([]model.StoredRecommendation, error) {
	defer s.observe("recommendations", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []recommendationRow
	for _, r := range s.recommendations {
		if r.SessionID == sessionID {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ScoreTotal > rows[j].ScoreTotal
	})
	out := make([]model.StoredRecommendation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

// Seed appends the fixture rows. Duplicate primary keys are rejected.
func (s *MemoryStore) Seed(_ context.Context, f Fixture) error {
	defer s.observe("seed", time.Now())
	rows, err := f.rows(s.now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range rows.circles {
		if _, dup := s.circles[c.ID]; dup {
			return fmt.Errorf("%w: duplicate circle %s", ErrInvalidInput, c.ID)
		}
		s.circles[c.ID] = c
	}
	for _, p := range rows.profiles {
		if _, dup := s.profiles[p.ID]; dup {
			return fmt.Errorf("%w: duplicate profile %s", ErrInvalidInput, p.ID)
		}
		s.profiles[p.ID] = p
	}
	s.members = append(s.members, rows.members...)
	for _, a := range rows.attributes {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		s.attributes = append(s.attributes, a)
	}
	for _, e := range rows.events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		s.events = append(s.events, e)
	}
	for _, e := range rows.externalEvents {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		s.externalEvents = append(s.externalEvents, e)
	}
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
