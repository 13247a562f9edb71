package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/circlematch/internal/adapters/repository"
	service "github.com/okian/circlematch/internal/app"
	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/internal/domain/ranking"
	"github.com/okian/circlematch/internal/domain/recommend"
	"github.com/okian/circlematch/internal/domain/scoring"
	"github.com/okian/circlematch/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func fixture() repository.Fixture {
	return repository.Fixture{
		Circles: []repository.FixtureCircle{{ID: "c1", Name: "Climbers"}, {ID: "c2", Name: "Empty"}},
		Members: []repository.FixtureMember{
			{CircleID: "c1", UserID: "u1"},
			{CircleID: "c1", UserID: "u2"},
			{CircleID: "c1", UserID: "u3", Status: "invited"},
		},
		Profiles: []repository.FixtureProfile{
			{ID: "u1", Username: "ana"},
			{ID: "u2", Username: "ben"},
			{ID: "u3", Username: "cy"},
		},
		Attributes: []repository.FixtureAttribute{
			{UserID: "u1", AttributeType: "preference", Description: "likes bouldering"},
		},
		Events: []repository.FixtureEvent{
			{ID: "e1", CircleID: "c1", Title: "Gym night", StartTime: "2025-04-12T18:00:00Z"},
			{ID: "e2", CircleID: "c1", Title: "Trail run"},
		},
		ExternalEvents: []repository.FixtureEvent{
			{ID: "x1", Title: "Climbing expo", Source: "meetup"},
			{ID: "e1", Title: "Shadow of e1"},
		},
	}
}

func sub(score int) *model.SubScore {
	return &model.SubScore{Score: score, Reasoning: "ok"}
}

// titleScorer gives every metric the preference score keyed by title.
func titleScorer(prefs map[string]int, calls *atomic.Int32) scoring.Scorer {
	return scoring.ScorerFunc(func(ctx context.Context, event, user model.Record) (model.ScoreRecord, error) {
		if calls != nil {
			calls.Add(1)
		}
		p, ok := prefs[event.StringField("title")]
		if !ok {
			return model.ScoreRecord{}, errors.New("model unavailable")
		}
		return model.ScoreRecord{
			ConstraintTime:     sub(5),
			ConstraintLocation: sub(5),
			ConstraintOther:    sub(5),
			Preference:         sub(p),
		}, nil
	})
}

func newService(store repository.Store, scorer scoring.Scorer, opts ...service.Option) *service.Service {
	opts = append([]service.Option{
		service.WithStore(store),
		service.WithScorer(scorer),
		service.WithWorkerCount(2),
		service.WithQueueSize(8),
		service.WithRunDeadline(5 * time.Second),
	}, opts...)
	return service.New(opts...)
}

func seeded() *repository.MemoryStore {
	store := repository.NewMemoryStore()
	if err := store.Seed(context.Background(), fixture()); err != nil {
		panic(err)
	}
	return store
}

type flakyStore struct {
	repository.Store
	failEvent string
}

func (s *flakyStore) AddRecommendation(ctx context.Context, sessionID string, rec model.Recommendation) (model.StoredRecommendation, error) {
	if rec.EventID == s.failEvent {
		return model.StoredRecommendation{}, repository.ErrBackend
	}
	return s.Store.AddRecommendation(ctx, sessionID, rec)
}

type brokenStore struct {
	repository.Store
	failSession bool
}

func (s *brokenStore) CreateSession(ctx context.Context, sess model.Session) (model.Session, error) {
	if s.failSession {
		return model.Session{}, repository.ErrBackend
	}
	return s.Store.CreateSession(ctx, sess)
}

func (s *brokenStore) UsersInCircle(context.Context, string) ([]model.Record, error) {
	return nil, repository.ErrBackend
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service without a scorer", t, func() {
		svc := service.New()

		Convey("Then Start refuses to run", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Then Submit reports it is not started", func() {
			_, err := svc.Submit(context.Background(), "u1", service.MatchingRequest{CircleID: "c1"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})

	Convey("Given a started service", t, func() {
		svc := newService(seeded(), titleScorer(nil, nil),
			service.WithMaxConcurrency(3),
			service.WithCallTimeout(time.Second),
			service.WithFailurePolicy(recommend.PolicyFailFast),
			service.WithTotalPolicy(ranking.TotalAllMetrics),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		So(svc.Start(context.Background()), ShouldBeNil)

		Convey("Then stats reflect the configuration", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["maxConcurrency"], ShouldEqual, 3)
			So(stats["failurePolicy"], ShouldEqual, "fail_fast")
			So(stats["totalPolicy"], ShouldEqual, "all_metrics")
			So(stats["callTimeout"], ShouldEqual, "1s")
			So(stats["queueLength"], ShouldEqual, 0)
		})

		Convey("When it is stopped", func() {
			svc.Stop()
			svc.Stop()

			Convey("Then it reports stopped and refuses work", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				_, err := svc.Events(context.Background())
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})
	})
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a seeded circle and a working scorer", t, func() {
		var calls atomic.Int32
		prefs := map[string]int{"Gym night": 9, "Trail run": 4, "Climbing expo": 7}
		svc := newService(seeded(), titleScorer(prefs, &calls))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		pref := "climbing"
		Convey("When a matching session is submitted", func() {
			res, err := svc.Submit(ctx, "u1", service.MatchingRequest{CircleID: "c1", EventPreferences: &pref})
			So(err, ShouldBeNil)

			Convey("Then every joined member is scored against every unique event", func() {
				So(calls.Load(), ShouldEqual, int32(6))
				So(res.Failures, ShouldBeEmpty)
			})

			Convey("Then recommendations are ranked and persisted", func() {
				So(res.SessionID, ShouldNotBeEmpty)
				So(res.Recommendations, ShouldHaveLength, 3)
				So(res.Recommendations[0].EventID, ShouldEqual, "e1")
				So(res.Recommendations[0].Origin, ShouldEqual, model.OriginCircleEvent)
				So(res.Recommendations[0].ScoreTotal, ShouldEqual, 9.0)
				So(res.Recommendations[1].EventID, ShouldEqual, "x1")
				So(res.Recommendations[1].Origin, ShouldEqual, model.OriginExternalEvent)
				So(res.Recommendations[2].EventID, ShouldEqual, "e2")
				for _, r := range res.Recommendations {
					So(r.ID, ShouldNotBeEmpty)
				}

				stored, err := svc.Recommendations(ctx, res.SessionID)
				So(err, ShouldBeNil)
				So(stored, ShouldHaveLength, 3)
				So(stored[0].EventID, ShouldEqual, "e1")
			})

			Convey("Then the session is readable", func() {
				sess, err := svc.Session(ctx, res.SessionID)
				So(err, ShouldBeNil)
				So(sess.CircleID, ShouldEqual, "c1")
				So(sess.CreatedByUserID, ShouldEqual, "u1")
				So(*sess.EventPreferences, ShouldEqual, "climbing")
			})
		})

		Convey("When the circle has no members", func() {
			res, err := svc.Submit(ctx, "u1", service.MatchingRequest{CircleID: "c2"})

			Convey("Then a session is recorded with no recommendations", func() {
				So(err, ShouldBeNil)
				So(res.SessionID, ShouldNotBeEmpty)
				So(res.Recommendations, ShouldBeEmpty)
				So(calls.Load(), ShouldEqual, int32(0))
			})
		})

		Convey("When the circle id is missing", func() {
			_, err := svc.Submit(ctx, "u1", service.MatchingRequest{})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When the session does not exist", func() {
			_, err := svc.Session(ctx, "missing")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			_, err = svc.Recommendations(ctx, "missing")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a scorer that fails one event", t, func() {
		prefs := map[string]int{"Gym night": 9, "Climbing expo": 7}
		svc := newService(seeded(), titleScorer(prefs, nil))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("When a session is submitted under the partial policy", func() {
			res, err := svc.Submit(ctx, "u2", service.MatchingRequest{CircleID: "c1"})

			Convey("Then the failed pairs are reported and the rest ranked", func() {
				So(err, ShouldBeNil)
				So(res.Recommendations, ShouldHaveLength, 2)
				So(res.Failures, ShouldHaveLength, 2)
				for _, f := range res.Failures {
					So(f.EventID, ShouldEqual, "e2")
				}
			})
		})
	})

	Convey("Given a scorer that always fails", t, func() {
		svc := newService(seeded(), titleScorer(map[string]int{}, nil))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("Then Submit fails with ErrGenerate", func() {
			_, err := svc.Submit(ctx, "u1", service.MatchingRequest{CircleID: "c1"})
			So(errors.Is(err, service.ErrGenerate), ShouldBeTrue)
			So(errors.Is(err, recommend.ErrAllPairsFailed), ShouldBeTrue)
		})
	})

	Convey("Given a store that cannot persist one recommendation", t, func() {
		prefs := map[string]int{"Gym night": 9, "Trail run": 4, "Climbing expo": 7}
		svc := newService(&flakyStore{Store: seeded(), failEvent: "x1"}, titleScorer(prefs, nil))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("Then the row is skipped and the rest are kept", func() {
			res, err := svc.Submit(ctx, "u1", service.MatchingRequest{CircleID: "c1"})
			So(err, ShouldBeNil)
			So(res.Recommendations, ShouldHaveLength, 2)
			So(res.Recommendations[0].EventID, ShouldEqual, "e1")
			So(res.Recommendations[1].EventID, ShouldEqual, "e2")

			stored, err := svc.Recommendations(ctx, res.SessionID)
			So(err, ShouldBeNil)
			So(stored, ShouldHaveLength, 2)
		})
	})

	Convey("Given a failing store", t, func() {
		Convey("When the session cannot be created", func() {
			svc := newService(&brokenStore{Store: seeded(), failSession: true}, titleScorer(nil, nil))
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			_, err := svc.Submit(ctx, "u1", service.MatchingRequest{CircleID: "c1"})
			So(errors.Is(err, service.ErrSessionCreate), ShouldBeTrue)
		})

		Convey("When circle data cannot be read", func() {
			svc := newService(&brokenStore{Store: seeded()}, titleScorer(nil, nil))
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			_, err := svc.Submit(ctx, "u1", service.MatchingRequest{CircleID: "c1"})
			So(errors.Is(err, service.ErrFetchData), ShouldBeTrue)
			So(errors.Is(err, repository.ErrBackend), ShouldBeTrue)
		})
	})
}

func TestService_Attributes(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := newService(seeded(), titleScorer(nil, nil))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("When a user adds a constraint", func() {
			attr, err := svc.AddAttribute(ctx, "u2", model.Attribute{
				Type:        model.AttributeConstraint,
				Description: "no weekday mornings",
				Source:      model.SourceCalendar,
			})

			Convey("Then it is stored as a manual attribute of that user", func() {
				So(err, ShouldBeNil)
				So(attr.ID, ShouldNotBeEmpty)
				So(attr.UserID, ShouldEqual, "u2")
				So(attr.Source, ShouldEqual, model.SourceManual)
			})
		})

		Convey("When the attribute type is unknown", func() {
			_, err := svc.AddAttribute(ctx, "u2", model.Attribute{Type: "mood", Description: "x"})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When listing events", func() {
			events, err := svc.Events(ctx)
			So(err, ShouldBeNil)
			So(events, ShouldHaveLength, 2)
		})
	})
}

func TestService_Reads(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service with one session", t, func() {
		svc := newService(seeded(), titleScorer(map[string]int{"Gym night": 7}, nil))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		res, err := svc.Submit(ctx, "u1", service.MatchingRequest{CircleID: "c1"})
		So(err, ShouldBeNil)

		Convey("When a profile is read", func() {
			p, err := svc.UserProfile(ctx, "u1")
			_, missing := svc.UserProfile(ctx, "nobody")

			Convey("Then it carries the user's attributes", func() {
				So(err, ShouldBeNil)
				So(p["username"], ShouldEqual, "ana")
				So(p["attributes"], ShouldHaveLength, 1)
				So(errors.Is(missing, service.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a circle is read", func() {
			c, err := svc.Circle(ctx, "c1")
			_, missing := svc.Circle(ctx, "nope")

			So(err, ShouldBeNil)
			So(c.Name, ShouldEqual, "Climbers")
			So(errors.Is(missing, service.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the members of the session are read", func() {
			users, err := svc.SessionUsers(ctx, res.SessionID)
			_, missing := svc.SessionUsers(ctx, "nope")

			Convey("Then only joined members of its circle are returned", func() {
				So(err, ShouldBeNil)
				So(users, ShouldHaveLength, 2)
				So(users[0].ID(), ShouldEqual, "u1")
				So(users[1].ID(), ShouldEqual, "u2")
				So(errors.Is(missing, service.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

// peakScorer sleeps per call and records the highest number of calls that
// overlapped.
func peakScorer(peak *atomic.Int32) scoring.Scorer {
	var inflight atomic.Int32
	return scoring.ScorerFunc(func(ctx context.Context, _, _ model.Record) (model.ScoreRecord, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		return model.ScoreRecord{
			ConstraintTime:     sub(5),
			ConstraintLocation: sub(5),
			ConstraintOther:    sub(5),
			Preference:         sub(5),
		}, nil
	})
}

func TestService_MaxConcurrency(t *testing.T) {
	ctx := context.Background()

	Convey("Given more workers than the per-run limit", t, func() {
		var peak atomic.Int32
		svc := newService(seeded(), peakScorer(&peak),
			service.WithWorkerCount(6),
			service.WithMaxConcurrency(1),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("When a run scores 3 events for 2 members", func() {
			res, err := svc.Submit(ctx, "u1", service.MatchingRequest{CircleID: "c1"})
			So(err, ShouldBeNil)

			Convey("Then no more than one pair is scored at a time", func() {
				So(res.Recommendations, ShouldHaveLength, 3)
				So(peak.Load(), ShouldEqual, int32(1))
			})
		})
	})
}
