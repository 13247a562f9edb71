// Package service wires the matching pipeline behind the HTTP API: it
// loads circle data, fans pairs out to the worker pool, ranks the scores
// and persists the recommendations of each session.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/circlematch/internal/adapters/mq/queue"
	"github.com/okian/circlematch/internal/adapters/mq/worker"
	"github.com/okian/circlematch/internal/adapters/repository"
	"github.com/okian/circlematch/internal/domain/dedupe"
	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/internal/domain/ranking"
	"github.com/okian/circlematch/internal/domain/recommend"
	"github.com/okian/circlematch/internal/domain/scoring"
	"github.com/okian/circlematch/pkg/logger"
	"github.com/okian/circlematch/pkg/metrics"
)

const (
	defaultWorkerCount    = 16
	defaultQueueSize      = 1024
	defaultMaxConcurrency = 16
	defaultRunDeadline    = 5 * time.Minute
	stopTimeout           = 10 * time.Second
)

// MatchingRequest is the input of Submit.
type MatchingRequest struct {
	CircleID         string
	EventPreferences *string
	Budget           *string
	Availability     *string
}

// RankedRecommendation is a ranked event with the id of its stored row.
type RankedRecommendation struct {
	ID string
	model.Recommendation
}

// MatchingResult is the outcome of one Submit call.
type MatchingResult struct {
	SessionID       string
	Recommendations []RankedRecommendation
	Failures        []model.PairFailure
}

// Service implements the API dependencies for event matching.
type Service struct {
	mu sync.RWMutex

	store       repository.Store
	scorer      scoring.Scorer
	queue       *queue.InMemoryQueue
	pool        *worker.Pool
	coordinator *recommend.Coordinator

	workerCount    int
	queueSize      int
	maxConcurrency int
	callTimeout    time.Duration
	runDeadline    time.Duration
	policy         recommend.FailurePolicy
	total          ranking.TotalPolicy

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service. A store and a scorer must be supplied before
// Start; without a store an in-memory one is used.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    defaultWorkerCount,
		queueSize:      defaultQueueSize,
		maxConcurrency: defaultMaxConcurrency,
		runDeadline:    defaultRunDeadline,
		policy:         recommend.PolicyPartial,
		total:          ranking.TotalPreference,
		logger:         logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	return s
}

// Start builds the queue, the worker pool and the coordinator.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.scorer == nil {
		return fmt.Errorf("service.Start: %w: scorer is required", ErrInvalidInput)
	}

	s.logger.Info(ctx, "starting matching service...")

	scorer := s.scorer
	if s.callTimeout > 0 {
		scorer = withCallTimeout(scorer, s.callTimeout)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, scorer,
		worker.WithPoolLogger(s.logger.Named("pool")),
	)
	s.pool.Start(runCtx)

	s.coordinator = recommend.New(scorer,
		recommend.WithDispatcher(s.pool),
		recommend.WithMaxConcurrency(s.maxConcurrency),
		recommend.WithDeadline(s.runDeadline),
		recommend.WithFailurePolicy(s.policy),
		recommend.WithLogger(s.logger.Named("fanout")),
	)

	s.started = true
	metrics.UpdateWorkerCount(s.workerCount)
	s.logger.Info(ctx, "matching service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("maxConcurrency", s.maxConcurrency),
		logger.Duration("runDeadline", s.runDeadline),
		logger.String("policy", string(s.policy)),
		logger.String("total", string(s.total)),
	)
	return nil
}

// Stop shuts the worker pool down and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	if s.started {
		s.logger.Info(ctx, "stopping matching service...")
		shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		if err := s.pool.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
		}
		cancel()
		s.cancel()
		s.started = false
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "store close failed", logger.Error(err))
		}
		s.store = nil
	}
	s.logger.Info(ctx, "matching service stopped")
}

func (s *Service) running() (*recommend.Coordinator, repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.coordinator, s.store, nil
}

func (s *Service) backend() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// Submit runs one matching session for a circle on behalf of userID.
func (s *Service) Submit(ctx context.Context, userID string, req MatchingRequest) (MatchingResult, error) {
	const op = "service.Submit"

	coordinator, store, err := s.running()
	if err != nil {
		return MatchingResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if req.CircleID == "" || userID == "" {
		return MatchingResult{}, fmt.Errorf("%s: %w: circle id and user id are required", op, ErrInvalidInput)
	}

	session, err := store.CreateSession(ctx, model.Session{
		CircleID:         req.CircleID,
		CreatedByUserID:  userID,
		EventPreferences: req.EventPreferences,
		Budget:           req.Budget,
		Availability:     req.Availability,
	})
	if err != nil {
		metrics.RecordErrorByComponent("service", "session_create")
		return MatchingResult{}, fmt.Errorf("%s: %w: %w", op, ErrSessionCreate, err)
	}
	metrics.RecordSessionCreated()

	log := s.logger.With(
		logger.String("session_id", session.ID),
		logger.String("circle_id", req.CircleID),
	)
	result := MatchingResult{SessionID: session.ID, Recommendations: []RankedRecommendation{}}

	users, candidates, err := s.load(ctx, store, req.CircleID)
	if err != nil {
		metrics.RecordErrorByComponent("service", "fetch_data")
		return MatchingResult{}, fmt.Errorf("%s: %w: %w", op, ErrFetchData, err)
	}
	if len(users) == 0 || len(candidates) == 0 {
		log.Info(ctx, "nothing to match",
			logger.Int("users", len(users)),
			logger.Int("events", len(candidates)),
		)
		return result, nil
	}

	res, err := coordinator.Run(ctx, candidates, users)
	if err != nil {
		metrics.RecordErrorByComponent("service", "generate")
		return MatchingResult{}, fmt.Errorf("%s: %w: %w", op, ErrGenerate, err)
	}
	result.Failures = res.Failures
	for _, f := range res.Failures {
		log.Warn(ctx, "pair not scored",
			logger.String("event_id", f.EventID),
			logger.String("user_id", f.UserID),
			logger.Error(f.Err),
		)
	}

	ranked := ranking.Rank(res.Scores, ranking.WithTotal(s.total))
	for _, rec := range ranked {
		stored, err := store.AddRecommendation(ctx, session.ID, rec)
		if err != nil {
			metrics.RecordRecommendationPersistError()
			log.Error(ctx, "failed to persist recommendation; skipping",
				logger.String("event_id", rec.EventID),
				logger.Error(err),
			)
			continue
		}
		metrics.RecordRecommendationPersisted()
		result.Recommendations = append(result.Recommendations, RankedRecommendation{ID: stored.ID, Recommendation: rec})
	}

	log.Info(ctx, "matching session finished",
		logger.Int("recommendations", len(result.Recommendations)),
		logger.Int("failed_pairs", len(result.Failures)),
	)
	return result, nil
}

// load reads the members and candidate events of a circle. Missing rows
// count as empty.
func (s *Service) load(ctx context.Context, store repository.Store, circleID string) ([]model.Record, []model.Candidate, error) {
	users, err := store.UsersInCircle(ctx, circleID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("users: %w", err)
	}
	circleEvents, err := store.CircleEvents(ctx, circleID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("circle events: %w", err)
	}
	externalEvents, err := store.ExternalEvents(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("external events: %w", err)
	}

	candidates := make([]model.Candidate, 0, len(circleEvents)+len(externalEvents))
	for _, e := range circleEvents {
		candidates = append(candidates, model.Candidate{Origin: model.OriginCircleEvent, Data: e})
	}
	for _, e := range externalEvents {
		candidates = append(candidates, model.Candidate{Origin: model.OriginExternalEvent, Data: e})
	}
	candidates, dropped := dedupe.Candidates(ctx, candidates)
	if dropped > 0 {
		s.logger.Debug(ctx, "dropped candidates", logger.Int("count", dropped))
	}
	return users, candidates, nil
}

// Session returns a stored session.
func (s *Service) Session(ctx context.Context, id string) (model.Session, error) {
	store, err := s.backend()
	if err != nil {
		return model.Session{}, err
	}
	sess, err := store.Session(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

// Recommendations returns the stored recommendations of a session, best
// first. An unknown session yields ErrNotFound.
func (s *Service) Recommendations(ctx context.Context, sessionID string) ([]model.StoredRecommendation, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	store, err := s.backend()
	if err != nil {
		return nil, err
	}
	return store.Recommendations(ctx, sessionID)
}

// AddAttribute stores a manual preference or constraint for userID.
func (s *Service) AddAttribute(ctx context.Context, userID string, attr model.Attribute) (model.Attribute, error) {
	store, err := s.backend()
	if err != nil {
		return model.Attribute{}, err
	}
	attr.UserID = userID
	attr.Source = model.SourceManual
	out, err := store.AddAttribute(ctx, attr)
	if errors.Is(err, repository.ErrInvalidInput) {
		return model.Attribute{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return out, err
}

// Events returns every circle event as stored.
func (s *Service) Events(ctx context.Context) ([]model.Record, error) {
	store, err := s.backend()
	if err != nil {
		return nil, err
	}
	return store.Events(ctx)
}

// UserProfile returns the profile of userID with its active attributes.
func (s *Service) UserProfile(ctx context.Context, userID string) (model.Record, error) {
	store, err := s.backend()
	if err != nil {
		return nil, err
	}
	p, err := store.UserProfile(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return p, err
}

// Circle returns the details of a circle.
func (s *Service) Circle(ctx context.Context, id string) (model.Circle, error) {
	store, err := s.backend()
	if err != nil {
		return model.Circle{}, err
	}
	c, err := store.Circle(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Circle{}, fmt.Errorf("circle %s: %w", id, ErrNotFound)
	}
	return c, err
}

// SessionUsers returns the joined members of the circle a session was
// created for. Unknown sessions and circles yield ErrNotFound.
func (s *Service) SessionUsers(ctx context.Context, sessionID string) ([]model.Record, error) {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	circle, err := s.Circle(ctx, sess.CircleID)
	if err != nil {
		return nil, err
	}
	store, err := s.backend()
	if err != nil {
		return nil, err
	}
	return store.UsersInCircle(ctx, circle.ID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":        s.started,
		"workerCount":    s.workerCount,
		"queueSize":      s.queueSize,
		"maxConcurrency": s.maxConcurrency,
		"runDeadline":    s.runDeadline.String(),
		"failurePolicy":  string(s.policy),
		"totalPolicy":    string(s.total),
	}
	if s.callTimeout > 0 {
		stats["callTimeout"] = s.callTimeout.String()
	}

	if s.started {
		queueLen := s.queue.Len(context.Background())
		ps := s.pool.Stats()
		stats["queueLength"] = queueLen
		stats["processed"] = ps.Processed
		stats["failed"] = ps.Failed

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(ps.Workers)
	}
	return stats
}

func withCallTimeout(next scoring.Scorer, d time.Duration) scoring.Scorer {
	return scoring.ScorerFunc(func(ctx context.Context, event, user model.Record) (model.ScoreRecord, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next.Score(ctx, event, user)
	})
}
