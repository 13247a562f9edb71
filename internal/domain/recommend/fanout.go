// Package recommend scores the cross-product of candidate events and circle
// members and collects one tagged outcome per pair.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/circlematch/internal/domain/format"
	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/internal/domain/scoring"
	"github.com/okian/circlematch/pkg/logger"
	"github.com/okian/circlematch/pkg/metrics"
)

const (
	defaultMaxConcurrency = 16
	defaultDeadline       = 5 * time.Minute
)

// FailurePolicy decides what one failed pair does to the run.
type FailurePolicy string

const (
	// PolicyPartial reports failed pairs next to the successful ones.
	PolicyPartial FailurePolicy = "partial"
	// PolicyFailFast aborts the run on the first failed pair.
	PolicyFailFast FailurePolicy = "fail_fast"
)

// Valid reports whether p is a known policy.
func (p FailurePolicy) Valid() bool {
	return p == PolicyPartial || p == PolicyFailFast
}

// Dispatcher accepts scoring jobs and eventually answers on job.Reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, job model.ScoreJob) error
}

// Result holds every resolved pair of a run. Scores keep cross-product
// order (event-major, user-minor) among the successful pairs.
type Result struct {
	Scores   []model.PairScore
	Failures []model.PairFailure
}

// Pairs returns the number of pairs in the run.
func (r Result) Pairs() int {
	return len(r.Scores) + len(r.Failures)
}

// Coordinator runs the fan-out.
type Coordinator struct {
	scorer         scoring.Scorer
	dispatcher     Dispatcher
	maxConcurrency int
	deadline       time.Duration
	policy         FailurePolicy
	logger         logger.Logger
}

// New creates a coordinator scoring pairs with scorer.
func New(scorer scoring.Scorer, opts ...Option) *Coordinator {
	c := &Coordinator{
		scorer:         scorer,
		maxConcurrency: defaultMaxConcurrency,
		deadline:       defaultDeadline,
		policy:         PolicyPartial,
		logger:         logger.Get().Named("fanout"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run is the per-invocation state.
type run struct {
	candidates []model.Candidate
	users      []model.Record
	events     []model.Record
	views      []model.Record
	results    []model.JobResult
	resolved   []bool
}

func (r *run) pair(i int) (event, user model.Record) {
	return r.events[i/len(r.users)], r.views[i%len(r.users)]
}

func (r *run) size() int { return len(r.candidates) * len(r.users) }

// Run scores every candidate against every user. Empty input yields an
// empty result.
func (c *Coordinator) Run(ctx context.Context, candidates []model.Candidate, users []model.Record) (Result, error) {
	if len(candidates) == 0 || len(users) == 0 {
		return Result{}, nil
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	r := &run{candidates: candidates, users: users}
	r.events = make([]model.Record, len(candidates))
	for i, cand := range candidates {
		r.events[i] = format.Event(ctx, cand.Data)
	}
	r.views = make([]model.Record, len(users))
	for i, u := range users {
		r.views[i] = format.User(ctx, u)
	}
	r.results = make([]model.JobResult, r.size())
	r.resolved = make([]bool, r.size())

	c.logger.Info(ctx, "fan-out started",
		logger.Int("events", len(candidates)),
		logger.Int("users", len(users)),
		logger.Int("pairs", r.size()),
		logger.String("policy", string(c.policy)),
	)

	var err error
	if c.dispatcher != nil {
		err = c.runDispatched(runCtx, cancel, r)
	} else {
		err = c.runLocal(runCtx, r)
	}

	elapsedMs := float64(time.Since(start).Milliseconds())
	if ctx.Err() != nil {
		metrics.RecordFanoutRun("canceled", elapsedMs)
		return Result{}, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}
	if err != nil {
		metrics.RecordFanoutRun("failed", elapsedMs)
		return Result{}, err
	}

	res := c.collect(runCtx, r)
	outcome := "ok"
	if len(res.Failures) > 0 {
		outcome = "partial"
	}
	if len(res.Scores) == 0 {
		metrics.RecordFanoutRun("failed", elapsedMs)
		return res, fmt.Errorf("%w: %d pairs", ErrAllPairsFailed, len(res.Failures))
	}
	metrics.RecordFanoutRun(outcome, elapsedMs)

	c.logger.Info(ctx, "fan-out finished",
		logger.Int("scored", len(res.Scores)),
		logger.Int("failed", len(res.Failures)),
		logger.Float64("elapsed_ms", elapsedMs),
	)
	return res, nil
}

// runLocal scores pairs on goroutines bounded by maxConcurrency.
func (c *Coordinator) runLocal(ctx context.Context, r *run) error {
	if c.policy == PolicyFailFast {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.maxConcurrency)
		for i := 0; i < r.size(); i++ {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				ev, u := r.pair(i)
				res := c.score(gctx, i, ev, u)
				r.results[i], r.resolved[i] = res, true
				if res.Err != nil {
					return c.pairError(r, i, res.Err)
				}
				return nil
			})
		}
		return g.Wait()
	}

	var g errgroup.Group
	g.SetLimit(c.maxConcurrency)
	for i := 0; i < r.size(); i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ev, u := r.pair(i)
			r.results[i], r.resolved[i] = c.score(ctx, i, ev, u), true
			return nil
		})
	}
	return g.Wait()
}

// runDispatched hands pairs to the dispatcher and waits for the replies.
// At most maxConcurrency jobs of the run are outstanding at once.
func (c *Coordinator) runDispatched(ctx context.Context, cancel context.CancelFunc, r *run) error {
	// Buffered so late replies after the deadline never block a worker.
	reply := make(chan model.JobResult, r.size())
	pending, next := 0, 0

	for {
		for next < r.size() && pending < c.maxConcurrency && ctx.Err() == nil {
			i := next
			next++
			ev, u := r.pair(i)
			job := model.ScoreJob{Ctx: ctx, Index: i, Event: ev, User: u, Reply: reply}
			if err := c.dispatcher.Dispatch(ctx, job); err != nil {
				r.results[i], r.resolved[i] = model.JobResult{Index: i, Err: err}, true
				if c.policy == PolicyFailFast {
					cancel()
					return c.pairError(r, i, err)
				}
				continue
			}
			pending++
		}

		if pending == 0 {
			if next < r.size() && c.policy == PolicyFailFast {
				return fmt.Errorf("%w: %w", ErrPairFailed, ctx.Err())
			}
			return nil
		}

		select {
		case res := <-reply:
			pending--
			r.results[res.Index], r.resolved[res.Index] = res, true
			if res.Err != nil && c.policy == PolicyFailFast {
				cancel()
				return c.pairError(r, res.Index, res.Err)
			}
		case <-ctx.Done():
			if c.policy == PolicyFailFast {
				return fmt.Errorf("%w: %w", ErrPairFailed, ctx.Err())
			}
			return nil
		}
	}
}

func (c *Coordinator) score(ctx context.Context, i int, event, user model.Record) model.JobResult {
	if err := ctx.Err(); err != nil {
		return model.JobResult{Index: i, Err: fmt.Errorf("%w: %w", ErrPairNotScored, err)}
	}
	metrics.AddFanoutInflight(1)
	defer metrics.AddFanoutInflight(-1)

	rec, err := c.scorer.Score(ctx, event, user)
	return model.JobResult{Index: i, Score: rec, Err: err}
}

func (c *Coordinator) pairError(r *run, i int, err error) error {
	cand := r.candidates[i/len(r.users)]
	user := r.users[i%len(r.users)]
	return fmt.Errorf("%w: event %s user %s: %w", ErrPairFailed, cand.Data.ID(), user.ID(), err)
}

// collect turns positional results into a Result. Pairs never resolved are
// reported as failures carrying the run's context error.
func (c *Coordinator) collect(ctx context.Context, r *run) Result {
	var res Result
	for i := 0; i < r.size(); i++ {
		cand := r.candidates[i/len(r.users)]
		user := r.users[i%len(r.users)]

		out := r.results[i]
		if !r.resolved[i] {
			cause := ctx.Err()
			if cause == nil {
				cause = context.Canceled
			}
			out.Err = fmt.Errorf("%w: %w", ErrPairNotScored, cause)
		}

		if out.Err != nil {
			metrics.RecordPairScored("failure")
			c.logger.Warn(ctx, "pair failed",
				logger.String("event_id", cand.Data.ID()),
				logger.String("user_id", user.ID()),
				logger.Error(out.Err),
			)
			res.Failures = append(res.Failures, model.PairFailure{
				EventID: cand.Data.ID(),
				UserID:  user.ID(),
				Origin:  cand.Origin,
				Err:     out.Err,
			})
			continue
		}
		metrics.RecordPairScored("success")
		res.Scores = append(res.Scores, model.PairScore{
			Event:  cand.Data,
			Origin: cand.Origin,
			User:   user,
			Score:  out.Score,
		})
	}
	return res
}

// IsPairFailure reports whether err came from a failed pair rather than
// from the run as a whole.
func IsPairFailure(err error) bool {
	return errors.Is(err, ErrPairFailed) || errors.Is(err, ErrAllPairsFailed)
}
