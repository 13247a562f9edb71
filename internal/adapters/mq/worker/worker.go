// Package worker scores queued (event, user) pairs on a fixed set of
// goroutines shared by every matching run in the process.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/pkg/logger"
	"github.com/okian/circlematch/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Sentinel errors delivered on a job's reply channel.
var (
	ErrStopped = errors.New("worker pool stopped")
	ErrExpired = errors.New("job expired before scoring")
)

// Scorer scores one formatted pair.
type Scorer interface {
	Score(ctx context.Context, event, user model.Record) (model.ScoreRecord, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.ScoreJob
}

// EnqueueQueue is a Queue the pool can also submit to.
type EnqueueQueue interface {
	Queue
	Enqueue(ctx context.Context, job model.ScoreJob) error
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker. Jobs still delivered to it are answered
	// with ErrStopped.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue  Queue
	scorer Scorer
	name   string

	processed atomic.Int64
	failed    atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, scorer Scorer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		scorer:   scorer,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.With(logger.String("worker", w.name))
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			select {
			case <-w.shutdown:
				w.reply(ctx, job, model.JobResult{Index: job.Index, Err: ErrStopped})
				continue
			default:
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown signals the worker and waits for its loop to end.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
}

// process scores one job under the job's own context.
func (w *InMemoryWorker) process(runCtx context.Context, job model.ScoreJob) {
	start := time.Now()
	metrics.AddWorkerBusy(1)
	defer func() {
		metrics.AddWorkerBusy(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	ctx := job.Ctx
	if ctx == nil {
		ctx = runCtx
	}

	res := model.JobResult{Index: job.Index}
	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrExpired, err)
	} else {
		res.Score, res.Err = w.scorer.Score(ctx, job.Event, job.User)
	}

	w.processed.Add(1)
	if res.Err != nil {
		w.failed.Add(1)
		metrics.RecordErrorByComponent("worker", "scoring_error")
		w.logger.Debug(ctx, "job failed", logger.Int("index", job.Index), logger.Error(res.Err))
	}
	w.reply(ctx, job, res)
}

// reply delivers res without blocking past the job's lifetime.
func (w *InMemoryWorker) reply(ctx context.Context, job model.ScoreJob, res model.JobResult) {
	if job.Reply == nil {
		return
	}
	select {
	case job.Reply <- res:
		return
	default:
	}
	if job.Ctx != nil {
		ctx = job.Ctx
	}
	select {
	case job.Reply <- res:
	case <-ctx.Done():
		w.logger.Warn(ctx, "reply dropped", logger.Int("index", job.Index))
	}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int   `json:"workers"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pool manages multiple workers and accepts jobs for them.
type Pool struct {
	workers         []*InMemoryWorker
	queue           EnqueueQueue
	shutdownTimeout time.Duration
	logger          logger.Logger
}

// NewPool creates a pool of workerCount workers reading from queue.
func NewPool(workerCount int, queue EnqueueQueue, scorer Scorer, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers:         make([]*InMemoryWorker, workerCount),
		queue:           queue,
		shutdownTimeout: poolShutdownTimeout,
		logger:          logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < workerCount; i++ {
		p.workers[i] = NewInMemoryWorker(queue, scorer, WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Dispatch queues job for the next free worker, waiting while the queue
// is full.
func (p *Pool) Dispatch(ctx context.Context, job model.ScoreJob) error {
	if err := p.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("dispatch job %d: %w", job.Index, err)
	}
	return nil
}

// Stats sums the counters of every worker.
func (p *Pool) Stats() Stats {
	s := Stats{Workers: len(p.workers)}
	for _, w := range p.workers {
		s.Processed += w.processed.Load()
		s.Failed += w.failed.Load()
	}
	return s
}

// Shutdown closes the queue and waits for the workers to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for _, w := range p.workers {
		w.stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, p.shutdownTimeout)
	defer cancel()

	var errs []error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			errs = append(errs, err)
		}
	}
	metrics.UpdateWorkerCount(0)
	return errors.Join(errs...)
}
