package taskpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ygrebnov/taskpool/metrics"
)

// Scheduler owns a bounded queue and a resizable set of worker goroutines
// executing task envelopes. Methods are safe for concurrent use. Construct
// via New, call Start before submitting, and Close when done.
type Scheduler[R any] struct {
	cfg    *config
	logger *zap.Logger
	inst   instruments

	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	jobs chan *job[R]

	// resizeCh wakes workers parked in their queue select after a shrink,
	// so an idle pool still converges to the lowered target.
	resizeCh chan struct{}

	state poolState

	// admit excludes batch admission from the stop-time queue drain, so no
	// envelope can slip into the queue after the drain and lose its outcome.
	admit sync.RWMutex

	// resizeMu serializes structural pool changes (the single control path).
	resizeMu sync.Mutex

	workerWG sync.WaitGroup
	scalerWG sync.WaitGroup

	scaler *Autoscaler
}

// instruments groups the pool activity instruments recorded per task.
type instruments struct {
	executed metrics.Counter
	retries  metrics.Counter
	timeouts metrics.Counter
	inFlight metrics.UpDownCounter
	duration metrics.Histogram
}

// job pairs an envelope with its batch's context and outcome sink.
type job[R any] struct {
	env   Envelope[R]
	batch *batchState[R]
}

// batchState is shared by all jobs of one SubmitBatch call. The outcomes
// channel is buffered to the batch size, so deliveries never block a worker.
type batchState[R any] struct {
	ctx      context.Context
	outcomes chan Outcome[R]
}

func (j *job[R]) deliver(o Outcome[R]) { j.batch.outcomes <- o }

// New assembles a Scheduler from functional options.
func New[R any](opts ...Option) (*Scheduler[R], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	s := &Scheduler[R]{
		cfg:    &cfg,
		logger: cfg.Logger,
	}
	s.inst = instruments{
		executed: cfg.Metrics.Counter("taskpool.tasks.executed",
			metrics.WithDescription("tasks that ran to a terminal state; admission-rejected envelopes are not counted"), metrics.WithUnit("1")),
		retries: cfg.Metrics.Counter("taskpool.tasks.retried",
			metrics.WithDescription("attempt resubmissions after failure or timeout"), metrics.WithUnit("1")),
		timeouts: cfg.Metrics.Counter("taskpool.tasks.timed_out",
			metrics.WithDescription("attempts abandoned at their timeout"), metrics.WithUnit("1")),
		inFlight: cfg.Metrics.UpDownCounter("taskpool.tasks.in_flight",
			metrics.WithDescription("tasks currently executing"), metrics.WithUnit("1")),
		duration: cfg.Metrics.Histogram("taskpool.task.duration",
			metrics.WithDescription("task wall time across all attempts"), metrics.WithUnit("seconds")),
	}
	return s, nil
}

// Start spawns the initial workers and, when enabled, the autoscaler loop.
// The provided ctx bounds the scheduler's lifetime; cancelling it is
// equivalent to Close without the final wait.
func (s *Scheduler[R]) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(ctx)
		s.jobs = make(chan *job[R], s.cfg.QueueCapacity)
		s.resizeCh = make(chan struct{}, 1)
		s.started.Store(true)

		s.Resize(s.cfg.Workers)

		if s.cfg.Autoscale {
			s.scaler = newAutoscaler(autoscalerConfig{
				Sampler:   s.cfg.Sampler,
				Interval:  s.cfg.SampleInterval,
				LowWater:  s.cfg.LowWater,
				HighWater: s.cfg.HighWater,
				Floor:     1,
				Ceiling:   s.cfg.WorkerCeiling,
				Initial:   s.cfg.Workers,
			}, s.Resize, s.logger)
			s.scalerWG.Add(1)
			go func() {
				defer s.scalerWG.Done()
				s.scaler.Run(s.ctx)
			}()
		}

		s.logger.Debug("scheduler started",
			zap.Int("workers", s.cfg.Workers),
			zap.Int("queue_capacity", s.cfg.QueueCapacity),
			zap.Bool("autoscale", s.cfg.Autoscale),
		)
	})
}

// Autoscaler returns the running autoscaler, or nil when autoscaling is off
// or the scheduler has not started.
func (s *Scheduler[R]) Autoscaler() *Autoscaler { return s.scaler }

// Resize sets the target worker count, clamped to [1, ceiling]. Growth spawns
// idle workers immediately; shrink lets surplus workers retire after their
// current task. In-flight work is never interrupted.
func (s *Scheduler[R]) Resize(target int) {
	if target < 1 {
		target = 1
	}
	if c := s.cfg.WorkerCeiling; c > 0 && target > c {
		target = c
	}

	s.resizeMu.Lock()
	defer s.resizeMu.Unlock()

	if !s.started.Load() || s.ctx.Err() != nil {
		return
	}

	prev := int(s.state.target.Swap(int64(target)))
	for int(s.state.current.Load()) < target {
		s.state.current.Add(1)
		s.workerWG.Add(1)
		go s.runWorker()
	}
	if prev > target {
		s.notifyResize()
	}

	if prev != target {
		s.logger.Debug("pool resized",
			zap.Int("previous_target", prev),
			zap.Int("target", target),
		)
	}
}

// runWorker is one execution slot. It drains the shared queue until the
// scheduler stops or the slot is retired by a shrink.
func (s *Scheduler[R]) runWorker() {
	defer s.workerWG.Done()
	for {
		if s.state.retire() {
			// A shrink may retire more than one slot; wake the next
			// parked worker so it can re-check the target too.
			s.notifyResize()
			return
		}
		select {
		case <-s.ctx.Done():
			s.state.current.Add(-1)
			s.drainOnStop()
			return
		case <-s.resizeCh:
			// Target changed while parked; re-check retire above.
		case j := <-s.jobs:
			s.state.queued.Add(-1)
			s.execute(j)
		}
	}
}

// notifyResize nudges one parked worker. The channel holds a single pending
// signal; a worker that cannot retire simply parks again.
func (s *Scheduler[R]) notifyResize() {
	select {
	case s.resizeCh <- struct{}{}:
	default:
	}
}

// SubmitBatch dispatches the batch and blocks until every envelope reaches a
// terminal outcome or ctx ends. The returned report always contains exactly
// one outcome per envelope, ordered by submission position.
//
// Per-task errors are embedded in outcomes, never returned here. The error
// return carries batch-level conditions only: ErrInvalidState before Start or
// after Close, ErrPoolSaturated when the queue rejected part of the batch,
// and ErrBatchCancelled when ctx ended before completion.
func (s *Scheduler[R]) SubmitBatch(ctx context.Context, batch []Envelope[R]) (*BatchReport[R], error) {
	if !s.started.Load() || s.ctx.Err() != nil {
		return nil, ErrInvalidState
	}
	if len(batch) == 0 {
		return &BatchReport[R]{}, nil
	}

	b := &batchState[R]{
		ctx:      ctx,
		outcomes: make(chan Outcome[R], len(batch)),
	}

	saturated := false

	s.admit.RLock()
	for i := range batch {
		env := batch[i]
		env.Index = i
		if env.ID == "" {
			env.ID = uuid.NewString()
		}
		switch {
		case env.Timeout == 0:
			env.Timeout = s.cfg.DefaultTimeout
		case env.Timeout < 0:
			env.Timeout = 0
		}
		switch {
		case env.MaxRetries == 0:
			env.MaxRetries = s.cfg.MaxRetries
		case env.MaxRetries < 0:
			env.MaxRetries = 0
		}

		switch {
		case ctx.Err() != nil:
			b.outcomes <- rejectedOutcome[R](env, fmt.Errorf("%w: %w", ErrTaskCancelled, ctx.Err()))
		case s.ctx.Err() != nil:
			b.outcomes <- rejectedOutcome[R](env, fmt.Errorf("%w: %w", ErrTaskCancelled, s.ctx.Err()))
		case saturated:
			b.outcomes <- rejectedOutcome[R](env, ErrPoolSaturated)
		default:
			select {
			case s.jobs <- &job[R]{env: env, batch: b}:
				s.state.queued.Add(1)
			default:
				// Queue full at submission time: fail fast for the rest of
				// the batch instead of buffering unbounded work.
				saturated = true
				b.outcomes <- rejectedOutcome[R](env, ErrPoolSaturated)
			}
		}
	}
	s.admit.RUnlock()

	collected := make([]Outcome[R], 0, len(batch))
	for len(collected) < len(batch) {
		collected = append(collected, <-b.outcomes)
	}

	ordered := Aggregate(collected)
	report := &BatchReport[R]{Outcomes: ordered, Summary: Summarize(ordered)}

	var errs []error
	if saturated {
		errs = append(errs, ErrPoolSaturated)
	}
	if ctx.Err() != nil && report.Summary.Cancelled > 0 {
		errs = append(errs, fmt.Errorf("%w: %w", ErrBatchCancelled, ctx.Err()))
	}
	return report, errors.Join(errs...)
}

// Close stops the scheduler: no new batches are admitted, workers finish
// their current task and exit, and any still-queued envelopes drain with
// terminal Cancelled outcomes so no in-progress SubmitBatch call hangs.
// Idempotent and safe for concurrent use.
func (s *Scheduler[R]) Close() {
	s.closeOnce.Do(func() {
		if !s.started.Load() {
			return
		}
		// Cancel under resizeMu so a concurrent Resize either finishes its
		// spawns before the wait below or observes the dead context.
		s.resizeMu.Lock()
		s.cancel()
		s.resizeMu.Unlock()
		s.workerWG.Wait()
		s.scalerWG.Wait()
		s.drainOnStop()
		s.logger.Debug("scheduler closed")
	})
}

// drainOnStop delivers terminal Cancelled outcomes for envelopes still queued
// once the scheduler context has ended. It runs under the admission write lock
// so no envelope can land in the queue after the drain and lose its outcome.
// Exiting workers and Close both call it; the drain is idempotent.
func (s *Scheduler[R]) drainOnStop() {
	s.admit.Lock()
	defer s.admit.Unlock()
	for {
		select {
		case j := <-s.jobs:
			s.state.queued.Add(-1)
			j.deliver(rejectedOutcome[R](j.env, fmt.Errorf("%w: %w", ErrTaskCancelled, s.ctx.Err())))
		default:
			return
		}
	}
}

// rejectedOutcome records a terminal Cancelled state for an envelope that
// never started executing.
func rejectedOutcome[R any](env Envelope[R], cause error) Outcome[R] {
	now := time.Now()
	return Outcome[R]{
		TaskID:     env.ID,
		Index:      env.Index,
		Status:     StatusCancelled,
		Err:        cause,
		StartedAt:  now,
		FinishedAt: now,
	}
}
