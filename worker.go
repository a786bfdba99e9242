package taskpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Andrej220/go-utils/backoff"
	"go.uber.org/zap"
)

// execute runs one envelope through its attempt loop: per-attempt timeout,
// retry with backoff on Failure/TimedOut, terminal Cancelled when either the
// batch context or the scheduler stops. Exactly one outcome is delivered.
func (s *Scheduler[R]) execute(j *job[R]) {
	env := j.env
	bctx := j.batch.ctx

	if bctx.Err() != nil {
		j.deliver(rejectedOutcome[R](env, fmt.Errorf("%w: %w", ErrTaskCancelled, bctx.Err())))
		return
	}
	if s.ctx.Err() != nil {
		j.deliver(rejectedOutcome[R](env, fmt.Errorf("%w: %w", ErrTaskCancelled, s.ctx.Err())))
		return
	}

	s.state.inFlight.Add(1)
	s.inst.inFlight.Add(1)
	defer func() {
		s.state.inFlight.Add(-1)
		s.inst.inFlight.Add(-1)
	}()

	start := time.Now()
	bo := backoff.New(s.cfg.RetryInitial, s.cfg.RetryMax, time.Now().UnixNano())
	maxAttempts := env.MaxRetries + 1

	var (
		out      R
		err      error
		status   Status
		attempts int
	)

attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		out, status, err = s.attempt(bctx, env)

		switch status {
		case StatusSuccess, StatusCancelled:
			break attemptLoop
		case StatusTimedOut:
			s.inst.timeouts.Add(1)
		}

		if attempt == maxAttempts {
			break
		}

		delay := bo.Next()
		s.logger.Warn("task attempt failed; backing off",
			zap.String("task_id", env.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		s.inst.retries.Add(1)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-bctx.Done():
			timer.Stop()
			break attemptLoop
		case <-s.ctx.Done():
			timer.Stop()
			break attemptLoop
		}
	}

	end := time.Now()
	o := Outcome[R]{
		TaskID:     env.ID,
		Index:      env.Index,
		Status:     status,
		StartedAt:  start,
		FinishedAt: end,
		Attempts:   attempts,
	}
	if status == StatusSuccess {
		o.Output = out
	} else {
		o.Err = err
	}

	s.inst.executed.Add(1)
	s.inst.duration.Record(end.Sub(start).Seconds())
	j.deliver(o)
}

// attempt executes a single try under a fresh timeout window. A unit that
// exceeds its window is abandoned, not killed; the worker slot is released
// immediately while the unit's goroutine finishes on its own.
func (s *Scheduler[R]) attempt(bctx context.Context, env Envelope[R]) (R, Status, error) {
	var (
		actx   context.Context
		cancel context.CancelFunc
	)
	if env.Timeout > 0 {
		actx, cancel = context.WithTimeout(bctx, env.Timeout)
	} else {
		actx, cancel = context.WithCancel(bctx)
	}
	// A closing scheduler also unblocks the attempt.
	stop := context.AfterFunc(s.ctx, cancel)

	res, err := runProtected(actx, env.Run)

	timedOut := env.Timeout > 0 && errors.Is(actx.Err(), context.DeadlineExceeded)
	stop()
	cancel()

	switch {
	case err == nil:
		return res, StatusSuccess, nil
	case bctx.Err() != nil:
		return res, StatusCancelled, fmt.Errorf("%w: %w", ErrTaskCancelled, err)
	case s.ctx.Err() != nil:
		return res, StatusCancelled, fmt.Errorf("%w: %w", ErrTaskCancelled, err)
	case timedOut:
		return res, StatusTimedOut, fmt.Errorf("%w: %w", ErrTaskTimedOut, err)
	default:
		// Collaborator error; attached opaquely, never interpreted.
		return res, StatusFailure, err
	}
}
