package taskpool

import (
	"context"
	"fmt"
)

// Task is the canonical unit-of-work shape used throughout the package.
// It takes a context and returns a result of type R and an error.
// Use TaskFunc / TaskValue / TaskError helpers to adapt common signatures.
type Task[R any] func(context.Context) (R, error)

// TaskFunc adapts func(ctx) (R, error) to Task[R].
func TaskFunc[R any](fn func(context.Context) (R, error)) Task[R] { return Task[R](fn) }

// TaskValue adapts func(ctx) R to Task[R].
func TaskValue[R any](fn func(context.Context) R) Task[R] {
	return func(ctx context.Context) (R, error) { return fn(ctx), nil }
}

// TaskError adapts func(ctx) error to Task[R].
// The returned Task yields the zero value of R alongside the error.
func TaskError[R any](fn func(context.Context) error) Task[R] {
	return func(ctx context.Context) (R, error) { var zero R; return zero, fn(ctx) }
}

// Unit is the external collaborator contract: one input, one output or an
// error, with unbounded but measurable latency. The scheduler never interprets
// the error content; it is attached opaquely to the task's outcome.
type Unit[P, R any] func(context.Context, P) (R, error)

// Bind fixes a payload into a Unit, producing a Task ready for an Envelope.
func Bind[P, R any](unit Unit[P, R], payload P) Task[R] {
	return func(ctx context.Context) (R, error) { return unit(ctx, payload) }
}

// runProtected executes run in its own goroutine, recovering panics and
// abandoning the attempt when ctx ends first. An abandoned unit of work is not
// stopped unless it observes ctx itself; its result is discarded.
func runProtected[R any](ctx context.Context, run Task[R]) (R, error) {
	var (
		result R
		err    error
	)

	done := make(chan struct{})

	go func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%w: %v", ErrTaskPanicked, p)
			}
			close(done)
		}()
		result, err = run(ctx)
	}()

	select {
	case <-done:
		return result, err
	case <-ctx.Done():
		// Prefer a result that raced the cancellation and won.
		select {
		case <-done:
			return result, err
		default:
			var zero R
			return zero, fmt.Errorf("%w: %w", ErrTaskAbandoned, ctx.Err())
		}
	}
}
