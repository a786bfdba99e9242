package taskpool

import (
	"time"

	"github.com/google/uuid"
)

// NoTimeout exempts an envelope from the pool's default timeout.
const NoTimeout time.Duration = -1

// NoRetries makes an envelope single-attempt even when the pool retries.
const NoRetries = -1

// Envelope wraps a unit of work with its scheduling metadata. Envelopes are
// value types: the scheduler copies and normalizes them at submission, so a
// submitted envelope is never mutated in place.
//
// Zero-valued Timeout and MaxRetries inherit the pool defaults at submission;
// NoTimeout and NoRetries override a non-zero pool default back to "none".
// An empty ID is replaced with a fresh UUID. Index is assigned from the
// envelope's position in the batch and defines the output ordering.
type Envelope[R any] struct {
	// ID is an opaque identifier carried through to the outcome.
	ID string

	// Index is the envelope's position within its batch. Assigned by
	// SubmitBatch; any pre-set value is overwritten.
	Index int

	// Run is the work to execute.
	Run Task[R]

	// Timeout bounds each attempt. Zero inherits the pool default;
	// NoTimeout runs unbounded regardless of the pool default.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after a Failure or TimedOut
	// result. Zero inherits the pool default; NoRetries forces one attempt.
	MaxRetries int
}

// NewEnvelope builds an envelope with a fresh ID around the given task.
func NewEnvelope[R any](run Task[R]) Envelope[R] {
	return Envelope[R]{ID: uuid.NewString(), Run: run}
}

// Batch binds one payload per envelope, preserving payload order.
func Batch[P, R any](unit Unit[P, R], payloads []P) []Envelope[R] {
	envs := make([]Envelope[R], len(payloads))
	for i, p := range payloads {
		envs[i] = Envelope[R]{ID: uuid.NewString(), Index: i, Run: Bind(unit, p)}
	}
	return envs
}

// Repeat builds n envelopes around the same task, each with its own identity.
// Used by the throughput harness to drive back-to-back executions.
func Repeat[R any](run Task[R], n int) []Envelope[R] {
	envs := make([]Envelope[R], n)
	for i := range envs {
		envs[i] = Envelope[R]{ID: uuid.NewString(), Index: i, Run: run}
	}
	return envs
}
