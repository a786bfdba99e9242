package taskpool

import "time"

// Status is the terminal classification of a task.
type Status uint8

const (
	// StatusSuccess means the unit of work returned a result.
	StatusSuccess Status = iota

	// StatusFailure means the unit of work returned an error on its final attempt.
	StatusFailure

	// StatusTimedOut means no result arrived within the final attempt's window.
	StatusTimedOut

	// StatusCancelled means the task was rejected at admission or cancelled
	// before it could be fully attempted.
	StatusCancelled
)

// String reports the status name used in logs and summaries.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusTimedOut:
		return "timed_out"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the immutable terminal record of one envelope.
// Output is meaningful only when Status is StatusSuccess; Err is set for every
// other status. Attempts counts executions actually performed and never
// exceeds the envelope's MaxRetries+1; it is zero for envelopes cancelled
// before any attempt started.
type Outcome[R any] struct {
	TaskID     string
	Index      int
	Status     Status
	Output     R
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	Attempts   int
}

// Duration is the wall time from the first attempt's start to the terminal state.
func (o Outcome[R]) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}
