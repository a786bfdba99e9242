package taskpool

import (
	"sort"
	"time"
)

// Aggregate returns a copy of outcomes sorted by submission index, restoring
// output order regardless of completion order. Pure: the input is not mutated.
func Aggregate[R any](outcomes []Outcome[R]) []Outcome[R] {
	ordered := make([]Outcome[R], len(outcomes))
	copy(ordered, outcomes)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	return ordered
}

// Summary counts outcomes per terminal status and spans the batch wall time
// from the earliest start to the latest finish.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	TimedOut  int
	Cancelled int
	Elapsed   time.Duration
}

// Summarize derives a Summary from a set of outcomes. Pure function.
func Summarize[R any](outcomes []Outcome[R]) Summary {
	var sum Summary
	sum.Total = len(outcomes)
	if len(outcomes) == 0 {
		return sum
	}

	earliest := outcomes[0].StartedAt
	latest := outcomes[0].FinishedAt
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			sum.Succeeded++
		case StatusFailure:
			sum.Failed++
		case StatusTimedOut:
			sum.TimedOut++
		case StatusCancelled:
			sum.Cancelled++
		}
		if o.StartedAt.Before(earliest) {
			earliest = o.StartedAt
		}
		if o.FinishedAt.After(latest) {
			latest = o.FinishedAt
		}
	}
	sum.Elapsed = latest.Sub(earliest)
	return sum
}

// BatchReport bundles a batch's ordered outcomes with their summary.
type BatchReport[R any] struct {
	Outcomes []Outcome[R]
	Summary  Summary
}

// Outputs returns the successful outputs in submission order.
func (r *BatchReport[R]) Outputs() []R {
	outs := make([]R, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Status == StatusSuccess {
			outs = append(outs, o.Output)
		}
	}
	return outs
}

// FirstError returns the error of the first non-successful outcome, or nil.
func (r *BatchReport[R]) FirstError() error {
	for _, o := range r.Outcomes {
		if o.Status != StatusSuccess {
			return o.Err
		}
	}
	return nil
}
