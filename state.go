package taskpool

import "sync/atomic"

// poolState is the scheduler's shared mutable structure. Counters are atomics
// so task completions and autoscaler resizes never race; structural changes
// (spawning workers, draining the queue) go through the scheduler's single
// control path.
type poolState struct {
	current  atomic.Int64
	target   atomic.Int64
	inFlight atomic.Int64
	queued   atomic.Int64
}

// retire lets one surplus worker claim its own exit. It succeeds only while
// the current count exceeds the target, so the pool drains toward the target
// without ever cutting short an in-flight task.
func (ps *poolState) retire() bool {
	for {
		cur := ps.current.Load()
		if cur <= ps.target.Load() {
			return false
		}
		if ps.current.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// PoolState is a point-in-time snapshot of the scheduler's counters,
// intended for diagnostics and autoscaler decisions.
// Invariant: 0 <= InFlight <= CurrentWorkers, and CurrentWorkers converges
// toward TargetWorkers without terminating in-flight tasks.
type PoolState struct {
	CurrentWorkers int
	TargetWorkers  int
	InFlight       int
	Queued         int
}

// State snapshots the pool counters.
func (s *Scheduler[R]) State() PoolState {
	return PoolState{
		CurrentWorkers: int(s.state.current.Load()),
		TargetWorkers:  int(s.state.target.Load()),
		InFlight:       int(s.state.inFlight.Load()),
		Queued:         int(s.state.queued.Load()),
	}
}
