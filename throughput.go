package taskpool

import (
	"context"
	"time"
)

// ThroughputStats reports aggregate rate for a harness run.
type ThroughputStats struct {
	Executions int
	Wall       time.Duration
}

// Rate returns executions per second. The second return is false when the
// rate is undefined: zero wall time or fewer than two executions.
func (t ThroughputStats) Rate() (float64, bool) {
	if t.Wall <= 0 || t.Executions < 2 {
		return 0, false
	}
	return float64(t.Executions) / t.Wall.Seconds(), true
}

// RunBatch drives n back-to-back executions of the same task through the pool
// and wall-clocks the whole submission. It adds no retries beyond the pool's
// own policy; the scheduler must already be started.
func RunBatch[R any](ctx context.Context, s *Scheduler[R], run Task[R], n int) (ThroughputStats, *BatchReport[R], error) {
	envs := Repeat(run, n)
	start := time.Now()
	report, err := s.SubmitBatch(ctx, envs)
	stats := ThroughputStats{Executions: n, Wall: time.Since(start)}
	return stats, report, err
}
