package taskpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/taskpool/metrics"
	"github.com/ygrebnov/taskpool/sysmon"
)

func newStarted(t *testing.T, opts ...Option) *Scheduler[int] {
	t.Helper()
	s, err := New[int](opts...)
	require.NoError(t, err)
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s
}

func TestSubmitBatch_OrderedSuccess(t *testing.T) {
	s := newStarted(t, WithWorkers(4), WithQueueCapacity(64))

	double := func(_ context.Context, n int) (int, error) { return n * 2, nil }
	payloads := make([]int, 20)
	for i := range payloads {
		payloads[i] = i
	}

	report, err := s.SubmitBatch(context.Background(), Batch(Unit[int, int](double), payloads))
	require.NoError(t, err)
	require.Len(t, report.Outcomes, len(payloads))

	for i, o := range report.Outcomes {
		require.Equal(t, i, o.Index, "output order must match submission order")
		require.Equal(t, StatusSuccess, o.Status)
		require.Equal(t, i*2, o.Output)
		require.Equal(t, 1, o.Attempts)
		require.False(t, o.FinishedAt.Before(o.StartedAt))
	}
	require.Equal(t, len(payloads), report.Summary.Succeeded)
	require.Equal(t, len(payloads), report.Summary.Total)
}

func TestSubmitBatch_FailureIsolation(t *testing.T) {
	s := newStarted(t, WithWorkers(3), WithQueueCapacity(64))

	errOdd := errors.New("odd payload rejected")
	unit := func(_ context.Context, n int) (int, error) {
		if n%2 == 1 {
			return 0, errOdd
		}
		return n, nil
	}

	payloads := []int{0, 1, 2, 3, 4, 5, 6, 7}
	report, err := s.SubmitBatch(context.Background(), Batch(Unit[int, int](unit), payloads))
	require.NoError(t, err, "per-task errors never escalate to batch errors")
	require.Len(t, report.Outcomes, len(payloads))

	for i, o := range report.Outcomes {
		if i%2 == 1 {
			require.Equal(t, StatusFailure, o.Status)
			require.ErrorIs(t, o.Err, errOdd)
		} else {
			require.Equal(t, StatusSuccess, o.Status)
			require.Equal(t, i, o.Output)
		}
	}
	require.Equal(t, 4, report.Summary.Succeeded)
	require.Equal(t, 4, report.Summary.Failed)
}

func TestSubmitBatch_TimeoutExhaustsRetries(t *testing.T) {
	s := newStarted(t, WithWorkers(2), WithRetryBackoff(time.Millisecond, 5*time.Millisecond))

	slow := TaskFunc(func(context.Context) (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 1, nil
	})
	envs := Repeat(slow, 3)
	for i := range envs {
		envs[i].Timeout = 10 * time.Millisecond
		envs[i].MaxRetries = 2
	}

	report, err := s.SubmitBatch(context.Background(), envs)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)

	for _, o := range report.Outcomes {
		require.Equal(t, StatusTimedOut, o.Status)
		require.ErrorIs(t, o.Err, ErrTaskTimedOut)
		require.Equal(t, 3, o.Attempts, "attempts must equal max retries + 1")
	}
	require.Equal(t, 3, report.Summary.TimedOut)
}

func TestSubmitBatch_RetryThenSuccess(t *testing.T) {
	s := newStarted(t, WithWorkers(2), WithMaxRetries(1), WithRetryBackoff(time.Millisecond, 5*time.Millisecond))

	var calls [4]atomic.Int32
	flaky := func(_ context.Context, n int) (int, error) {
		if calls[n].Add(1) == 1 {
			return 0, errors.New("transient")
		}
		return n, nil
	}

	report, err := s.SubmitBatch(context.Background(), Batch(Unit[int, int](flaky), []int{0, 1, 2, 3}))
	require.NoError(t, err)

	for i, o := range report.Outcomes {
		require.Equal(t, StatusSuccess, o.Status)
		require.Equal(t, i, o.Output)
		require.Equal(t, 2, o.Attempts)
	}
	require.Equal(t, 4, report.Summary.Succeeded)
}

func TestSubmitBatch_ConcurrencySpeedup(t *testing.T) {
	const (
		workers  = 4
		n        = 8
		taskTime = 100 * time.Millisecond
	)
	s := newStarted(t, WithWorkers(workers), WithQueueCapacity(n))

	nap := TaskFunc(func(context.Context) (int, error) {
		time.Sleep(taskTime)
		return 1, nil
	})

	stats, report, err := RunBatch(context.Background(), s, nap, n)
	require.NoError(t, err)
	require.Equal(t, n, report.Summary.Succeeded)
	require.Less(t, stats.Wall, time.Duration(n)*taskTime, "pooled execution must beat serial wall time")

	rate, ok := stats.Rate()
	require.True(t, ok)
	require.Greater(t, rate, 0.0)
}

func TestSubmitBatch_PoolSaturated(t *testing.T) {
	s := newStarted(t, WithWorkers(1), WithQueueCapacity(2))

	gate := make(chan struct{})
	blocked := TaskFunc(func(context.Context) (int, error) {
		<-gate
		return 1, nil
	})

	time.AfterFunc(100*time.Millisecond, func() { close(gate) })

	report, err := s.SubmitBatch(context.Background(), Repeat(blocked, 10))
	require.ErrorIs(t, err, ErrPoolSaturated)
	require.Len(t, report.Outcomes, 10, "no envelope may be silently dropped")

	require.GreaterOrEqual(t, report.Summary.Cancelled, 7, "excess beyond slot+queue capacity is rejected")
	require.Equal(t, 10, report.Summary.Succeeded+report.Summary.Cancelled)

	for _, o := range report.Outcomes {
		if o.Status == StatusCancelled {
			require.ErrorIs(t, o.Err, ErrPoolSaturated)
			require.Zero(t, o.Attempts)
		}
	}
}

func TestSubmitBatch_CancellationMidBatch(t *testing.T) {
	s := newStarted(t, WithWorkers(1), WithQueueCapacity(16))

	bctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstDone := make(chan struct{})
	blockedStarted := make(chan struct{})

	envs := []Envelope[int]{
		NewEnvelope(TaskFunc(func(context.Context) (int, error) {
			defer close(firstDone)
			return 10, nil
		})),
		NewEnvelope(TaskFunc(func(ctx context.Context) (int, error) {
			close(blockedStarted)
			<-ctx.Done()
			return 0, ctx.Err()
		})),
		NewEnvelope(TaskValue(func(context.Context) int { return 30 })),
		NewEnvelope(TaskValue(func(context.Context) int { return 40 })),
	}

	go func() {
		<-firstDone
		<-blockedStarted
		cancel()
	}()

	report, err := s.SubmitBatch(bctx, envs)
	require.ErrorIs(t, err, ErrBatchCancelled)
	require.Len(t, report.Outcomes, 4)

	require.Equal(t, StatusSuccess, report.Outcomes[0].Status)
	require.Equal(t, 10, report.Outcomes[0].Output)

	require.Equal(t, StatusCancelled, report.Outcomes[1].Status, "in-flight task is abandoned on cancellation")
	for _, o := range report.Outcomes[2:] {
		require.Equal(t, StatusCancelled, o.Status, "not-yet-started tasks are cancelled")
	}
	require.Equal(t, 1, report.Summary.Succeeded)
	require.Equal(t, 3, report.Summary.Cancelled)
}

func TestSubmitBatch_EmptyBatch(t *testing.T) {
	s := newStarted(t, WithWorkers(1))

	report, err := s.SubmitBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, report.Outcomes)
	require.Zero(t, report.Summary.Total)
}

func TestSubmitBatch_BeforeStart(t *testing.T) {
	s, err := New[int](WithWorkers(1))
	require.NoError(t, err)

	_, err = s.SubmitBatch(context.Background(), Repeat(TaskValue(func(context.Context) int { return 1 }), 1))
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmitBatch_AfterClose(t *testing.T) {
	s, err := New[int](WithWorkers(1))
	require.NoError(t, err)
	s.Start(context.Background())
	s.Close()

	_, err = s.SubmitBatch(context.Background(), Repeat(TaskValue(func(context.Context) int { return 1 }), 1))
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestResize_NeverTruncatesInFlight(t *testing.T) {
	s := newStarted(t, WithWorkers(1), WithWorkerCeiling(4), WithQueueCapacity(16))

	gate := make(chan struct{})
	blocked := TaskFunc(func(context.Context) (int, error) {
		<-gate
		return 1, nil
	})

	type result struct {
		report *BatchReport[int]
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		report, err := s.SubmitBatch(context.Background(), Repeat(blocked, 6))
		resCh <- result{report, err}
	}()

	s.Resize(3)
	require.Eventually(t, func() bool {
		st := s.State()
		return st.CurrentWorkers == 3 && st.TargetWorkers == 3
	}, time.Second, 5*time.Millisecond, "growth starts idle workers")

	// Shrink while three tasks are still blocked in flight.
	s.Resize(1)
	require.Equal(t, 1, s.State().TargetWorkers)

	close(gate)
	res := <-resCh
	require.NoError(t, res.err)
	require.Equal(t, 6, res.report.Summary.Succeeded, "shrink must not cut short in-flight tasks")

	require.Eventually(t, func() bool {
		return s.State().CurrentWorkers == 1
	}, time.Second, 5*time.Millisecond, "surplus workers retire after finishing their task")
}

func TestResize_ShrinksIdlePool(t *testing.T) {
	s := newStarted(t, WithWorkers(4), WithWorkerCeiling(4), WithQueueCapacity(8))

	quick := TaskValue(func(context.Context) int { return 1 })
	_, err := s.SubmitBatch(context.Background(), Repeat(quick, 4))
	require.NoError(t, err)

	// All workers are parked on an empty queue now.
	s.Resize(1)
	require.Eventually(t, func() bool {
		st := s.State()
		return st.CurrentWorkers == 1 && st.TargetWorkers == 1
	}, 2*time.Second, 5*time.Millisecond, "surplus workers must retire without new job traffic")
}

func TestResize_ClampedToCeiling(t *testing.T) {
	s := newStarted(t, WithWorkers(1), WithWorkerCeiling(2))

	s.Resize(10)
	require.Equal(t, 2, s.State().TargetWorkers)

	s.Resize(0)
	require.Equal(t, 1, s.State().TargetWorkers, "floor of one worker")
}

func TestScheduler_AutoscaleGrowsUnderLowUtilization(t *testing.T) {
	idle := sysmon.SamplerFunc(func(context.Context) (sysmon.Sample, error) {
		return sysmon.Sample{CPUPercent: 5, MemoryPercent: 5}, nil
	})

	s := newStarted(t,
		WithWorkers(1),
		WithWorkerCeiling(3),
		WithAutoscale(),
		WithSampler(idle),
		WithSampleInterval(10*time.Millisecond),
	)

	require.Eventually(t, func() bool {
		return s.State().TargetWorkers == 3
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 3, s.Autoscaler().Recommendation())
}

func TestSubmitBatch_EnvelopeOverridesPoolDefaults(t *testing.T) {
	s := newStarted(t,
		WithWorkers(2),
		WithDefaultTimeout(20*time.Millisecond),
		WithMaxRetries(2),
		WithRetryBackoff(time.Millisecond, 2*time.Millisecond),
	)

	errBoom := errors.New("boom")
	envs := []Envelope[int]{
		{
			Run:        TaskError[int](func(context.Context) error { return errBoom }),
			MaxRetries: NoRetries,
		},
		{
			Run: TaskFunc(func(context.Context) (int, error) {
				time.Sleep(80 * time.Millisecond)
				return 7, nil
			}),
			Timeout: NoTimeout,
		},
		{
			Run: TaskError[int](func(context.Context) error { return errBoom }),
		},
	}

	report, err := s.SubmitBatch(context.Background(), envs)
	require.NoError(t, err)

	require.Equal(t, StatusFailure, report.Outcomes[0].Status)
	require.Equal(t, 1, report.Outcomes[0].Attempts, "NoRetries forces a single attempt")

	require.Equal(t, StatusSuccess, report.Outcomes[1].Status, "NoTimeout overrides the pool default")
	require.Equal(t, 7, report.Outcomes[1].Output)

	require.Equal(t, StatusFailure, report.Outcomes[2].Status)
	require.Equal(t, 3, report.Outcomes[2].Attempts, "zero retries still inherits the pool default")
}

func TestClose_ConcurrentWithResize(t *testing.T) {
	for i := 0; i < 20; i++ {
		s, err := New[int](WithWorkers(2), WithWorkerCeiling(8))
		require.NoError(t, err)
		s.Start(context.Background())

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 1; n <= 8; n++ {
				s.Resize(n)
			}
		}()

		s.Close()
		wg.Wait()
		require.Equal(t, 0, s.State().CurrentWorkers)
	}
}

func TestMetrics_ExecutedExcludesRejected(t *testing.T) {
	p := metrics.NewBasic()
	s := newStarted(t, WithWorkers(1), WithQueueCapacity(1), WithMetrics(p))

	gate := make(chan struct{})
	blocked := TaskFunc(func(context.Context) (int, error) {
		<-gate
		return 1, nil
	})
	time.AfterFunc(50*time.Millisecond, func() { close(gate) })

	report, err := s.SubmitBatch(context.Background(), Repeat(blocked, 6))
	require.ErrorIs(t, err, ErrPoolSaturated)

	executed := p.Counter("taskpool.tasks.executed").(*metrics.BasicCounter).Value()
	require.Equal(t, int64(report.Summary.Succeeded), executed,
		"rejected envelopes reach a terminal outcome without executing")
	require.Less(t, executed, int64(6))
}

func TestState_CountersDuringExecution(t *testing.T) {
	s := newStarted(t, WithWorkers(2), WithQueueCapacity(8))

	gate := make(chan struct{})
	blocked := TaskFunc(func(context.Context) (int, error) {
		<-gate
		return 1, nil
	})

	go func() {
		_, _ = s.SubmitBatch(context.Background(), Repeat(blocked, 4))
	}()

	require.Eventually(t, func() bool {
		st := s.State()
		return st.InFlight == 2 && st.Queued == 2
	}, time.Second, 5*time.Millisecond)

	st := s.State()
	require.LessOrEqual(t, st.InFlight, st.CurrentWorkers)

	close(gate)
	require.Eventually(t, func() bool {
		st := s.State()
		return st.InFlight == 0 && st.Queued == 0
	}, time.Second, 5*time.Millisecond)
}
