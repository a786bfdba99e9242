package taskpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ygrebnov/taskpool/sysmon"
)

// Autoscaler samples host utilization at a fixed cadence and recommends a
// target worker count. Two consecutive samples above the high water mark
// shrink the target by one (down to the floor); two consecutive samples below
// the low water mark grow it by one (up to the ceiling). The two-sample
// hysteresis keeps single noisy readings from oscillating the pool.
//
// Recommendations are pushed to the scheduler through the apply callback,
// which the scheduler honors only at safe points.
type Autoscaler struct {
	sampler  sysmon.Sampler
	interval time.Duration
	low      float64
	high     float64
	floor    int
	ceiling  int
	apply    func(int)
	logger   *zap.Logger

	target atomic.Int64

	// mu guards the streak counters; Run mutates them from its own goroutine
	// but tests step observe directly.
	mu         sync.Mutex
	highStreak int
	lowStreak  int
	degraded   bool
}

type autoscalerConfig struct {
	Sampler   sysmon.Sampler
	Interval  time.Duration
	LowWater  float64
	HighWater float64
	Floor     int
	Ceiling   int
	Initial   int
}

func newAutoscaler(cfg autoscalerConfig, apply func(int), logger *zap.Logger) *Autoscaler {
	a := &Autoscaler{
		sampler:  cfg.Sampler,
		interval: cfg.Interval,
		low:      cfg.LowWater,
		high:     cfg.HighWater,
		floor:    cfg.Floor,
		ceiling:  cfg.Ceiling,
		apply:    apply,
		logger:   logger,
	}
	a.target.Store(int64(cfg.Initial))
	return a
}

// Recommendation returns the current target worker count.
func (a *Autoscaler) Recommendation() int { return int(a.target.Load()) }

// Run samples until ctx ends. A failing sampler degrades to the last
// known-good recommendation; it never stops the loop or the scheduler.
func (a *Autoscaler) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.step(ctx)
		}
	}
}

// step takes one sample and feeds it through the hysteresis rule.
func (a *Autoscaler) step(ctx context.Context) {
	sample, err := a.sampler.Sample(ctx)
	if err != nil {
		a.mu.Lock()
		firstFailure := !a.degraded
		a.degraded = true
		a.mu.Unlock()
		if firstFailure {
			a.logger.Warn("resource sampling degraded; keeping last recommendation",
				zap.Int("recommendation", a.Recommendation()),
				zap.Error(err),
			)
		}
		return
	}

	a.mu.Lock()
	a.degraded = false
	a.mu.Unlock()
	a.observe(sample)
}

// observe applies the hysteresis rule to one utilization sample.
// Utilization is the higher of CPU and memory pressure, so the pool backs
// off whichever resource saturates first.
func (a *Autoscaler) observe(s sysmon.Sample) {
	util := s.CPUPercent
	if s.MemoryPercent > util {
		util = s.MemoryPercent
	}

	a.mu.Lock()
	switch {
	case util >= a.high:
		a.highStreak++
		a.lowStreak = 0
	case util <= a.low:
		a.lowStreak++
		a.highStreak = 0
	default:
		a.highStreak = 0
		a.lowStreak = 0
	}

	adjust := 0
	if a.highStreak >= 2 {
		adjust = -1
		a.highStreak = 0
	} else if a.lowStreak >= 2 {
		adjust = 1
		a.lowStreak = 0
	}
	a.mu.Unlock()

	if adjust == 0 {
		return
	}

	target := a.Recommendation() + adjust
	if target < a.floor {
		target = a.floor
	}
	if a.ceiling > 0 && target > a.ceiling {
		target = a.ceiling
	}
	if target == a.Recommendation() {
		return
	}

	a.target.Store(int64(target))
	a.logger.Debug("autoscaler recommendation changed",
		zap.Float64("utilization", util),
		zap.Int("target", target),
	)
	if a.apply != nil {
		a.apply(target)
	}
}
