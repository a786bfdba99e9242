package taskpool

import (
	"fmt"
	"time"

	"github.com/ygrebnov/errorc"
	"go.uber.org/zap"

	"github.com/ygrebnov/taskpool/metrics"
	"github.com/ygrebnov/taskpool/sysmon"
)

const (
	defaultQueueCapacity  = 128
	defaultRetryInitial   = 200 * time.Millisecond
	defaultRetryMax       = 5 * time.Second
	defaultSampleInterval = 2 * time.Second
	defaultLowWater       = 50.0
	defaultHighWater      = 85.0
)

// config holds Scheduler configuration assembled from options.
type config struct {
	// Workers is the initial worker count.
	// Default: sysmon.DefaultParallelism().
	Workers int

	// QueueCapacity bounds pending work. Submissions beyond it are rejected
	// rather than buffered. Default: 128.
	QueueCapacity int

	// DefaultTimeout bounds each attempt of envelopes that do not set their
	// own. Zero means no timeout. Default: 0.
	DefaultTimeout time.Duration

	// MaxRetries is the default extra-attempt budget for envelopes that do
	// not set their own. Default: 0.
	MaxRetries int

	// RetryInitial and RetryMax shape the backoff between attempts.
	RetryInitial time.Duration
	RetryMax     time.Duration

	// Autoscale enables the background resource-aware resizer.
	// Default: false.
	Autoscale bool

	// SampleInterval is the autoscaler's sampling cadence. Default: 2s.
	SampleInterval time.Duration

	// LowWater and HighWater are utilization percentages bounding the
	// autoscaler's dead band. Defaults: 50 and 85.
	LowWater  float64
	HighWater float64

	// WorkerCeiling caps the worker count. Zero resolves to the larger of
	// Workers and sysmon.DefaultParallelism().
	WorkerCeiling int

	// Sampler overrides the host sampler, mainly for tests.
	// Default: sysmon.System().
	Sampler sysmon.Sampler

	// Logger receives scheduler and autoscaler events. Default: zap.NewNop().
	Logger *zap.Logger

	// Metrics receives pool activity instruments. Default: metrics.NewNoop().
	Metrics metrics.Provider
}

// defaultConfig centralizes default values. New applies options on top of it.
func defaultConfig() config {
	return config{
		Workers:        sysmon.DefaultParallelism(),
		QueueCapacity:  defaultQueueCapacity,
		RetryInitial:   defaultRetryInitial,
		RetryMax:       defaultRetryMax,
		SampleInterval: defaultSampleInterval,
		LowWater:       defaultLowWater,
		HighWater:      defaultHighWater,
	}
}

// validateConfig checks cross-field invariants and resolves deferred defaults.
func validateConfig(cfg *config) error {
	if cfg.LowWater >= cfg.HighWater {
		return errorc.With(ErrInvalidConfig,
			errorc.String("reason", fmt.Sprintf("low water %.1f must be below high water %.1f", cfg.LowWater, cfg.HighWater)))
	}
	if cfg.WorkerCeiling == 0 {
		cfg.WorkerCeiling = cfg.Workers
		if p := sysmon.DefaultParallelism(); p > cfg.WorkerCeiling {
			cfg.WorkerCeiling = p
		}
	}
	if cfg.WorkerCeiling < cfg.Workers {
		return errorc.With(ErrInvalidConfig,
			errorc.String("reason", fmt.Sprintf("worker ceiling %d below initial workers %d", cfg.WorkerCeiling, cfg.Workers)))
	}
	if cfg.Sampler == nil {
		cfg.Sampler = sysmon.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	return nil
}

// Option configures a Scheduler. Options return an error on invalid input.
type Option func(*config) error

// WithWorkers sets the initial worker count (must be > 0).
func WithWorkers(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("option", "WithWorkers requires n > 0"))
		}
		cfg.Workers = n
		return nil
	}
}

// WithQueueCapacity bounds the pending-work queue (must be > 0).
func WithQueueCapacity(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("option", "WithQueueCapacity requires n > 0"))
		}
		cfg.QueueCapacity = n
		return nil
	}
}

// WithDefaultTimeout bounds each attempt of envelopes without their own
// timeout. An envelope opts back out with NoTimeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(cfg *config) error {
		if d < 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("option", "WithDefaultTimeout requires d >= 0"))
		}
		cfg.DefaultTimeout = d
		return nil
	}
}

// WithMaxRetries sets the default extra-attempt budget. An envelope opts back
// out with NoRetries.
func WithMaxRetries(n int) Option {
	return func(cfg *config) error {
		if n < 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("option", "WithMaxRetries requires n >= 0"))
		}
		cfg.MaxRetries = n
		return nil
	}
}

// WithRetryBackoff shapes the delay between attempts (initial and cap).
func WithRetryBackoff(initial, max time.Duration) Option {
	return func(cfg *config) error {
		if initial <= 0 || max < initial {
			return errorc.With(ErrInvalidConfig, errorc.String("option", "WithRetryBackoff requires 0 < initial <= max"))
		}
		cfg.RetryInitial = initial
		cfg.RetryMax = max
		return nil
	}
}

// WithAutoscale enables resource-aware pool resizing.
func WithAutoscale() Option {
	return func(cfg *config) error { cfg.Autoscale = true; return nil }
}

// WithSampleInterval sets the autoscaler's sampling cadence (default 2s).
func WithSampleInterval(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("option", "WithSampleInterval requires d > 0"))
		}
		cfg.SampleInterval = d
		return nil
	}
}

// WithUtilizationBands sets the autoscaler's low and high water marks in percent.
func WithUtilizationBands(low, high float64) Option {
	return func(cfg *config) error {
		if low < 0 || high > 100 || low >= high {
			return errorc.With(ErrInvalidConfig, errorc.String("option", "WithUtilizationBands requires 0 <= low < high <= 100"))
		}
		cfg.LowWater = low
		cfg.HighWater = high
		return nil
	}
}

// WithWorkerCeiling caps the worker count the autoscaler may grow to.
func WithWorkerCeiling(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("option", "WithWorkerCeiling requires n > 0"))
		}
		cfg.WorkerCeiling = n
		return nil
	}
}

// WithSampler overrides the host resource sampler.
func WithSampler(s sysmon.Sampler) Option {
	return func(cfg *config) error {
		if s == nil {
			return errorc.With(ErrInvalidConfig, errorc.String("option", "WithSampler requires a non-nil sampler"))
		}
		cfg.Sampler = s
		return nil
	}
}

// WithLogger sets the structured logger (default no-op).
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) error {
		if l == nil {
			return errorc.With(ErrInvalidConfig, errorc.String("option", "WithLogger requires a non-nil logger"))
		}
		cfg.Logger = l
		return nil
	}
}

// WithMetrics sets the metrics provider (default no-op).
func WithMetrics(p metrics.Provider) Option {
	return func(cfg *config) error {
		if p == nil {
			return errorc.With(ErrInvalidConfig, errorc.String("option", "WithMetrics requires a non-nil provider"))
		}
		cfg.Metrics = p
		return nil
	}
}
