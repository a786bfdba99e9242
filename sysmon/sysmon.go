// Package sysmon samples host resource utilization for the autoscaler.
package sysmon

import (
	"context"
	"math"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Sample is one observation of host utilization. Both values are percentages
// in [0, 100]; CPUPercent aggregates across all logical cores.
type Sample struct {
	CPUPercent    float64
	MemoryPercent float64
}

// Sampler produces utilization samples. Implementations must be safe for
// concurrent use and should respect ctx cancellation.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// SamplerFunc adapts a plain function to the Sampler interface.
type SamplerFunc func(ctx context.Context) (Sample, error)

func (f SamplerFunc) Sample(ctx context.Context) (Sample, error) { return f(ctx) }

type systemSampler struct{}

// System returns a Sampler backed by the host's kernel counters.
func System() Sampler { return systemSampler{} }

// Sample reads CPU utilization since the previous call and current physical
// memory usage. The very first CPU reading on a fresh process may be zero;
// callers smoothing over consecutive samples are unaffected.
func (systemSampler) Sample(ctx context.Context) (Sample, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Sample{}, err
	}

	var s Sample
	if len(percents) > 0 {
		s.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, err
	}
	s.MemoryPercent = vm.UsedPercent

	return s, nil
}

// DefaultParallelism is the default worker count: 95% of the logical CPU
// count, never below one. Leaving a sliver of headroom keeps the host
// responsive while the pool is saturated.
func DefaultParallelism() int {
	n, err := cpu.CountsWithContext(context.Background(), true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	p := int(math.Floor(float64(n) * 0.95))
	if p < 1 {
		p = 1
	}
	return p
}
