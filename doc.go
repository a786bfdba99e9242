// Package taskpool executes batches of independent, possibly long-running
// tasks across a bounded pool of workers.
//
// A Scheduler owns a fixed queue and a resizable set of worker goroutines.
// SubmitBatch dispatches a batch of task envelopes, honors per-task timeouts
// and retry budgets, and blocks until every envelope has a terminal outcome.
// Outcomes are returned in submission order regardless of completion order,
// and one task's failure never aborts its siblings.
//
// Defaults
// Unless overridden via options, a new Scheduler uses:
//   - Workers: ~95% of the logical CPU count
//   - QueueCapacity: 128
//   - DefaultTimeout: 0 (no per-task timeout)
//   - MaxRetries: 0 (a single attempt per task)
//   - Autoscaling: off
//
// Backpressure
// Admission is non-blocking. When the queue cannot accept an envelope at
// submission time, the remainder of the batch is rejected with terminal
// Cancelled outcomes and SubmitBatch reports ErrPoolSaturated. The scheduler
// never buffers more pending work than QueueCapacity.
//
// Autoscaling
// With WithAutoscale enabled, a background sampler watches CPU and memory
// utilization and nudges the worker count between a floor of one and the
// configured ceiling. Resizes apply only at safe points: growth starts idle
// workers, shrink lets excess workers retire after their current task.
package taskpool
