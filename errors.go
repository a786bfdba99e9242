package taskpool

import "errors"

const Namespace = "taskpool"

var (
	// ErrInvalidState is returned when a batch is submitted to a scheduler
	// that has not been started or has already been closed.
	ErrInvalidState = errors.New(Namespace + ": scheduler is not started or already closed")

	// ErrPoolSaturated is reported when the task queue cannot accept a batch's
	// envelopes at submission time. Rejected envelopes receive terminal
	// Cancelled outcomes; admitted ones still run to completion.
	ErrPoolSaturated = errors.New(Namespace + ": task queue is full")

	// ErrBatchCancelled is reported when the submission context ends before
	// every envelope could be fully attempted.
	ErrBatchCancelled = errors.New(Namespace + ": batch cancelled before completion")

	ErrTaskCancelled = errors.New(Namespace + ": task execution cancelled")
	ErrTaskTimedOut  = errors.New(Namespace + ": task attempt timed out")
	ErrTaskPanicked  = errors.New(Namespace + ": task execution panicked")

	// ErrTaskAbandoned marks an attempt whose unit of work did not return
	// before its window closed. The underlying goroutine is left to finish on
	// its own; its eventual result is discarded.
	ErrTaskAbandoned = errors.New(Namespace + ": task abandoned before returning")

	ErrInvalidConfig = errors.New(Namespace + ": invalid configuration")
)
