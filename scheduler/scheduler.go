// Package scheduler provides delayed, at-least-once dispatch of transcription
// tasks to the worker.
//
// The worker must tolerate redelivery: dispatch is at-least-once, never
// exactly-once. Two implementations are provided, an in-process timer
// dispatcher and a Redis sorted-set delayed queue for multi-instance
// deployments.
package scheduler

import (
	"context"
	"time"
)

// DefaultDispatchDelay is the fixed delay applied between submission and the
// first processing attempt.
const DefaultDispatchDelay = 3 * time.Second

// Task is the payload handed to the worker on dispatch.
type Task struct {
	// JobID identifies the job to process.
	JobID string `json:"job_id"`
	// FilePath is the storage reference of the audio clip.
	FilePath string `json:"file_path"`
}

// Handler consumes a dispatched task. Dispatch errors are terminal for the
// attempt; recovery is an operator rerun, not an automatic retry.
type Handler func(ctx context.Context, task Task)

// Scheduler dispatches a task to the registered handler after a delay.
type Scheduler interface {
	// ScheduleTranscribe enqueues the task for dispatch after delay.
	ScheduleTranscribe(ctx context.Context, delay time.Duration, task Task) error
}
