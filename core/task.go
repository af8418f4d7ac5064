package core

import (
	"context"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// TaskPriority: index of the queue a task is served from
// =============================================================================

// TaskPriority is the index of a queue inside an execution context.
// Lower values are served first: 0 is always the highest priority.
type TaskPriority int

const (
	// TaskPriorityMax is the highest priority level of any context.
	TaskPriorityMax TaskPriority = 0

	// TaskPriorityMaxMinusOne is the level right below TaskPriorityMax.
	TaskPriorityMaxMinusOne TaskPriority = 1
)

// =============================================================================
// Context Helper
// =============================================================================
type threadNameKeyType struct{}

var threadNameKey threadNameKeyType

// WithThreadName returns a context that reports name as the current thread.
func WithThreadName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, threadNameKey, name)
}

// CurrentThreadName returns the name of the worker thread running the task
// that received ctx, or "" when ctx does not come from a worker.
func CurrentThreadName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(threadNameKey); v != nil {
		return v.(string)
	}
	return ""
}
