package core

import "context"

// TaskExecutor is the submission façade handed to the components that
// produce work. It is safe for concurrent use and cheap to copy around.
type TaskExecutor interface {
	// Execute dispatches task for asynchronous execution. Decorated executors
	// may run it on the calling goroutine instead; callers must not rely on
	// asynchrony.
	Execute(task Task) bool

	// Defer dispatches task for asynchronous execution. It never runs task on
	// the calling goroutine.
	Defer(task Task) bool
}

// NamedExecutor pairs an executor with the name it is registered under.
type NamedExecutor struct {
	Name     string
	Executor TaskExecutor
}

// =============================================================================
// QueueExecutor: executor bound to one task queue
// =============================================================================

// QueueExecutor pushes every submission into one TaskQueue. A false return
// means the queue was full, closed or too contended; the task was not accepted and remains
// the caller's responsibility.
type QueueExecutor struct {
	name     string
	queue    TaskQueue
	handlers HandlerConfig
}

// NewQueueExecutor creates an executor named name that feeds q.
func NewQueueExecutor(name string, q TaskQueue, handlers HandlerConfig) *QueueExecutor {
	return &QueueExecutor{
		name:     name,
		queue:    q,
		handlers: handlers.WithDefaults(),
	}
}

// Name returns the executor name.
func (e *QueueExecutor) Name() string { return e.name }

// Queue returns the queue the executor pushes into.
func (e *QueueExecutor) Queue() TaskQueue { return e.queue }

// IsClosed reports whether the queue refuses every submission.
func (e *QueueExecutor) IsClosed() bool { return e.queue.IsClosed() }

// Execute enqueues task.
func (e *QueueExecutor) Execute(task Task) bool {
	return e.push(task)
}

// Defer enqueues task.
func (e *QueueExecutor) Defer(task Task) bool {
	return e.push(task)
}

func (e *QueueExecutor) push(task Task) bool {
	if task == nil {
		return false
	}
	st := pushTask(e.queue, task)
	if st == pushOK {
		return true
	}
	e.handlers.reject(e.name, st.rejectReason())
	return false
}

// =============================================================================
// SyncExecutor: synchronous decoration
// =============================================================================

// SyncExecutor decorates an executor so that Execute runs the task on the
// calling goroutine and returns once it has completed. Defer still goes
// through the wrapped executor.
//
// The task runs on the caller's thread, so its context carries no thread
// name. Once the wrapped executor's queue is closed Execute no longer runs
// anything: it hands the task to the wrapped executor, which refuses it and
// reports the rejection.
//
// Panics raised by the task propagate to the caller of Execute.
type SyncExecutor struct {
	name  string
	inner TaskExecutor
}

// NewSyncExecutor wraps inner under the executor name name.
func NewSyncExecutor(name string, inner TaskExecutor) *SyncExecutor {
	return &SyncExecutor{name: name, inner: inner}
}

// Name returns the executor name.
func (e *SyncExecutor) Name() string { return e.name }

// Unwrap returns the decorated executor.
func (e *SyncExecutor) Unwrap() TaskExecutor { return e.inner }

// Execute runs task to completion before returning.
func (e *SyncExecutor) Execute(task Task) bool {
	if task == nil {
		return false
	}
	if c, ok := e.inner.(interface{ IsClosed() bool }); ok && c.IsClosed() {
		return e.inner.Execute(task)
	}
	task(context.Background())
	return true
}

// Defer delegates to the wrapped executor.
func (e *SyncExecutor) Defer(task Task) bool {
	return e.inner.Defer(task)
}
