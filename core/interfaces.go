package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task (carries the thread name)
	// - contextName: The name of the execution context or strand where the panic occurred
	// - workerID: The index of the worker thread, -1 when not run by a worker loop
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, contextName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler reports panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, contextName string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("context", contextName),
		F("worker", workerID),
		F("thread", CurrentThreadName(ctx)),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called on worker threads and submission paths; they must be
// non-blocking and fast to avoid impacting task execution latency.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	//
	// Parameters:
	// - contextName: The name of the execution context that ran the task
	// - priority: The index of the queue the task was taken from
	// - duration: How long the task took to execute
	RecordTaskDuration(contextName string, priority TaskPriority, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(contextName string, panicInfo any)

	// RecordTaskRejected records that a submission was refused.
	//
	// Parameters:
	// - executorName: The executor the task was submitted to
	// - reason: Why the task was rejected (RejectReasonQueueFull, RejectReasonStopped, ...)
	RecordTaskRejected(executorName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(contextName string, priority TaskPriority, duration time.Duration) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(contextName string, panicInfo any) {
}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(executorName string, reason string) {
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// Reasons passed to RejectedTaskHandler and Metrics.RecordTaskRejected.
const (
	RejectReasonQueueFull      = "queue_full"
	RejectReasonStopped        = "stopped"
	RejectReasonStrandDispatch = "strand_dispatch_failed"

	// RejectReasonContention means a lock-free multi-producer queue with free
	// slots lost the slot race too many times in a row.
	RejectReasonContention = "contention"
)

// RejectedTaskHandler is called when a submission is refused.
// This can happen when:
// - The bounded queue is full (backpressure)
// - A lock-free queue stayed contended past its retry budget
// - The owning execution context is stopped
// - A strand could not be scheduled on its parent executor
//
// The submitting caller always learns about the rejection through the false
// return value as well; the handler exists for observability only.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(executorName string, reason string)
}

// DefaultRejectedTaskHandler logs rejections at debug level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(executorName string, reason string) {
	if h.Logger == nil {
		return
	}
	h.Logger.Debug("task rejected", F("executor", executorName), F("reason", reason))
}

// =============================================================================
// HandlerConfig: handlers shared by executors, strands and execution contexts
// =============================================================================

// HandlerConfig holds the handlers used by execution contexts and executors.
// All handlers are optional; nil entries are replaced by defaults in WithDefaults.
type HandlerConfig struct {
	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger receives lifecycle and warning messages. Defaults to DefaultLogger.
	Logger Logger
}

// DefaultHandlerConfig returns a config with default handlers.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{}.WithDefaults()
}

// WithDefaults returns a copy of c with every nil handler replaced.
func (c HandlerConfig) WithDefaults() HandlerConfig {
	if c.Logger == nil {
		c.Logger = NewDefaultLogger()
	}
	if c.PanicHandler == nil {
		c.PanicHandler = &DefaultPanicHandler{Logger: c.Logger}
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	if c.RejectedTaskHandler == nil {
		c.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: c.Logger}
	}
	return c
}

// RecordsDurations reports whether timing tasks is worth two clock reads.
// Task runners skip RecordTaskDuration when it returns false.
func (c HandlerConfig) RecordsDurations() bool {
	if c.Metrics == nil {
		return false
	}
	_, nop := c.Metrics.(*NilMetrics)
	return !nop
}

func (c HandlerConfig) reject(executorName, reason string) {
	c.RejectedTaskHandler.HandleRejectedTask(executorName, reason)
	c.Metrics.RecordTaskRejected(executorName, reason)
}
