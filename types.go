package execmgr

import "github.com/Swind/go-execution-manager/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the execmgr package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskExecutor is the submission interface exposed by contexts and strands
type TaskExecutor = core.TaskExecutor

// NamedExecutor pairs an executor with its registered name
type NamedExecutor = core.NamedExecutor

// TaskPriority is the index of a queue inside a context, 0 being the highest
type TaskPriority = core.TaskPriority

// QueueConfig describes one bounded task queue
type QueueConfig = core.QueueConfig

// QueuePolicy is the concurrency discipline of a queue
type QueuePolicy = core.QueuePolicy

// HandlerConfig bundles panic, metrics, rejection and logging handlers
type HandlerConfig = core.HandlerConfig

// Queue policies
const (
	QueuePolicySPSCLockFree = core.QueuePolicySPSCLockFree
	QueuePolicyMPMCLockFree = core.QueuePolicyMPMCLockFree
	QueuePolicyMPSCLocking  = core.QueuePolicyMPSCLocking
	QueuePolicyMPMCLocking  = core.QueuePolicyMPMCLocking
)

// Priority constants
const (
	TaskPriorityMax         = core.TaskPriorityMax
	TaskPriorityMaxMinusOne = core.TaskPriorityMaxMinusOne
)

// Errors returned by the manager and the context constructors
var (
	ErrInvalidConfig  = core.ErrInvalidConfig
	ErrDuplicateName  = core.ErrDuplicateName
	ErrManagerStopped = core.ErrManagerStopped
)

// CurrentThreadName returns the name of the worker thread running the task
// that owns ctx.
var CurrentThreadName = core.CurrentThreadName
