// Package execmgr provides the execution substrate of a real-time stack:
// named execution contexts of OS threads pinned to CPUs and real-time
// priorities, and the task executors through which the rest of the
// application submits work to them.
//
// # Quick Start
//
// Create a manager at application startup and add every context:
//
//	m := execmgr.NewExecutionManager()
//	defer m.Stop()
//
//	m.Add(execmgr.PriorityWorkerConfig{
//		Name: "du_ctrl",
//		Queues: []core.QueueConfig{
//			{Policy: core.QueuePolicyMPSCLocking, Capacity: 1024},
//			{Policy: core.QueuePolicyMPSCLocking, Capacity: 1024},
//		},
//		Priority: affinity.PriorityMax - 2,
//		Executors: []execmgr.ExecutorConfig{
//			{Name: "timer_exec", Priority: execmgr.TaskPriorityMax},
//			{Name: "ctrl_exec", Priority: execmgr.TaskPriorityMaxMinusOne},
//		},
//	})
//
// Components then bind to executors by name:
//
//	exec := m.Executor("ctrl_exec")
//	if !exec.Execute(func(ctx context.Context) { ... }) {
//		// queue full or context stopped: the caller decides to log, retry or drop
//	}
//
// # Key Concepts
//
// Task Queue: a bounded buffer of tasks. Its policy (lock-free SPSC or MPMC,
// locking MPSC or MPMC) is fixed at construction. A full queue rejects the
// push; it never grows.
//
// Execution Context: SingleWorker (one thread, one queue), WorkerPool (N
// threads named "<name>#<i>" sharing up to two priority queues) and
// PriorityWorker (one thread, M strictly prioritized queues).
//
// Task Executor: Execute and Defer submit into one queue. A synchronous
// executor runs Execute on the caller instead.
//
// Strand: a virtual executor over a context executor. Its sub-queues are
// served one task at a time, so state touched only by strand tasks needs no
// lock even on a worker pool.
//
// # Shutdown
//
// Stopping a context refuses further submissions, runs every task already
// accepted, then joins its threads. ExecutionManager.Stop stops contexts in
// reverse registration order and may be called more than once.
package execmgr
