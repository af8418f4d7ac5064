package core

import (
	"sync"

	"github.com/eapache/queue"
)

// TaskQueue is a bounded buffer of tasks between producers and a consumer.
//
// TryPush never blocks beyond a short critical section and never grows the
// queue past its capacity: a false return is the backpressure signal and the
// task is still owned by the caller.
type TaskQueue interface {
	Name() string
	Policy() QueuePolicy
	WaitPolicy() WaitPolicy

	// TryPush enqueues t. Returns false if the queue is full or closed.
	TryPush(t Task) bool

	// TryPop dequeues the oldest task. Returns false if the queue is empty.
	TryPop() (Task, bool)

	// Capacity returns the fixed maximum number of queued tasks.
	Capacity() int

	// Len returns the number of queued tasks. Lock-free queues report an
	// approximation while producers and consumers are active.
	Len() int

	// Close makes every later TryPush fail. Queued tasks can still be popped,
	// and every push that succeeded before Close is visible to TryPop once
	// Close returns.
	Close()
	IsClosed() bool
}

// pushStatus is the outcome of a push into one of the queues of this package.
type pushStatus int

const (
	pushOK pushStatus = iota
	pushFull
	pushClosed
	pushContended
)

// rejectReason maps a failed push to the reason reported to handlers.
func (s pushStatus) rejectReason() string {
	switch s {
	case pushClosed:
		return RejectReasonStopped
	case pushContended:
		return RejectReasonContention
	}
	return RejectReasonQueueFull
}

type statusPusher interface {
	push(t Task) pushStatus
}

// pushTask pushes t into q and reports why it failed. Queues built outside
// this package only distinguish full from closed.
func pushTask(q TaskQueue, t Task) pushStatus {
	if p, ok := q.(statusPusher); ok {
		return p.push(t)
	}
	if q.TryPush(t) {
		return pushOK
	}
	if q.IsClosed() {
		return pushClosed
	}
	return pushFull
}

// NewTaskQueue builds the queue described by cfg for a consumer using wait.
// notify is invoked after every successful push when wait is WaitBlock; it
// may be nil for the other wait policies.
func NewTaskQueue(cfg QueueConfig, wait WaitPolicy, notify func()) (TaskQueue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkWaitPolicy(cfg, wait); err != nil {
		return nil, err
	}
	if wait != WaitBlock {
		notify = nil
	}

	switch cfg.Policy {
	case QueuePolicySPSCLockFree:
		return newSPSCQueue(cfg, wait), nil
	case QueuePolicyMPMCLockFree:
		return newMPMCQueue(cfg, wait), nil
	default:
		return newLockingQueue(cfg, wait, notify), nil
	}
}

// queueInfo carries the descriptive part shared by all implementations.
type queueInfo struct {
	name   string
	policy QueuePolicy
	wait   WaitPolicy
}

func (i queueInfo) Name() string           { return i.name }
func (i queueInfo) Policy() QueuePolicy    { return i.policy }
func (i queueInfo) WaitPolicy() WaitPolicy { return i.wait }

// =============================================================================
// lockingQueue: mutex protected ring deque
// =============================================================================

type lockingQueue struct {
	queueInfo

	mu       sync.Mutex
	tasks    *queue.Queue
	capacity int
	closed   bool
	notify   func()
}

func newLockingQueue(cfg QueueConfig, wait WaitPolicy, notify func()) *lockingQueue {
	return &lockingQueue{
		queueInfo: queueInfo{name: cfg.Name, policy: cfg.Policy, wait: wait},
		tasks:     queue.New(),
		capacity:  cfg.Capacity,
		notify:    notify,
	}
}

func (q *lockingQueue) TryPush(t Task) bool { return q.push(t) == pushOK }

func (q *lockingQueue) push(t Task) pushStatus {
	q.mu.Lock()
	switch {
	case q.closed:
		q.mu.Unlock()
		return pushClosed
	case q.tasks.Length() >= q.capacity:
		q.mu.Unlock()
		return pushFull
	}
	q.tasks.Add(t)
	q.mu.Unlock()

	if q.notify != nil {
		q.notify()
	}
	return pushOK
}

func (q *lockingQueue) TryPop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tasks.Length() == 0 {
		return nil, false
	}
	return q.tasks.Remove().(Task), true
}

func (q *lockingQueue) Capacity() int {
	return q.capacity
}

func (q *lockingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Length()
}

func (q *lockingQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	// Wake a parked consumer so it notices the shutdown promptly.
	if q.notify != nil {
		q.notify()
	}
}

func (q *lockingQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
