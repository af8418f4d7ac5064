package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Strand multiplexes several sub-queues onto one parent executor while
// guaranteeing that at most one of its tasks runs at any time.
//
// Sub-queue 0 has the highest priority. The strand keeps a count of accepted
// but unfinished tasks; the producer that moves the count from zero to one
// arms the dispatcher on the parent. The dispatcher runs one task per parent
// slot and reschedules itself while work remains, so the parent's threads are
// never held for longer than a single strand task.
//
// Producers that arrive while an arm is in flight wait for its outcome. If
// the parent refuses the dispatcher, every task queued so far is rejected and
// each of those producers returns false.
type Strand struct {
	name     string
	parent   TaskExecutor
	queues   []TaskQueue
	handlers HandlerConfig

	mu      sync.Mutex
	pending int64
	state   armState
	attempt *armAttempt

	active   atomic.Int32 // concurrency assertion
	stopped  atomic.Bool
	executed atomic.Uint64
	rejected atomic.Uint64
}

// armState tracks whether a dispatcher exists on the parent.
type armState int

const (
	armIdle armState = iota
	armArming
	armArmed
)

// armAttempt is one Defer of the dispatcher by the producer that found the
// strand idle.
type armAttempt struct {
	done chan struct{}
	ok   bool
}

// NewStrand creates a strand named name over parent with one sub-queue per
// entry of queues.
func NewStrand(name string, parent TaskExecutor, queues []QueueConfig, handlers HandlerConfig) (*Strand, error) {
	if parent == nil {
		return nil, fmt.Errorf("%w: strand %q has no parent executor", ErrInvalidConfig, name)
	}
	if len(queues) == 0 {
		return nil, fmt.Errorf("%w: strand %q has no queues", ErrInvalidConfig, name)
	}

	s := &Strand{
		name:     name,
		parent:   parent,
		queues:   make([]TaskQueue, 0, len(queues)),
		handlers: handlers.WithDefaults(),
	}
	for _, qc := range queues {
		q, err := NewTaskQueue(qc, WaitNonBlocking, nil)
		if err != nil {
			return nil, fmt.Errorf("strand %q queue %q: %w", name, qc.Name, err)
		}
		s.queues = append(s.queues, q)
	}
	return s, nil
}

// Name returns the strand name.
func (s *Strand) Name() string { return s.name }

// Executor returns the executor feeding sub-queue i.
func (s *Strand) Executor(i int) *StrandExecutor {
	return &StrandExecutor{strand: s, index: i}
}

// Executors returns one executor per sub-queue, named after the sub-queue.
func (s *Strand) Executors() []NamedExecutor {
	out := make([]NamedExecutor, len(s.queues))
	for i, q := range s.queues {
		out[i] = NamedExecutor{Name: q.Name(), Executor: s.Executor(i)}
	}
	return out
}

// Stop makes the strand refuse further submissions. Tasks that were already
// accepted still run.
func (s *Strand) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	for _, q := range s.queues {
		q.Close()
	}
}

// IsStopped reports whether Stop has been called.
func (s *Strand) IsStopped() bool {
	return s.stopped.Load()
}

// Pending returns the number of accepted tasks that have not finished yet.
func (s *Strand) Pending() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Stats returns a snapshot of the strand.
func (s *Strand) Stats() StrandStats {
	st := StrandStats{
		Name:     s.name,
		Pending:  s.Pending(),
		Executed: s.executed.Load(),
		Rejected: s.rejected.Load(),
		Stopped:  s.stopped.Load(),
		Queues:   make([]QueueStats, len(s.queues)),
	}
	for i, q := range s.queues {
		st.Queues[i] = StatsOf(q)
	}
	return st
}

func (s *Strand) push(i int, task Task) bool {
	if task == nil {
		return false
	}
	q := s.queues[i]
	if s.stopped.Load() {
		s.reject(q.Name(), RejectReasonStopped)
		return false
	}

	s.mu.Lock()
	if st := pushTask(q, task); st != pushOK {
		s.mu.Unlock()
		s.reject(q.Name(), st.rejectReason())
		return false
	}
	s.pending++

	switch s.state {
	case armArmed:
		s.mu.Unlock()
		return true
	case armArming:
		a := s.attempt
		s.mu.Unlock()
		<-a.done
		return a.ok
	}

	a := &armAttempt{done: make(chan struct{})}
	s.state = armArming
	s.attempt = a
	s.mu.Unlock()

	ok := s.parent.Defer(s.dispatch)

	var withdrawn []string
	s.mu.Lock()
	// On success the dispatcher may already have drained everything and gone
	// idle, and a newer attempt may own the state by now.
	if s.attempt == a {
		s.attempt = nil
		if !ok {
			withdrawn = s.withdraw()
			s.state = armIdle
		} else if s.state == armArming {
			s.state = armArmed
		}
	}
	a.ok = ok
	s.mu.Unlock()
	close(a.done)

	for _, name := range withdrawn {
		s.reject(name, RejectReasonStrandDispatch)
	}
	return ok
}

// withdraw drops every queued task after a refused arm and returns the
// sub-queue name of each. Called with mu held; no dispatcher exists, and
// every queued task belongs to a producer waiting on the failed attempt.
func (s *Strand) withdraw() []string {
	var names []string
	for _, q := range s.queues {
		for {
			if _, ok := q.TryPop(); !ok {
				break
			}
			s.pending--
			names = append(names, q.Name())
		}
	}
	return names
}

// dispatch is the strand's single resident task on the parent executor.
func (s *Strand) dispatch(ctx context.Context) {
	for {
		ran := s.step(ctx)

		s.mu.Lock()
		if ran {
			s.pending--
		}
		if s.pending <= 0 {
			s.state = armIdle
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		if s.parent.Defer(s.dispatch) {
			return
		}
		// Parent is full or draining; keep running on this slot so accepted
		// tasks are not lost.
	}
}

// step pops and runs one task from the highest-priority non-empty sub-queue.
func (s *Strand) step(ctx context.Context) bool {
	if n := s.active.Add(1); n > 1 {
		panic(fmt.Sprintf("Strand %s: concurrent dispatch detected (count=%d)", s.name, n))
	}
	defer s.active.Add(-1)

	for i, q := range s.queues {
		task, ok := q.TryPop()
		if !ok {
			continue
		}
		s.run(ctx, TaskPriority(i), task)
		return true
	}
	return false
}

func (s *Strand) run(ctx context.Context, priority TaskPriority, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.handlers.PanicHandler.HandlePanic(ctx, s.name, -1, r, debug.Stack())
			s.handlers.Metrics.RecordTaskPanic(s.name, r)
		}
		s.executed.Add(1)
	}()

	if !s.handlers.RecordsDurations() {
		task(ctx)
		return
	}
	start := time.Now()
	task(ctx)
	s.handlers.Metrics.RecordTaskDuration(s.name, priority, time.Since(start))
}

func (s *Strand) reject(executorName, reason string) {
	s.rejected.Add(1)
	s.handlers.reject(executorName, reason)
}

// =============================================================================
// StrandExecutor: executor bound to one strand sub-queue
// =============================================================================

// StrandExecutor submits into one sub-queue of a Strand. Execute and Defer
// both enqueue; neither runs the task on the calling goroutine.
type StrandExecutor struct {
	strand *Strand
	index  int
}

// Name returns the name of the sub-queue.
func (e *StrandExecutor) Name() string { return e.strand.queues[e.index].Name() }

// Strand returns the strand the executor belongs to.
func (e *StrandExecutor) Strand() *Strand { return e.strand }

// Execute enqueues task into the sub-queue.
func (e *StrandExecutor) Execute(task Task) bool {
	return e.strand.push(e.index, task)
}

// Defer enqueues task into the sub-queue.
func (e *StrandExecutor) Defer(task Task) bool {
	return e.strand.push(e.index, task)
}
