package execmgr

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-execution-manager/affinity"
	"github.com/Swind/go-execution-manager/core"
)

// ExecutionContext owns OS threads and the queues they consume, and exposes
// the executors through which work reaches them.
type ExecutionContext interface {
	Name() string
	Type() ContextType

	// Executors returns every executor the context exposes, strand
	// sub-queue executors included.
	Executors() []core.NamedExecutor

	// Stop refuses further submissions, runs every task already queued and
	// waits for the worker threads to exit. Safe to call more than once.
	Stop()

	IsRunning() bool
	Stats() core.ContextStats
}

// workerGroup is the engine shared by all context variants: a fixed set of
// OS-thread-locked goroutines draining a priority-ordered list of queues.
type workerGroup struct {
	name     string
	kind     ContextType
	queues   []core.TaskQueue
	idle     *core.IdleStrategy
	threads  []affinity.ThreadAttributes
	handlers core.HandlerConfig

	// agingBurst > 0 enables the starvation guard
	agingBurst int

	executors []core.NamedExecutor
	strands   []*core.Strand

	wg        sync.WaitGroup
	stopCh    chan struct{}
	stopOnce  sync.Once
	running   bool
	runningMu sync.RWMutex

	active   atomic.Int32
	executed atomic.Uint64
	panicked atomic.Uint64
}

func newWorkerGroup(name string, kind ContextType, threads []affinity.ThreadAttributes, sleep time.Duration, handlers core.HandlerConfig) (*workerGroup, error) {
	idle, err := core.NewIdleStrategy(waitPolicyFor(sleep), sleep, len(threads))
	if err != nil {
		return nil, err
	}
	return &workerGroup{
		name:     name,
		kind:     kind,
		idle:     idle,
		threads:  threads,
		handlers: handlers.WithDefaults(),
		stopCh:   make(chan struct{}),
	}, nil
}

// addQueue builds the next priority level of the group.
func (g *workerGroup) addQueue(cfg core.QueueConfig) (core.TaskQueue, error) {
	q, err := core.NewTaskQueue(cfg, g.idle.Policy(), g.idle.Notify)
	if err != nil {
		return nil, err
	}
	g.queues = append(g.queues, q)
	return q, nil
}

// buildExecutors creates the executors and strands described by execs.
func (g *workerGroup) buildExecutors(execs []ExecutorConfig) error {
	for _, ec := range execs {
		base := core.NewQueueExecutor(ec.Name, g.queues[ec.Priority], g.handlers)

		var exposed core.TaskExecutor = base
		if ec.Synchronous {
			exposed = core.NewSyncExecutor(ec.Name, base)
		}
		g.executors = append(g.executors, core.NamedExecutor{Name: ec.Name, Executor: exposed})

		for i, sc := range ec.Strands {
			strand, err := core.NewStrand(strandName(ec.Name, i), base, sc.Queues, g.handlers)
			if err != nil {
				return err
			}
			g.strands = append(g.strands, strand)
			g.executors = append(g.executors, strand.Executors()...)
		}
	}
	return nil
}

func strandName(executor string, i int) string {
	return fmt.Sprintf("%s.strand%d", executor, i)
}

// start launches one goroutine per thread description.
func (g *workerGroup) start() {
	g.runningMu.Lock()
	defer g.runningMu.Unlock()

	if g.running {
		return
	}
	g.running = true

	for i, attrs := range g.threads {
		g.wg.Add(1)
		go g.workerLoop(i, attrs)
	}
	g.handlers.Logger.Debug("execution context started",
		core.F("context", g.name),
		core.F("type", string(g.kind)),
		core.F("workers", len(g.threads)),
	)
}

func (g *workerGroup) Name() string                    { return g.name }
func (g *workerGroup) Type() ContextType               { return g.kind }
func (g *workerGroup) Executors() []core.NamedExecutor {
	return append([]core.NamedExecutor(nil), g.executors...)
}

// IsRunning returns whether the worker threads are running
func (g *workerGroup) IsRunning() bool {
	g.runningMu.RLock()
	defer g.runningMu.RUnlock()
	return g.running
}

// Stop closes every queue, lets the workers drain them and joins the workers.
func (g *workerGroup) Stop() {
	g.stopOnce.Do(g.stop)
}

func (g *workerGroup) stop() {
	for _, s := range g.strands {
		s.Stop()
	}
	// Close returns only once every accepted push is visible, so workers that
	// find the queues empty after stopCh have run every accepted task.
	for _, q := range g.queues {
		q.Close()
	}
	close(g.stopCh)
	g.wg.Wait()

	g.runningMu.Lock()
	g.running = false
	g.runningMu.Unlock()

	g.handlers.Logger.Debug("execution context stopped", core.F("context", g.name))
}

// workerLoop is the main loop for each worker
func (g *workerGroup) workerLoop(id int, attrs affinity.ThreadAttributes) {
	defer g.wg.Done()

	// The thread keeps its name, affinity and priority for its whole life and
	// is discarded when the goroutine exits without unlocking.
	runtime.LockOSThread()
	if err := affinity.ApplyToCurrentThread(attrs); err != nil {
		g.handlers.Logger.Warn("failed to apply thread attributes",
			core.F("context", g.name),
			core.F("thread", attrs.Name),
			core.F("error", err),
		)
	}

	ctx := core.WithThreadName(context.Background(), attrs.Name)
	waiter := g.idle.NewWaiter()
	var picker taskPicker = strictPicker{g}
	if g.agingBurst > 0 {
		picker = &agingPicker{group: g, burst: g.agingBurst}
	}

	stopping := false
	for {
		task, prio, ok := picker.next()
		if ok {
			g.run(ctx, id, prio, task)
			continue
		}
		if stopping {
			// Queues are closed and empty
			return
		}
		if !waiter.Wait(g.stopCh) {
			stopping = true
		}
	}
}

// run executes one task and captures its panic.
func (g *workerGroup) run(ctx context.Context, id int, prio core.TaskPriority, task core.Task) {
	g.active.Add(1)
	defer func() {
		g.active.Add(-1)
		g.executed.Add(1)
		if r := recover(); r != nil {
			g.panicked.Add(1)
			g.handlers.PanicHandler.HandlePanic(ctx, g.name, id, r, debug.Stack())
			g.handlers.Metrics.RecordTaskPanic(g.name, r)
		}
	}()

	if !g.handlers.RecordsDurations() {
		task(ctx)
		return
	}
	start := time.Now()
	task(ctx)
	g.handlers.Metrics.RecordTaskDuration(g.name, prio, time.Since(start))
}

// popStrict takes the oldest task of the highest-priority non-empty queue.
func (g *workerGroup) popStrict() (core.Task, core.TaskPriority, bool) {
	for i, q := range g.queues {
		if task, ok := q.TryPop(); ok {
			return task, core.TaskPriority(i), true
		}
	}
	return nil, 0, false
}

// Stats returns a snapshot of the context.
func (g *workerGroup) Stats() core.ContextStats {
	st := core.ContextStats{
		Name:     g.name,
		Type:     string(g.kind),
		Workers:  len(g.threads),
		Running:  g.IsRunning(),
		Active:   int(g.active.Load()),
		Executed: g.executed.Load(),
		Panicked: g.panicked.Load(),
		Queues:   make([]core.QueueStats, len(g.queues)),
	}
	for i, q := range g.queues {
		st.Queues[i] = core.StatsOf(q)
	}
	for _, s := range g.strands {
		st.Strands = append(st.Strands, s.Stats())
	}
	return st
}

// ThreadNames returns the names given to the worker threads.
func (g *workerGroup) ThreadNames() []string {
	names := make([]string, len(g.threads))
	for i, t := range g.threads {
		names[i] = t.Name
	}
	return names
}

// =============================================================================
// Dispatch order
// =============================================================================

type taskPicker interface {
	next() (core.Task, core.TaskPriority, bool)
}

// strictPicker always serves the highest-priority ready task.
type strictPicker struct {
	group *workerGroup
}

func (p strictPicker) next() (core.Task, core.TaskPriority, bool) {
	return p.group.popStrict()
}

// agingPicker is strict until burst consecutive higher-priority tasks were
// served while a lower queue was waiting, then serves the lowest waiting
// queue once. Each worker owns its picker.
type agingPicker struct {
	group  *workerGroup
	burst  int
	streak int
}

func (p *agingPicker) next() (core.Task, core.TaskPriority, bool) {
	queues := p.group.queues
	if p.streak >= p.burst {
		p.streak = 0
		for i := len(queues) - 1; i > 0; i-- {
			if task, ok := queues[i].TryPop(); ok {
				return task, core.TaskPriority(i), true
			}
		}
	}

	task, prio, ok := p.group.popStrict()
	if !ok {
		p.streak = 0
		return nil, 0, false
	}
	if p.lowerWaiting(int(prio)) {
		p.streak++
	} else {
		p.streak = 0
	}
	return task, prio, true
}

func (p *agingPicker) lowerWaiting(served int) bool {
	queues := p.group.queues
	for i := served + 1; i < len(queues); i++ {
		if queues[i].Len() > 0 {
			return true
		}
	}
	return false
}
