package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// manualExecutor queues deferred tasks until the test runs them.
type manualExecutor struct {
	mu     sync.Mutex
	tasks  []Task
	refuse bool
}

func (e *manualExecutor) Execute(task Task) bool { return e.Defer(task) }

func (e *manualExecutor) Defer(task Task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refuse {
		return false
	}
	e.tasks = append(e.tasks, task)
	return true
}

func (e *manualExecutor) setRefuse(v bool) {
	e.mu.Lock()
	e.refuse = v
	e.mu.Unlock()
}

func (e *manualExecutor) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// runAll runs queued tasks, including those they defer, until none remain.
func (e *manualExecutor) runAll() int {
	n := 0
	for {
		e.mu.Lock()
		if len(e.tasks) == 0 {
			e.mu.Unlock()
			return n
		}
		task := e.tasks[0]
		e.tasks = e.tasks[1:]
		e.mu.Unlock()

		task(context.Background())
		n++
	}
}

func strandQueues(names ...string) []QueueConfig {
	cfgs := make([]QueueConfig, len(names))
	for i, name := range names {
		cfgs[i] = QueueConfig{Name: name, Policy: QueuePolicyMPSCLocking, Capacity: 16}
	}
	return cfgs
}

// TestStrand_SingleResidentDispatcher verifies only one dispatcher is queued on the parent
// Given: A strand over a manual parent executor
// When: Five tasks are submitted before the parent runs anything
// Then: The parent holds one dispatcher task, and running it drains the strand one task per slot
func TestStrand_SingleResidentDispatcher(t *testing.T) {
	// Arrange
	parent := &manualExecutor{}
	s, err := NewStrand("ue-0", parent, strandQueues("ue-0"), testHandlers())
	if err != nil {
		t.Fatalf("NewStrand() error = %v", err)
	}
	exec := s.Executor(0)
	var order []int

	// Act
	for i := range 5 {
		if !exec.Execute(func(ctx context.Context) { order = append(order, i) }) {
			t.Fatalf("Execute(%d) = false, want true", i)
		}
	}

	// Assert
	if got := parent.len(); got != 1 {
		t.Fatalf("parent queued %d tasks, want 1 dispatcher", got)
	}
	if got := parent.runAll(); got != 5 {
		t.Errorf("parent ran %d dispatcher slots, want 5", got)
	}
	for i, v := range order {
		if v != i {
			t.Errorf("order[%d] = %d, want %d", i, v, i)
		}
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

// TestStrand_SubQueuePriority verifies the highest-priority sub-queue is served first
// Given: A strand with sub-queues "high" and "low"
// When: Two low tasks and then two high tasks are submitted before dispatch
// Then: The dispatcher serves both high tasks before the low ones
func TestStrand_SubQueuePriority(t *testing.T) {
	parent := &manualExecutor{}
	s, err := NewStrand("cell", parent, strandQueues("high", "low"), testHandlers())
	if err != nil {
		t.Fatalf("NewStrand() error = %v", err)
	}
	var order []string
	record := func(tag string) Task {
		return func(ctx context.Context) { order = append(order, tag) }
	}

	s.Executor(1).Defer(record("low-1"))
	s.Executor(1).Defer(record("low-2"))
	s.Executor(0).Defer(record("high-1"))
	s.Executor(0).Defer(record("high-2"))
	parent.runAll()

	want := []string{"high-1", "high-2", "low-1", "low-2"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

// TestStrand_ParentRefusesArm verifies a stopped parent makes the strand reject
// Given: A strand whose parent refuses every submission
// When: A task is submitted
// Then: The submission returns false, the task never runs, and nothing stays pending
func TestStrand_ParentRefusesArm(t *testing.T) {
	parent := &manualExecutor{refuse: true}
	rejections := newRecordingRejections()
	h := testHandlers()
	h.RejectedTaskHandler = rejections
	s, _ := NewStrand("ue-1", parent, strandQueues("ue-1"), h)

	ran := false
	if s.Executor(0).Execute(func(ctx context.Context) { ran = true }) {
		t.Error("Execute() = true, want false")
	}

	if ran {
		t.Error("rejected task ran")
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
	if got := rejections.get("ue-1"); len(got) != 1 || got[0] != RejectReasonStrandDispatch {
		t.Errorf("rejections = %v, want [%s]", got, RejectReasonStrandDispatch)
	}

	// Once the parent accepts again the strand recovers
	parent.setRefuse(false)
	if !s.Executor(0).Execute(func(ctx context.Context) { ran = true }) {
		t.Fatal("Execute() after recovery = false, want true")
	}
	parent.runAll()
	if !ran {
		t.Error("task did not run after parent recovered")
	}
}

// gatedExecutor holds its first Defer until the test decides whether the
// parent accepts it.
type gatedExecutor struct {
	manualExecutor
	gated   atomic.Bool
	entered chan struct{}
	release chan bool
}

func newGatedExecutor() *gatedExecutor {
	e := &gatedExecutor{entered: make(chan struct{}), release: make(chan bool)}
	e.gated.Store(true)
	return e
}

func (e *gatedExecutor) Execute(task Task) bool { return e.Defer(task) }

func (e *gatedExecutor) Defer(task Task) bool {
	if e.gated.CompareAndSwap(true, false) {
		close(e.entered)
		if !<-e.release {
			return false
		}
	}
	return e.manualExecutor.Defer(task)
}

// armRace submits one task from a producer that arms the strand and, while
// that arm is held by the parent, one task from a second producer.
func armRace(t *testing.T, accept bool) (first, second bool, secondRan *atomic.Bool, s *Strand, parent *gatedExecutor, rejections *recordingRejections) {
	t.Helper()
	parent = newGatedExecutor()
	rejections = newRecordingRejections()
	h := testHandlers()
	h.RejectedTaskHandler = rejections
	s, err := NewStrand("ue-5", parent, strandQueues("ue-5"), h)
	if err != nil {
		t.Fatalf("NewStrand() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		first = s.Executor(0).Execute(func(ctx context.Context) {})
	}()
	<-parent.entered

	secondRan = &atomic.Bool{}
	go func() {
		defer wg.Done()
		second = s.Executor(0).Execute(func(ctx context.Context) { secondRan.Store(true) })
	}()
	deadline := time.Now().Add(5 * time.Second)
	for s.Pending() != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Pending() != 2 {
		t.Fatalf("Pending() = %d before release, want 2", s.Pending())
	}

	parent.release <- accept
	wg.Wait()
	return first, second, secondRan, s, parent, rejections
}

// TestStrand_RefusedArmRejectsWaitingProducer verifies no producer is told a withdrawn task was accepted
// Given: A strand whose parent holds the first dispatcher Defer
// When: A second producer submits during that Defer and the parent then refuses
// Then: Both submissions return false, neither task runs, and both are reported once
func TestStrand_RefusedArmRejectsWaitingProducer(t *testing.T) {
	first, second, secondRan, s, parent, rejections := armRace(t, false)

	if first || second {
		t.Errorf("Execute() = %v, %v, want false, false", first, second)
	}
	parent.runAll()
	if secondRan.Load() {
		t.Error("second task ran after its submission returned false")
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
	got := rejections.get("ue-5")
	if len(got) != 2 || got[0] != RejectReasonStrandDispatch || got[1] != RejectReasonStrandDispatch {
		t.Errorf("rejections = %v, want two %s", got, RejectReasonStrandDispatch)
	}
}

// TestStrand_AcceptedArmKeepsWaitingProducer verifies a waiting producer shares a successful arm
// Given: A strand whose parent holds the first dispatcher Defer
// When: A second producer submits during that Defer and the parent then accepts
// Then: Both submissions return true and one dispatcher runs both tasks
func TestStrand_AcceptedArmKeepsWaitingProducer(t *testing.T) {
	first, second, secondRan, s, parent, rejections := armRace(t, true)

	if !first || !second {
		t.Fatalf("Execute() = %v, %v, want true, true", first, second)
	}
	if got := parent.len(); got != 1 {
		t.Errorf("parent queued %d tasks, want 1 dispatcher", got)
	}
	parent.runAll()
	if !secondRan.Load() {
		t.Error("second task did not run")
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
	if got := rejections.get("ue-5"); len(got) != 0 {
		t.Errorf("rejections = %v, want none", got)
	}

	// The strand arms again once idle
	if !s.Executor(0).Execute(func(ctx context.Context) {}) || parent.len() != 1 {
		t.Errorf("re-arm after idle: parent queued %d tasks, want 1", parent.len())
	}
}

// TestStrand_RearmRefusedContinuesInline verifies accepted tasks survive a refused re-arm
// Given: A strand with three queued tasks and one dispatcher on the parent
// When: The parent starts refusing before the dispatcher runs
// Then: The dispatcher runs all three tasks in its single slot
func TestStrand_RearmRefusedContinuesInline(t *testing.T) {
	parent := &manualExecutor{}
	s, _ := NewStrand("pcap", parent, strandQueues("pcap"), testHandlers())
	var ran atomic.Int32
	for range 3 {
		s.Executor(0).Execute(func(ctx context.Context) { ran.Add(1) })
	}

	parent.setRefuse(true)
	parent.mu.Lock()
	dispatcher := parent.tasks[0]
	parent.tasks = nil
	parent.mu.Unlock()
	dispatcher(context.Background())

	if got := ran.Load(); got != 3 {
		t.Errorf("ran %d tasks, want 3", got)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

// TestStrand_StopRejects verifies a stopped strand refuses submissions
func TestStrand_StopRejects(t *testing.T) {
	parent := &manualExecutor{}
	s, _ := NewStrand("ue-2", parent, strandQueues("ue-2"), testHandlers())

	s.Stop()
	s.Stop()

	if s.Executor(0).Execute(func(ctx context.Context) {}) {
		t.Error("Execute() on stopped strand = true, want false")
	}
	if !s.IsStopped() {
		t.Error("IsStopped() = false, want true")
	}
	if parent.len() != 0 {
		t.Errorf("parent queued %d tasks, want 0", parent.len())
	}
}

// TestStrand_PanicRecovered verifies a panicking strand task does not wedge the strand
func TestStrand_PanicRecovered(t *testing.T) {
	parent := &manualExecutor{}
	metrics := newCountingMetrics()
	h := testHandlers()
	h.Metrics = metrics
	s, _ := NewStrand("ue-3", parent, strandQueues("ue-3"), h)

	ran := false
	s.Executor(0).Execute(func(ctx context.Context) { panic("boom") })
	s.Executor(0).Execute(func(ctx context.Context) { ran = true })
	parent.runAll()

	if !ran {
		t.Error("task after panic did not run")
	}
	if metrics.panics != 1 {
		t.Errorf("panics = %d, want 1", metrics.panics)
	}
	if metrics.durations != 1 {
		t.Errorf("durations = %d, want 1", metrics.durations)
	}
	if st := s.Stats(); st.Executed != 2 {
		t.Errorf("Stats().Executed = %d, want 2", st.Executed)
	}
}

// TestStrand_SerializedOnPool verifies strand tasks never overlap on a multi-worker parent
// Given: A strand over a queue drained by four goroutines
// When: 8 producers submit 500 tasks each
// Then: At most one strand task is ever running and every task runs once
func TestStrand_SerializedOnPool(t *testing.T) {
	const (
		producers   = 8
		perProducer = 500
		total       = producers * perProducer
	)
	pq, _ := NewTaskQueue(QueueConfig{Name: "pool", Policy: QueuePolicyMPMCLocking, Capacity: 1024}, WaitSleep, nil)
	parent := NewQueueExecutor("pool", pq, testHandlers())
	s, err := NewStrand("ue-4", parent, []QueueConfig{{Name: "ue-4", Policy: QueuePolicyMPMCLockFree, Capacity: 4096}}, testHandlers())
	if err != nil {
		t.Fatalf("NewStrand() error = %v", err)
	}

	stop := make(chan struct{})
	var workers sync.WaitGroup
	for range 4 {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				task, ok := pq.TryPop()
				if ok {
					task(context.Background())
					continue
				}
				select {
				case <-stop:
					return
				default:
					time.Sleep(10 * time.Microsecond)
				}
			}
		}()
	}

	var inFlight, maxInFlight, done atomic.Int32
	var producersWG sync.WaitGroup
	for range producers {
		producersWG.Add(1)
		go func() {
			defer producersWG.Done()
			for range perProducer {
				for !s.Executor(0).Execute(func(ctx context.Context) {
					n := inFlight.Add(1)
					for {
						m := maxInFlight.Load()
						if n <= m || maxInFlight.CompareAndSwap(m, n) {
							break
						}
					}
					inFlight.Add(-1)
					done.Add(1)
				}) {
				}
			}
		}()
	}
	producersWG.Wait()

	deadline := time.Now().Add(10 * time.Second)
	for done.Load() < total && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(stop)
	workers.Wait()

	if got := done.Load(); got != total {
		t.Errorf("ran %d tasks, want %d", got, total)
	}
	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent strand tasks = %d, want 1", got)
	}
}

// TestNewStrand_InvalidConfig verifies construction errors
func TestNewStrand_InvalidConfig(t *testing.T) {
	if _, err := NewStrand("s", &manualExecutor{}, nil, testHandlers()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewStrand(no queues) error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewStrand("s", nil, strandQueues("q"), testHandlers()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewStrand(nil parent) error = %v, want ErrInvalidConfig", err)
	}
	bad := []QueueConfig{{Name: "q", Policy: QueuePolicyMPMCLockFree, Capacity: 3}}
	if _, err := NewStrand("s", &manualExecutor{}, bad, testHandlers()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewStrand(bad queue) error = %v, want ErrInvalidConfig", err)
	}
}
