package execmgr

import (
	"fmt"

	"github.com/Swind/go-execution-manager/affinity"
	"github.com/Swind/go-execution-manager/core"
)

// PriorityWorker is one OS thread serving several queues. A ready task in
// queue i always runs before any task in queue i+1 unless the aging burst
// is enabled.
type PriorityWorker struct {
	*workerGroup
}

// NewPriorityWorker validates cfg, builds the worker and starts its thread.
func NewPriorityWorker(cfg PriorityWorkerConfig, handlers core.HandlerConfig) (*PriorityWorker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	thread := affinity.ThreadAttributes{Name: cfg.Name, Mask: cfg.CPUMask, Priority: cfg.Priority}
	g, err := newWorkerGroup(cfg.Name, ContextTypePriorityWorker, []affinity.ThreadAttributes{thread}, cfg.WaitSleep, handlers)
	if err != nil {
		return nil, fmt.Errorf("priority worker %q: %w", cfg.Name, err)
	}
	g.agingBurst = cfg.AgingBurst
	for _, qc := range cfg.Queues {
		if _, err := g.addQueue(qc); err != nil {
			return nil, fmt.Errorf("priority worker %q: %w", cfg.Name, err)
		}
	}
	if err := g.buildExecutors(cfg.Executors); err != nil {
		return nil, fmt.Errorf("priority worker %q: %w", cfg.Name, err)
	}

	g.start()
	return &PriorityWorker{workerGroup: g}, nil
}

// Executor returns the executor feeding queue prio. It is not registered
// with any manager.
func (w *PriorityWorker) Executor(prio core.TaskPriority) core.TaskExecutor {
	return core.NewQueueExecutor(fmt.Sprintf("%s#p%d", w.name, prio), w.queues[prio], w.handlers)
}
