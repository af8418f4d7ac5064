package execmgr

import (
	"fmt"

	"github.com/Swind/go-execution-manager/affinity"
	"github.com/Swind/go-execution-manager/core"
)

// SingleWorker is one OS thread consuming one queue. Its thread carries the
// context name.
type SingleWorker struct {
	*workerGroup
	queue core.TaskQueue
}

// NewSingleWorker validates cfg, builds the worker and starts its thread.
func NewSingleWorker(cfg SingleWorkerConfig, handlers core.HandlerConfig) (*SingleWorker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	thread := affinity.ThreadAttributes{Name: cfg.Name, Mask: cfg.CPUMask, Priority: cfg.Priority}
	g, err := newWorkerGroup(cfg.Name, ContextTypeSingleWorker, []affinity.ThreadAttributes{thread}, cfg.WaitSleep, handlers)
	if err != nil {
		return nil, fmt.Errorf("single worker %q: %w", cfg.Name, err)
	}
	q, err := g.addQueue(cfg.Queue)
	if err != nil {
		return nil, fmt.Errorf("single worker %q: %w", cfg.Name, err)
	}
	if err := g.buildExecutors(cfg.Executors); err != nil {
		return nil, fmt.Errorf("single worker %q: %w", cfg.Name, err)
	}

	g.start()
	return &SingleWorker{workerGroup: g, queue: q}, nil
}

// Queue returns the queue the worker consumes.
func (w *SingleWorker) Queue() core.TaskQueue {
	return w.queue
}
