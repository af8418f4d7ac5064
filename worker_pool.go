package execmgr

import (
	"fmt"

	"github.com/Swind/go-execution-manager/affinity"
	"github.com/Swind/go-execution-manager/core"
)

// WorkerPool is a fixed set of interchangeable OS threads sharing up to two
// priority queues. Worker i is named "<name>#<i>".
type WorkerPool struct {
	*workerGroup
}

// NewWorkerPool validates cfg, builds the pool and starts its threads.
func NewWorkerPool(cfg WorkerPoolConfig, handlers core.HandlerConfig) (*WorkerPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	threads := make([]affinity.ThreadAttributes, cfg.Workers)
	for i := range threads {
		threads[i] = affinity.ThreadAttributes{
			Name:     fmt.Sprintf("%s#%d", cfg.Name, i),
			Mask:     cfg.maskFor(i),
			Priority: cfg.Priority,
		}
	}

	g, err := newWorkerGroup(cfg.Name, ContextTypeWorkerPool, threads, cfg.WaitSleep, handlers)
	if err != nil {
		return nil, fmt.Errorf("worker pool %q: %w", cfg.Name, err)
	}
	for _, qc := range cfg.Queues {
		if _, err := g.addQueue(qc); err != nil {
			return nil, fmt.Errorf("worker pool %q: %w", cfg.Name, err)
		}
	}
	if err := g.buildExecutors(cfg.Executors); err != nil {
		return nil, fmt.Errorf("worker pool %q: %w", cfg.Name, err)
	}

	g.start()
	return &WorkerPool{workerGroup: g}, nil
}

// WorkerCount returns the number of workers
func (p *WorkerPool) WorkerCount() int {
	return len(p.threads)
}
