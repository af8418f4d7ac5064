package execmgr

import (
	"fmt"

	"github.com/Swind/go-execution-manager/core"
)

// CreateExecutionContext builds and starts the context described by cfg.
// Invalid configurations return an error wrapping core.ErrInvalidConfig that
// names the offending context or queue.
func CreateExecutionContext(cfg ContextConfig, handlers core.HandlerConfig) (ExecutionContext, error) {
	// Constructors return typed nil pointers on failure; keep them out of
	// the interface.
	switch c := cfg.(type) {
	case *SingleWorkerConfig:
		if c == nil {
			break
		}
		return CreateExecutionContext(*c, handlers)
	case *WorkerPoolConfig:
		if c == nil {
			break
		}
		return CreateExecutionContext(*c, handlers)
	case *PriorityWorkerConfig:
		if c == nil {
			break
		}
		return CreateExecutionContext(*c, handlers)
	case SingleWorkerConfig:
		w, err := NewSingleWorker(c, handlers)
		if err != nil {
			return nil, err
		}
		return w, nil
	case WorkerPoolConfig:
		p, err := NewWorkerPool(c, handlers)
		if err != nil {
			return nil, err
		}
		return p, nil
	case PriorityWorkerConfig:
		w, err := NewPriorityWorker(c, handlers)
		if err != nil {
			return nil, err
		}
		return w, nil
	case nil:
	default:
		return nil, fmt.Errorf("%w: unsupported context config %T", core.ErrInvalidConfig, cfg)
	}
	return nil, fmt.Errorf("%w: nil context config", core.ErrInvalidConfig)
}
