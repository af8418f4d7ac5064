package execmgr

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/Swind/go-execution-manager/affinity"
	"github.com/Swind/go-execution-manager/core"
)

// ContextType identifies the execution context variant.
type ContextType string

const (
	ContextTypeSingleWorker   ContextType = "single_worker"
	ContextTypeWorkerPool     ContextType = "worker_pool"
	ContextTypePriorityWorker ContextType = "priority_worker"
)

// maxPoolQueues is the number of priority levels a worker pool supports.
const maxPoolQueues = 2

// ContextConfig is the declarative description of one execution context.
// It is implemented by SingleWorkerConfig, WorkerPoolConfig and
// PriorityWorkerConfig.
type ContextConfig interface {
	ContextName() string
	ContextType() ContextType
	Validate() error
}

// StrandConfig describes a strand built over an executor of the context.
// Each sub-queue is exposed as an executor under its queue name; the first
// queue has the highest priority.
type StrandConfig struct {
	Queues []core.QueueConfig
}

// ExecutorConfig describes one executor exposed by a context.
type ExecutorConfig struct {
	// Name is the manager-wide name of the executor.
	Name string

	// Priority is the index of the context queue the executor feeds. 0 is
	// the highest priority.
	Priority core.TaskPriority

	// Synchronous decorates the executor so that Execute runs tasks on the
	// calling goroutine. Strand executors built on top of it stay asynchronous.
	Synchronous bool

	// Strands are built over this executor.
	Strands []StrandConfig
}

// =============================================================================
// Single Worker
// =============================================================================

// SingleWorkerConfig describes one OS thread consuming one queue.
type SingleWorkerConfig struct {
	// Name is the context name and the thread name.
	Name string

	Queue core.QueueConfig

	// WaitSleep selects the sleep wait policy when positive; otherwise the
	// worker blocks until woken. Lock-free queues require a positive value.
	WaitSleep time.Duration

	Priority affinity.OSPriority
	CPUMask  affinity.CPUMask

	// Executors defaults to one executor named after the context.
	Executors []ExecutorConfig
}

func (c SingleWorkerConfig) ContextName() string      { return c.Name }
func (c SingleWorkerConfig) ContextType() ContextType { return ContextTypeSingleWorker }

// Validate checks the configuration without building anything.
func (c SingleWorkerConfig) Validate() error {
	c = c.normalized()
	var err error
	if c.Name == "" {
		err = multierr.Append(err, fmt.Errorf("%w: single worker has no name", core.ErrInvalidConfig))
	}
	err = multierr.Append(err, validateQueues(c.Name, []core.QueueConfig{c.Queue}, c.WaitSleep))
	err = multierr.Append(err, validateThread(c.Name, c.Priority, c.WaitSleep))
	err = multierr.Append(err, validateExecutors(c.Name, c.Executors, 1))
	return err
}

func (c SingleWorkerConfig) normalized() SingleWorkerConfig {
	if c.Queue.Name == "" {
		c.Queue.Name = c.Name
	}
	c.Executors = defaultExecutors(c.Name, c.Executors)
	return c
}

// =============================================================================
// Worker Pool
// =============================================================================

// WorkerPoolConfig describes N interchangeable OS threads sharing up to two
// priority queues.
type WorkerPoolConfig struct {
	// Name is the context name and the thread name prefix; workers are
	// named "<Name>#<index>".
	Name string

	Workers int

	// Queues are ordered by priority, highest first. With more than one
	// worker every queue must be multi-consumer.
	Queues []core.QueueConfig

	WaitSleep time.Duration
	Priority  affinity.OSPriority

	// CPUMasks holds no mask, one mask shared by every worker, or one mask
	// per worker.
	CPUMasks []affinity.CPUMask

	Executors []ExecutorConfig
}

func (c WorkerPoolConfig) ContextName() string      { return c.Name }
func (c WorkerPoolConfig) ContextType() ContextType { return ContextTypeWorkerPool }

// Validate checks the configuration without building anything.
func (c WorkerPoolConfig) Validate() error {
	c = c.normalized()
	var err error
	if c.Name == "" {
		err = multierr.Append(err, fmt.Errorf("%w: worker pool has no name", core.ErrInvalidConfig))
	}
	if c.Workers < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: worker pool %q needs at least one worker, got %d", core.ErrInvalidConfig, c.Name, c.Workers))
	}
	if len(c.Queues) > maxPoolQueues {
		err = multierr.Append(err, fmt.Errorf("%w: worker pool %q supports at most %d queues, got %d", core.ErrInvalidConfig, c.Name, maxPoolQueues, len(c.Queues)))
	}
	err = multierr.Append(err, validateQueues(c.Name, c.Queues, c.WaitSleep))
	if c.Workers > 1 {
		for _, q := range c.Queues {
			if !q.Policy.MultiConsumer() {
				err = multierr.Append(err, fmt.Errorf("%w: worker pool %q queue %q: policy %s has a single consumer but the pool has %d workers",
					core.ErrInvalidConfig, c.Name, q.Name, q.Policy, c.Workers))
			}
		}
	}
	if n := len(c.CPUMasks); n > 1 && n != c.Workers {
		err = multierr.Append(err, fmt.Errorf("%w: worker pool %q has %d cpu masks for %d workers", core.ErrInvalidConfig, c.Name, n, c.Workers))
	}
	err = multierr.Append(err, validateThread(c.Name, c.Priority, c.WaitSleep))
	err = multierr.Append(err, validateExecutors(c.Name, c.Executors, len(c.Queues)))
	return err
}

func (c WorkerPoolConfig) normalized() WorkerPoolConfig {
	c.Queues = nameQueues(c.Name, c.Queues)
	c.Executors = defaultExecutors(c.Name, c.Executors)
	return c
}

// maskFor returns the CPU mask of worker i.
func (c WorkerPoolConfig) maskFor(i int) affinity.CPUMask {
	switch len(c.CPUMasks) {
	case 0:
		return nil
	case 1:
		return c.CPUMasks[0]
	default:
		return c.CPUMasks[i]
	}
}

// =============================================================================
// Priority Multi-Queue Worker
// =============================================================================

// PriorityWorkerConfig describes one OS thread serving several queues in
// strict priority order.
type PriorityWorkerConfig struct {
	Name string

	// Queues are ordered by priority, highest first.
	Queues []core.QueueConfig

	WaitSleep time.Duration
	Priority  affinity.OSPriority
	CPUMask   affinity.CPUMask

	Executors []ExecutorConfig

	// AgingBurst enables the starvation guard: after AgingBurst consecutive
	// tasks from higher queues while a lower queue has work, one task from the
	// lowest non-empty queue is served. Zero keeps strict priority.
	AgingBurst int
}

func (c PriorityWorkerConfig) ContextName() string      { return c.Name }
func (c PriorityWorkerConfig) ContextType() ContextType { return ContextTypePriorityWorker }

// Validate checks the configuration without building anything.
func (c PriorityWorkerConfig) Validate() error {
	c = c.normalized()
	var err error
	if c.Name == "" {
		err = multierr.Append(err, fmt.Errorf("%w: priority worker has no name", core.ErrInvalidConfig))
	}
	if c.AgingBurst < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: priority worker %q aging burst must not be negative", core.ErrInvalidConfig, c.Name))
	}
	err = multierr.Append(err, validateQueues(c.Name, c.Queues, c.WaitSleep))
	err = multierr.Append(err, validateThread(c.Name, c.Priority, c.WaitSleep))
	err = multierr.Append(err, validateExecutors(c.Name, c.Executors, len(c.Queues)))
	return err
}

func (c PriorityWorkerConfig) normalized() PriorityWorkerConfig {
	c.Queues = nameQueues(c.Name, c.Queues)
	c.Executors = defaultExecutors(c.Name, c.Executors)
	return c
}

// =============================================================================
// Shared validation helpers
// =============================================================================

// waitPolicyFor maps the configured sleep duration to a wait policy.
func waitPolicyFor(sleep time.Duration) core.WaitPolicy {
	if sleep > 0 {
		return core.WaitSleep
	}
	return core.WaitBlock
}

func validateQueues(ctxName string, queues []core.QueueConfig, sleep time.Duration) error {
	if len(queues) == 0 {
		return fmt.Errorf("%w: context %q has no queues", core.ErrInvalidConfig, ctxName)
	}
	var err error
	seen := make(map[string]struct{}, len(queues))
	wait := waitPolicyFor(sleep)
	for _, q := range queues {
		if e := q.Validate(); e != nil {
			err = multierr.Append(err, fmt.Errorf("context %q: %w", ctxName, e))
			continue
		}
		if q.Policy.IsLockFree() && wait == core.WaitBlock {
			err = multierr.Append(err, fmt.Errorf("%w: context %q queue %q: lock-free policy %s needs a wait sleep duration",
				core.ErrInvalidConfig, ctxName, q.Name, q.Policy))
		}
		if _, dup := seen[q.Name]; dup {
			err = multierr.Append(err, fmt.Errorf("%w: context %q has two queues named %q", core.ErrInvalidConfig, ctxName, q.Name))
		}
		seen[q.Name] = struct{}{}
	}
	return err
}

func validateThread(ctxName string, prio affinity.OSPriority, sleep time.Duration) error {
	var err error
	if e := prio.Validate(); e != nil {
		err = multierr.Append(err, fmt.Errorf("%w: context %q: %v", core.ErrInvalidConfig, ctxName, e))
	}
	if sleep < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: context %q: negative wait sleep %v", core.ErrInvalidConfig, ctxName, sleep))
	}
	return err
}

func validateExecutors(ctxName string, execs []ExecutorConfig, queues int) error {
	var err error
	names := make(map[string]struct{})
	claim := func(name string) {
		if name == "" {
			err = multierr.Append(err, fmt.Errorf("%w: context %q has an executor without a name", core.ErrInvalidConfig, ctxName))
			return
		}
		if _, dup := names[name]; dup {
			err = multierr.Append(err, fmt.Errorf("%w: context %q exposes executor %q twice", core.ErrInvalidConfig, ctxName, name))
		}
		names[name] = struct{}{}
	}

	for _, e := range execs {
		claim(e.Name)
		if int(e.Priority) < 0 || int(e.Priority) >= queues {
			err = multierr.Append(err, fmt.Errorf("%w: context %q executor %q: priority %d outside [0, %d)",
				core.ErrInvalidConfig, ctxName, e.Name, e.Priority, queues))
		}
		for _, s := range e.Strands {
			if len(s.Queues) == 0 {
				err = multierr.Append(err, fmt.Errorf("%w: context %q executor %q: strand without queues", core.ErrInvalidConfig, ctxName, e.Name))
			}
			for _, q := range s.Queues {
				claim(q.Name)
				if qerr := q.Validate(); qerr != nil {
					err = multierr.Append(err, fmt.Errorf("context %q strand queue %q: %w", ctxName, q.Name, qerr))
				}
			}
		}
	}
	return err
}

func nameQueues(ctxName string, queues []core.QueueConfig) []core.QueueConfig {
	out := make([]core.QueueConfig, len(queues))
	for i, q := range queues {
		if q.Name == "" {
			q.Name = fmt.Sprintf("%s#q%d", ctxName, i)
		}
		out[i] = q
	}
	return out
}

func defaultExecutors(ctxName string, execs []ExecutorConfig) []ExecutorConfig {
	if len(execs) > 0 {
		return execs
	}
	return []ExecutorConfig{{Name: ctxName}}
}
