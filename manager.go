package execmgr

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Swind/go-execution-manager/core"
)

// ManagerState is the lifecycle state of an ExecutionManager.
type ManagerState int

const (
	// StateEmpty means no context has been added yet
	StateEmpty ManagerState = iota
	// StatePopulated means at least one context is registered
	StatePopulated
	// StateStopped is terminal; no context can be added anymore
	StateStopped
)

func (s ManagerState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePopulated:
		return "populated"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("ManagerState(%d)", int(s))
}

// ManagerOption configures an ExecutionManager.
type ManagerOption func(*ExecutionManager)

// WithLogger sets the logger used by the manager and its contexts.
func WithLogger(logger core.Logger) ManagerOption {
	return func(m *ExecutionManager) { m.handlers.Logger = logger }
}

// WithMetrics sets the metrics sink passed to every context.
func WithMetrics(metrics core.Metrics) ManagerOption {
	return func(m *ExecutionManager) { m.handlers.Metrics = metrics }
}

// WithPanicHandler sets the panic handler passed to every context.
func WithPanicHandler(h core.PanicHandler) ManagerOption {
	return func(m *ExecutionManager) { m.handlers.PanicHandler = h }
}

// WithRejectedTaskHandler sets the rejection handler passed to every context.
func WithRejectedTaskHandler(h core.RejectedTaskHandler) ManagerOption {
	return func(m *ExecutionManager) { m.handlers.RejectedTaskHandler = h }
}

// ExecutionManager is the registry of execution contexts and of the
// executors they expose. Contexts are added during startup; lookups are
// served afterwards for the life of the process.
type ExecutionManager struct {
	id       uuid.UUID
	handlers core.HandlerConfig

	mu        sync.RWMutex
	state     ManagerState
	contexts  []ExecutionContext
	byName    map[string]ExecutionContext
	executors map[string]core.TaskExecutor
}

// NewExecutionManager creates an empty manager.
func NewExecutionManager(opts ...ManagerOption) *ExecutionManager {
	m := &ExecutionManager{
		id:        uuid.New(),
		byName:    make(map[string]ExecutionContext),
		executors: make(map[string]core.TaskExecutor),
	}
	for _, opt := range opts {
		opt(m)
	}
	// Everything the manager, its contexts and the default handlers log
	// carries the manager ID.
	logger := m.handlers.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	m.handlers.Logger = core.WithFields(logger, core.F("manager", m.id.String()))
	m.handlers = m.handlers.WithDefaults()
	return m
}

// ID returns the random instance ID of the manager.
func (m *ExecutionManager) ID() string {
	return m.id.String()
}

// State returns the lifecycle state.
func (m *ExecutionManager) State() ManagerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Add builds the context described by cfg and registers it together with
// every executor it exposes. Nothing is registered when an error is returned.
func (m *ExecutionManager) Add(cfg ContextConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil context config", core.ErrInvalidConfig)
	}
	name := cfg.ContextName()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateStopped {
		return fmt.Errorf("add context %q: %w", name, ErrManagerStopped)
	}
	if _, dup := m.byName[name]; dup {
		return fmt.Errorf("add context %q: %w: context name", name, ErrDuplicateName)
	}

	ctx, err := CreateExecutionContext(cfg, m.handlers)
	if err != nil {
		return fmt.Errorf("add context %q: %w", name, err)
	}

	execs := ctx.Executors()
	for _, e := range execs {
		if _, dup := m.executors[e.Name]; dup {
			ctx.Stop()
			return fmt.Errorf("add context %q: %w: executor %q", name, ErrDuplicateName, e.Name)
		}
	}

	m.contexts = append(m.contexts, ctx)
	m.byName[name] = ctx
	for _, e := range execs {
		m.executors[e.Name] = e.Executor
	}
	m.state = StatePopulated

	m.handlers.Logger.Info("execution context added",
		core.F("context", name),
		core.F("type", string(ctx.Type())),
		core.F("executors", len(execs)),
	)
	return nil
}

// AddExecutionContext is Add reporting only success. Failures are logged.
func (m *ExecutionManager) AddExecutionContext(cfg ContextConfig) bool {
	if err := m.Add(cfg); err != nil {
		m.handlers.Logger.Error("failed to add execution context",
			core.F("error", err),
		)
		return false
	}
	return true
}

// Executors returns a copy of the name to executor table.
func (m *ExecutionManager) Executors() map[string]core.TaskExecutor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]core.TaskExecutor, len(m.executors))
	for name, e := range m.executors {
		out[name] = e
	}
	return out
}

// ExecutorNames returns the registered executor names in sorted order.
func (m *ExecutionManager) ExecutorNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.executors))
	for name := range m.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupExecutor returns the executor registered under name.
func (m *ExecutionManager) LookupExecutor(name string) (core.TaskExecutor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.executors[name]
	return e, ok
}

// Executor returns the executor registered under name. Looking up a name
// that was never registered is a wiring bug and panics.
func (m *ExecutionManager) Executor(name string) core.TaskExecutor {
	e, ok := m.LookupExecutor(name)
	if !ok {
		panic(fmt.Sprintf("execmgr: executor %q is not registered", name))
	}
	return e
}

// Contexts returns the registered contexts in registration order.
func (m *ExecutionManager) Contexts() []ExecutionContext {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ExecutionContext(nil), m.contexts...)
}

// Context returns the context registered under name.
func (m *ExecutionManager) Context(name string) (ExecutionContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctx, ok := m.byName[name]
	return ctx, ok
}

// Stop stops every context in reverse registration order. Later calls are
// no-ops.
func (m *ExecutionManager) Stop() {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return
	}
	m.state = StateStopped
	contexts := append([]ExecutionContext(nil), m.contexts...)
	m.mu.Unlock()

	for i := len(contexts) - 1; i >= 0; i-- {
		contexts[i].Stop()
	}
	m.handlers.Logger.Info("execution manager stopped", core.F("contexts", len(contexts)))
}

// IsStopped reports whether Stop has been called.
func (m *ExecutionManager) IsStopped() bool {
	return m.State() == StateStopped
}

// IsDuplicateName reports whether err was caused by a name collision.
func IsDuplicateName(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}
