package execmgr

import "sync"

// =============================================================================
// Global Execution Manager Helper (Singleton)
// =============================================================================

var (
	globalManager *ExecutionManager
	globalMu      sync.Mutex
)

// InitGlobalExecutionManager creates the process-wide manager. Later calls
// keep the existing instance and ignore opts.
func InitGlobalExecutionManager(opts ...ManagerOption) *ExecutionManager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		globalManager = NewExecutionManager(opts...)
	}
	return globalManager
}

// GlobalExecutionManager returns the process-wide manager.
// It panics if InitGlobalExecutionManager has not been called.
func GlobalExecutionManager() *ExecutionManager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("GlobalExecutionManager not initialized. Call InitGlobalExecutionManager() first.")
	}
	return globalManager
}

// ShutdownGlobalExecutionManager stops the process-wide manager and forgets it.
func ShutdownGlobalExecutionManager() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager != nil {
		globalManager.Stop()
		globalManager = nil
	}
}
