package core

import "errors"

var (
	// ErrInvalidConfig indicates an invalid queue, wait policy or context configuration
	ErrInvalidConfig = errors.New("invalid execution configuration")

	// ErrDuplicateName indicates a context or executor name that is already registered
	ErrDuplicateName = errors.New("name already registered")

	// ErrManagerStopped indicates the execution manager no longer accepts contexts
	ErrManagerStopped = errors.New("execution manager is stopped")
)
