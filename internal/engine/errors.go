package engine

import "errors"

var (
	// ErrEngineRunning is returned when starting an engine twice
	ErrEngineRunning = errors.New("engine is already running")
	// ErrEngineNotRunning is returned by operations that need a running engine
	ErrEngineNotRunning = errors.New("engine is not running")
)
