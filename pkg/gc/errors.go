package gc

import "errors"

var (
	// ErrCollectorBusy indicates a collection entry point was called while
	// another one is running
	ErrCollectorBusy = errors.New("collector is busy")
)
