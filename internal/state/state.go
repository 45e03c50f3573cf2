// Package state persists a status file describing a running collector engine
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/types"
)

// StaleAfter is how old a heartbeat may get before the owning process is
// considered gone
const StaleAfter = 30 * time.Second

// ErrLocked is returned when another live process owns the status file
var ErrLocked = errors.New("status file is owned by another running engine")

// EngineState is the persisted status of one engine run
type EngineState struct {
	ProcessID int                `json:"processId"`
	StartedAt time.Time          `json:"startedAt"`
	Heartbeat time.Time          `json:"heartbeat"`
	Running   bool               `json:"running"`
	Ticks     uint64             `json:"ticks"`
	Objects   int                `json:"objects"`
	GCState   types.GCState      `json:"gcState,omitempty"`
	Cycles    int                `json:"cycles"`
	LastCycle *types.CycleReport `json:"lastCycle,omitempty"`
	LastError string             `json:"lastError,omitempty"`
}

// SampleFunc fills in the live fields of the state before it is written
type SampleFunc func(ctx context.Context, s *EngineState) error

// StateManager owns a single status file
type StateManager struct {
	path   string
	logger logger.Logger

	mu            sync.Mutex
	current       *EngineState
	heartbeatStop chan struct{}
	heartbeatDone chan struct{}
}

// NewStateManager creates a manager for the status file at path
func NewStateManager(path string, log logger.Logger) *StateManager {
	if log == nil {
		log = logger.NewNop()
	}
	return &StateManager{
		path:   path,
		logger: log.WithComponent("state"),
	}
}

// Path returns the status file location
func (sm *StateManager) Path() string { return sm.path }

// Initialize claims the status file for this process. Cycle counts from a
// previous run are carried over.
func (sm *StateManager) Initialize() (*EngineState, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(sm.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	now := time.Now()
	s := &EngineState{
		ProcessID: os.Getpid(),
		StartedAt: now,
		Heartbeat: now,
		Running:   true,
	}

	previous, err := ReadState(sm.path)
	switch {
	case err == nil:
		if isLive(previous) {
			return nil, fmt.Errorf("%w: pid %d", ErrLocked, previous.ProcessID)
		}
		s.Cycles = previous.Cycles
	case !os.IsNotExist(err):
		sm.logger.Warn("Ignoring unreadable status file",
			logger.WithField("path", sm.path),
			logger.WithField("error", err))
	}

	if err := writeState(sm.path, s); err != nil {
		return nil, fmt.Errorf("failed to save initial state: %w", err)
	}
	sm.current = s
	return s, nil
}

// Current returns a copy of the last written state
func (sm *StateManager) Current() (EngineState, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.current == nil {
		return EngineState{}, false
	}
	return *sm.current, true
}

// Update applies fn to the state and writes it out
func (sm *StateManager) Update(fn func(*EngineState)) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.current == nil {
		return fmt.Errorf("state not initialized: %s", sm.path)
	}
	next := *sm.current
	fn(&next)
	next.Heartbeat = time.Now()
	if err := writeState(sm.path, &next); err != nil {
		return err
	}
	sm.current = &next
	return nil
}

// Beat samples the engine once and writes the result
func (sm *StateManager) Beat(ctx context.Context, sample SampleFunc) error {
	var sampleErr error
	err := sm.Update(func(s *EngineState) {
		previous := s.LastCycle
		if sample != nil {
			sampleErr = sample(ctx, s)
		}
		if s.LastCycle != nil && (previous == nil || previous.CycleID != s.LastCycle.CycleID) {
			s.Cycles++
		}
	})
	if err != nil {
		return err
	}
	return sampleErr
}

// StartHeartbeat rewrites the status file every interval until ctx is done or
// StopHeartbeat is called
func (sm *StateManager) StartHeartbeat(ctx context.Context, interval time.Duration, sample SampleFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.heartbeatStop != nil {
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	sm.heartbeatStop, sm.heartbeatDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := sm.Beat(ctx, sample); err != nil {
					sm.logger.Debug("Failed to update heartbeat",
						logger.WithField("path", sm.path),
						logger.WithField("error", err))
				}
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat goroutine and waits for it to exit
func (sm *StateManager) StopHeartbeat() {
	sm.mu.Lock()
	stop, done := sm.heartbeatStop, sm.heartbeatDone
	sm.heartbeatStop, sm.heartbeatDone = nil, nil
	sm.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Cleanup stops the heartbeat and marks the run as finished
func (sm *StateManager) Cleanup(runErr error) error {
	sm.StopHeartbeat()
	return sm.Update(func(s *EngineState) {
		s.Running = false
		if runErr != nil {
			s.LastError = runErr.Error()
		}
	})
}

// ReadState loads a status file
func ReadState(path string) (*EngineState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s EngineState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &s, nil
}

// IsLocked reports whether another live process owns the status file at path
func IsLocked(path string) (bool, error) {
	s, err := ReadState(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return isLive(s), nil
}

func isLive(s *EngineState) bool {
	if !s.Running || s.ProcessID == 0 || s.ProcessID == os.Getpid() {
		return false
	}
	if time.Since(s.Heartbeat) > StaleAfter {
		return false
	}
	process, err := os.FindProcess(s.ProcessID)
	if err != nil {
		return false
	}
	// Signal 0 only checks that the process exists
	return process.Signal(syscall.Signal(0)) == nil
}

func writeState(path string, s *EngineState) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}
