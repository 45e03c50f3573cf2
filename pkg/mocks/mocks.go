// Package mocks provides test doubles for collector and logging interfaces.
package mocks

import (
	"fmt"
	"sync"

	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/object"
)

// HandleCollector is a reference collector holding a plain list of object
// handles. Cleared objects are dropped from the list.
type HandleCollector struct {
	mu       sync.Mutex
	handles  []object.Object
	cleared  [][]object.Object
	collects int
}

// NewHandleCollector creates a collector holding objs
func NewHandleCollector(objs ...object.Object) *HandleCollector {
	return &HandleCollector{handles: objs}
}

// Hold adds obj to the handle list
func (h *HandleCollector) Hold(obj object.Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handles = append(h.handles, obj)
}

// CollectReferences returns a copy of the handle list
func (h *HandleCollector) CollectReferences() []object.Object {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.collects++
	return append([]object.Object(nil), h.handles...)
}

// ClearReferences drops every handle in deleted
func (h *HandleCollector) ClearReferences(deleted []object.Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleared = append(h.cleared, deleted)

	drop := make(map[object.Object]bool, len(deleted))
	for _, obj := range deleted {
		drop[obj] = true
	}
	kept := h.handles[:0]
	for _, obj := range h.handles {
		if !drop[obj] {
			kept = append(kept, obj)
		}
	}
	h.handles = kept
}

// Handles returns the current handle list
func (h *HandleCollector) Handles() []object.Object {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]object.Object(nil), h.handles...)
}

// ClearCalls returns the arguments of every ClearReferences call
func (h *HandleCollector) ClearCalls() [][]object.Object {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]object.Object(nil), h.cleared...)
}

// CollectCalls returns the number of CollectReferences calls
func (h *HandleCollector) CollectCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.collects
}

// LogEntry is one message captured by RecordingLogger
type LogEntry struct {
	Level     string
	Component string
	Message   string
	Fields    map[string]interface{}
}

// RecordingLogger captures log calls for assertions
type RecordingLogger struct {
	mu        *sync.Mutex
	entries   *[]LogEntry
	component string
}

// NewRecordingLogger creates an empty recording logger
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{mu: &sync.Mutex{}, entries: &[]LogEntry{}}
}

func (r *RecordingLogger) record(level, message string, fields []logger.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		f[field.Key] = field.Value
	}
	*r.entries = append(*r.entries, LogEntry{Level: level, Component: r.component, Message: message, Fields: f})
}

// Info records an info message
func (r *RecordingLogger) Info(message string, fields ...logger.Field) {
	r.record("info", message, fields)
}

// Error records an error message
func (r *RecordingLogger) Error(message string, fields ...logger.Field) {
	r.record("error", message, fields)
}

// Warn records a warning message
func (r *RecordingLogger) Warn(message string, fields ...logger.Field) {
	r.record("warn", message, fields)
}

// Debug records a debug message
func (r *RecordingLogger) Debug(message string, fields ...logger.Field) {
	r.record("debug", message, fields)
}

// Success records a success message
func (r *RecordingLogger) Success(message string, fields ...logger.Field) {
	r.record("success", message, fields)
}

// WithComponent returns a logger sharing the same entry list
func (r *RecordingLogger) WithComponent(component string) logger.Logger {
	return &RecordingLogger{mu: r.mu, entries: r.entries, component: component}
}

// Entries returns every captured entry
func (r *RecordingLogger) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEntry(nil), *r.entries...)
}

// Count returns the number of entries at level
func (r *RecordingLogger) Count(level string) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

func (e LogEntry) String() string {
	return fmt.Sprintf("%s [%s] %s %v", e.Level, e.Component, e.Message, e.Fields)
}
