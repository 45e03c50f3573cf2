// Package context carries collection cycle and correlation identifiers on a
// context.Context so log lines from one cycle can be tied together.
package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Context keys for cycle tracing and correlation.
// Using unexported struct pointers prevents key collisions.
var (
	cycleIDKey       = &struct{}{}
	correlationIDKey = &struct{}{}
	tickKey          = &struct{}{}
	operationKey     = &struct{}{}
	startTimeKey     = &struct{}{}
)

const (
	unknownCycle       = "unknown-cycle"
	unknownCorrelation = "unknown-correlation"
	unknownOperation   = "unknown-operation"
)

// WithCycleID adds a collection cycle ID to the context
func WithCycleID(parent context.Context, cycleID string) context.Context {
	if cycleID == "" {
		cycleID = GenerateCycleID()
	}
	return context.WithValue(parent, cycleIDKey, cycleID)
}

// GetCycleID retrieves the cycle ID from context
func GetCycleID(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey).(string); ok && id != "" {
		return id
	}
	return unknownCycle
}

// HasCycleID reports whether the context carries a cycle ID
func HasCycleID(ctx context.Context) bool {
	return GetCycleID(ctx) != unknownCycle
}

// WithCorrelationID adds a correlation ID to the context, typically one per
// engine run
func WithCorrelationID(parent context.Context, correlationID string) context.Context {
	if correlationID == "" {
		correlationID = GenerateCorrelationID()
	}
	return context.WithValue(parent, correlationIDKey, correlationID)
}

// GetCorrelationID retrieves the correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		return id
	}
	return unknownCorrelation
}

// WithTick adds the engine tick number to the context
func WithTick(parent context.Context, tick uint64) context.Context {
	return context.WithValue(parent, tickKey, tick)
}

// GetTick retrieves the engine tick number from context
func GetTick(ctx context.Context) (uint64, bool) {
	tick, ok := ctx.Value(tickKey).(uint64)
	return tick, ok
}

// WithOperation adds an operation name to the context
func WithOperation(parent context.Context, operation string) context.Context {
	return context.WithValue(parent, operationKey, operation)
}

// GetOperation retrieves the operation name from context
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok && op != "" {
		return op
	}
	return unknownOperation
}

// WithStartTime adds the operation start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetStartTime retrieves the operation start time from context
func GetStartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(startTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

// GetDuration calculates the duration since the start time in context
func GetDuration(ctx context.Context) time.Duration {
	return time.Since(GetStartTime(ctx))
}

// GenerateCycleID creates a new unique collection cycle ID
func GenerateCycleID() string {
	return "gc_" + uuid.New().String()
}

// GenerateCorrelationID creates a new unique correlation ID
func GenerateCorrelationID() string {
	return "cor_" + uuid.New().String()
}

// EnrichContext adds a correlation ID if missing and stamps the start time
func EnrichContext(parent context.Context) context.Context {
	ctx := parent
	if GetCorrelationID(ctx) == unknownCorrelation {
		ctx = WithCorrelationID(ctx, GenerateCorrelationID())
	}
	return WithStartTime(ctx, time.Now())
}

// TracingFields returns common tracing fields for structured logging
func TracingFields(ctx context.Context) map[string]interface{} {
	fields := map[string]interface{}{
		"cycle_id":       GetCycleID(ctx),
		"correlation_id": GetCorrelationID(ctx),
		"operation":      GetOperation(ctx),
		"duration_ms":    GetDuration(ctx).Milliseconds(),
	}
	if tick, ok := GetTick(ctx); ok {
		fields["tick"] = tick
	}
	return fields
}
