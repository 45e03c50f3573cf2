package logger

import (
	"context"
	"time"

	pcontext "github.com/coreobjects/coreobjects/pkg/context"
)

// ContextFields returns the tracing fields carried by ctx: cycle and
// correlation IDs, tick, operation and elapsed time past one millisecond
func ContextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}

	var fields []Field
	if pcontext.HasCycleID(ctx) {
		fields = append(fields, WithField("cycle_id", pcontext.GetCycleID(ctx)))
	}
	if id := pcontext.GetCorrelationID(ctx); id != "unknown-correlation" {
		fields = append(fields, WithField("correlation_id", id))
	}
	if tick, ok := pcontext.GetTick(ctx); ok {
		fields = append(fields, WithField("tick", tick))
	}
	if op := pcontext.GetOperation(ctx); op != "unknown-operation" {
		fields = append(fields, WithField("operation", op))
	}
	if d := pcontext.GetDuration(ctx); d > time.Millisecond {
		fields = append(fields, WithField("duration_ms", d.Milliseconds()))
	}
	return fields
}

// WithContext returns a logger that prepends the tracing fields of ctx to
// every message
func WithContext(ctx context.Context, log Logger) Logger {
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return log
	}
	return &contextualLogger{fields: fields, logger: log}
}

type contextualLogger struct {
	fields []Field
	logger Logger
}

func (cl *contextualLogger) with(fields []Field) []Field {
	all := make([]Field, 0, len(cl.fields)+len(fields))
	return append(append(all, cl.fields...), fields...)
}

func (cl *contextualLogger) Info(message string, fields ...Field) {
	cl.logger.Info(message, cl.with(fields)...)
}

func (cl *contextualLogger) Error(message string, fields ...Field) {
	cl.logger.Error(message, cl.with(fields)...)
}

func (cl *contextualLogger) Warn(message string, fields ...Field) {
	cl.logger.Warn(message, cl.with(fields)...)
}

func (cl *contextualLogger) Debug(message string, fields ...Field) {
	cl.logger.Debug(message, cl.with(fields)...)
}

func (cl *contextualLogger) Success(message string, fields ...Field) {
	cl.logger.Success(message, cl.with(fields)...)
}

func (cl *contextualLogger) WithComponent(component string) Logger {
	return &contextualLogger{fields: cl.fields, logger: cl.logger.WithComponent(component)}
}
