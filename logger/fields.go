package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging across cadence.
// Use these constants instead of raw strings so log queries stay stable.
const (
	// Identity and context
	FieldJobID      = "job_id"
	FieldScheduleID = "schedule_id"
	FieldOwnerID    = "owner_id"
	FieldEntityID   = "entity_id"
	FieldRequestID  = "request_id"

	// Components
	FieldComponent = "component"
	FieldHandler   = "handler"
	FieldProvider  = "provider"

	// Pipeline
	FieldStep      = "step"
	FieldIteration = "iteration"
	FieldProgress  = "progress"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldNextRunAt  = "next_run_at"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Counts and sizes
	FieldCount     = "count"
	FieldSize      = "size"
	FieldBatchSize = "batch_size"

	// Status
	FieldStatus = "status"

	// Network
	FieldAddress = "address"

	// Subsystem glyph (꩜, ✿, ❀, ⊔, ...)
	FieldSymbol = "symbol"
)

// Context keys for propagating logging context
type contextKey string

const (
	jobIDKey      contextKey = "logger_job_id"
	scheduleIDKey contextKey = "logger_schedule_id"
	requestIDKey  contextKey = "logger_request_id"
	componentKey  contextKey = "logger_component"
)

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithScheduleID adds a schedule ID to the context for logging
func WithScheduleID(ctx context.Context, scheduleID string) context.Context {
	return context.WithValue(ctx, scheduleIDKey, scheduleID)
}

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		fields = append(fields, FieldJobID, jobID)
	}
	if scheduleID, ok := ctx.Value(scheduleIDKey).(string); ok && scheduleID != "" {
		fields = append(fields, FieldScheduleID, scheduleID)
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base enriched with the fields carried by ctx.
// A nil base falls back to the global Logger.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
//	pool := async.NewWorkerPool(queue, registry, cfg, logger.ComponentLogger("pulse.worker"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
