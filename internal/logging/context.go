package logging

import (
	"context"
	"log/slog"

	"latdyn/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTask is the standardized structured logging key for task names.
	FieldTask = "task"
	// FieldTemperature is the standardized structured logging key for the temperature (K) a log line refers to.
	FieldTemperature = "temperature"
	// FieldCorrelationID is the standardized structured logging key for per-invocation correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldFittingID is the standardized structured logging key for force-constant fitting identifiers.
	FieldFittingID = "fc_fitting_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldEventType is the standardized key classifying warnings and errors.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized key for the suggested next step.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if task, ok := services.TaskFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTask, task))
	}
	if temp, ok := services.TemperatureFromContext(ctx); ok {
		fields = append(fields, slog.Float64(FieldTemperature, temp))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
