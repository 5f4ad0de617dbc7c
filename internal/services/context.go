package services

import "context"

type contextKey string

const (
	taskKey        contextKey = "task"
	temperatureKey contextKey = "temperature"
	requestIDKey   contextKey = "request_id"
)

// WithTask annotates context with the running task name (collect, fit, ...).
func WithTask(ctx context.Context, task string) context.Context {
	if task == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKey, task)
}

// TaskFromContext returns the task name if present.
func TaskFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(taskKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithTemperature annotates context with the temperature (K) a unit of work
// is bound to.
func WithTemperature(ctx context.Context, temperature float64) context.Context {
	return context.WithValue(ctx, temperatureKey, temperature)
}

// TemperatureFromContext extracts the temperature if present.
func TemperatureFromContext(ctx context.Context) (float64, bool) {
	v := ctx.Value(temperatureKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	default:
		return 0, false
	}
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
