// Package logging assembles structured slog loggers and formatting helpers used
// across the latdyn tasks.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so task code can tag log lines
// with the task name, the temperature being processed, and the invocation's
// correlation ID. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
