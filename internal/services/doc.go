// Package services defines shared utilities consumed by the latdyn tasks and
// their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task names, temperatures, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the typed task errors
//     (empty input, failed fit, solver exit, missing output) that unwrap to
//     those markers so callers can classify failures with errors.Is.
//
// Use these helpers when wiring new task logic so error handling and
// observability stay uniform across the pipeline.
package services
