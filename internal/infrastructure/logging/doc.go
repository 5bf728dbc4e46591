// Package logging provides structured logging for the bridge.
//
// It wraps log/slog with default service/version fields and level-based
// filtering driven by config.yaml. Components derive their own loggers via
// With("component", name) so every line is attributable.
package logging
