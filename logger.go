package opc

import "log/slog"

// Logger is the interface for structured logging, shaped so that
// *slog.Logger satisfies it directly. Applications can plug in their
// own implementation through LoggerOption.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// defaultLogger returns the process-wide slog logger.
func defaultLogger() Logger {
	return slog.Default()
}
