package modreg

import (
	"log/slog"
)

// Logger is the structured logging interface used throughout the registry.
// Messages are logged with variadic key-value pairs, compatible with slog,
// zap's sugared logger, logrus and similar libraries:
//
//	logger.Info("Module registered", "module", "billing", "version", "1.2.0")
type Logger interface {
	// Info logs normal registry events such as registrations and state changes.
	Info(msg string, args ...any)

	// Error logs failures that do not abort the surrounding operation,
	// such as a subscriber panicking during event delivery.
	Error(msg string, args ...any)

	// Warn logs unusual but non-failing conditions, such as a module being
	// force-disabled by a feature flag.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostic information.
	Debug(msg string, args ...any)
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps the given slog logger. Passing nil uses slog.Default.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// noopLogger discards everything. Used when no logger option is supplied.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}
