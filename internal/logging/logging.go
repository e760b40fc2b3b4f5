package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pion/logging"
)

type Format string

const (
	TextFormat Format = "text"
	JSONFormat Format = "json"
)

func Configure(format Format, level slog.Level, writer io.Writer) {
	if writer == nil {
		writer = os.Stderr
	}
	ho := &slog.HandlerOptions{
		AddSource:   false,
		Level:       level,
		ReplaceAttr: nil,
	}
	switch format {
	case JSONFormat:
		slog.SetDefault(slog.New(slog.NewJSONHandler(writer, ho)))
	case TextFormat:
		slog.SetDefault(slog.New(slog.NewTextHandler(writer, ho)))
	default:
		panic(fmt.Sprintf("unexpected logging.format: %#v", format))
	}
}

// LoggerFactory hands out pion leveled loggers that write to slog.
type LoggerFactory struct {
	logger *slog.Logger
}

// NewLoggerFactory returns a factory writing to logger, or to the default
// slog logger at the time each scoped logger is created if logger is nil.
func NewLoggerFactory(logger *slog.Logger) *LoggerFactory {
	return &LoggerFactory{
		logger: logger,
	}
}

// NewLogger implements logging.LoggerFactory.
func (f *LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	l := f.logger
	if l == nil {
		l = slog.Default()
	}
	return &leveledLogger{
		sl: l.With("scope", scope),
	}
}

type leveledLogger struct {
	sl *slog.Logger
}

// Trace implements logging.LeveledLogger.
func (l *leveledLogger) Trace(msg string) {
	l.sl.Debug(msg, "trace", true)
}

// Tracef implements logging.LeveledLogger.
func (l *leveledLogger) Tracef(format string, args ...any) {
	l.sl.Debug(fmt.Sprintf(format, args...), "trace", true)
}

// Debug implements logging.LeveledLogger.
func (l *leveledLogger) Debug(msg string) {
	l.sl.Debug(msg)
}

// Debugf implements logging.LeveledLogger.
func (l *leveledLogger) Debugf(format string, args ...any) {
	l.sl.Debug(fmt.Sprintf(format, args...))
}

// Info implements logging.LeveledLogger.
func (l *leveledLogger) Info(msg string) {
	l.sl.Info(msg)
}

// Infof implements logging.LeveledLogger.
func (l *leveledLogger) Infof(format string, args ...any) {
	l.sl.Info(fmt.Sprintf(format, args...))
}

// Warn implements logging.LeveledLogger.
func (l *leveledLogger) Warn(msg string) {
	l.sl.Warn(msg)
}

// Warnf implements logging.LeveledLogger.
func (l *leveledLogger) Warnf(format string, args ...any) {
	l.sl.Warn(fmt.Sprintf(format, args...))
}

// Error implements logging.LeveledLogger.
func (l *leveledLogger) Error(msg string) {
	l.sl.Error(msg)
}

// Errorf implements logging.LeveledLogger.
func (l *leveledLogger) Errorf(format string, args ...any) {
	l.sl.Error(fmt.Sprintf(format, args...))
}

// ParseFormat accepts the values of the -log-format flag.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case TextFormat:
		return TextFormat, nil
	case JSONFormat:
		return JSONFormat, nil
	}
	return "", fmt.Errorf("unknown log format: %q", s)
}
