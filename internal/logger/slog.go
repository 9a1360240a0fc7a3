package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// SlogLogger implements Logger on top of log/slog.
type SlogLogger struct {
	logger *slog.Logger
}

// Options controls the output format of NewSlogLoggerWithOptions.
type Options struct {
	Level    LogLevel
	JSON     bool
	Location *time.Location
}

// NewSlogLogger creates a text logger writing to w. A nil tz keeps UTC timestamps.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) *SlogLogger {
	return NewSlogLoggerWithOptions(w, Options{Level: level, Location: tz})
}

// NewSlogLoggerWithOptions creates a logger writing to w with the given options.
// A nil writer falls back to os.Stderr.
func NewSlogLoggerWithOptions(w io.Writer, opts Options) *SlogLogger {
	if w == nil {
		w = os.Stderr
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	handlerOpts := &slog.HandlerOptions{
		Level: toSlogLevel(opts.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Time(slog.TimeKey, a.Value.Time().In(loc))
			}
			return a
		},
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return &SlogLogger{logger: slog.New(handler)}
}

func (l *SlogLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }
func (l *SlogLogger) Info(msg string, fields ...Field)  { l.log(slog.LevelInfo, msg, fields) }
func (l *SlogLogger) Warn(msg string, fields ...Field)  { l.log(slog.LevelWarn, msg, fields) }
func (l *SlogLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

// With returns a child logger carrying fields.
func (l *SlogLogger) With(fields ...Field) Logger {
	return &SlogLogger{logger: l.logger.With(toArgs(fields)...)}
}

// Module returns a child logger tagged with the component name.
func (l *SlogLogger) Module(name string) Logger {
	return &SlogLogger{logger: l.logger.With(slog.String("module", name))}
}

func (l *SlogLogger) log(level slog.Level, msg string, fields []Field) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, msg, toArgs(fields)...)
}

func toArgs(fields []Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, slog.Any(f.Key, f.Value))
	}
	return args
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
