package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	WithField(key string, value any) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
}

var (
	baseLoggerMu sync.RWMutex
	baseLogger   = newBaseLogger(os.Stderr)
)

func newBaseLogger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	return logger
}

// Configure sets the level ("debug", "info", ...) and format ("text" or "json")
// used by loggers created after the call.
func Configure(level string, format string) error {
	logger := newBaseLogger(os.Stderr)

	if strings.TrimSpace(level) != "" {
		parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
		if err != nil {
			return err
		}
		logger.SetLevel(parsed)
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logger.Warnf("unknown log format %q; using text", format)
	}

	baseLoggerMu.Lock()
	defer baseLoggerMu.Unlock()
	baseLogger = logger
	return nil
}

// SetOutput redirects the base logger, mostly for tests.
func SetOutput(out io.Writer) {
	baseLoggerMu.Lock()
	defer baseLoggerMu.Unlock()
	baseLogger.SetOutput(out)
}

func (l *logrusLogger) Debug(args ...any) {
	l.entry.Debug(args...)
}

func (l *logrusLogger) Debugf(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Info(args ...any) {
	l.entry.Info(args...)
}

func (l *logrusLogger) Infof(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Error(args ...any) {
	l.entry.Error(args...)
}

func (l *logrusLogger) Errorf(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

func (l *logrusLogger) Warn(args ...any) {
	l.entry.Warn(args...)
}

func (l *logrusLogger) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *logrusLogger) Fatal(args ...any) {
	l.entry.Fatal(args...)
}

func (l *logrusLogger) Fatalf(format string, args ...any) {
	l.entry.Fatalf(format, args...)
}

func (l *logrusLogger) WithField(key string, value any) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func NewLogger(ctx context.Context) Logger {
	factory := GetLoggerFactory()
	if factory != nil {
		return factory.CreateLogger(ctx)
	}

	return newLogrusLogger(ctx)
}

type sessionIDKey struct{}

// WithSessionID tags every logger created from the returned context with the session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

func newLogrusLogger(ctx context.Context) Logger {
	baseLoggerMu.RLock()
	logger := baseLogger
	baseLoggerMu.RUnlock()

	entry := logger.WithContext(ctx)
	if sessionID, ok := ctx.Value(sessionIDKey{}).(string); ok && sessionID != "" {
		entry = entry.WithField("session_id", sessionID)
	}
	return &logrusLogger{entry: entry}
}
