package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

// RequestIDKey carries the request ID set by the request-ID middleware.
const RequestIDKey contextKey = "request_id"

// Logger is a named, structured logger for one console component.
type Logger struct {
	*zap.SugaredLogger
	component string
}

// NewLogger creates a logger for a component. APP_ENV=production switches
// to JSON output at info level; anything else logs console lines at debug.
func NewLogger(component string) *Logger {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	level := zap.DebugLevel
	if env == "production" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
		level = zap.InfoLevel
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zap.NewAtomicLevelAt(level))
	return New(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)), component)
}

// New wraps an existing zap logger, e.g. an observer in tests.
func New(z *zap.Logger, component string) *Logger {
	return &Logger{
		SugaredLogger: z.Sugar().With("component", component),
		component:     component,
	}
}

// Nop discards everything.
func Nop() *Logger {
	return New(zap.NewNop(), "nop")
}

// WithContext adds the request ID, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		return &Logger{SugaredLogger: l.With("request_id", requestID), component: l.component}
	}
	return l
}

// WithUser adds the acting user's ID.
func (l *Logger) WithUser(userID int64) *Logger {
	return &Logger{SugaredLogger: l.With("user_id", userID), component: l.component}
}

// Error logs an error-level message
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, keysAndValues...)
}

// Warn logs a warn-level message
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.Warnw(msg, keysAndValues...)
}

// Info logs an info-level message
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

// Debug logs a debug-level message
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

// Fatal logs and exits.
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.Fatalw(msg, keysAndValues...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.SugaredLogger.Sync()
}
