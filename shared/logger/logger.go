package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin wrapper around zap.Logger shared by the client packages
type Logger struct {
	logger *zap.Logger
}

// Field holds a key-value pair written with a log entry
type Field struct {
	Key   string
	Value any
}

// NewField returns a Field with the given key and value
func NewField(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Level represents the minimum severity that is written
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (level Level) zapLevel() zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Options configures a new Logger
type Options struct {
	level       Level
	outputPaths []string
	development bool
}

// WithLevel sets the minimum level that is logged
func WithLevel(level Level) Options {
	return Options{level: level}
}

// WithOutputPaths sets where entries are written ("stdout", "stderr" or file paths)
func WithOutputPaths(paths []string) Options {
	return Options{outputPaths: paths}
}

// WithDevelopment switches to the human-readable console encoder
func WithDevelopment() Options {
	return Options{development: true}
}

// New builds a Logger from the given options
func New(opts ...Options) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	for _, opt := range opts {
		if opt.development {
			cfg = zap.NewDevelopmentConfig()
		}
	}
	for _, opt := range opts {
		if opt.level != "" {
			cfg.Level = zap.NewAtomicLevelAt(opt.level.zapLevel())
		}
		if opt.outputPaths != nil {
			cfg.OutputPaths = opt.outputPaths
		}
	}
	cfg.EncoderConfig.MessageKey = "message"

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{logger: l}, nil
}

// NewNop returns a Logger that discards everything
func NewNop() *Logger {
	return &Logger{logger: zap.NewNop()}
}

// Zap exposes the underlying zap.Logger
func (l *Logger) Zap() *zap.Logger {
	return l.logger
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.logger.Sync()
}

func (l *Logger) Debug(message string, fields ...Field) {
	l.logger.Debug(message, convertFields(fields)...)
}

func (l *Logger) Info(message string, fields ...Field) {
	l.logger.Info(message, convertFields(fields)...)
}

func (l *Logger) Warn(message string, fields ...Field) {
	l.logger.Warn(message, convertFields(fields)...)
}

// Error logs err as the message with the given fields
func (l *Logger) Error(err error, fields ...Field) {
	l.logger.Error(err.Error(), convertFields(fields)...)
}

// WithFields returns a child logger that always carries fields
func (l *Logger) WithFields(fields ...Field) *Logger {
	return &Logger{logger: l.logger.With(convertFields(fields)...)}
}

func convertFields(fields []Field) []zapcore.Field {
	zapFields := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		zapFields = append(zapFields, zap.Any(f.Key, f.Value))
	}
	return zapFields
}
