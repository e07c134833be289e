package common

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ILogger is the logging surface every component depends on instead of a
// concrete *zap.Logger, so tests can substitute NopLogger.
type ILogger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	// WithSession returns a logger that tags every subsequent entry with
	// the given session ID, mirroring the per-job log separation the
	// pipeline needs when many sessions interleave on one process.
	WithSession(id uuid.UUID) ILogger
}

type zapLogger struct {
	l *zap.Logger
}

// NewLogger builds the process-wide logger. prod selects zap's JSON
// production encoder; the non-prod path uses zap's human-readable console
// encoder, matching the two-mode split operators expect from a service.
func NewLogger(prod bool) (ILogger, error) {
	var cfg zap.Config
	if prod {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{l: l}, nil
}

// NopLogger discards everything; used as a safe default and in tests.
func NopLogger() ILogger { return &zapLogger{l: zap.NewNop()} }

func (z *zapLogger) Debug(msg string, fields ...zap.Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...zap.Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fields...) }

func (z *zapLogger) WithSession(id uuid.UUID) ILogger {
	return &zapLogger{l: z.l.With(zap.String("session_id", id.String()))}
}

// Sync flushes buffered log entries; call on shutdown.
func Sync(l ILogger) error {
	if zl, ok := l.(*zapLogger); ok {
		return zl.l.Sync()
	}
	return nil
}
