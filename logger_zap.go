package prefsync

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger adapts a *zap.Logger to Logger. Key-value args are passed
// through zap's sugared API so callers keep the slog calling convention.
type zapLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// NewZapLogger builds a production zap Logger at info level.
func NewZapLogger() (Logger, error) {
	config := zap.NewProductionConfig()
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	config.Level = level
	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: logger.Sugar(), level: level}, nil
}

// WrapZap adapts an existing *zap.Logger. SetLevel has no effect on it
// unless the logger was built from the returned level.
func WrapZap(logger *zap.Logger) Logger {
	return &zapLogger{sugar: logger.Sugar(), level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
}

func (l *zapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *zapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *zapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

func (l *zapLogger) SetLevel(level LogLevel) {
	switch level {
	case LogLevelDebug:
		l.level.SetLevel(zapcore.DebugLevel)
	case LogLevelWarn:
		l.level.SetLevel(zapcore.WarnLevel)
	case LogLevelError:
		l.level.SetLevel(zapcore.ErrorLevel)
	default:
		l.level.SetLevel(zapcore.InfoLevel)
	}
}

// Sync flushes buffered zap output.
func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}
