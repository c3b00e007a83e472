// Package logger wraps zap behind a small interface so call sites never
// import zap directly.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Interface is the logging surface every component depends on.
type Interface interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Fatal(msg string, kv ...any)
	With(kv ...any) Interface
}

// Config controls level and encoding for New.
type Config struct {
	Level    string // debug, info, warn, error
	Encoding string // console, json
}

// Logger is the zap-backed Interface implementation.
type Logger struct {
	z *zap.Logger
}

var _ Interface = (*Logger)(nil)

// New builds a Logger from Config, defaulting to info/console.
func New(cfg Config) (*Logger, error) {
	level := parseLevel(cfg.Level)
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "console"
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if encoding == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var encoder zapcore.Encoder
	if encoding == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	z := zap.New(core, zap.AddCaller())
	return &Logger{z: z}, nil
}

// Noop returns a Logger that discards everything, for tests.
func Noop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *Logger) Debug(msg string, kv ...any) { l.z.Sugar().Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.z.Sugar().Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.z.Sugar().Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.z.Sugar().Errorw(msg, kv...) }
func (l *Logger) Fatal(msg string, kv ...any) { l.z.Sugar().Fatalw(msg, kv...) }

// With returns a child logger carrying the given key-value pairs on every
// subsequent call.
func (l *Logger) With(kv ...any) Interface {
	return &Logger{z: l.z.Sugar().With(kv...).Desugar()}
}
