package logger

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a structured log attribute.
type Field = zap.Field

func String(k, v string) Field { return zap.String(k, v) }
func Float64(k string, v float64) Field { return zap.Float64(k, v) }
func Int(k string, v int) Field { return zap.Int(k, v) }
func Int64(k string, v int64) Field { return zap.Int64(k, v) }
func Bool(k string, v bool) Field { return zap.Bool(k, v) }
func Time(k string, v time.Time) Field { return zap.Time(k, v) }
func Duration(k string, v time.Duration) Field { return zap.Duration(k, v) }
func Any(k string, v interface{}) Field { return zap.Any(k, v) }
func Err(err error) Field { return zap.Error(err) }

// Logger is the narrow logging surface used throughout the codebase.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Options controls encoder, level and optional file rotation.
type Options struct {
	Level      string // debug, info, warn, error
	Encoding   string // json or console
	File       string // empty = stderr only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type zapLogger struct {
	z *zap.Logger
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field) { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field) { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// Sync flushes buffered entries. Callers holding a Logger can type-assert
// to interface{ Sync() error }.
func (l *zapLogger) Sync() error { return l.z.Sync() }

// NewZapLogger creates a production‑ready logger (JSON encoding, level INFO).
func NewZapLogger() (Logger, error) {
	return New(Options{})
}

// New builds a zap logger from Options. When File is set, entries are
// written to both stderr and a lumberjack-rotated file.
func New(opts Options) (Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, err
		}
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch opts.Encoding {
	case "", "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console":
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, &unknownEncodingError{opts.Encoding}
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if opts.File != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}))
	}
	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	return &zapLogger{z: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}, nil
}

// Nop discards everything.
func Nop() Logger { return &zapLogger{z: zap.NewNop()} }

type unknownEncodingError struct{ enc string }

func (e *unknownEncodingError) Error() string { return "logger: unknown encoding " + e.enc }
