package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar  *zap.SugaredLogger
	initMu sync.Once
)

// initLogger builds the default process logger: JSON to stderr with ISO8601
// timestamps, level controlled by SetLevel.
func initLogger() {
	initMu.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = level
		cfg.EncoderConfig = encoderConfig()
		cfg.DisableStacktrace = true

		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}

		mu.Lock()
		if sugar == nil {
			sugar = l.Sugar()
		}
		mu.Unlock()
	})
}

// SetLogger replaces the process logger. Tests use this to install an
// observer core.
func SetLogger(l *zap.Logger) {
	initMu.Do(func() {})
	mu.Lock()
	sugar = l.Sugar()
	mu.Unlock()
}

// AddFileOutput tees every entry that passes the current level into a
// size-rotated JSON file. maxSizeMB and keepDays of zero use lumberjack's
// defaults (100 MB, no age limit).
func AddFileOutput(path string, maxSizeMB, keepDays int) {
	initLogger()
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(&lumberjack.Logger{
			Filename: path,
			MaxSize:  maxSizeMB,
			MaxAge:   keepDays,
		}),
		level,
	)

	mu.Lock()
	sugar = zap.New(zapcore.NewTee(sugar.Desugar().Core(), fileCore)).Sugar()
	mu.Unlock()
}

func encoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return enc
}

// SetLevel changes the minimum level of the default logger.
func SetLevel(l Level) {
	level.SetLevel(toZapLevel(l))
}

// ParseLevel maps a config string ("debug", "INFO", ...) to a Level.
// Unknown values fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// Sync flushes buffered entries. Call before exit.
func Sync() {
	_ = logger().Sync()
}

func Debug(msg string, kv ...any) {
	logger().Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	logger().Infow(msg, kv...)
}

func Warn(msg string, kv ...any) {
	logger().Warnw(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logger().Errorw(msg, extended...)
}

func logger() *zap.SugaredLogger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
