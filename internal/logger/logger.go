package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	global *zap.Logger
)

// Init configures the process-wide logger. Safe to call more than once;
// the last call wins.
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

// Get returns the process-wide logger, falling back to a no-op logger when
// Init was never called (tests).
func Get() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = zap.NewNop()
	}
	return global
}

// Sync flushes buffered log entries.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		_ = global.Sync()
	}
}
