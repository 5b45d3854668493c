// Package rtlog provides the leveled logging used by the sequencer core.
//
// The tick-critical path (sequencer ticks, service releases) never logs
// synchronously: it calls TickSafe, which appends to a bounded,
// mutex-guarded backlog (dropping the record when the backlog is full)
// that a dedicated, low-priority flusher service drains.
// Everything else logs directly through the wrapped zap logger.
package rtlog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.SugaredLogger with the level-gated convenience methods
// the rest of the core depends on.
type Logger struct {
	sugar *zap.SugaredLogger

	mu      sync.Mutex
	pending []string
	dropped uint64
	cap     int
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Config controls logger construction.
type Config struct {
	Level      zapcore.Level
	Output     zapcore.WriteSyncer
	BufferSize int // capacity of the TickSafe backlog, default 256
}

// DefaultConfig returns sensible defaults: info level, stderr output.
func DefaultConfig() Config {
	return Config{
		Level:      zapcore.InfoLevel,
		Output:     zapcore.AddSync(os.Stderr),
		BufferSize: 256,
	}
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = zapcore.AddSync(os.Stderr)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), cfg.Output, cfg.Level)
	return &Logger{
		sugar: zap.New(core).Sugar(),
		cap:   cfg.BufferSize,
	}
}

// Default returns the process default logger, creating it on first use.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}

// SetDefault replaces the process default logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }

func (l *Logger) Debug(msg string, kv ...any) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.sugar.Errorw(msg, kv...) }

// TickSafe queues msg for the flusher without blocking the calling thread.
// If the backlog is full the record is dropped and counted; a real-time
// thread must never wait on log I/O.
func (l *Logger) TickSafe(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) >= l.cap {
		l.dropped++
		return
	}
	l.pending = append(l.pending, msg)
}

// Drain is called by the log-flusher service to emit and clear the backlog.
// It is the only place pending TickSafe records reach the underlying sink.
func (l *Logger) Drain() {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	dropped := l.dropped
	l.dropped = 0
	l.mu.Unlock()

	for _, msg := range batch {
		l.sugar.Info(msg)
	}
	if dropped > 0 {
		l.sugar.Warnw("tick-safe log backlog overflowed", "dropped", dropped)
	}
}

// Sync flushes the underlying zap core.
func (l *Logger) Sync() error { return l.sugar.Sync() }
