package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logf is the logging function handed to subsystems. Each subsystem gets
// one from DebugLogger.Component so its lines carry a stable prefix.
type Logf func(format string, args ...interface{})

// DebugLogger provides debug logging across the process. It wraps
// file-based logging with thread-safe access; subsystems log through
// component functions rather than holding the logger itself.
type DebugLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewDebugLogger creates a logger writing to the specified path. If the path
// is empty, returns a no-op logger. Creates parent directories if they don't
// exist.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := &DebugLogger{file: f}
	logger.Log("=== Stagehand Debug Log Started at %s ===", time.Now().Format(time.RFC3339))
	return logger, nil
}

// NopLogger returns a no-op logger for testing or when logging is disabled.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Component returns a Logf that prefixes every message with the component
// name. Safe on a nil or no-op logger.
func (l *DebugLogger) Component(name string) Logf {
	return func(format string, args ...interface{}) {
		l.Log("["+name+"] "+format, args...)
	}
}

// Log writes a timestamped message to the debug log. If the logger is nil or
// has no file, this is a no-op.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.file == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, msg)
	l.file.Sync()
}

// Close closes the log file. Safe to call on nil logger or logger without
// file.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}
