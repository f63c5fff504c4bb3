// Package logging provides structured diagnostic logging for the daf CLI
// using slog. Logs are JSON lines written to <root>/logs/<session>.log so a
// broken run can be reconstructed after the fact.
//
// Usage:
//
//	if err := logging.Init(sessionName); err != nil {
//	    // handle error
//	}
//	defer logging.Close()
//
//	ctx = logging.WithComponent(ctx, "capture")
//	logging.Info(ctx, "transcript bound", slog.String("agent_session_id", id))
package logging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/devaiflow/cli/cmd/daf/cli/paths"
)

// LogLevelEnvVar controls log verbosity (debug, info, warn, error).
const LogLevelEnvVar = "DAF_LOG_LEVEL"

// DebugEnvVar enables verbose HTTP logging when set to 1.
const DebugEnvVar = "DEVAIFLOW_DEBUG"

var (
	logger         *slog.Logger
	logFile        *os.File
	logBufWriter   *bufio.Writer
	currentSession string

	// mu protects all of the above.
	mu sync.RWMutex
)

// Init initializes the logger for a session, writing JSON logs to
// <root>/logs/<session>.log. Falls back to stderr if the file cannot be
// created.
func Init(sessionName string) error {
	if err := paths.ValidateSessionName(sessionName); err != nil {
		return fmt.Errorf("invalid session name for logging: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	level := parseLogLevel(os.Getenv(LogLevelEnvVar))
	if os.Getenv(DebugEnvVar) == "1" {
		level = slog.LevelDebug
	}

	root, err := paths.EnsureRoot()
	if err != nil {
		logger = createLogger(os.Stderr, level)
		return nil
	}

	logPath := filepath.Join(paths.LogsDir(root), sessionName+".log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // session name validated above
	if err != nil {
		logger = createLogger(os.Stderr, level)
		return nil
	}

	logFile = f
	logBufWriter = bufio.NewWriterSize(f, 8192)
	logger = createLogger(logBufWriter, level)
	currentSession = sessionName
	return nil
}

// Close flushes and closes the log file. Safe to call multiple times.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if logBufWriter != nil {
		_ = logBufWriter.Flush()
		logBufWriter = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	currentSession = ""
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func getSession() string {
	mu.RLock()
	defer mu.RUnlock()
	return currentSession
}

func createLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs at DEBUG level with context values automatically extracted.
func Debug(ctx context.Context, msg string, attrs ...any) {
	log(ctx, slog.LevelDebug, msg, attrs...)
}

// Info logs at INFO level with context values automatically extracted.
func Info(ctx context.Context, msg string, attrs ...any) {
	log(ctx, slog.LevelInfo, msg, attrs...)
}

// Warn logs at WARN level with context values automatically extracted.
func Warn(ctx context.Context, msg string, attrs ...any) {
	log(ctx, slog.LevelWarn, msg, attrs...)
}

// Error logs at ERROR level with context values automatically extracted.
func Error(ctx context.Context, msg string, attrs ...any) {
	log(ctx, slog.LevelError, msg, attrs...)
}

func log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	l := getLogger()

	var allAttrs []any
	if s := getSession(); s != "" {
		allAttrs = append(allAttrs, slog.String("session", s))
	}
	for _, a := range attrsFromContext(ctx) {
		allAttrs = append(allAttrs, a)
	}
	allAttrs = append(allAttrs, attrs...)

	// Context values were already extracted as attributes.
	l.Log(nil, level, msg, allAttrs...) //nolint:staticcheck // nil context is intentional
}
