// Package obs builds the zap loggers the index's write paths and admin
// commands report through. Each index gets one JSON log file alongside
// its catalog and segment directories, and each subsystem (writer,
// merger, vacuum, scan) logs through a child logger pre-bound with its
// component name, so a single index.log line always identifies which
// part of the index produced it and for which segment.
package obs

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/paradex-labs/bm25index/internal/errs"
)

// LogFileName is the per-index log file, kept next to catalog.db so an
// index directory is self-contained: copying it preserves its history.
const LogFileName = "index.log"

// Options controls one index's logging.
type Options struct {
	// IndexDir is the index directory the log file lives in.
	IndexDir string
	// Debug lowers the level to debug; the default is info.
	Debug bool
	// Console additionally mirrors log lines to stderr, for interactive
	// admin runs.
	Console bool
}

// Logger owns the index-scoped root logger and the file it writes to.
type Logger struct {
	root *zap.SugaredLogger
	file *os.File
}

// Open creates (or appends to) the index's log file and builds the root
// logger. Callers must Close to flush buffered lines.
func Open(opts Options) (*Logger, error) {
	path := filepath.Join(opts.IndexDir, LogFileName)
	if err := os.MkdirAll(opts.IndexDir, 0o755); err != nil {
		return nil, errs.Storage(errs.CodeStorageIO, "failed to create index directory for log", err).
			WithDetail("path", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errs.Storage(errs.CodeStorageIO, "failed to open index log", err).
			WithDetail("path", path)
	}

	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level),
	}
	if opts.Console {
		cores = append(cores,
			zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stderr), level))
	}

	root := zap.New(zapcore.NewTee(cores...)).Sugar().
		With("index_dir", opts.IndexDir)

	return &Logger{root: root, file: f}, nil
}

// For returns the child logger for one subsystem ("writer", "merger",
// "vacuum", "scan", "admin").
func (l *Logger) For(component string) *zap.SugaredLogger {
	return l.root.With("component", component)
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	_ = l.root.Sync()
	return l.file.Close()
}

// Nop is the silent default components fall back to when no Logger has
// been wired, so library callers never pay for logging they did not ask
// for.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
