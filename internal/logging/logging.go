// Package logging builds the zap logger shared by every chatvk component.
// The interactive screen owns the terminal, so logs go to a file by default.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chatvk/chatvk/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger from cfg. The returned cleanup flushes and closes
// the log file; it is always non-nil.
func New(cfg config.LogConfig) (*zap.Logger, func(), error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, func() {}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	var (
		sink    zapcore.WriteSyncer
		closeFn = func() {}
	)
	switch cfg.File {
	case "-":
		sink = zapcore.Lock(os.Stderr)
	default:
		path, err := resolvePath(cfg.File)
		if err != nil {
			return nil, func() {}, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, func() {}, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, func() {}, fmt.Errorf("open log file %s: %w", path, err)
		}
		sink = zapcore.Lock(f)
		closeFn = func() { f.Close() }
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, level)
	logger := zap.New(core, zap.AddCaller())

	return logger, func() {
		_ = logger.Sync()
		closeFn()
	}, nil
}

func resolvePath(p string) (string, error) {
	if p != "" {
		return p, nil
	}
	dir, err := config.DataDir()
	if err != nil {
		return "", fmt.Errorf("log path: %w", err)
	}
	return filepath.Join(dir, "chatvk.log"), nil
}
