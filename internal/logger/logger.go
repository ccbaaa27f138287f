// Package logger builds the process zap logger: a console core on stderr
// and, when a file path is configured, a rotating file core.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// Level is debug, info, warn or error. Verbose forces debug.
	Level   string
	Verbose bool
	// Format is "json" or "console".
	Format string

	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Console defaults to os.Stderr; stdout carries the dashboard.
	Console io.Writer
}

// ParseLevel maps a level name to a zap level. Unknown names are an error.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns the logger and a cleanup that syncs it and closes the log file.
func New(cfg Config) (*zap.Logger, func(), error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Verbose {
		level = zapcore.DebugLevel
	}
	atom := zap.NewAtomicLevelAt(level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(consoleCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(console)), atom),
	}

	var file *lumberjack.Logger
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		// File output is always JSON.
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), atom))
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	cleanup := func() {
		_ = log.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return log, cleanup, nil
}
