package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the active log file inside the log directory.
const FileName = "uptime.log"

// NewLogger writes JSON lines to a rotating file in logDir and mirrors
// warnings and errors to stderr in console format.
func NewLogger(logDir, level string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, FileName),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, lvl)

	consoleLvl := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.WarnLevel && lvl.Enabled(l)
	})
	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), consoleLvl)

	return zap.New(zapcore.NewTee(fileCore, consoleCore)), nil
}

// ParseLevel accepts debug|info|warn|error; empty means info.
func ParseLevel(s string) (zap.AtomicLevel, error) {
	if s == "" {
		return zap.NewAtomicLevelAt(zap.InfoLevel), nil
	}
	lvl, err := zap.ParseAtomicLevel(s)
	if err != nil {
		return lvl, fmt.Errorf("logging: %w", err)
	}
	return lvl, nil
}
