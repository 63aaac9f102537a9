package obs

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerOnce sync.Once
	logger     *zap.Logger
)

// LogConfig controls the shared logger. Env "prod" selects JSON output,
// anything else a human-readable console encoder.
type LogConfig struct {
	Env   string
	Level string
}

// InitLogger builds the process-wide logger. Idempotent: only the first call
// has effect. Call from main before anything logs.
func InitLogger(cfg LogConfig) {
	loggerOnce.Do(func() {
		logger = buildLogger(cfg)
	})
}

// Logger returns the shared logger, constructing a dev default if InitLogger
// was never called (tests, tools).
func Logger() *zap.Logger {
	if logger == nil {
		InitLogger(LogConfig{Env: "dev", Level: "info"})
	}
	return logger
}

// Named returns the shared logger tagged with a component name.
func Named(name string) *zap.Logger {
	return Logger().Named(name)
}

// Sync flushes buffered log entries. Defer from main.
func Sync() error {
	if logger != nil {
		return logger.Sync()
	}
	return nil
}

func buildLogger(cfg LogConfig) *zap.Logger {
	var zc zap.Config
	if strings.EqualFold(cfg.Env, "prod") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level)); err == nil && cfg.Level != "" {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	zc.DisableStacktrace = true
	l, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
