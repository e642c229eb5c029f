package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. The returned level can be changed at
// runtime, which the Watcher does when log_level is edited.
func NewLogger(cfg *Config) (*zap.Logger, zap.AtomicLevel, error) {
	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.LogLevel))

	logger, err := zc.Build(zap.Fields(
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
	))
	if err != nil {
		return nil, zc.Level, err
	}
	return logger, zc.Level, nil
}

// ParseLevel maps a level name to a zap level, defaulting to info
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// ApplyLogLevel keeps level in sync with reloaded configuration
func ApplyLogLevel(w *Watcher, level zap.AtomicLevel) {
	w.OnChange(func(cfg *Config) {
		level.SetLevel(ParseLevel(cfg.LogLevel))
	})
}
