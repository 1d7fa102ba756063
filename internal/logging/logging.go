// Package logging wires the channel-sync engine's process-wide structured
// logger. It mirrors the shape of the teacher's IAROS logger: one zap.Logger
// per process, built once at startup, JSON in production and console in
// development.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how the process logger is constructed.
type Config struct {
	Level       string
	ServiceName string
	Environment string
	Format      string // "json" or "console"
}

// New builds a *zap.Logger tagged with service/environment fields.
func New(cfg Config) *zap.Logger {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Environment == "" {
		cfg.Environment = getEnv("CHANNEL_SYNC_ENV", "development")
	}
	if cfg.Format == "" {
		if cfg.Environment == "production" {
			cfg.Format = "json"
		} else {
			cfg.Format = "console"
		}
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)

	logger := zap.New(core, zap.AddCaller())
	if cfg.ServiceName != "" {
		logger = logger.With(zap.String("service", cfg.ServiceName), zap.String("environment", cfg.Environment))
	}
	return logger
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
