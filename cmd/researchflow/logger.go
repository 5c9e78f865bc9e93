package main

import (
	"strings"

	"github.com/BaSui01/researchflow/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initLogger builds the process logger. An unusable config falls back to a
// production logger on stderr.
func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		level = zapcore.InfoLevel
	}

	console := cfg.Format == "console"
	var encoderConfig zapcore.EncoderConfig
	if console {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      console,
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	if console {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
