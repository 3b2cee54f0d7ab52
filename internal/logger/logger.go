// Package logger builds the application-wide zap logger from environment
// variables. Components receive a *zap.Logger and never construct their own.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New constructs a zap logger. LOG_LEVEL (debug/info/warn/error, default
// info) controls verbosity and LOG_ENCODING (json/console, default console)
// controls the output format.
func New() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if err := level.Set(strings.ToLower(s)); err != nil {
			level = zapcore.InfoLevel
		}
	}

	encoding := os.Getenv("LOG_ENCODING")
	if encoding == "" {
		encoding = "console"
	}

	zc := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if encoding == "console" {
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	return zc.Build()
}
