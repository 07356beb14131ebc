package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

const serviceName = "nfe-cost-service"

// New builds the service logger from the log section of the config.
// Production defaults to JSON, everything else to colored console lines.
// Output is stdout, stderr or a file path.
func New(cfg models.LogConfig, env string) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewDevelopmentConfig()
	if env == "production" {
		zc = zap.NewProductionConfig()
		zc.Sampling = nil
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Development = false
	zc.DisableStacktrace = false

	switch strings.ToLower(cfg.Format) {
	case "json":
		zc.Encoding = "json"
	case "console":
		zc.Encoding = "console"
	}
	if zc.Encoding == "console" {
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder

	output := cfg.Output
	if output == "" {
		output = "stdout"
	}
	zc.OutputPaths = []string{output}
	zc.ErrorOutputPaths = []string{"stderr"}

	log, err := zc.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log.With(zap.String("service", serviceName), zap.String("env", env)), nil
}

// NewForCLI logs to stderr so tables on stdout stay clean. Only warnings
// show unless verbose is set.
func NewForCLI(verbose bool) (*zap.Logger, error) {
	cfg := models.LogConfig{Level: "warn", Format: "console", Output: "stderr"}
	if verbose {
		cfg.Level = "debug"
	}
	return New(cfg, "cli")
}

// parseLevel accepts zap level names plus "warning"; empty means info
func parseLevel(level string) (zapcore.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}
