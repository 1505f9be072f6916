package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every log line and reported by /health.
const ServiceName = "lunar-fishing-service"

// NewLogger builds the service logger from LOG_LEVEL (default info) and
// LOG_FORMAT. LOG_FORMAT=console gives colored human-readable lines for
// local runs; anything else is JSON.
func NewLogger() (*zap.Logger, error) {
	return newLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func newLogger(level, format string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = zap.NewAtomicLevelAt(parseLogLevel(level))
	config.InitialFields = map[string]interface{}{"service": ServiceName}
	return config.Build()
}

// parseLogLevel accepts zap level names in any case plus "warning".
// Unknown or empty values fall back to info.
func parseLogLevel(s string) zapcore.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return zap.WarnLevel
	}
	level, err := zapcore.ParseLevel(s)
	if err != nil || s == "" {
		return zap.InfoLevel
	}
	return level
}
