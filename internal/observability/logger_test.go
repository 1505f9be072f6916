package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"":        zap.InfoLevel,
		"info":    zap.InfoLevel,
		"DEBUG":   zap.DebugLevel,
		" warn ":  zap.WarnLevel,
		"Warning": zap.WarnLevel,
		"error":   zap.ErrorLevel,
		"fatal":   zap.FatalLevel,
		"verbose": zap.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), "parseLogLevel(%q)", in)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"", "json", "console"} {
		logger, err := newLogger("debug", format)
		require.NoError(t, err, "format %q", format)
		assert.True(t, logger.Core().Enabled(zap.DebugLevel), "format %q", format)
	}

	logger, err := newLogger("error", "")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.WarnLevel))
}

func TestFlushTelemetry(t *testing.T) {
	assert.NoError(t, FlushTelemetry(context.Background(), nil))
	assert.NoError(t, FlushTelemetry(context.Background(), zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, FlushTelemetry(ctx, zap.NewNop()), context.Canceled)
}

func TestUnsyncable(t *testing.T) {
	assert.True(t, unsyncable(fmt.Errorf("sync /dev/stderr: %w", syscall.EINVAL)))
	assert.True(t, unsyncable(syscall.ENOTTY))
	assert.False(t, unsyncable(errors.New("disk full")))
}
