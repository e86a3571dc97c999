package security

import (
	"errors"
	"testing"

	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerAdapter_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Warn("Gateway request failed",
		ports.String("payment_id", "1001"),
		ports.Int("status_code", 502),
		ports.Int64("amount", 5288),
		ports.Bool("test_mode", true),
		ports.Err(errors.New("bad gateway")),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "1001", fields["payment_id"])
	assert.Equal(t, int64(502), fields["status_code"])
	assert.Equal(t, int64(5288), fields["amount"])
	assert.Equal(t, true, fields["test_mode"])
	assert.Equal(t, "bad gateway", fields["error"])
}

func TestZapLoggerAdapter_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("dropped")
	logger.Info("info")
	logger.Error("error")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "info", logs.All()[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger("loud", false)
	assert.Error(t, err)
}
