package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerIsSilent(t *testing.T) {
	SetLogger(nil)
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}

func TestSetLoggerRoutesOutput(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(nil)

	Logger().Info("device created", "adapter", "sim")
	assert.Contains(t, buf.String(), "device created")
	assert.Contains(t, buf.String(), "adapter=sim")
}

func TestNewTextLoggerLevel(t *testing.T) {
	l := NewTextLogger("warn")
	assert.False(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, l.Enabled(context.Background(), slog.LevelWarn))

	l = NewTextLogger("bogus")
	assert.True(t, l.Enabled(context.Background(), slog.LevelInfo))
}
