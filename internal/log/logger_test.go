package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Component: ComponentStore, Output: &buf})

	logger.Info("hello", FieldCount, 3)
	line := buf.String()
	assert.Contains(t, line, "component=store")
	assert.Contains(t, line, "count=3")

	buf.Reset()
	logger.WithComponent(ComponentSheets).Warn("switched")
	line = buf.String()
	assert.Contains(t, line, "component=sheets")
	assert.Equal(t, 1, strings.Count(line, "component="), "component must not be duplicated")
	assert.Equal(t, ComponentStore, logger.Component())
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Output: &buf})
	logger.Info("structured")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"component":"app"`)
}

func TestContextRoundTrip(t *testing.T) {
	logger := Discard().WithComponent(ComponentWorker)
	ctx := WithContext(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Equal(t, "unknown", FromContext(context.Background()).Component())
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf}))
	ctx := context.Background()

	sl.LogTransactionSaved(ctx, OpCreate, "txn_1", "Coffee", "-3.50", "Food", "2025-01-02")
	assert.Contains(t, buf.String(), "transaction_id=txn_1")
	assert.Contains(t, buf.String(), "operation=create")

	buf.Reset()
	sl.LogTransactionDeleted(ctx, "txn_1")
	assert.Contains(t, buf.String(), "operation=delete")

	buf.Reset()
	sl.LogError(ctx, "save failed", errors.New("disk full"), OpSave, nil)
	require.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), `error="disk full"`)
}

func TestLogFields(t *testing.T) {
	f := NewFields().WithComponent(ComponentApp).WithError(nil).WithErrorType(ErrorTypeValidation).WithCount(2)
	_, hasErr := f[FieldError]
	assert.False(t, hasErr)
	assert.Len(t, f.ToSlice(), 6)
}
