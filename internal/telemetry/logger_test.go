package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "", "info")

		logger.Info("order created", "order_id", "o-1")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "order created", entry["msg"])
		assert.Equal(t, "o-1", entry["order_id"])
	})

	t.Run("level filters debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "text", "warn")

		logger.Info("ignored")
		logger.Warn("restock skipped")

		assert.NotContains(t, buf.String(), "ignored")
		assert.Contains(t, buf.String(), "restock skipped")
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestJoinShutdown(t *testing.T) {
	calls := 0
	ok := func(context.Context) error { calls++; return nil }
	fail := func(context.Context) error { calls++; return errors.New("exporter closed") }

	err := JoinShutdown(ok, nil, fail)(context.Background())

	assert.Equal(t, 2, calls)
	assert.EqualError(t, err, "exporter closed")
}
