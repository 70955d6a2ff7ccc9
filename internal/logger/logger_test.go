package logger_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ribasimcore/internal/logger"
)

func TestInitWithConfigDefaultsToJSONStdout(t *testing.T) {
	logger.InitWithConfig(logger.Config{Level: "info"})
	require.NotNil(t, logger.Log)
	assert.True(t, logger.Log.Enabled(nil, slog.LevelInfo))
	assert.False(t, logger.Log.Enabled(nil, slog.LevelDebug))
}

func TestInitWithConfigTextFormat(t *testing.T) {
	logger.InitWithConfig(logger.Config{Level: "debug", Format: "text", Output: "stderr"})
	assert.True(t, logger.Log.Enabled(nil, slog.LevelDebug))
}

func TestWithRunAddsField(t *testing.T) {
	var buf bytes.Buffer
	logger.Log = slog.New(slog.NewJSONHandler(&buf, nil))
	scoped := logger.WithRun("run-123")
	scoped.Info("starting")
	assert.Contains(t, buf.String(), "run-123")
	assert.Contains(t, buf.String(), "run_id")
}

func TestWithNodeAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger.Log = slog.New(slog.NewJSONHandler(&buf, nil))
	scoped := logger.WithNode("Basin", 7)
	scoped.Warn("storage near zero")
	out := buf.String()
	assert.Contains(t, out, "\"node_kind\":\"Basin\"")
	assert.Contains(t, out, "\"node_id\":7")
}
