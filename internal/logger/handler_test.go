package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FadiShak3r/rag-system/internal/logger"
	"github.com/FadiShak3r/rag-system/internal/middleware"
)

func TestContextHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewContextHandler(slog.NewJSONHandler(&buf, nil))
	log := slog.New(h)

	ctx := middleware.WithCorrelationID(context.Background(), "run-42")
	log.InfoContext(ctx, "sync started")

	var entry map[string]any
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-42", entry["correlation_id"])
	assert.Equal(t, "sync started", entry["msg"])
}

func TestContextHandler_MissingID(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewContextHandler(slog.NewJSONHandler(&buf, nil))
	log := slog.New(h)

	log.Info("no context")

	var entry map[string]any
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, present := entry["correlation_id"]
	assert.False(t, present)
}
