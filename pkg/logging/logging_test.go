package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLogger_KeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", true, &buf)

	log.WithComponent("hls").Info("playlist fetched", "url", "http://a/b.m3u8", "lines", 3)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "playlist fetched", entry["message"])
	assert.Equal(t, "hls", entry["component"])
	assert.Equal(t, "http://a/b.m3u8", entry["url"])
	assert.EqualValues(t, 3, entry["lines"])
	assert.Equal(t, "info", entry["level"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", true, &buf)

	log.Debug("hidden")
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestLogger_WithHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", true, &buf)

	log.WithError(errors.New("boom")).
		WithURL("http://x/y.m3u8").
		WithRequestID("req-1").
		Error("fetch failed")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "http://x/y.m3u8", entry["url"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestLogger_Context(t *testing.T) {
	log := Nop()
	ctx := log.WithContext(context.Background())
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
