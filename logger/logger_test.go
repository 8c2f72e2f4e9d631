package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{input: "debug", expected: slog.LevelDebug},
		{input: "DEBUG", expected: slog.LevelDebug},
		{input: "warn", expected: slog.LevelWarn},
		{input: "warning", expected: slog.LevelWarn},
		{input: " error ", expected: slog.LevelError},
		{input: "info", expected: slog.LevelInfo},
		{input: "", expected: slog.LevelInfo},
		{input: "verbose", expected: slog.LevelInfo},
	}

	for _, testCase := range testCases {
		t.Run(testCase.input, func(t *testing.T) {
			assert := require.New(t)
			assert.Equal(testCase.expected, ParseLevel(testCase.input))
		})
	}
}

func TestJSONLoggerRespectsLevel(t *testing.T) {
	assert := require.New(t)
	var buf bytes.Buffer
	log := newJSONLogger(&buf, "warn")

	log.Info("dropped")
	assert.Zero(buf.Len(), "info should be filtered at warn level")

	log.Warn("kept", "index", "site_scp-jp")
	var entry map[string]any
	assert.NoError(json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal("kept", entry["msg"])
	assert.Equal("site_scp-jp", entry["index"])
	assert.Contains(entry, "source")
}
