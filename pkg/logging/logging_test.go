package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLoggingJSON(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, configureLogging(os.Stderr, "info", "json")) })

	var buf bytes.Buffer
	require.NoError(t, configureLogging(&buf, "debug", "json"))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log.Debug().Str("component", "scheduler").Msg("test debug message")
	assert.Contains(t, buf.String(), "test debug message")
	assert.Contains(t, buf.String(), `"component":"scheduler"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestConfigureLoggingLevelFilters(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, configureLogging(os.Stderr, "info", "json")) })

	var buf bytes.Buffer
	require.NoError(t, configureLogging(&buf, "warn", "json"))

	log.Info().Msg("info message")
	assert.NotContains(t, buf.String(), "info message")

	log.Warn().Msg("warn message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestConfigureLoggingTextFormat(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, configureLogging(os.Stderr, "info", "json")) })

	var buf bytes.Buffer
	require.NoError(t, configureLogging(&buf, "info", "text"))

	log.Info().Msg("console message")
	assert.Contains(t, buf.String(), "console message")
	// Console output is human-readable, not raw JSON.
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.input), "input %q", tt.input)
	}
}
