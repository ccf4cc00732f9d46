package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		want      zerolog.Level
	}{
		{"default info level", 0, zerolog.InfoLevel},
		{"negative is info", -1, zerolog.InfoLevel},
		{"debug level", 1, zerolog.DebugLevel},
		{"trace level", 2, zerolog.TraceLevel},
		{"high verbosity defaults to trace", 5, zerolog.TraceLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Level(tt.verbosity))
		})
	}
}

func TestSetupWriterJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	SetupWriter(&buf, 0, true)

	logger := GetLogger("aggregate")
	logger.Info().Str("source", "Google").Msg("Source written")
	logger.Debug().Msg("hidden at verbosity 0")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "aggregate", entry["component"])
	assert.Equal(t, "Google", entry["source"])
	assert.Equal(t, "info", entry["level"])
}

func TestSetupWriterConsole(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	SetupWriter(&buf, 1, false)
	logger := GetLogger("cli")
	logger.Debug().Msg("visible")

	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "component=")
}

func TestLogDuration(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogDuration(logger, time.Now().Add(-2*time.Second), "fetch")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "fetch", entry["operation"])
	assert.GreaterOrEqual(t, entry["duration"].(float64), float64(2000))
}
