package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "json", &buf)
	require.NoError(t, err)

	log.Info().Str("provider", "google").Msg("stream opened")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "google", line["provider"])
	assert.Equal(t, "stream opened", line["message"])
	assert.Contains(t, line, "time")

	buf.Reset()
	log.Debug().Msg("debug line")
	assert.Contains(t, buf.String(), "debug line")
}

func TestNew_ConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("WARN", "console", &buf)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_Errors(t *testing.T) {
	_, err := New("loud", "json", nil)
	assert.Error(t, err)
	_, err = New("info", "xml", nil)
	assert.EqualError(t, err, "unsupported log format")
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polychat.log")
	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	log, err := New("info", "json", f)
	require.NoError(t, err)
	log.Info().Msg("to file")
	assert.FileExists(t, path)
}
