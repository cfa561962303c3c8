package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"trace", zapcore.DebugLevel},
		{"", zapcore.InfoLevel},
		{"INFO", zapcore.InfoLevel},
		{" warn ", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewWithWriters_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriters(zapcore.InfoLevel, "json", &buf)

	logger.Debug("hidden")
	logger.Info("rep counted", zap.Int("reps", 3))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug entries are filtered at info level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "rep counted", entry["msg"])
	assert.Equal(t, float64(3), entry["reps"])
}

func TestNewWithWriters_Tee(t *testing.T) {
	var a, b bytes.Buffer
	logger := NewWithWriters(zapcore.DebugLevel, "console", &a, &b)
	logger.Warn("knees past toes")

	assert.Contains(t, a.String(), "knees past toes")
	assert.Contains(t, b.String(), "knees past toes")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formcoach.log")
	logger, err := New(SetupParams{
		Level:    "info",
		Format:   "json",
		FileName: path,
	})
	require.NoError(t, err)

	logger.Info("session started", zap.String("exercise", "squat"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exercise":"squat"`)
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(SetupParams{Level: "verbose"})
	assert.Error(t, err)
}
