package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agri.log")
	l := New(Options{Format: "json", Level: "info", File: path, MaxSizeMB: 1})

	l.Info("advice generated", "crop", "tomato")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"crop":"tomato"`)
	assert.Contains(t, string(data), `"service":"agri-advisor"`)
}

func TestSetLoggerIgnoresNil(t *testing.T) {
	before := Logger()
	SetLogger(nil)
	assert.Same(t, before, Logger())
}
