package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	cfg := DefaultConfig()
	cfg.File = path

	logger, err := New(cfg)
	require.NoError(t, err)

	logger.Info("session synced")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"session synced"`)
	assert.Contains(t, string(data), `"level":"info"`)
}

func TestDevelopmentConfig(t *testing.T) {
	cfg := DevelopmentConfig()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.Development)

	logger, err := New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger.Logger)
}
