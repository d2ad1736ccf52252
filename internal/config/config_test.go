package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, defaultUID32, cfg.DefaultUID)
	assert.Equal(t, defaultGID32, cfg.DefaultGID)
	assert.Equal(t, uint32(8192), cfg.DefaultTransferSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadInvalidLogLevelRejected(t *testing.T) {
	t.Setenv("NFSH_LOG_LEVEL", "verbose")
	_, err := Load(nil)
	assert.Error(t, err)
}

func TestLoadEnvOverridesTimeout(t *testing.T) {
	t.Setenv("NFSH_TIMEOUT", "30s")
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}
