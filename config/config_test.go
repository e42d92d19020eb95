package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresBotToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "abc123")
	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "abc123", c.BotToken)
	require.Equal(t, uint32(8192), c.RingSize)
	require.Equal(t, "info", c.LogLevel)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "abc123")
	t.Setenv("BOT_RING_SIZE", "256")
	t.Setenv("BOT_LOG_LEVEL", "debug")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, uint32(256), c.RingSize)
	require.Equal(t, "debug", c.LogLevel)
}
