package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, "3001", cfg.Port)
	require.Equal(t, 5, cfg.RefreshBufferMinutes)
	require.Equal(t, 360, cfg.SchedulerIntervalMinutes)
	require.Equal(t, 3, cfg.RetryMaxAttempts)
	require.Equal(t, 30, cfg.LogRetentionDays)
	require.True(t, cfg.SchedulerAutostart)
	require.Equal(t, "mall.read_community,mall.write_community", cfg.Cafe24Scope)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("TOKEN_REFRESH_BUFFER_MINUTES", "10")
	t.Setenv("SCHEDULER_AUTOSTART", "false")
	t.Setenv("RETRY_DELAY_SECONDS", "2")

	cfg := Load()
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 10*time.Minute, cfg.RefreshBuffer())
	require.False(t, cfg.SchedulerAutostart)
	require.Equal(t, 2*time.Second, cfg.RetryDelay())
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL_MINUTES", "not-a-number")
	t.Setenv("SCHEDULER_AUTOSTART", "maybe")

	cfg := Load()
	require.Equal(t, 360, cfg.SchedulerIntervalMinutes)
	require.True(t, cfg.SchedulerAutostart)
}
