package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "", cfg.RedisAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 12*time.Second, cfg.TurnDuration)
	assert.Equal(t, 1500*time.Millisecond, cfg.TalonPause)
	assert.Equal(t, 9*time.Second, cfg.RecapPause)
	assert.Equal(t, 101, cfg.MatchTargetInit)
	assert.Equal(t, 50, cfg.MatchTargetStep)
	assert.Equal(t, 5*time.Minute, cfg.InviteTTL)
	assert.Equal(t, 10*time.Minute, cfg.ReconnectTokenTTL)
	assert.Equal(t, time.Minute, cfg.DisconnectGrace)
	assert.Equal(t, 8, cfg.MaxSpectators)
	assert.False(t, cfg.DevModeEnabled)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ZING_ADDR", ":9999")
	t.Setenv("ZING_TURNDURATIONMS", "5000")
	t.Setenv("ZING_DEVMODEENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.TurnDuration)
	assert.True(t, cfg.DevModeEnabled)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.TurnDuration = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.MatchTargetStep = -1
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.MaxSpectators = -1
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.DisconnectGrace = 0
	assert.Error(t, bad.Validate())
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("ZING_TURNDURATIONMS", "-100")

	_, err := Load("")
	assert.Error(t, err)
}
