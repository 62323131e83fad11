package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, time.Hour, cfg.MaxSessionAge)
	assert.Equal(t, 2*time.Minute, cfg.DeadlineGrace)
	assert.False(t, cfg.Dev)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("DATABASE_URL", "postgres://localhost/drafts")
	t.Setenv("TOKEN_TTL", "45m")
	t.Setenv("DEADLINE_GRACE", "90s")
	t.Setenv("DEV", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "postgres://localhost/drafts", cfg.DatabaseURL)
	assert.Equal(t, 45*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 90*time.Second, cfg.DeadlineGrace)
	assert.True(t, cfg.Dev)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err)
}
