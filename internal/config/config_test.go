package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("PROBE_TIMEOUT_SECONDS", "")
	t.Setenv("BILLING_PORTAL_BASE_URL", "")
	t.Setenv("REFRESH_INTERVAL_MINUTES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.Validation.ProbeTimeout())
	assert.Equal(t, "https://portal.withorb.com", cfg.Validation.BillingPortalBaseURL)
	assert.Zero(t, cfg.Validation.RefreshInterval())
	assert.Equal(t, 15*time.Minute, cfg.Auth.LockoutDuration())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("PROBE_TIMEOUT_SECONDS", "5")
	t.Setenv("BATCH_PROBES_PER_SECOND", "2.5")
	t.Setenv("REFRESH_INTERVAL_MINUTES", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, 5*time.Second, cfg.Validation.ProbeTimeout())
	assert.Equal(t, 2.5, cfg.Validation.BatchProbesPerSecond)
	assert.Equal(t, time.Hour, cfg.Validation.RefreshInterval())
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	assert.Error(t, err)
}
