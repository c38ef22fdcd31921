package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/domain"
	apperrors "github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/errors"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Affinity.Secret = "unit-test-secret"
	cfg.Backends = []BackendConfig{
		{URL: "http://localhost:8081"},
		{URL: "http://localhost:8082"},
	}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, domain.RoundRobinStrategy, cfg.Strategy)
	assert.Equal(t, 100, cfg.AbuseGuard.Limit)
	assert.Equal(t, 60*time.Second, cfg.AbuseGuard.Window)
	assert.Equal(t, 10*time.Second, cfg.HealthCheck.Interval)
	assert.Equal(t, "/health", cfg.HealthCheck.Path)
	assert.Equal(t, "lb_affinity", cfg.Affinity.CookieName)
	assert.False(t, cfg.BurstLimit.Enabled)
}

func TestValidateRequiresSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Affinity.Secret = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidSecret))
}

func TestValidateRequiresBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Backends = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigLoad))
}

func TestValidateRejectsBadBackendURL(t *testing.T) {
	cfg := validConfig()
	cfg.Backends = []BackendConfig{{URL: "not a url"}}

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Backends = []BackendConfig{
		{URL: "http://localhost:8081"},
		{URL: "http://localhost:8081"},
	}

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy = "fastest_ping"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidStrategy))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LB_PORT", "9999")
	t.Setenv("LB_STRATEGY", "least_connections")
	t.Setenv("LB_BACKENDS", "http://x:1, http://y:2")
	t.Setenv("LB_AFFINITY_SECRET", "env-secret")
	t.Setenv("LB_ABUSE_LIMIT", "50")
	t.Setenv("LB_ABUSE_WINDOW", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, domain.LeastConnectionsStrategy, cfg.Strategy)
	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, "http://x:1", cfg.Backends[0].URL)
	assert.Equal(t, "http://y:2", cfg.Backends[1].URL)
	assert.Equal(t, "env-secret", cfg.Affinity.Secret)
	assert.Equal(t, 50, cfg.AbuseGuard.Limit)
	assert.Equal(t, 30*time.Second, cfg.AbuseGuard.Window)
}

func TestToBackendsPreservesOrderAndAvailability(t *testing.T) {
	down := false
	cfg := validConfig()
	cfg.Backends = []BackendConfig{
		{URL: "http://a:8081"},
		{URL: "http://b:8082", Available: &down},
	}

	backends := cfg.ToBackends()
	require.Len(t, backends, 2)
	assert.Equal(t, "http://a:8081", backends[0].Identity)
	assert.True(t, backends[0].IsAvailable())
	assert.Equal(t, "http://b:8082", backends[1].Identity)
	assert.False(t, backends[1].IsAvailable())
}
