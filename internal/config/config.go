package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/domain"
	apperrors "github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/errors"
)

// Config represents the main configuration structure
type Config struct {
	Server      ServerConfig             `yaml:"server"`
	Strategy    domain.Strategy          `yaml:"strategy"`
	Backends    []BackendConfig          `yaml:"backends"`
	HealthCheck domain.HealthCheckConfig `yaml:"health_check"`
	AbuseGuard  domain.AbuseGuardConfig  `yaml:"abuse_guard"`
	Affinity    domain.AffinityConfig    `yaml:"affinity"`
	BurstLimit  domain.BurstLimitConfig  `yaml:"burst_limit"`
	Forward     domain.ForwardConfig     `yaml:"forward"`
	Logging     LoggingConfig            `yaml:"logging"`
	Admin       AdminConfig              `yaml:"admin"`
}

// ServerConfig contains HTTP server specific configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// BackendConfig contains backend server configuration. Availability
// defaults to true when omitted.
type BackendConfig struct {
	URL       string `yaml:"url"`
	Available *bool  `yaml:"available,omitempty"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AdminConfig contains admin API configuration
type AdminConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Strategy: domain.RoundRobinStrategy,
		HealthCheck: domain.HealthCheckConfig{
			Interval: 10 * time.Second,
			Timeout:  3 * time.Second,
			Path:     "/health",
		},
		AbuseGuard: domain.AbuseGuardConfig{
			Limit:  100,
			Window: 60 * time.Second,
		},
		Affinity: domain.AffinityConfig{
			CookieName: "lb_affinity",
		},
		BurstLimit: domain.BurstLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Forward: domain.ForwardConfig{
			MaxIdleConnsPerHost: 32,
			MaxConnsPerHost:     256,
			IdleConnTimeout:     90 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Admin: AdminConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// LoadConfig loads configuration from an optional YAML file (CONFIG_FILE)
// with LB_* environment overrides applied on top, then validates it.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.NewErrorWithCause(apperrors.ErrCodeConfigLoad, "config",
				fmt.Sprintf("failed to read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.NewErrorWithCause(apperrors.ErrCodeConfigLoad, "config",
				fmt.Sprintf("failed to parse config file %s", path), err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies LB_* environment variables over the config
func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("LB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if strategy := os.Getenv("LB_STRATEGY"); strategy != "" {
		cfg.Strategy = domain.Strategy(strategy)
	}
	if backends := os.Getenv("LB_BACKENDS"); backends != "" {
		cfg.Backends = nil
		for _, u := range strings.Split(backends, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.Backends = append(cfg.Backends, BackendConfig{URL: u})
			}
		}
	}
	if secret := os.Getenv("LB_AFFINITY_SECRET"); secret != "" {
		cfg.Affinity.Secret = secret
	}
	if name := os.Getenv("LB_AFFINITY_COOKIE"); name != "" {
		cfg.Affinity.CookieName = name
	}
	if secure := os.Getenv("LB_AFFINITY_SECURE"); secure != "" {
		cfg.Affinity.Secure = secure == "true"
	}
	if interval := os.Getenv("LB_HEALTH_CHECK_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.HealthCheck.Interval = d
		}
	}
	if timeout := os.Getenv("LB_HEALTH_CHECK_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.HealthCheck.Timeout = d
		}
	}
	if path := os.Getenv("LB_HEALTH_CHECK_PATH"); path != "" {
		cfg.HealthCheck.Path = path
	}
	if limit := os.Getenv("LB_ABUSE_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			cfg.AbuseGuard.Limit = n
		}
	}
	if window := os.Getenv("LB_ABUSE_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			cfg.AbuseGuard.Window = d
		}
	}
	if enabled := os.Getenv("LB_BURST_LIMIT_ENABLED"); enabled != "" {
		cfg.BurstLimit.Enabled = enabled == "true"
	}
	if level := os.Getenv("LB_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if enabled := os.Getenv("LB_ADMIN_ENABLED"); enabled != "" {
		cfg.Admin.Enabled = enabled == "true"
	}
	if port := os.Getenv("LB_ADMIN_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Admin.Port = p
		}
	}
}

// Validate checks the configuration for fatal problems. A missing
// affinity secret or an empty backend list means no request can be
// served, so startup must fail.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Affinity.Secret) == "" {
		return apperrors.NewError(apperrors.ErrCodeInvalidSecret, "config",
			"affinity secret is required (set affinity.secret or LB_AFFINITY_SECRET)")
	}

	if len(c.Backends) == 0 {
		return apperrors.NewError(apperrors.ErrCodeConfigLoad, "config",
			"at least one backend must be configured")
	}

	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		u, err := url.Parse(b.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return apperrors.NewError(apperrors.ErrCodeConfigLoad, "config",
				fmt.Sprintf("backend %q is not a valid URL", b.URL))
		}
		if seen[b.URL] {
			return apperrors.NewError(apperrors.ErrCodeConfigLoad, "config",
				fmt.Sprintf("backend %q is configured twice", b.URL))
		}
		seen[b.URL] = true
	}

	switch c.Strategy {
	case domain.RoundRobinStrategy, domain.LeastConnectionsStrategy, "":
	default:
		return apperrors.NewError(apperrors.ErrCodeInvalidStrategy, "config",
			fmt.Sprintf("unsupported strategy %q", c.Strategy))
	}

	return nil
}

// ToBackends converts the backend configuration to domain backends,
// preserving configuration order as the pool's registration order.
func (c *Config) ToBackends() []*domain.Backend {
	backends := make([]*domain.Backend, 0, len(c.Backends))
	for _, b := range c.Backends {
		available := true
		if b.Available != nil {
			available = *b.Available
		}
		backends = append(backends, domain.NewBackend(b.URL, available))
	}
	return backends
}
