package domain

import (
	"sync/atomic"
	"time"
)

// Strategy identifies the backend selection policy.
type Strategy string

const (
	// RoundRobinStrategy cycles over available backends in registration order
	RoundRobinStrategy Strategy = "round_robin"
	// LeastConnectionsStrategy routes to the backend with fewest in-flight requests
	LeastConnectionsStrategy Strategy = "least_connections"
)

// Backend represents a backend server with its runtime state.
// The identity is the backend's base URL and is fixed at construction;
// availability and the in-flight counter are the only mutable fields.
type Backend struct {
	Identity string

	available atomic.Bool
	inFlight  int64
}

// NewBackend creates a Backend with the given initial availability.
func NewBackend(identity string, available bool) *Backend {
	b := &Backend{Identity: identity}
	b.available.Store(available)
	return b
}

// SetAvailable updates the backend's availability. Only the health
// monitor calls this.
func (b *Backend) SetAvailable(available bool) {
	b.available.Store(available)
}

// IsAvailable returns true if the backend may receive traffic.
func (b *Backend) IsAvailable() bool {
	return b.available.Load()
}

// IncrementInFlight atomically increments the in-flight request count.
func (b *Backend) IncrementInFlight() {
	atomic.AddInt64(&b.inFlight, 1)
}

// DecrementInFlight atomically decrements the in-flight request count.
// The count never goes below zero.
func (b *Backend) DecrementInFlight() {
	if v := atomic.AddInt64(&b.inFlight, -1); v < 0 {
		atomic.AddInt64(&b.inFlight, 1)
	}
}

// InFlight returns the current number of in-flight requests.
func (b *Backend) InFlight() int64 {
	return atomic.LoadInt64(&b.inFlight)
}

// HealthCheckConfig defines configuration for the health monitor.
type HealthCheckConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Path     string        `yaml:"path"`
}

// AbuseGuardConfig defines configuration for per-client abuse mitigation.
type AbuseGuardConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// AffinityConfig defines configuration for the session-affinity cookie.
type AffinityConfig struct {
	CookieName string `yaml:"cookie_name"`
	Secure     bool   `yaml:"secure"`
	Secret     string `yaml:"secret"`
}

// BurstLimitConfig defines configuration for the optional token-bucket
// burst limiter layered in front of the abuse guard.
type BurstLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// ForwardConfig defines configuration for the proxied transport shared
// across all forwarded requests.
type ForwardConfig struct {
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}
