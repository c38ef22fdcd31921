package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/domain"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/pkg/logger"
)

// maxBurstClients bounds the limiter map; when exceeded the stalest
// entry is evicted.
const maxBurstClients = 10000

// clientLimiter holds the token bucket for a single client
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BurstLimiter smooths short request spikes per client with a token
// bucket before the abuse guard's window counter sees them. It is
// optional and disabled by default; it complements, and never replaces,
// the abuse guard's blocking semantics.
type BurstLimiter struct {
	config  domain.BurstLimitConfig
	clients map[string]*clientLimiter
	mu      sync.Mutex
	logger  *logger.Logger
}

// NewBurstLimiter creates a burst limiter from configuration.
func NewBurstLimiter(config domain.BurstLimitConfig, log *logger.Logger) *BurstLimiter {
	return &BurstLimiter{
		config:  config,
		clients: make(map[string]*clientLimiter),
		logger:  log.MiddlewareLogger("burst_limiter"),
	}
}

// getLimiter gets or creates the token bucket for a client
func (bl *BurstLimiter) getLimiter(clientID string) *rate.Limiter {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	client, exists := bl.clients[clientID]
	if !exists {
		if len(bl.clients) >= maxBurstClients {
			bl.evictStalest()
		}
		client = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(bl.config.RequestsPerSecond), bl.config.BurstSize),
		}
		bl.clients[clientID] = client
	}
	client.lastSeen = time.Now()

	return client.limiter
}

// evictStalest removes the least recently seen client. Caller holds the lock.
func (bl *BurstLimiter) evictStalest() {
	var stalestID string
	var stalestTime time.Time

	for id, client := range bl.clients {
		if stalestID == "" || client.lastSeen.Before(stalestTime) {
			stalestID = id
			stalestTime = client.lastSeen
		}
	}

	if stalestID != "" {
		delete(bl.clients, stalestID)
	}
}

// Handler returns the burst limiting middleware.
func (bl *BurstLimiter) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !bl.config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			clientID := clientIP(r)
			limiter := bl.getLimiter(clientID)

			if !limiter.Allow() {
				bl.logger.WithField("client_id", clientID).
					WithField("path", r.URL.Path).
					Warn("Request burst limited")

				w.Header().Set("X-RateLimit-Limit",
					strconv.FormatFloat(bl.config.RequestsPerSecond, 'f', 0, 64))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetStats returns burst limiter statistics
func (bl *BurstLimiter) GetStats() map[string]interface{} {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	return map[string]interface{}{
		"enabled":          bl.config.Enabled,
		"requests_per_sec": bl.config.RequestsPerSecond,
		"burst_size":       bl.config.BurstSize,
		"active_clients":   len(bl.clients),
	}
}
