package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/domain"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/pkg/logger"
)

// clientRecord tracks request counts for one client identifier inside
// the current window.
type clientRecord struct {
	count       int
	windowStart time.Time
}

// AbuseGuard counts requests per client identifier over a sliding window
// and temporarily blocks clients that exceed the limit. A client moves
// Unseen -> Tracked on its first request, Tracked -> Blocked on the
// request that pushes its count past the limit, and back to fresh
// Tracked when the window rolls over or the reaper deletes the record.
// Unblocking is keyed to the original window start, not the moment the
// block fired.
type AbuseGuard struct {
	config  domain.AbuseGuardConfig
	records map[string]*clientRecord
	blocked map[string]struct{}
	mu      sync.Mutex
	logger  *logger.Logger

	stopChan  chan struct{}
	wg        sync.WaitGroup
	isRunning bool
	runMu     sync.Mutex

	// now is swappable for tests
	now func() time.Time
}

// NewAbuseGuard creates an abuse guard with the configured limit and
// window (defaults: 100 requests per 60s).
func NewAbuseGuard(config domain.AbuseGuardConfig, log *logger.Logger) *AbuseGuard {
	if config.Limit <= 0 {
		config.Limit = 100
	}
	if config.Window <= 0 {
		config.Window = 60 * time.Second
	}

	return &AbuseGuard{
		config:   config,
		records:  make(map[string]*clientRecord),
		blocked:  make(map[string]struct{}),
		logger:   log.MiddlewareLogger("abuse_guard"),
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Check records one request from the client and reports whether it is
// allowed. The count-compare-block sequence runs under one lock so the
// transition fires exactly on the request that crosses the limit.
func (g *AbuseGuard) Check(clientID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	rec, ok := g.records[clientID]
	if !ok {
		g.records[clientID] = &clientRecord{count: 1, windowStart: now}
		return true
	}

	if now.Sub(rec.windowStart) > g.config.Window {
		// Window expired: treat like a first request again. This also
		// clears a block even before the reaper gets to it.
		rec.count = 1
		rec.windowStart = now
		delete(g.blocked, clientID)
		return true
	}

	rec.count++
	if rec.count > g.config.Limit {
		if _, alreadyBlocked := g.blocked[clientID]; !alreadyBlocked {
			g.blocked[clientID] = struct{}{}
			g.logger.WithField("client_id", clientID).
				WithField("count", rec.count).
				Warn("Client exceeded request limit, blocking")
		}
		return false
	}

	if _, isBlocked := g.blocked[clientID]; isBlocked {
		return false
	}
	return true
}

// IsBlocked reports whether the client identifier is currently blocked.
func (g *AbuseGuard) IsBlocked(clientID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.blocked[clientID]
	return ok
}

// reap deletes every record whose window has fully elapsed and clears
// the corresponding block, regardless of blocked state.
func (g *AbuseGuard) reap() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for id, rec := range g.records {
		if now.Sub(rec.windowStart) > g.config.Window {
			delete(g.records, id)
			delete(g.blocked, id)
			removed++
		}
	}

	if removed > 0 {
		g.logger.WithField("removed", removed).
			WithField("tracked", len(g.records)).
			Debug("Reaped expired client records")
	}
}

// StartReaper launches the periodic reaper. It runs once per window
// duration until Stop is called or the context is cancelled.
func (g *AbuseGuard) StartReaper(ctx context.Context) {
	g.runMu.Lock()
	defer g.runMu.Unlock()

	if g.isRunning {
		return
	}
	g.isRunning = true

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ticker := time.NewTicker(g.config.Window)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-g.stopChan:
				return
			case <-ticker.C:
				g.reap()
			}
		}
	}()

	g.logger.Infof("Abuse guard reaper started, interval %v", g.config.Window)
}

// Stop halts the reaper.
func (g *AbuseGuard) Stop() {
	g.runMu.Lock()
	defer g.runMu.Unlock()

	if !g.isRunning {
		return
	}

	close(g.stopChan)
	g.wg.Wait()
	g.isRunning = false
	g.stopChan = make(chan struct{})
}

// Handler returns the gate middleware. Blocked clients receive an
// immediate 403 and never reach selection or forwarding.
func (g *AbuseGuard) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := clientIP(r)

			if !g.Check(clientID) {
				g.logger.WithField("client_id", clientID).
					WithField("path", r.URL.Path).
					Warn("Request rejected: client blocked")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetStats returns abuse guard statistics
func (g *AbuseGuard) GetStats() map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	return map[string]interface{}{
		"limit":           g.config.Limit,
		"window":          g.config.Window.String(),
		"tracked_clients": len(g.records),
		"blocked_clients": len(g.blocked),
	}
}

// clientIP extracts the client identifier from the request, preferring
// proxy headers over the raw remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
