package handler

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/domain"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/errors"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/repository"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/service"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/pkg/logger"
)

// ProxyHandler accepts every inbound request, routes it through the
// selection engine and forwards it to the chosen backend. One reverse
// proxy per backend is built at startup, all sharing a single keep-alive
// transport so connections are pooled across requests instead of being
// recreated per request.
type ProxyHandler struct {
	router   *service.Router
	pool     *repository.ServerPool
	affinity domain.AffinityConfig
	proxies  map[string]*httputil.ReverseProxy
	logger   *logger.Logger

	forwarded       int64
	forwardFailures int64
}

// NewProxyHandler builds the per-backend reverse proxies over a shared
// transport. A backend identity that does not parse as a URL is a
// startup error.
func NewProxyHandler(
	router *service.Router,
	pool *repository.ServerPool,
	affinity domain.AffinityConfig,
	forward domain.ForwardConfig,
	log *logger.Logger,
) (*ProxyHandler, error) {
	if affinity.CookieName == "" {
		affinity.CookieName = "lb_affinity"
	}
	if forward.MaxIdleConnsPerHost <= 0 {
		forward.MaxIdleConnsPerHost = 32
	}
	if forward.MaxConnsPerHost <= 0 {
		forward.MaxConnsPerHost = 256
	}
	if forward.IdleConnTimeout <= 0 {
		forward.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        forward.MaxIdleConnsPerHost * pool.Count(),
		MaxIdleConnsPerHost: forward.MaxIdleConnsPerHost,
		MaxConnsPerHost:     forward.MaxConnsPerHost,
		IdleConnTimeout:     forward.IdleConnTimeout,
	}

	h := &ProxyHandler{
		router:   router,
		pool:     pool,
		affinity: affinity,
		proxies:  make(map[string]*httputil.ReverseProxy, pool.Count()),
		logger:   log,
	}

	for _, backend := range pool.List() {
		target, err := url.Parse(backend.Identity)
		if err != nil {
			return nil, errors.NewErrorWithCause(errors.ErrCodeConfigLoad, "proxy",
				fmt.Sprintf("invalid backend identity %q", backend.Identity), err)
		}

		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.Transport = transport

		identity := backend.Identity
		originalDirector := proxy.Director
		proxy.Director = func(req *http.Request) {
			originalDirector(req)
			if req.Header.Get("X-Forwarded-Host") == "" {
				req.Header.Set("X-Forwarded-Host", req.Host)
			}
			// Origin rewrite so the backend sees itself as the target.
			req.Host = target.Host
			req.Header.Set("X-Forwarded-By", "LoadBalancer/1.0")
		}

		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			// A forwarding failure is surfaced as a gateway error with no
			// retry against another backend; the health monitor, not this
			// path, decides availability.
			atomic.AddInt64(&h.forwardFailures, 1)
			h.logger.BackendLogger(identity).WithError(err).
				Error("Forwarding to backend failed")
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
		}

		h.proxies[identity] = proxy
	}

	return h, nil
}

// ServeHTTP handles one inbound request end to end: affinity lookup,
// backend selection, in-flight accounting and the forward itself.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := h.affinityToken(r)

	backend, fresh, err := h.router.Select(token)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNoBackends) {
			h.logger.RequestLogger(r.Method, r.URL.Path, r.RemoteAddr).
				Warn("No available backends for request")
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		h.logger.WithError(err).Error("Backend selection failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if fresh {
		h.attachAffinity(w, backend.Identity)
	}

	proxy, ok := h.proxies[backend.Identity]
	if !ok {
		// Pool and proxy map are built from the same static set; a miss
		// here means a wiring bug, not a runtime condition.
		h.logger.BackendLogger(backend.Identity).Error("No proxy built for backend")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.pool.IncrementInFlight(backend.Identity)
	defer h.pool.DecrementInFlight(backend.Identity)

	atomic.AddInt64(&h.forwarded, 1)
	proxy.ServeHTTP(w, r)
}

// affinityToken extracts the affinity token from the request cookie.
// A missing cookie is simply no affinity.
func (h *ProxyHandler) affinityToken(r *http.Request) string {
	cookie, err := r.Cookie(h.affinity.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// attachAffinity encodes a fresh token for the selected backend and sets
// it on the response so the client sticks to this backend.
func (h *ProxyHandler) attachAffinity(w http.ResponseWriter, identity string) {
	token, err := h.router.EncodeAffinity(identity)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to encode affinity token")
		return
	}

	cookie := &http.Cookie{
		Name:     h.affinity.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	}
	if h.affinity.Secure {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteStrictMode
	}
	http.SetCookie(w, cookie)
}

// GetStats returns forwarding statistics
func (h *ProxyHandler) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"forwarded":        atomic.LoadInt64(&h.forwarded),
		"forward_failures": atomic.LoadInt64(&h.forwardFailures),
		"cookie_name":      h.affinity.CookieName,
	}
}
