package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/middleware"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/repository"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/service"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/pkg/logger"
)

// AdminHandler exposes read-only operational endpoints: aggregate
// health, per-backend state and component statistics.
type AdminHandler struct {
	pool      *repository.ServerPool
	router    *service.Router
	monitor   *service.HealthMonitor
	guard     *middleware.AbuseGuard
	burst     *middleware.BurstLimiter
	proxy     *ProxyHandler
	logger    *logger.Logger
	startTime time.Time
}

// NewAdminHandler creates the admin API handler
func NewAdminHandler(
	pool *repository.ServerPool,
	router *service.Router,
	monitor *service.HealthMonitor,
	guard *middleware.AbuseGuard,
	burst *middleware.BurstLimiter,
	proxy *ProxyHandler,
	log *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		pool:      pool,
		router:    router,
		monitor:   monitor,
		guard:     guard,
		burst:     burst,
		proxy:     proxy,
		logger:    log.AdminLogger(),
		startTime: time.Now(),
	}
}

// RegisterRoutes attaches the admin endpoints to a router
func (h *AdminHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/admin/health", h.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/admin/backends", h.BackendsHandler).Methods(http.MethodGet)
	r.HandleFunc("/admin/stats", h.StatsHandler).Methods(http.MethodGet)
}

// BackendState describes one backend in API responses
type BackendState struct {
	Identity  string `json:"identity"`
	Available bool   `json:"available"`
	InFlight  int64  `json:"in_flight"`
}

// HealthResponse describes aggregate proxy health
type HealthResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	UptimeSeconds     int64     `json:"uptime_seconds"`
	TotalBackends     int       `json:"total_backends"`
	AvailableBackends int       `json:"available_backends"`
}

// HealthHandler reports aggregate health of the backend pool
func (h *AdminHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	total := h.pool.Count()
	available := len(h.pool.Available())

	status := "healthy"
	statusCode := http.StatusOK
	switch {
	case available == 0:
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	case available < (total+1)/2:
		status = "degraded"
	}

	h.writeJSON(w, statusCode, HealthResponse{
		Status:            status,
		Timestamp:         time.Now().UTC(),
		UptimeSeconds:     int64(time.Since(h.startTime).Seconds()),
		TotalBackends:     total,
		AvailableBackends: available,
	})
}

// BackendsHandler reports the per-backend snapshot
func (h *AdminHandler) BackendsHandler(w http.ResponseWriter, r *http.Request) {
	backends := h.pool.List()
	states := make([]BackendState, 0, len(backends))
	for _, b := range backends {
		states = append(states, BackendState{
			Identity:  b.Identity,
			Available: b.IsAvailable(),
			InFlight:  b.InFlight(),
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backends": states,
		"count":    len(states),
	})
}

// StatsHandler reports per-component statistics
func (h *AdminHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"router":         h.router.GetStats(),
		"health_monitor": h.monitor.GetStats(),
		"abuse_guard":    h.guard.GetStats(),
		"forwarder":      h.proxy.GetStats(),
	}
	if h.burst != nil {
		stats["burst_limiter"] = h.burst.GetStats()
	}

	h.writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("Failed to encode admin response")
	}
}
