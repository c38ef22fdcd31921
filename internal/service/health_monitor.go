package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/domain"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/repository"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/pkg/logger"
)

// HealthMonitor periodically probes each backend and is the sole
// authority over backend availability. Each backend gets its own probe
// loop so a hung backend never delays the others.
type HealthMonitor struct {
	config   domain.HealthCheckConfig
	pool     *repository.ServerPool
	client   *http.Client
	logger   *logger.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup

	isRunning bool
	mu        sync.Mutex
}

// NewHealthMonitor creates a health monitor for the pool. The probe
// client carries its own bounded timeout so a hung backend cannot stall
// a monitor cycle.
func NewHealthMonitor(config domain.HealthCheckConfig, pool *repository.ServerPool, log *logger.Logger) *HealthMonitor {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	if config.Path == "" {
		config.Path = "/health"
	}

	return &HealthMonitor{
		config: config,
		pool:   pool,
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				DisableCompression:  true,
				MaxIdleConnsPerHost: 2,
			},
		},
		logger:   log.HealthMonitorLogger(),
		stopChan: make(chan struct{}),
	}
}

// Probe performs a single health probe against a backend and updates its
// availability in the pool. Only HTTP 200 counts as success; any other
// status, connection error or timeout marks the backend unavailable.
// Probe failures are never escalated beyond the availability update.
func (hm *HealthMonitor) Probe(ctx context.Context, backend *domain.Backend) error {
	probeURL := backend.Identity + hm.config.Path
	log := hm.logger.BackendLogger(backend.Identity)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		hm.pool.SetAvailable(backend.Identity, false)
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	req.Header.Set("User-Agent", "LoadBalancer-HealthMonitor/1.0")

	start := time.Now()
	resp, err := hm.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		if backend.IsAvailable() {
			log.WithError(err).WithField("duration_ms", duration.Milliseconds()).
				Warn("Health probe failed, marking backend unavailable")
		}
		hm.pool.SetAvailable(backend.Identity, false)
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusOK {
		if !backend.IsAvailable() {
			log.Info("Backend recovered, marking available")
		}
		hm.pool.SetAvailable(backend.Identity, true)
		return nil
	}

	if backend.IsAvailable() {
		log.WithField("status_code", resp.StatusCode).
			Warn("Health probe returned non-200, marking backend unavailable")
	}
	hm.pool.SetAvailable(backend.Identity, false)
	return fmt.Errorf("health probe returned status %d", resp.StatusCode)
}

// Start begins periodic probing for every backend in the pool.
func (hm *HealthMonitor) Start(ctx context.Context) error {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.isRunning {
		return fmt.Errorf("health monitor is already running")
	}
	hm.isRunning = true

	hm.logger.Infof("Starting health monitor with interval %v", hm.config.Interval)
	for _, backend := range hm.pool.List() {
		hm.wg.Add(1)
		go hm.probeLoop(ctx, backend)
	}
	return nil
}

// Stop halts all probe loops and waits for them to exit.
func (hm *HealthMonitor) Stop() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if !hm.isRunning {
		return
	}

	close(hm.stopChan)
	hm.wg.Wait()
	hm.isRunning = false
	hm.stopChan = make(chan struct{})
	hm.logger.Info("Health monitor stopped")
}

// probeLoop runs the probe cycle for a single backend.
func (hm *HealthMonitor) probeLoop(ctx context.Context, backend *domain.Backend) {
	defer hm.wg.Done()

	ticker := time.NewTicker(hm.config.Interval)
	defer ticker.Stop()

	log := hm.logger.BackendLogger(backend.Identity)

	// Initial probe so a dead backend is taken out before the first tick.
	if err := hm.runProbe(ctx, backend); err != nil {
		log.WithError(err).Debug("Initial health probe failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hm.stopChan:
			return
		case <-ticker.C:
			if err := hm.runProbe(ctx, backend); err != nil {
				log.WithError(err).Debug("Health probe failed")
			}
		}
	}
}

func (hm *HealthMonitor) runProbe(ctx context.Context, backend *domain.Backend) error {
	probeCtx, cancel := context.WithTimeout(ctx, hm.config.Timeout)
	defer cancel()
	return hm.Probe(probeCtx, backend)
}

// IsRunning returns true if the monitor loops are active.
func (hm *HealthMonitor) IsRunning() bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.isRunning
}

// GetStats returns health monitor statistics
func (hm *HealthMonitor) GetStats() map[string]interface{} {
	hm.mu.Lock()
	running := hm.isRunning
	hm.mu.Unlock()

	available := 0
	for _, b := range hm.pool.List() {
		if b.IsAvailable() {
			available++
		}
	}

	return map[string]interface{}{
		"running":            running,
		"interval":           hm.config.Interval.String(),
		"timeout":            hm.config.Timeout.String(),
		"probe_path":         hm.config.Path,
		"available_backends": available,
		"total_backends":     hm.pool.Count(),
	}
}
