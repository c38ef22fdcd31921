package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/config"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/handler"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/middleware"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/repository"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/service"
	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"strategy": string(cfg.Strategy),
		"port":     cfg.Server.Port,
		"backends": len(cfg.Backends),
	}).Info("Starting load balancer")

	pool := repository.NewServerPool(cfg.ToBackends())

	codec, err := service.NewAffinityCodec(cfg.Affinity.Secret)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize affinity codec")
	}

	router, err := service.NewRouter(cfg.Strategy, pool, codec, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize router")
	}

	monitor := service.NewHealthMonitor(cfg.HealthCheck, pool, log)
	guard := middleware.NewAbuseGuard(cfg.AbuseGuard, log)
	burst := middleware.NewBurstLimiter(cfg.BurstLimit, log)

	proxy, err := handler.NewProxyHandler(router, pool, cfg.Affinity, cfg.Forward, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize proxy handler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := monitor.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start health monitor")
	}
	guard.StartReaper(ctx)

	// Gate order: logging wraps burst limiting wraps the abuse guard
	// wraps the forwarder.
	chain := middleware.LoggingMiddleware(log)(
		burst.Handler()(
			guard.Handler()(proxy)))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var adminServer *http.Server
	if cfg.Admin.Enabled {
		adminRouter := mux.NewRouter()
		adminHandler := handler.NewAdminHandler(pool, router, monitor, guard, burst, proxy, log)
		adminHandler.RegisterRoutes(adminRouter)

		adminServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
			Handler: adminRouter,
		}

		go func() {
			log.Infof("Admin API listening on :%d", cfg.Admin.Port)
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("Admin server failed")
			}
		}()
	}

	go func() {
		log.Infof("Proxy listening on :%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("Received signal %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Admin server shutdown failed")
		}
	}

	monitor.Stop()
	guard.Stop()
	cancel()

	log.Info("Load balancer stopped")
}
