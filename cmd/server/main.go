// Package main is the entry point for the sectorbl HTTP service.
// It serves Black-Litterman scenario recommendations, walk-forward backtests
// and Monte Carlo simulations over a daily sector ETF price snapshot.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/internal/di"
	backtesthandlers "github.com/aristath/sectorbl/internal/modules/backtest/handlers"
	simulationhandlers "github.com/aristath/sectorbl/internal/modules/simulation/handlers"
	"github.com/aristath/sectorbl/internal/server"
	"github.com/aristath/sectorbl/pkg/logger"
)

// main orchestrates startup:
// 1. Loads configuration from environment variables (.env supported)
// 2. Wires the database, price snapshot, engine, cache and jobs
// 3. Loads the initial price snapshot
// 4. Starts the scheduler and the HTTP server
// 5. Waits for SIGINT/SIGTERM and shuts down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting sectorbl")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close resources")
		}
	}()

	// The server still starts without prices; engine endpoints answer 503 until
	// a scheduled or manual reload succeeds.
	if err := container.ReloadJob.Run(); err != nil {
		log.Warn().Err(err).Msg("Initial price load failed, engine not ready")
	}

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Backtest:   backtesthandlers.NewHandler(container.Service, container.Limiter, container.Archiver, log).WithOrigins(cfg.WSOrigins),
		Simulation: simulationhandlers.NewHandler(log),
		System:     server.NewSystemHandlers(container.Snapshot, container.ReloadJob, log),
		Metrics:    container.Metrics.Handler(),
	})

	container.Scheduler.Start()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	container.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
