package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"curio/app"
	"curio/config"
	"curio/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(config.Path("config.yml"))
	if err != nil {
		logger.Must(logger.Config{}).Fatal("Failed to load config", logger.Error(err))
	}

	log := logger.Must(logger.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", logger.Error(err))
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting API server",
			logger.String("addr", srv.Addr),
			logger.String("storage", cfg.Storage.Backend),
			logger.Strings("routes", []string{
				"GET  /api/health",
				"POST /api/items/slug",
				"POST /api/items/content",
				"GET  /api/items/:slug/content",
				"GET  /api/items/:slug/metadata",
				"GET  /api/items/:slug/versions",
				"POST /api/feeds/refresh",
			}))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", logger.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", logger.Error(err))
	}
}
