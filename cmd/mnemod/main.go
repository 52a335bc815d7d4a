package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/api"
	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if err := config.Load(); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	st, err := store.Open(config.DataDir(), logger)
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			logger.Fatal("data directory is locked by another process",
				zap.String("dir", config.DataDir()))
		}
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()
	logger.Info("store opened", zap.String("dir", config.DataDir()))

	app := api.NewApp(st, logger)

	// Start background services
	app.Scheduler.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	// Stop background services
	app.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
