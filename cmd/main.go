package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bp_client/internal/api"
	"bp_client/internal/config"
	"bp_client/internal/core"
	"bp_client/internal/domain/repository"
	"bp_client/internal/infrastructure/mlclient"
	"bp_client/internal/logging"

	"go.uber.org/zap"
)

func main() {
	os.Exit(serve())
}

// serve returns the process exit code so deferred log flushing runs before exit.
func serve() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return 1
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return 1
	}
	return 0
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Клиент сервиса предсказаний
	client := mlclient.NewHTTPPredictionClient(cfg.Predictor.URL, mlclient.WithTimeout(cfg.Predictor.Timeout))

	// Журнал запросов включается через SAVE_HISTORY
	var recorder repository.HistoryRecorder
	if cfg.History.Enabled {
		db, err := repository.Open(cfg.History.Driver, cfg.History.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := repository.EnsureSchema(context.Background(), db); err != nil {
			return err
		}
		recorder = repository.NewJournal(db)
		logger.Info("history enabled", zap.String("driver", cfg.History.Driver))
	}

	service := core.NewPredictionService(client, recorder, cfg.History.Enabled, logger)
	handler := api.NewHandler(service, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      api.NewRouter(handler, cfg.HTTP.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Predictor.Timeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", server.Addr),
			zap.String("predictor", client.BaseURL()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
