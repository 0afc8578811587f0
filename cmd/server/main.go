package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/app"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/config"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/logging"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("closing backends failed", "error", err)
		}
	}()

	if cfg.Inference.RunOnStartup {
		go func() {
			if _, err := a.Service.RunInference(ctx); err != nil {
				logger.Error("startup inference run failed", "error", err)
			}
		}()
	}

	health := server.StoreHealthService{Store: a.Store, Auxiliary: map[string]server.Pinger{}}
	if a.Cache != nil {
		health.Auxiliary["cache"] = a.Cache
	}
	if a.RunLog != nil {
		health.Auxiliary["runlog"] = a.RunLog
	}

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           health,
		API:              server.NewAPIHandlers(logger, a.Service),
		AllowedOrigins:   cfg.HTTP.AllowedOrigins(),
		AllowCredentials: true,
	})

	srv := server.New(logger, cfg.HTTP, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	return nil
}
