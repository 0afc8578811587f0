// Package app assembles the store, caches, inference engine and analytics
// into a ready-to-use service for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/analytics"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/cache"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/config"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/graph"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/inference"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/memstore"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/repository"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/runlog"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/service"
)

// Store is the full store contract shared by the Neo4j repository and the
// in-memory store.
type Store interface {
	service.Store
	inference.Store
	analytics.Store
}

// App holds the assembled components. Close releases every backend.
type App struct {
	Store     Store
	Cache     cache.Cache
	RunLog    *runlog.Store
	Engine    *inference.Engine
	Analytics *analytics.Service
	Service   *service.Service

	closers []func(context.Context) error
}

// Build wires every component from configuration. A Neo4j store is used when
// graph.uri is set, the in-memory store otherwise.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if a.Store, err = a.openStore(ctx, cfg.Graph, logger); err != nil {
		return nil, err
	}

	a.Cache, err = cache.New(cache.Config{
		Type:          cfg.Cache.Type,
		MaxEntries:    cfg.Cache.MaxEntries,
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	if a.Cache != nil {
		c := a.Cache
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	a.RunLog, err = runlog.Open(runlog.Config{
		Driver:      cfg.RunLog.Driver,
		SQLitePath:  cfg.RunLog.SQLitePath,
		PostgresDSN: cfg.RunLog.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	if a.RunLog != nil {
		rl := a.RunLog
		a.closers = append(a.closers, func(context.Context) error { return rl.Close() })
	}

	a.Analytics = analytics.New(a.Store, logger, analytics.Options{
		QueryTimeout: cfg.Analytics.QueryTimeout,
		MetricsTTL:   cfg.Cache.MetricsTTL,
		Cache:        a.Cache,
		NativePaths:  cfg.Graph.NativePathSearch,
	})

	opts := []inference.Option{
		inference.WithAfterRun(func(ctx context.Context, _ domain.InferenceRun) {
			a.Analytics.InvalidateMetrics(ctx)
		}),
	}
	// A nil *runlog.Store must not reach the interfaces below as a typed nil.
	var history service.RunHistory
	if a.RunLog != nil {
		opts = append(opts, inference.WithRecorder(a.RunLog))
		history = a.RunLog
	}
	a.Engine = inference.NewEngine(a.Store, logger, opts...)

	a.Service, err = service.New(service.Dependencies{
		Store:     a.Store,
		Inference: a.Engine,
		Analytics: a.Analytics,
		Runs:      history,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.GraphConfig, logger *slog.Logger) (Store, error) {
	if cfg.URI == "" {
		logger.Warn("graph.uri not set, using in-memory store")
		return memstore.New(), nil
	}

	client, err := graph.NewNeo4jClient(ctx, graph.Options{
		URI:                          cfg.URI,
		Database:                     cfg.Database,
		Username:                     cfg.Username,
		Password:                     cfg.Password,
		MaxConnections:               cfg.MaxConnections,
		ConnectionAcquisitionTimeout: cfg.AcquireTimeout,
		MaxTransactionRetryTime:      cfg.MaxRetryTime,
	})
	if err != nil {
		return nil, fmt.Errorf("creating graph client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	logger.Info("connected to graph store", "graph", cfg.String())

	repo := repository.New(client).WithLogger(logger)
	if cfg.EnsureSchema {
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensuring graph schema: %w", err)
		}
	}
	return repo, nil
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
