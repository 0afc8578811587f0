package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/app"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/config"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/logging"
)

type appFunc func(*app.App, *slog.Logger) error

// withApp loads config, assembles the backends and calls fn. Backends are
// closed when fn returns.
func withApp(ctx context.Context, fn appFunc) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return runApp(ctx, cfg, fn)
}

// withStoredGraph is withApp for commands that work on a graph persisted by
// an earlier ingest. The in-memory store starts empty in every process, so
// running them without graph.uri is reported on stderr.
func withStoredGraph(cmd *cobra.Command, fn appFunc) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Graph.URI == "" {
		fmt.Fprintf(cmd.ErrOrStderr(),
			"warning: graph.uri is not set; %s runs against an empty in-memory graph (use ingest --infer to load and infer in one process)\n",
			cmd.Name())
	}
	return runApp(cmd.Context(), cfg, fn)
}

func runApp(ctx context.Context, cfg config.Config, fn appFunc) error {
	logger := logging.New(cfg.Logging).With("component", "cli")

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building dependencies: %w", err)
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("closing backends failed", "error", err)
		}
	}()

	return fn(a, logger)
}
