// Package main provides the entitygraph command line tool for loading fixtures,
// running inference and querying graph analytics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0-dev"
	configPath string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := &cobra.Command{
		Use:           "entitygraph",
		Short:         "Load parties and transactions and query the relationship graph",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config file (default: ./config.yaml)")

	rootCmd.AddCommand(
		newIngestCmd(),
		newInferCmd(),
		newMetricsCmd(),
		newPathCmd(),
		newClustersCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}
