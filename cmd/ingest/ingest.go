package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/app"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/service"
)

type ingestFlags struct {
	parties       string
	transactions  string
	relationships string
	workers       int
	infer         bool
}

func newIngestCmd() *cobra.Command {
	var flags ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load parties, transactions and business relationships from fixture files",
		Long: `Loads fixture files into the graph store. Files are JSON or YAML lists,
chosen by extension. Parties are written before transactions and
relationships so that every endpoint exists.

Examples:
  entitygraph ingest --parties parties.json --transactions txs.json
  entitygraph ingest --parties parties.yaml --infer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.parties, "parties", "", "Party fixture file")
	cmd.Flags().StringVar(&flags.transactions, "transactions", "", "Transaction fixture file")
	cmd.Flags().StringVar(&flags.relationships, "relationships", "", "Business relationship fixture file")
	cmd.Flags().IntVar(&flags.workers, "workers", 4, "Number of concurrent ingestion workers")
	cmd.Flags().BoolVar(&flags.infer, "infer", false, "Run relationship inference after loading")

	return cmd
}

func runIngest(cmd *cobra.Command, flags ingestFlags) error {
	if flags.parties == "" && flags.transactions == "" && flags.relationships == "" {
		return errors.New("at least one of --parties, --transactions or --relationships is required")
	}
	if flags.workers < 1 {
		return errors.New("workers must be at least 1")
	}

	var (
		parties []service.PartyInput
		txs     []service.TransactionInput
		rels    []service.BusinessRelationshipInput
		err     error
	)
	if flags.parties != "" {
		if parties, err = loadParties(flags.parties); err != nil {
			return err
		}
	}
	if flags.transactions != "" {
		if txs, err = loadTransactions(flags.transactions); err != nil {
			return err
		}
	}
	if flags.relationships != "" {
		if rels, err = loadRelationships(flags.relationships); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	return withApp(ctx, func(a *app.App, logger *slog.Logger) error {
		ingestor := service.NewBulkIngestor(a.Service, flags.workers)
		start := time.Now()

		logger.Info("ingesting parties", "count", len(parties), "workers", flags.workers)
		created, err := ingestor.IngestParties(ctx, parties)
		if err != nil {
			return fmt.Errorf("party ingestion: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "parties: %d/%d\n", created, len(parties))

		logger.Info("ingesting transactions", "count", len(txs))
		created, err = ingestor.IngestTransactions(ctx, txs)
		if err != nil {
			return fmt.Errorf("transaction ingestion: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "transactions: %d/%d\n", created, len(txs))

		for _, rel := range rels {
			if _, err := a.Service.CreateBusinessRelationship(ctx, rel); err != nil {
				return fmt.Errorf("relationship %s->%s: %w", rel.SourceID, rel.TargetID, err)
			}
		}
		if len(rels) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "business relationships: %d\n", len(rels))
		}

		logger.Info("ingestion complete", "duration", time.Since(start).String())

		if !flags.infer {
			return nil
		}
		return inferAndPrint(cmd, a)
	})
}
