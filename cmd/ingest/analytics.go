package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/app"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print node, edge and connectivity counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStoredGraph(cmd, func(a *app.App, _ *slog.Logger) error {
				m, err := a.Service.GraphMetrics(cmd.Context())
				if err != nil {
					return err
				}
				printMetrics(cmd, m)
				return nil
			})
		},
	}
}

func printMetrics(cmd *cobra.Command, m domain.Metrics) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "nodes: %d (parties %d, companies %d, transactions %d)\n",
		m.TotalNodes, m.PartyCount, m.CompanyCount, m.TransactionCount)
	fmt.Fprintf(out, "relationships: %d\n", m.RelationshipCount)

	types := make([]string, 0, len(m.RelationshipTypeCounts))
	for t := range m.RelationshipTypeCounts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(out, "  %s: %d\n", t, m.RelationshipTypeCounts[domain.RelationshipType(t)])
	}

	if len(m.MostConnected) == 0 {
		return
	}
	fmt.Fprintln(out, "most connected:")
	for _, n := range m.MostConnected {
		fmt.Fprintf(out, "  %s %s (%s): %d\n", n.Kind, n.ID, n.Name, n.Degree)
	}
}

func newPathCmd() *cobra.Command {
	var types []string

	cmd := &cobra.Command{
		Use:   "path <source-id> <target-id>",
		Short: "Find the shortest path between two nodes",
		Long: `Finds the shortest undirected path between two parties or transactions.

Examples:
  entitygraph path p1 p7
  entitygraph path p1 p7 --types SHARED_EMAIL,SHARED_PHONE`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStoredGraph(cmd, func(a *app.App, _ *slog.Logger) error {
				p, err := a.Service.ShortestPath(cmd.Context(), args[0], args[1], types)
				if err != nil {
					return err
				}
				printPath(cmd, p)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&types, "types", nil, "Relationship types the path may traverse")

	return cmd
}

func printPath(cmd *cobra.Command, p domain.PathResult) {
	out := cmd.OutOrStdout()
	if !p.Found {
		fmt.Fprintln(out, p.Message)
		return
	}

	var b strings.Builder
	for i, n := range p.Nodes {
		if i > 0 {
			fmt.Fprintf(&b, " -[%s]- ", p.Edges[i-1].Type)
		}
		b.WriteString(n.ID)
	}
	fmt.Fprintf(out, "length %d: %s\n", p.Length, b.String())
}

type clustersFlags struct {
	minSize     int
	maxDistance int
}

func newClustersCmd() *cobra.Command {
	var flags clustersFlags

	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Group transactions connected through shared parties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStoredGraph(cmd, func(a *app.App, _ *slog.Logger) error {
				clusters, err := a.Service.ClusterTransactions(cmd.Context(), flags.minSize, flags.maxDistance)
				if err != nil {
					return err
				}
				return printClusters(cmd, clusters)
			})
		},
	}

	cmd.Flags().IntVar(&flags.minSize, "min-size", 2, "Minimum transactions per cluster")
	cmd.Flags().IntVar(&flags.maxDistance, "max-distance", 2, "Maximum hops between clustered transactions (1-5)")

	return cmd
}

func printClusters(cmd *cobra.Command, clusters []domain.Cluster) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d clusters\n", len(clusters))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CENTER\tSIZE\tTRANSACTIONS")
	for _, c := range clusters {
		ids := make([]string, 0, len(c.Transactions))
		for _, tx := range c.Transactions {
			ids = append(ids, tx.ID)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Center.ID, c.Size, strings.Join(ids, ","))
	}
	return tw.Flush()
}
