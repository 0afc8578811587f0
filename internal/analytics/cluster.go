package analytics

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

// ClusterTransactions groups transactions that can reach each other within
// maxDistance undirected hops over any edge type. Centers are visited in id
// order; once a transaction belongs to a cluster it is no longer used as a
// center, though it may still appear as a member of later clusters.
func (s *Service) ClusterTransactions(ctx context.Context, minClusterSize, maxDistance int) ([]domain.Cluster, error) {
	if err := validateClusterArgs(minClusterSize, maxDistance); err != nil {
		return nil, err
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	ctx, span := tracer.Start(ctx, "analytics.cluster_transactions", trace.WithAttributes(
		attribute.Int("cluster.min_size", minClusterSize),
		attribute.Int("cluster.max_distance", maxDistance),
	))
	defer span.End()

	clusters, err := s.clusterTransactions(ctx, minClusterSize, maxDistance)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("cluster.count", len(clusters)))
	return clusters, nil
}

func (s *Service) clusterTransactions(ctx context.Context, minClusterSize, maxDistance int) ([]domain.Cluster, error) {
	txs, err := s.store.AllTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	g, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}

	sort.Slice(txs, func(i, j int) bool { return txs[i].ID < txs[j].ID })
	byID := make(map[string]domain.Transaction, len(txs))
	for _, tx := range txs {
		byID[tx.ID] = tx
	}

	neighbours := map[string][]string{}
	for _, e := range g.Edges {
		neighbours[e.SourceID] = append(neighbours[e.SourceID], e.TargetID)
		neighbours[e.TargetID] = append(neighbours[e.TargetID], e.SourceID)
	}

	processed := map[string]struct{}{}
	var clusters []domain.Cluster
	for _, center := range txs {
		if _, done := processed[center.ID]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cluster transactions: %w", err)
		}

		reachable := reachableTransactions(center.ID, neighbours, byID, maxDistance)
		if len(reachable)+1 < minClusterSize {
			continue
		}

		members := make([]domain.Transaction, 0, len(reachable)+1)
		members = append(members, center)
		for _, id := range reachable {
			members = append(members, byID[id])
		}
		for _, m := range members {
			processed[m.ID] = struct{}{}
		}
		clusters = append(clusters, domain.Cluster{
			Center:       center,
			Transactions: members,
			Size:         len(members),
		})
	}
	return clusters, nil
}

// reachableTransactions returns, sorted by id, the transactions other than
// start that lie within maxDistance hops of it.
func reachableTransactions(start string, neighbours map[string][]string, txs map[string]domain.Transaction, maxDistance int) []string {
	seen := map[string]struct{}{start: {}}
	frontier := []string{start}
	var found []string
	for depth := 0; depth < maxDistance && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, n := range neighbours[id] {
				if _, ok := seen[n]; ok {
					continue
				}
				seen[n] = struct{}{}
				next = append(next, n)
				if _, isTx := txs[n]; isTx {
					found = append(found, n)
				}
			}
		}
		frontier = next
	}
	sort.Strings(found)
	return found
}
