// Package analytics answers read-only questions about the graph: shortest
// paths, transaction clusters and summary metrics.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/cache"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

var tracer = otel.Tracer("entitygraph-analytics")

// Store is the subset of the entity store used by analytics.
type Store interface {
	GetParty(ctx context.Context, id string) (domain.Party, error)
	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)
	AllTransactions(ctx context.Context) ([]domain.Transaction, error)
	Snapshot(ctx context.Context) (domain.Graph, error)
}

// PathFinder is implemented by stores with a native shortest path query.
type PathFinder interface {
	ShortestPath(ctx context.Context, sourceID, targetID string, types []domain.RelationshipType) (domain.PathResult, error)
}

// Options tunes the service.
type Options struct {
	// QueryTimeout bounds shortest path and clustering queries.
	QueryTimeout time.Duration
	// MetricsTTL is how long graph metrics stay cached. Zero disables caching.
	MetricsTTL time.Duration
	// Cache stores metrics snapshots. Nil disables caching.
	Cache cache.Cache
	// NativePaths delegates shortest path queries to the store when it
	// implements PathFinder.
	NativePaths bool
}

// Limits on clustering arguments.
const (
	MinClusterSize     = 2
	MinClusterDistance = 1
	MaxClusterDistance = 5
)

const metricsCacheKey = "analytics:graph-metrics"

// Service runs analytics queries.
type Service struct {
	store  Store
	opts   Options
	logger *slog.Logger
}

// New builds an analytics service.
func New(store Store, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	return &Service{
		store:  store,
		opts:   opts,
		logger: logger.With("component", "analytics"),
	}
}

func (s *Service) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.QueryTimeout)
}

// resolveNode looks the id up as a party, then as a transaction.
func (s *Service) resolveNode(ctx context.Context, id string) (domain.PathNode, bool, error) {
	party, err := s.store.GetParty(ctx, id)
	switch {
	case err == nil, errors.Is(err, domain.ErrMalformedAttribute):
		return domain.PathNode{ID: party.ID, Kind: domain.NodeParty, Name: party.Name}, true, nil
	case !errors.Is(err, domain.ErrNotFound):
		return domain.PathNode{}, false, err
	}

	tx, err := s.store.GetTransaction(ctx, id)
	if err == nil {
		return domain.PathNode{ID: tx.ID, Kind: domain.NodeTransaction, Name: tx.ID}, true, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.PathNode{}, false, nil
	}
	return domain.PathNode{}, false, err
}

func validateClusterArgs(minSize, maxDistance int) error {
	if minSize < MinClusterSize {
		return fmt.Errorf("min cluster size %d is below %d: %w", minSize, MinClusterSize, domain.ErrInvalidArgument)
	}
	if maxDistance < MinClusterDistance || maxDistance > MaxClusterDistance {
		return fmt.Errorf("max distance %d outside [%d,%d]: %w", maxDistance, MinClusterDistance, MaxClusterDistance, domain.ErrInvalidArgument)
	}
	return nil
}
