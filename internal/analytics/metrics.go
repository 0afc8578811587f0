package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

// TopConnected is the length of Metrics.MostConnected.
const TopConnected = 5

// GraphMetrics summarises the graph. Results are cached for MetricsTTL when a
// cache is configured.
func (s *Service) GraphMetrics(ctx context.Context) (domain.Metrics, error) {
	ctx, span := tracer.Start(ctx, "analytics.graph_metrics")
	defer span.End()

	if m, ok := s.cachedMetrics(ctx); ok {
		return m, nil
	}

	g, err := s.store.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		return domain.Metrics{}, fmt.Errorf("load graph: %w", err)
	}
	m := computeMetrics(g)
	s.storeMetrics(ctx, m)
	return m, nil
}

// InvalidateMetrics drops any cached metrics snapshot.
func (s *Service) InvalidateMetrics(ctx context.Context) {
	if s.opts.Cache == nil {
		return
	}
	if err := s.opts.Cache.Delete(ctx, metricsCacheKey); err != nil {
		s.logger.Warn("failed to invalidate metrics cache", "error", err)
	}
}

func (s *Service) cachedMetrics(ctx context.Context) (domain.Metrics, bool) {
	if s.opts.Cache == nil || s.opts.MetricsTTL <= 0 {
		return domain.Metrics{}, false
	}
	raw, err := s.opts.Cache.Get(ctx, metricsCacheKey)
	if err != nil {
		s.logger.Warn("metrics cache read failed", "error", err)
		return domain.Metrics{}, false
	}
	if raw == nil {
		return domain.Metrics{}, false
	}
	var m domain.Metrics
	if err := json.Unmarshal(raw, &m); err != nil {
		s.logger.Warn("discarding undecodable metrics cache entry", "error", err)
		return domain.Metrics{}, false
	}
	return m, true
}

func (s *Service) storeMetrics(ctx context.Context, m domain.Metrics) {
	if s.opts.Cache == nil || s.opts.MetricsTTL <= 0 {
		return
	}
	raw, err := json.Marshal(m)
	if err != nil {
		s.logger.Warn("failed to encode metrics", "error", err)
		return
	}
	if err := s.opts.Cache.Set(ctx, metricsCacheKey, raw, s.opts.MetricsTTL); err != nil {
		s.logger.Warn("metrics cache write failed", "error", err)
	}
}

func computeMetrics(g domain.Graph) domain.Metrics {
	m := domain.Metrics{
		TotalNodes:             len(g.Nodes),
		RelationshipCount:      len(g.Edges),
		RelationshipTypeCounts: map[domain.RelationshipType]int{},
		MostConnected:          []domain.ConnectedNode{},
	}

	degree := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		m.RelationshipTypeCounts[e.Type]++
		degree[e.SourceID]++
		if e.TargetID != e.SourceID {
			degree[e.TargetID]++
		}
	}

	ranked := make([]domain.ConnectedNode, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		switch n.Kind {
		case domain.NodeParty:
			m.PartyCount++
			if n.EntityType == domain.EntityCompany {
				m.CompanyCount++
			}
		case domain.NodeTransaction:
			m.TransactionCount++
		}
		name := n.Name
		if name == "" {
			name = n.ID
		}
		ranked = append(ranked, domain.ConnectedNode{ID: n.ID, Name: name, Kind: n.Kind, Degree: degree[n.ID]})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Degree != ranked[j].Degree {
			return ranked[i].Degree > ranked[j].Degree
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > TopConnected {
		ranked = ranked[:TopConnected]
	}
	m.MostConnected = append(m.MostConnected, ranked...)
	return m
}
