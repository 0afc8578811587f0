package analytics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

// ShortestPath returns a minimum-hop undirected path between two nodes using
// only edges whose type is in types (all types when empty). An unknown
// endpoint or a disconnected pair yields Found=false rather than an error.
func (s *Service) ShortestPath(ctx context.Context, sourceID, targetID string, types []domain.RelationshipType) (domain.PathResult, error) {
	for _, t := range types {
		if !t.Known() {
			return domain.PathResult{}, fmt.Errorf("relationship type %q: %w", t, domain.ErrInvalidArgument)
		}
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	ctx, span := tracer.Start(ctx, "analytics.shortest_path", trace.WithAttributes(
		attribute.String("path.source", sourceID),
		attribute.String("path.target", targetID),
		attribute.Int("path.types", len(types)),
	))
	defer span.End()

	result, err := s.shortestPath(ctx, sourceID, targetID, types)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.PathResult{}, err
	}
	span.SetAttributes(attribute.Bool("path.found", result.Found), attribute.Int("path.length", result.Length))
	return result, nil
}

func (s *Service) shortestPath(ctx context.Context, sourceID, targetID string, types []domain.RelationshipType) (domain.PathResult, error) {
	source, ok, err := s.resolveNode(ctx, sourceID)
	if err != nil {
		return domain.PathResult{}, fmt.Errorf("resolve source %s: %w", sourceID, err)
	}
	if !ok {
		return domain.PathResult{Message: fmt.Sprintf("source node %s not found", sourceID)}, nil
	}
	target, ok, err := s.resolveNode(ctx, targetID)
	if err != nil {
		return domain.PathResult{}, fmt.Errorf("resolve target %s: %w", targetID, err)
	}
	if !ok {
		return domain.PathResult{Message: fmt.Sprintf("target node %s not found", targetID)}, nil
	}

	if sourceID == targetID {
		return domain.PathResult{Found: true, Nodes: []domain.PathNode{source}}, nil
	}

	if finder, ok := s.store.(PathFinder); ok && s.opts.NativePaths {
		res, err := finder.ShortestPath(ctx, sourceID, targetID, types)
		if err != nil {
			return domain.PathResult{}, fmt.Errorf("native shortest path: %w", err)
		}
		return res, nil
	}

	g, err := s.store.Snapshot(ctx)
	if err != nil {
		return domain.PathResult{}, fmt.Errorf("load graph: %w", err)
	}
	return bfsPath(ctx, g, source, target, types)
}

// bfsPath runs a breadth-first search treating every edge as undirected.
func bfsPath(ctx context.Context, g domain.Graph, source, target domain.PathNode, types []domain.RelationshipType) (domain.PathResult, error) {
	allowed := map[domain.RelationshipType]struct{}{}
	for _, t := range types {
		allowed[t] = struct{}{}
	}

	adjacency := map[string][]int{}
	for i, e := range g.Edges {
		if len(allowed) > 0 {
			if _, ok := allowed[e.Type]; !ok {
				continue
			}
		}
		adjacency[e.SourceID] = append(adjacency[e.SourceID], i)
		adjacency[e.TargetID] = append(adjacency[e.TargetID], i)
	}

	// via[n] is the edge index used to first reach n.
	via := map[string]int{source.ID: -1}
	queue := []string{source.ID}
	found := false
	for len(queue) > 0 && !found {
		if err := ctx.Err(); err != nil {
			return domain.PathResult{}, fmt.Errorf("shortest path search: %w", err)
		}
		current := queue[0]
		queue = queue[1:]
		for _, idx := range adjacency[current] {
			e := g.Edges[idx]
			next := e.TargetID
			if next == current {
				next = e.SourceID
			}
			if _, seen := via[next]; seen {
				continue
			}
			via[next] = idx
			if next == target.ID {
				found = true
				break
			}
			queue = append(queue, next)
		}
	}
	if !found {
		return domain.PathResult{Message: "no path found between the specified nodes"}, nil
	}

	nodesByID := make(map[string]domain.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodesByID[n.ID] = n
	}

	var edges []domain.PathEdge
	ids := []string{target.ID}
	for at := target.ID; via[at] >= 0; {
		e := g.Edges[via[at]]
		edges = append(edges, domain.PathEdge{
			Type:       e.Type,
			SourceID:   e.SourceID,
			TargetID:   e.TargetID,
			Properties: e.Properties,
		})
		if e.SourceID == at {
			at = e.TargetID
		} else {
			at = e.SourceID
		}
		ids = append(ids, at)
	}

	result := domain.PathResult{Found: true, Length: len(edges)}
	for i := len(ids) - 1; i >= 0; i-- {
		n := nodesByID[ids[i]]
		name := n.Name
		if name == "" {
			name = n.ID
		}
		result.Nodes = append(result.Nodes, domain.PathNode{ID: ids[i], Kind: n.Kind, Name: name})
	}
	for i := len(edges) - 1; i >= 0; i-- {
		result.Edges = append(result.Edges, edges[i])
	}
	result.Nodes[0] = source
	result.Nodes[len(result.Nodes)-1] = target
	return result, nil
}
