// Package repository implements the Entity Store on top of a Cypher graph
// database (Neo4j or Neptune openCypher).
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/graph"
)

// Repository encapsulates graph persistence operations.
type Repository struct {
	client graph.Client
	logger *slog.Logger
	nowFn  func() time.Time
}

// New instantiates a Repository backed by the supplied graph client.
func New(client graph.Client) *Repository {
	return &Repository{client: client, logger: slog.Default(), nowFn: time.Now}
}

// WithLogger sets the logger used to report skipped records.
func (r *Repository) WithLogger(logger *slog.Logger) *Repository {
	if logger != nil {
		r.logger = logger.With("component", "repository")
	}
	return r
}

// WithClock overrides the time source used for edge timestamps.
func (r *Repository) WithClock(fn func() time.Time) *Repository {
	if fn != nil {
		r.nowFn = fn
	}
	return r
}

// EnsureSchema creates the id uniqueness constraints.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaCypher {
		if _, err := r.client.ExecuteWrite(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Ping verifies the graph is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.VerifyConnectivity(ctx)
}

// CreateParty inserts a party node. The statement returns no row when the id
// is already taken.
func (r *Repository) CreateParty(ctx context.Context, party domain.Party) (string, error) {
	if party.ID == "" {
		return "", errors.New("party id is required")
	}

	res, err := r.client.ExecuteWrite(ctx, createPartyCypher, map[string]any{
		"id":    party.ID,
		"props": partyProperties(party),
	})
	if err != nil {
		return "", fmt.Errorf("create party %s: %w", party.ID, err)
	}
	if len(res.Records) == 0 {
		return "", fmt.Errorf("create party %s: %w", party.ID, domain.ErrDuplicateID)
	}
	return party.ID, nil
}

// CreateTransaction inserts the transaction node with its SENT and RECEIVED_BY
// edges in a single statement.
func (r *Repository) CreateTransaction(ctx context.Context, tx domain.Transaction) (string, error) {
	if tx.ID == "" {
		return "", errors.New("transaction id is required")
	}
	props, err := transactionProperties(tx)
	if err != nil {
		return "", err
	}

	res, err := r.client.ExecuteWrite(ctx, createTransactionCypher, map[string]any{
		"id":         tx.ID,
		"senderId":   tx.SenderID,
		"receiverId": tx.ReceiverID,
		"props":      props,
		"sentId":     uuid.NewString(),
		"receivedId": uuid.NewString(),
		"now":        formatTime(r.nowFn()),
	})
	if err != nil {
		return "", fmt.Errorf("create transaction %s: %w", tx.ID, err)
	}
	if len(res.Records) > 0 {
		return tx.ID, nil
	}

	// Nothing was written; find out whether an endpoint or the id was the problem.
	check, err := r.client.ExecuteRead(ctx, partiesExistCypher, map[string]any{
		"ids": []string{tx.SenderID, tx.ReceiverID},
	})
	if err != nil {
		return "", fmt.Errorf("create transaction %s: check parties: %w", tx.ID, err)
	}
	found := map[string]bool{}
	if len(check.Records) > 0 {
		for _, id := range check.Records[0].Strings("ids") {
			found[id] = true
		}
	}
	switch {
	case !found[tx.SenderID]:
		return "", fmt.Errorf("create transaction %s: sender %s: %w", tx.ID, tx.SenderID, domain.ErrUnknownParty)
	case !found[tx.ReceiverID]:
		return "", fmt.Errorf("create transaction %s: receiver %s: %w", tx.ID, tx.ReceiverID, domain.ErrUnknownParty)
	default:
		return "", fmt.Errorf("create transaction %s: %w", tx.ID, domain.ErrDuplicateID)
	}
}

func (r *Repository) GetParty(ctx context.Context, id string) (domain.Party, error) {
	res, err := r.client.ExecuteRead(ctx, getPartyCypher, map[string]any{"id": id})
	if err != nil {
		return domain.Party{}, fmt.Errorf("get party %s: %w", id, err)
	}
	if len(res.Records) == 0 {
		return domain.Party{}, fmt.Errorf("party %s: %w", id, domain.ErrNotFound)
	}
	return partyFromProps(graph.Record(res.Records[0].Map("props")))
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	res, err := r.client.ExecuteRead(ctx, getTransactionCypher, map[string]any{"id": id})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	if len(res.Records) == 0 {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return transactionFromProps(graph.Record(res.Records[0].Map("props"))), nil
}

// AllParties returns every party ordered by id.
func (r *Repository) AllParties(ctx context.Context) ([]domain.Party, error) {
	return r.FindParties(ctx, nil)
}

// AllTransactions returns every transaction ordered by id.
func (r *Repository) AllTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return r.FindTransactions(ctx, nil)
}

// FindParties returns the parties accepted by match. Parties whose stored
// shareholder lists are inconsistent are logged and returned without
// shareholders.
func (r *Repository) FindParties(ctx context.Context, match func(domain.Party) bool) ([]domain.Party, error) {
	res, err := r.client.ExecuteRead(ctx, allPartiesCypher, nil)
	if err != nil {
		return nil, fmt.Errorf("list parties query: %w", err)
	}
	parties := make([]domain.Party, 0, len(res.Records))
	for _, record := range res.Records {
		p, err := partyFromProps(graph.Record(record.Map("props")))
		if err != nil {
			if !errors.Is(err, domain.ErrMalformedAttribute) {
				return nil, err
			}
			r.logger.WarnContext(ctx, "skipping malformed shareholders", "party_id", p.ID, "error", err)
		}
		if match == nil || match(p) {
			parties = append(parties, p)
		}
	}
	return parties, nil
}

func (r *Repository) FindTransactions(ctx context.Context, match func(domain.Transaction) bool) ([]domain.Transaction, error) {
	res, err := r.client.ExecuteRead(ctx, allTransactionsCypher, nil)
	if err != nil {
		return nil, fmt.Errorf("list transactions query: %w", err)
	}
	txs := make([]domain.Transaction, 0, len(res.Records))
	for _, record := range res.Records {
		tx := transactionFromProps(graph.Record(record.Map("props")))
		if match == nil || match(tx) {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

// MergeEdges upserts drafts grouped by relationship type. The merge key is the
// relationship type plus the endpoints and the draft discriminant.
func (r *Repository) MergeEdges(ctx context.Context, drafts []domain.EdgeDraft) (int, error) {
	byType := map[domain.RelationshipType][]map[string]any{}
	for _, draft := range drafts {
		if !draft.Type.Known() {
			return 0, fmt.Errorf("merge edge: type %q: %w", draft.Type, domain.ErrInvalidArgument)
		}
		draft = draft.Canonical()
		props, err := edgeProperties(draft.Properties)
		if err != nil {
			return 0, err
		}
		byType[draft.Type] = append(byType[draft.Type], map[string]any{
			"id":     uuid.NewString(),
			"source": draft.SourceID,
			"target": draft.TargetID,
			"key":    draft.Discriminant,
			"props":  props,
		})
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, string(t))
	}
	sort.Strings(types)

	created := 0
	now := formatTime(r.nowFn())
	for _, t := range types {
		edges := byType[domain.RelationshipType(t)]
		res, err := r.client.ExecuteWrite(ctx, fmt.Sprintf(mergeEdgesCypherTemplate, t), map[string]any{
			"edges": edges,
			"now":   now,
		})
		if err != nil {
			return created, fmt.Errorf("merge %s edges: %w", t, err)
		}
		if len(res.Records) == 0 {
			continue
		}
		created += res.Records[0].Int("created")
		if merged := res.Records[0].Int("merged"); merged < len(edges) {
			return created, fmt.Errorf("merge %s edges: %d of %d endpoints missing: %w", t, len(edges)-merged, len(edges), domain.ErrNotFound)
		}
	}
	return created, nil
}

// CreateEdge creates an explicit relationship between two parties. It is
// never merged with existing edges.
func (r *Repository) CreateEdge(ctx context.Context, rel domain.Relationship) (domain.Relationship, error) {
	if !rel.Type.Known() {
		return domain.Relationship{}, fmt.Errorf("create edge: type %q: %w", rel.Type, domain.ErrInvalidArgument)
	}
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = r.nowFn().UTC()
	}
	props, err := edgeProperties(rel.Properties)
	if err != nil {
		return domain.Relationship{}, err
	}
	props["id"] = rel.ID
	props["created_at"] = formatTime(rel.CreatedAt)

	res, err := r.client.ExecuteWrite(ctx, fmt.Sprintf(createEdgeCypherTemplate, rel.Type), map[string]any{
		"sourceId": rel.SourceID,
		"targetId": rel.TargetID,
		"props":    props,
	})
	if err != nil {
		return domain.Relationship{}, fmt.Errorf("create %s edge: %w", rel.Type, err)
	}
	if len(res.Records) == 0 {
		return domain.Relationship{}, fmt.Errorf("create %s %s->%s: %w", rel.Type, rel.SourceID, rel.TargetID, domain.ErrUnknownParty)
	}
	return rel, nil
}

// Relationships returns every edge.
func (r *Repository) Relationships(ctx context.Context) ([]domain.Relationship, error) {
	res, err := r.client.ExecuteRead(ctx, relationshipsCypher, nil)
	if err != nil {
		return nil, fmt.Errorf("list relationships query: %w", err)
	}
	rels := make([]domain.Relationship, 0, len(res.Records))
	for _, record := range res.Records {
		rels = append(rels, relationshipFromRecord(record))
	}
	return rels, nil
}

// Snapshot reads every node and edge. The two reads are not isolated from
// concurrent writers.
func (r *Repository) Snapshot(ctx context.Context) (domain.Graph, error) {
	res, err := r.client.ExecuteRead(ctx, nodesCypher, nil)
	if err != nil {
		return domain.Graph{}, fmt.Errorf("list nodes query: %w", err)
	}
	g := domain.Graph{Nodes: make([]domain.Node, 0, len(res.Records))}
	for _, record := range res.Records {
		g.Nodes = append(g.Nodes, domain.Node{
			ID:         record.String("id"),
			Kind:       domain.NodeKind(record.String("kind")),
			Name:       record.String("name"),
			EntityType: domain.EntityType(record.String("entityType")),
		})
	}
	g.Edges, err = r.Relationships(ctx)
	if err != nil {
		return domain.Graph{}, err
	}
	return g, nil
}

// PartyRelationships returns the party with its incident edges.
func (r *Repository) PartyRelationships(ctx context.Context, id string) (domain.PartyRelationships, error) {
	party, err := r.GetParty(ctx, id)
	if err != nil {
		return domain.PartyRelationships{}, err
	}
	views, err := r.incidentViews(ctx, partyRelationshipsCypher, id)
	if err != nil {
		return domain.PartyRelationships{}, fmt.Errorf("party %s relationships: %w", id, err)
	}

	out := domain.PartyRelationships{Party: party}
	for _, view := range views {
		if view.Direction == "OUTGOING" {
			out.Outgoing = append(out.Outgoing, view)
		} else {
			out.Incoming = append(out.Incoming, view)
		}
	}
	return out, nil
}

// TransactionRelationships returns the transaction with its party edges and
// LINKED_TO peers.
func (r *Repository) TransactionRelationships(ctx context.Context, id string) (domain.TransactionRelationships, error) {
	tx, err := r.GetTransaction(ctx, id)
	if err != nil {
		return domain.TransactionRelationships{}, err
	}
	views, err := r.incidentViews(ctx, transactionRelationshipsCypher, id)
	if err != nil {
		return domain.TransactionRelationships{}, fmt.Errorf("transaction %s relationships: %w", id, err)
	}

	out := domain.TransactionRelationships{Transaction: tx}
	for _, view := range views {
		switch {
		case view.Relationship.Type == domain.RelLinkedTo:
			view.Direction = "BOTH"
			out.Linked = append(out.Linked, view)
		case view.Direction == "OUTGOING":
			out.Outgoing = append(out.Outgoing, view)
		default:
			out.Incoming = append(out.Incoming, view)
		}
	}
	return out, nil
}

// incidentViews runs a query returning the edges of node id with their peers.
func (r *Repository) incidentViews(ctx context.Context, query, id string) ([]domain.RelationshipView, error) {
	res, err := r.client.ExecuteRead(ctx, query, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	views := make([]domain.RelationshipView, 0, len(res.Records))
	for _, record := range res.Records {
		view := domain.RelationshipView{
			Relationship: relationshipFromRecord(record),
			PeerID:       record.String("peerId"),
			PeerKind:     domain.NodeKind(record.String("peerKind")),
			Direction:    "INCOMING",
		}
		if view.Relationship.SourceID == id {
			view.Direction = "OUTGOING"
		}
		views = append(views, view)
	}
	return views, nil
}

// ShortestPath runs the database's native undirected shortestPath. An empty
// result means no path exists.
func (r *Repository) ShortestPath(ctx context.Context, sourceID, targetID string, types []domain.RelationshipType) (domain.PathResult, error) {
	for _, t := range types {
		if !t.Known() {
			return domain.PathResult{}, fmt.Errorf("shortest path: type %q: %w", t, domain.ErrInvalidArgument)
		}
	}

	query := fmt.Sprintf(shortestPathCypherTemplate, pathPattern(types))
	res, err := r.client.ExecuteRead(ctx, query, map[string]any{
		"sourceId": sourceID,
		"targetId": targetID,
	})
	if err != nil {
		return domain.PathResult{}, fmt.Errorf("shortest path query: %w", err)
	}
	if len(res.Records) == 0 {
		return domain.PathResult{Found: false, Message: "no path found between the specified nodes"}, nil
	}

	record := res.Records[0]
	path := domain.PathResult{Found: true, Length: record.Int("hops")}
	if nodesRaw, ok := record["nodes"].([]any); ok {
		for _, n := range nodesRaw {
			nodeMap, ok := n.(map[string]any)
			if !ok {
				continue
			}
			node := graph.Record(nodeMap)
			path.Nodes = append(path.Nodes, domain.PathNode{
				ID:   node.String("id"),
				Kind: domain.NodeKind(node.String("kind")),
				Name: node.String("name"),
			})
		}
	}
	if edgesRaw, ok := record["edges"].([]any); ok {
		for _, e := range edgesRaw {
			edgeMap, ok := e.(map[string]any)
			if !ok {
				continue
			}
			rel := relationshipFromRecord(graph.Record{
				"type":     edgeMap["type"],
				"sourceId": edgeMap["sourceId"],
				"targetId": edgeMap["targetId"],
				"props":    edgeMap["props"],
			})
			path.Edges = append(path.Edges, domain.PathEdge{
				Type:       rel.Type,
				SourceID:   rel.SourceID,
				TargetID:   rel.TargetID,
				Properties: rel.Properties,
			})
		}
	}
	return path, nil
}
