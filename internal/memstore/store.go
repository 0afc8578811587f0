// Package memstore provides an in-process Entity Store. Edges live in an arena
// slice addressed by index; a merge-key map and per-node adjacency lists index
// into it. It backs the service when no graph database is configured and is the
// store used by most unit tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

// Store is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	parties      map[string]domain.Party
	transactions map[string]domain.Transaction

	edges     []domain.Relationship
	keys      map[domain.EdgeKey]int
	adjacency map[string][]int

	nowFn func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for edge timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		parties:      make(map[string]domain.Party),
		transactions: make(map[string]domain.Transaction),
		keys:         make(map[domain.EdgeKey]int),
		adjacency:    make(map[string][]int),
		nowFn:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateParty(_ context.Context, party domain.Party) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exists(party.ID) {
		return "", fmt.Errorf("create party %s: %w", party.ID, domain.ErrDuplicateID)
	}
	s.parties[party.ID] = cloneParty(party)
	return party.ID, nil
}

// CreateTransaction stores the transaction node together with its SENT and
// RECEIVED_BY edges. Either everything is written or nothing is.
func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.parties[tx.SenderID]; !ok {
		return "", fmt.Errorf("create transaction %s: sender %s: %w", tx.ID, tx.SenderID, domain.ErrUnknownParty)
	}
	if _, ok := s.parties[tx.ReceiverID]; !ok {
		return "", fmt.Errorf("create transaction %s: receiver %s: %w", tx.ID, tx.ReceiverID, domain.ErrUnknownParty)
	}
	if s.exists(tx.ID) {
		return "", fmt.Errorf("create transaction %s: %w", tx.ID, domain.ErrDuplicateID)
	}

	tx.Metadata = cloneProperties(tx.Metadata)
	s.transactions[tx.ID] = tx
	s.insert(domain.EdgeDraft{Type: domain.RelSent, SourceID: tx.SenderID, TargetID: tx.ID})
	s.insert(domain.EdgeDraft{Type: domain.RelReceivedBy, SourceID: tx.ID, TargetID: tx.ReceiverID})
	return tx.ID, nil
}

func (s *Store) GetParty(_ context.Context, id string) (domain.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.parties[id]
	if !ok {
		return domain.Party{}, fmt.Errorf("party %s: %w", id, domain.ErrNotFound)
	}
	return cloneParty(p), nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	tx.Metadata = cloneProperties(tx.Metadata)
	return tx, nil
}

// AllParties returns every party ordered by id.
func (s *Store) AllParties(ctx context.Context) ([]domain.Party, error) {
	return s.FindParties(ctx, nil)
}

// AllTransactions returns every transaction ordered by id.
func (s *Store) AllTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.FindTransactions(ctx, nil)
}

// FindParties returns the parties accepted by match, ordered by id. A nil
// predicate matches everything.
func (s *Store) FindParties(_ context.Context, match func(domain.Party) bool) ([]domain.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Party, 0, len(s.parties))
	for _, p := range s.parties {
		if match == nil || match(p) {
			out = append(out, cloneParty(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindTransactions(_ context.Context, match func(domain.Transaction) bool) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if match == nil || match(tx) {
			tx.Metadata = cloneProperties(tx.Metadata)
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MergeEdges upserts every draft by merge key. Existing edges have their
// properties updated; the return value counts newly created edges. Endpoints
// are validated before anything is written.
func (s *Store) MergeEdges(_ context.Context, drafts []domain.EdgeDraft) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, draft := range drafts {
		if !draft.Type.Known() {
			return 0, fmt.Errorf("merge edge: type %q: %w", draft.Type, domain.ErrInvalidArgument)
		}
		if !s.exists(draft.SourceID) || !s.exists(draft.TargetID) {
			return 0, fmt.Errorf("merge %s %s->%s: %w", draft.Type, draft.SourceID, draft.TargetID, domain.ErrNotFound)
		}
	}

	created := 0
	for _, draft := range drafts {
		if idx, ok := s.keys[draft.Key()]; ok {
			edge := &s.edges[idx]
			if len(draft.Properties) > 0 && edge.Properties == nil {
				edge.Properties = make(map[string]any, len(draft.Properties))
			}
			for k, v := range draft.Properties {
				edge.Properties[k] = cloneValue(v)
			}
			continue
		}
		s.insert(draft)
		created++
	}
	return created, nil
}

// CreateEdge appends an explicit edge between two parties without merging.
func (s *Store) CreateEdge(_ context.Context, rel domain.Relationship) (domain.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.parties[rel.SourceID]; !ok {
		return domain.Relationship{}, fmt.Errorf("create %s: source %s: %w", rel.Type, rel.SourceID, domain.ErrUnknownParty)
	}
	if _, ok := s.parties[rel.TargetID]; !ok {
		return domain.Relationship{}, fmt.Errorf("create %s: target %s: %w", rel.Type, rel.TargetID, domain.ErrUnknownParty)
	}
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = s.nowFn().UTC()
	}
	rel.Properties = cloneProperties(rel.Properties)
	s.append(rel)
	return cloneRelationship(rel), nil
}

// Relationships returns every edge in insertion order.
func (s *Store) Relationships(context.Context) ([]domain.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Relationship, len(s.edges))
	for i, e := range s.edges {
		out[i] = cloneRelationship(e)
	}
	return out, nil
}

// Snapshot returns a consistent copy of all nodes and edges.
func (s *Store) Snapshot(ctx context.Context) (domain.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := domain.Graph{
		Nodes: make([]domain.Node, 0, len(s.parties)+len(s.transactions)),
		Edges: make([]domain.Relationship, len(s.edges)),
	}
	for _, p := range s.parties {
		g.Nodes = append(g.Nodes, domain.Node{ID: p.ID, Kind: domain.NodeParty, Name: p.Name, EntityType: p.EntityType})
	}
	for _, tx := range s.transactions {
		g.Nodes = append(g.Nodes, domain.Node{ID: tx.ID, Kind: domain.NodeTransaction})
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	for i, e := range s.edges {
		g.Edges[i] = cloneRelationship(e)
	}
	return g, ctx.Err()
}

// PartyRelationships lists the edges incident to a party.
func (s *Store) PartyRelationships(_ context.Context, id string) (domain.PartyRelationships, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.parties[id]
	if !ok {
		return domain.PartyRelationships{}, fmt.Errorf("party %s: %w", id, domain.ErrNotFound)
	}
	out := domain.PartyRelationships{Party: cloneParty(p)}
	out.Outgoing, out.Incoming = s.views(id)
	return out, nil
}

// TransactionRelationships lists the party edges of a transaction and its
// LINKED_TO peers.
func (s *Store) TransactionRelationships(_ context.Context, id string) (domain.TransactionRelationships, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return domain.TransactionRelationships{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	tx.Metadata = cloneProperties(tx.Metadata)
	out := domain.TransactionRelationships{Transaction: tx}

	outgoing, incoming := s.views(id)
	for _, v := range outgoing {
		if v.Relationship.Type == domain.RelLinkedTo {
			v.Direction = "BOTH"
			out.Linked = append(out.Linked, v)
			continue
		}
		out.Outgoing = append(out.Outgoing, v)
	}
	for _, v := range incoming {
		if v.Relationship.Type == domain.RelLinkedTo {
			v.Direction = "BOTH"
			out.Linked = append(out.Linked, v)
			continue
		}
		out.Incoming = append(out.Incoming, v)
	}
	return out, nil
}

// views splits the edges incident to id by direction. Callers hold the lock.
func (s *Store) views(id string) (outgoing, incoming []domain.RelationshipView) {
	for _, idx := range s.adjacency[id] {
		e := s.edges[idx]
		if e.SourceID == id {
			outgoing = append(outgoing, domain.RelationshipView{
				Relationship: cloneRelationship(e),
				PeerID:       e.TargetID,
				PeerKind:     s.kind(e.TargetID),
				Direction:    "OUTGOING",
			})
		}
		if e.TargetID == id {
			incoming = append(incoming, domain.RelationshipView{
				Relationship: cloneRelationship(e),
				PeerID:       e.SourceID,
				PeerKind:     s.kind(e.SourceID),
				Direction:    "INCOMING",
			})
		}
	}
	return outgoing, incoming
}

// insert appends a merged edge and indexes its key. Callers hold the lock.
func (s *Store) insert(draft domain.EdgeDraft) {
	draft = draft.Canonical()
	rel := domain.Relationship{
		ID:         uuid.NewString(),
		Type:       draft.Type,
		SourceID:   draft.SourceID,
		TargetID:   draft.TargetID,
		Properties: cloneProperties(draft.Properties),
		CreatedAt:  s.nowFn().UTC(),
	}
	s.keys[draft.Key()] = s.append(rel)
}

func (s *Store) append(rel domain.Relationship) int {
	idx := len(s.edges)
	s.edges = append(s.edges, rel)
	s.adjacency[rel.SourceID] = append(s.adjacency[rel.SourceID], idx)
	if rel.TargetID != rel.SourceID {
		s.adjacency[rel.TargetID] = append(s.adjacency[rel.TargetID], idx)
	}
	return idx
}

func (s *Store) exists(id string) bool {
	if _, ok := s.parties[id]; ok {
		return true
	}
	_, ok := s.transactions[id]
	return ok
}

func (s *Store) kind(id string) domain.NodeKind {
	if _, ok := s.transactions[id]; ok {
		return domain.NodeTransaction
	}
	return domain.NodeParty
}

func cloneParty(p domain.Party) domain.Party {
	p.PaymentMethods = append([]string(nil), p.PaymentMethods...)
	p.Directors = append([]string(nil), p.Directors...)
	p.Subsidiaries = append([]string(nil), p.Subsidiaries...)
	p.Shareholders = append([]domain.Shareholder(nil), p.Shareholders...)
	if p.IncorporationDate != nil {
		d := *p.IncorporationDate
		p.IncorporationDate = &d
	}
	return p
}

func cloneRelationship(r domain.Relationship) domain.Relationship {
	r.Properties = cloneProperties(r.Properties)
	return r
}

// cloneProperties copies props together with any slice or map values so
// callers never share mutable state with the store.
func cloneProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...)
	case []float64:
		return append([]float64(nil), val...)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		return cloneProperties(val)
	default:
		return v
	}
}
