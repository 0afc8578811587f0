package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/filter"
)

// Store is the persistence contract required by the service.
type Store interface {
	Ping(ctx context.Context) error
	CreateParty(ctx context.Context, party domain.Party) (string, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction) (string, error)
	GetParty(ctx context.Context, id string) (domain.Party, error)
	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)
	FindParties(ctx context.Context, match func(domain.Party) bool) ([]domain.Party, error)
	FindTransactions(ctx context.Context, match func(domain.Transaction) bool) ([]domain.Transaction, error)
	CreateEdge(ctx context.Context, rel domain.Relationship) (domain.Relationship, error)
	PartyRelationships(ctx context.Context, id string) (domain.PartyRelationships, error)
	TransactionRelationships(ctx context.Context, id string) (domain.TransactionRelationships, error)
	Snapshot(ctx context.Context) (domain.Graph, error)
}

// Inferrer runs the relationship inference pipeline.
type Inferrer interface {
	Run(ctx context.Context) (domain.InferenceRun, error)
}

// Analytics answers read-only graph queries.
type Analytics interface {
	ShortestPath(ctx context.Context, sourceID, targetID string, types []domain.RelationshipType) (domain.PathResult, error)
	ClusterTransactions(ctx context.Context, minClusterSize, maxDistance int) ([]domain.Cluster, error)
	GraphMetrics(ctx context.Context) (domain.Metrics, error)
	InvalidateMetrics(ctx context.Context)
}

// RunHistory exposes persisted inference runs.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]domain.InferenceRun, error)
	Get(ctx context.Context, runID string) (domain.InferenceRun, error)
}

// Dependencies wires the collaborators of a Service. Runs and Filters are optional.
type Dependencies struct {
	Store     Store
	Inference Inferrer
	Analytics Analytics
	Runs      RunHistory
	Filters   *filter.Compiler
	Logger    *slog.Logger
}

// Service normalises inbound payloads and delegates to the store, the
// inference engine and the analytics layer.
type Service struct {
	store     Store
	inference Inferrer
	analytics Analytics
	runs      RunHistory
	filters   *filter.Compiler
	logger    *slog.Logger
	nowFn     func() time.Time
}

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// New constructs a Service. A CEL compiler is created when none is supplied.
func New(deps Dependencies) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("service: store is required")
	}
	if deps.Filters == nil {
		compiler, err := filter.NewCompiler()
		if err != nil {
			return nil, err
		}
		deps.Filters = compiler
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     deps.Store,
		inference: deps.Inference,
		analytics: deps.Analytics,
		runs:      deps.Runs,
		filters:   deps.Filters,
		logger:    logger.With("component", "service"),
		nowFn:     time.Now,
	}, nil
}

// WithClock overrides the time provider (used primarily in tests).
func (s *Service) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CreateParty normalises input and stores a new party.
func (s *Service) CreateParty(ctx context.Context, input PartyInput) (domain.Party, error) {
	party, err := s.partyFromInput(input)
	if err != nil {
		return domain.Party{}, err
	}
	if _, err := s.store.CreateParty(ctx, party); err != nil {
		return domain.Party{}, err
	}
	s.invalidateMetrics(ctx)
	return party, nil
}

func (s *Service) partyFromInput(input PartyInput) (domain.Party, error) {
	name := sanitizeString(input.Name)
	if name == "" {
		return domain.Party{}, fmt.Errorf("party name is required: %w", domain.ErrInvalidArgument)
	}
	entityType := domain.EntityType(strings.ToLower(strings.TrimSpace(input.EntityType)))
	if !entityType.Valid() {
		return domain.Party{}, fmt.Errorf("entity type %q: %w", input.EntityType, domain.ErrInvalidArgument)
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := s.nowFn().UTC()

	var shareholders []domain.Shareholder
	for _, sh := range input.Shareholders {
		shareholders = append(shareholders, domain.Shareholder{
			PartyID:    strings.TrimSpace(sh.PartyID),
			Percentage: sh.Percentage,
		})
	}

	var incorporated *time.Time
	if input.IncorporationDate != nil {
		t := input.IncorporationDate.UTC()
		incorporated = &t
	}

	return domain.Party{
		ID:                id,
		Name:              name,
		Email:             normalizeEmail(input.Email),
		Phone:             normalizePhone(input.Phone),
		Address:           normalizeAddress(input.Address),
		PaymentMethods:    uniqueTrimmed(input.PaymentMethods),
		EntityType:        entityType,
		CompanyName:       sanitizeString(input.CompanyName),
		CompanyID:         strings.TrimSpace(input.CompanyID),
		TaxID:             strings.TrimSpace(input.TaxID),
		Industry:          sanitizeString(input.Industry),
		IncorporationDate: incorporated,
		Directors:         uniqueTrimmed(input.Directors),
		Shareholders:      shareholders,
		ParentEntityID:    strings.TrimSpace(input.ParentEntityID),
		Subsidiaries:      uniqueTrimmed(input.Subsidiaries),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CreateTransaction applies defaults and stores a new transaction together
// with its SENT and RECEIVED_BY edges.
func (s *Service) CreateTransaction(ctx context.Context, input TransactionInput) (domain.Transaction, error) {
	tx, err := s.transactionFromInput(input)
	if err != nil {
		return domain.Transaction{}, err
	}
	if _, err := s.store.CreateTransaction(ctx, tx); err != nil {
		return domain.Transaction{}, err
	}
	s.invalidateMetrics(ctx)
	return tx, nil
}

func (s *Service) transactionFromInput(input TransactionInput) (domain.Transaction, error) {
	sender := strings.TrimSpace(input.SenderID)
	receiver := strings.TrimSpace(input.ReceiverID)
	if sender == "" || receiver == "" {
		return domain.Transaction{}, fmt.Errorf("sender and receiver ids are required: %w", domain.ErrInvalidArgument)
	}
	if input.Amount < 0 || math.IsNaN(input.Amount) || math.IsInf(input.Amount, 0) {
		return domain.Transaction{}, fmt.Errorf("amount %v: %w", input.Amount, domain.ErrInvalidArgument)
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	status := strings.ToLower(strings.TrimSpace(input.Status))
	if status == "" {
		status = domain.DefaultTransactionStatus
	}
	ts := s.nowFn().UTC()
	if input.Timestamp != nil && !input.Timestamp.IsZero() {
		ts = input.Timestamp.UTC()
	}

	return domain.Transaction{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Amount:     input.Amount,
		Currency:   currency,
		Timestamp:  ts,
		Status:     status,
		IPAddress:  strings.TrimSpace(input.IPAddress),
		DeviceID:   strings.TrimSpace(input.DeviceID),
		Metadata:   input.Metadata,
	}, nil
}

// GetParty fetches a party by id.
func (s *Service) GetParty(ctx context.Context, id string) (domain.Party, error) {
	return s.store.GetParty(ctx, strings.TrimSpace(id))
}

// GetTransaction fetches a transaction by id.
func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return s.store.GetTransaction(ctx, strings.TrimSpace(id))
}

// PartyRelationships lists the edges incident to a party.
func (s *Service) PartyRelationships(ctx context.Context, id string) (domain.PartyRelationships, error) {
	return s.store.PartyRelationships(ctx, strings.TrimSpace(id))
}

// BusinessRelationships returns the corporate-structure edges of a party:
// ownership, directorship and composite links plus its parent entities.
func (s *Service) BusinessRelationships(ctx context.Context, id string) (domain.BusinessRelationships, error) {
	rels, err := s.store.PartyRelationships(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.BusinessRelationships{}, err
	}
	return rels.BusinessView(), nil
}

// TransactionRelationships lists the party edges and linked transactions of a
// transaction.
func (s *Service) TransactionRelationships(ctx context.Context, id string) (domain.TransactionRelationships, error) {
	return s.store.TransactionRelationships(ctx, strings.TrimSpace(id))
}

// Graph returns every node and edge for visualisation clients.
func (s *Service) Graph(ctx context.Context) (domain.Graph, error) {
	return s.store.Snapshot(ctx)
}

// FindParties returns the parties matching a CEL expression.
func (s *Service) FindParties(ctx context.Context, expr string) ([]domain.Party, error) {
	match, err := s.filters.Party(expr)
	if err != nil {
		return nil, err
	}
	return s.store.FindParties(ctx, match)
}

// ListParties retrieves paginated parties matching provided filters.
func (s *Service) ListParties(ctx context.Context, params ListPartiesParams) (PartiesPage, error) {
	page, pageSize := normalizePagination(params.Page, params.PageSize)

	var celMatch func(domain.Party) bool
	if expr := strings.TrimSpace(params.Filter); expr != "" {
		m, err := s.filters.Party(expr)
		if err != nil {
			return PartiesPage{}, err
		}
		celMatch = m
	}
	search := strings.ToLower(strings.TrimSpace(params.Search))
	entityType := domain.EntityType(strings.ToLower(strings.TrimSpace(params.EntityType)))

	parties, err := s.store.FindParties(ctx, func(p domain.Party) bool {
		if entityType != "" && p.EntityType != entityType {
			return false
		}
		if search != "" && !containsFold(search, p.Name, p.Email, p.CompanyName, p.ID) {
			return false
		}
		return celMatch == nil || celMatch(p)
	})
	if err != nil {
		return PartiesPage{}, err
	}

	return PartiesPage{
		Items:      pageOf(parties, page, pageSize),
		Pagination: buildPaginationMeta(page, pageSize, int64(len(parties))),
	}, nil
}

// ListTransactions retrieves paginated transactions matching filters.
func (s *Service) ListTransactions(ctx context.Context, params ListTransactionsParams) (TransactionsPage, error) {
	page, pageSize := normalizePagination(params.Page, params.PageSize)

	var celMatch func(domain.Transaction) bool
	if expr := strings.TrimSpace(params.Filter); expr != "" {
		m, err := s.filters.Transaction(expr)
		if err != nil {
			return TransactionsPage{}, err
		}
		celMatch = m
	}

	minAmount := 0.0
	if params.MinAmount != nil && *params.MinAmount > 0 {
		minAmount = *params.MinAmount
	}
	maxAmount := 0.0
	if params.MaxAmount != nil && *params.MaxAmount > 0 {
		maxAmount = *params.MaxAmount
		if maxAmount < minAmount {
			maxAmount = minAmount
		}
	}
	partyID := strings.TrimSpace(params.PartyID)
	status := strings.ToLower(strings.TrimSpace(params.Status))

	txs, err := s.store.FindTransactions(ctx, func(tx domain.Transaction) bool {
		if partyID != "" && tx.SenderID != partyID && tx.ReceiverID != partyID {
			return false
		}
		if status != "" && tx.Status != status {
			return false
		}
		if tx.Amount < minAmount || (maxAmount > 0 && tx.Amount > maxAmount) {
			return false
		}
		return celMatch == nil || celMatch(tx)
	})
	if err != nil {
		return TransactionsPage{}, err
	}

	return TransactionsPage{
		Items:      pageOf(txs, page, pageSize),
		Pagination: buildPaginationMeta(page, pageSize, int64(len(txs))),
	}, nil
}

// CreateBusinessRelationship creates an explicit edge between two parties.
// Repeated calls create parallel edges.
func (s *Service) CreateBusinessRelationship(ctx context.Context, input BusinessRelationshipInput) (domain.Relationship, error) {
	source := strings.TrimSpace(input.SourceID)
	target := strings.TrimSpace(input.TargetID)
	if source == "" || target == "" {
		return domain.Relationship{}, fmt.Errorf("source and target ids are required: %w", domain.ErrInvalidArgument)
	}
	if source == target {
		return domain.Relationship{}, fmt.Errorf("party %s cannot relate to itself: %w", source, domain.ErrInvalidArgument)
	}
	relType, ok := domain.ParseRelationshipType(input.Type)
	if !ok || !relType.Business() {
		return domain.Relationship{}, fmt.Errorf("relationship type %q: %w", input.Type, domain.ErrInvalidArgument)
	}

	props := map[string]any{}
	if input.Strength != nil {
		strength := *input.Strength
		if strength < 0 || math.IsNaN(strength) || math.IsInf(strength, 0) {
			return domain.Relationship{}, fmt.Errorf("strength %v: %w", strength, domain.ErrInvalidArgument)
		}
		props["strength"] = strength
	}
	if len(input.Details) > 0 {
		props["details"] = input.Details
	}

	rel, err := s.store.CreateEdge(ctx, domain.Relationship{
		Type:       relType,
		SourceID:   source,
		TargetID:   target,
		Properties: props,
		CreatedAt:  s.nowFn().UTC(),
	})
	if err != nil {
		return domain.Relationship{}, err
	}
	s.invalidateMetrics(ctx)
	return rel, nil
}

// RunInference executes the inference pipeline. A partial failure still
// returns the run report alongside the error.
func (s *Service) RunInference(ctx context.Context) (domain.InferenceRun, error) {
	if s.inference == nil {
		return domain.InferenceRun{}, fmt.Errorf("inference engine is not configured")
	}
	run, err := s.inference.Run(ctx)
	if err != nil {
		s.logger.Warn("inference run reported failures", "run_id", run.RunID, "error", err)
	}
	return run, err
}

// InferenceRuns returns the most recent persisted runs, newest first.
func (s *Service) InferenceRuns(ctx context.Context, limit int) ([]domain.InferenceRun, error) {
	if s.runs == nil {
		return []domain.InferenceRun{}, nil
	}
	if limit <= 0 {
		limit = defaultRunLimit
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}
	return s.runs.Recent(ctx, limit)
}

// InferenceRun returns a single persisted run.
func (s *Service) InferenceRun(ctx context.Context, runID string) (domain.InferenceRun, error) {
	if s.runs == nil {
		return domain.InferenceRun{}, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return s.runs.Get(ctx, strings.TrimSpace(runID))
}

// ShortestPath finds the shortest undirected path between two nodes.
func (s *Service) ShortestPath(ctx context.Context, sourceID, targetID string, types []string) (domain.PathResult, error) {
	sourceID = sanitizeString(sourceID)
	targetID = sanitizeString(targetID)
	if sourceID == "" || targetID == "" {
		return domain.PathResult{}, fmt.Errorf("source and target ids are required: %w", domain.ErrInvalidArgument)
	}
	allowed, err := parseTypes(types)
	if err != nil {
		return domain.PathResult{}, err
	}
	if s.analytics == nil {
		return domain.PathResult{}, fmt.Errorf("analytics are not configured")
	}
	return s.analytics.ShortestPath(ctx, sourceID, targetID, allowed)
}

// ClusterTransactions groups transactions reachable from each other.
func (s *Service) ClusterTransactions(ctx context.Context, minClusterSize, maxDistance int) ([]domain.Cluster, error) {
	if s.analytics == nil {
		return nil, fmt.Errorf("analytics are not configured")
	}
	return s.analytics.ClusterTransactions(ctx, minClusterSize, maxDistance)
}

// GraphMetrics summarises the graph.
func (s *Service) GraphMetrics(ctx context.Context) (domain.Metrics, error) {
	if s.analytics == nil {
		return domain.Metrics{}, fmt.Errorf("analytics are not configured")
	}
	return s.analytics.GraphMetrics(ctx)
}

func (s *Service) invalidateMetrics(ctx context.Context) {
	if s.analytics != nil {
		s.analytics.InvalidateMetrics(ctx)
	}
}

func parseTypes(values []string) ([]domain.RelationshipType, error) {
	var out []domain.RelationshipType
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		t, ok := domain.ParseRelationshipType(v)
		if !ok {
			return nil, fmt.Errorf("relationship type %q: %w", v, domain.ErrInvalidArgument)
		}
		out = append(out, t)
	}
	return out, nil
}

func containsFold(needle string, haystack ...string) bool {
	for _, h := range haystack {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}

// pageOf returns the 1-based page of items. The page index is bounded before
// multiplying so huge page numbers cannot overflow.
func pageOf[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 || page-1 > len(items)/pageSize {
		return []T{}
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := min(start+pageSize, len(items))
	return items[start:end]
}

func normalizePagination(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return page, pageSize
}

func buildPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}
	return PaginationMeta{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}
}
