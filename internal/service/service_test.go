package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/analytics"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/cache"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/inference"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/memstore"
)

var fixedNow = time.Date(2024, 4, 20, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	store     *memstore.Store
	analytics *analytics.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New(memstore.WithClock(func() time.Time { return fixedNow }))
	an := analytics.New(store, logger, analytics.Options{
		MetricsTTL: time.Minute,
		Cache:      cache.NewMemoryCache(16),
	})
	engine := inference.NewEngine(store, logger,
		inference.WithClock(func() time.Time { return fixedNow }),
		inference.WithAfterRun(func(ctx context.Context, _ domain.InferenceRun) {
			an.InvalidateMetrics(ctx)
		}),
	)
	svc, err := New(Dependencies{Store: store, Inference: engine, Analytics: an, Logger: logger})
	require.NoError(t, err)
	svc.WithClock(func() time.Time { return fixedNow })
	return fixture{svc: svc, store: store, analytics: an}
}

func (f fixture) party(t *testing.T, in PartyInput) domain.Party {
	t.Helper()
	p, err := f.svc.CreateParty(context.Background(), in)
	require.NoError(t, err)
	return p
}

func TestCreatePartyNormalizesInput(t *testing.T) {
	f := newFixture(t)

	p := f.party(t, PartyInput{
		ID:             " P-1 ",
		Name:           "  Jane   Doe ",
		Email:          "Jane.Doe@Example.com ",
		Phone:          " +1 (555) 123-4567 ",
		Address:        "  123  Market St\n San Francisco ",
		PaymentMethods: []string{"card-1", " card-1", "", "wallet-9"},
		EntityType:     "Individual",
	})

	assert.Equal(t, "P-1", p.ID)
	assert.Equal(t, "Jane Doe", p.Name)
	assert.Equal(t, "jane.doe@example.com", p.Email)
	assert.Equal(t, "+15551234567", p.Phone)
	assert.Equal(t, "123 market st san francisco", p.Address)
	assert.Equal(t, []string{"card-1", "wallet-9"}, p.PaymentMethods)
	assert.Equal(t, domain.EntityIndividual, p.EntityType)
	assert.Equal(t, fixedNow, p.CreatedAt)

	stored, err := f.svc.GetParty(context.Background(), "P-1")
	require.NoError(t, err)
	assert.Equal(t, p.Email, stored.Email)
}

func TestCreatePartyGeneratesID(t *testing.T) {
	f := newFixture(t)

	p := f.party(t, PartyInput{Name: "Anonymous"})
	assert.NotEmpty(t, p.ID)
}

func TestCreatePartyRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateParty(ctx, PartyInput{ID: "P-1", Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.CreateParty(ctx, PartyInput{ID: "P-1", Name: "Acme", EntityType: "partnership"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	f.party(t, PartyInput{ID: "P-1", Name: "Acme"})
	_, err = f.svc.CreateParty(ctx, PartyInput{ID: "P-1", Name: "Acme again"})
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestCreateTransactionAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	f.party(t, PartyInput{ID: "A", Name: "A"})
	f.party(t, PartyInput{ID: "B", Name: "B"})

	tx, err := f.svc.CreateTransaction(context.Background(), TransactionInput{
		SenderID:   "A",
		ReceiverID: "B",
		Amount:     42.5,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, domain.DefaultCurrency, tx.Currency)
	assert.Equal(t, domain.DefaultTransactionStatus, tx.Status)
	assert.Equal(t, fixedNow, tx.Timestamp)

	rels, err := f.svc.PartyRelationships(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, rels.Outgoing, 1)
	assert.Equal(t, domain.RelSent, rels.Outgoing[0].Relationship.Type)
	assert.Equal(t, tx.ID, rels.Outgoing[0].PeerID)
}

func TestCreateTransactionValidation(t *testing.T) {
	f := newFixture(t)
	f.party(t, PartyInput{ID: "A", Name: "A"})
	ctx := context.Background()

	_, err := f.svc.CreateTransaction(ctx, TransactionInput{SenderID: "A", ReceiverID: "A", Amount: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.CreateTransaction(ctx, TransactionInput{SenderID: "A"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.CreateTransaction(ctx, TransactionInput{SenderID: "A", ReceiverID: "ghost", Amount: 1})
	assert.ErrorIs(t, err, domain.ErrUnknownParty)
}

func TestListPartiesPaginatesAndFilters(t *testing.T) {
	f := newFixture(t)
	f.party(t, PartyInput{ID: "P1", Name: "Acme Holdings", EntityType: "company", Industry: "Finance"})
	f.party(t, PartyInput{ID: "P2", Name: "Acme Retail", EntityType: "company", Industry: "Retail"})
	f.party(t, PartyInput{ID: "P3", Name: "Jane Doe", EntityType: "individual"})
	ctx := context.Background()

	page, err := f.svc.ListParties(ctx, ListPartiesParams{Page: 0, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, int64(3), page.Pagination.TotalItems)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "P1", page.Items[0].ID)

	page, err = f.svc.ListParties(ctx, ListPartiesParams{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "P3", page.Items[0].ID)

	page, err = f.svc.ListParties(ctx, ListPartiesParams{Search: "acme", Filter: `party.industry == "Finance"`})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "P1", page.Items[0].ID)

	page, err = f.svc.ListParties(ctx, ListPartiesParams{EntityType: "INDIVIDUAL"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "P3", page.Items[0].ID)

	_, err = f.svc.ListParties(ctx, ListPartiesParams{Filter: "party.name ==="})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestFindPartiesWithExpression(t *testing.T) {
	f := newFixture(t)
	f.party(t, PartyInput{ID: "P1", Name: "Acme", EntityType: "company"})
	f.party(t, PartyInput{ID: "P2", Name: "Jane"})

	found, err := f.svc.FindParties(context.Background(), `party.entity_type == "company"`)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "P1", found[0].ID)
}

func TestListTransactionsFilters(t *testing.T) {
	f := newFixture(t)
	f.party(t, PartyInput{ID: "A", Name: "A"})
	f.party(t, PartyInput{ID: "B", Name: "B"})
	f.party(t, PartyInput{ID: "C", Name: "C"})
	ctx := context.Background()
	for _, in := range []TransactionInput{
		{ID: "T1", SenderID: "A", ReceiverID: "B", Amount: 10},
		{ID: "T2", SenderID: "B", ReceiverID: "C", Amount: 500, Status: "Pending"},
		{ID: "T3", SenderID: "C", ReceiverID: "B", Amount: 1000},
	} {
		_, err := f.svc.CreateTransaction(ctx, in)
		require.NoError(t, err)
	}

	page, err := f.svc.ListTransactions(ctx, ListTransactionsParams{PartyID: "C"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	minAmount, maxAmount := 100.0, 600.0
	page, err = f.svc.ListTransactions(ctx, ListTransactionsParams{MinAmount: &minAmount, MaxAmount: &maxAmount})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "T2", page.Items[0].ID)

	page, err = f.svc.ListTransactions(ctx, ListTransactionsParams{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	page, err = f.svc.ListTransactions(ctx, ListTransactionsParams{Filter: `tx.amount >= 1000.0`})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "T3", page.Items[0].ID)
}

func TestCreateBusinessRelationshipCreatesParallelEdges(t *testing.T) {
	f := newFixture(t)
	f.party(t, PartyInput{ID: "parent", Name: "Parent", EntityType: "company"})
	f.party(t, PartyInput{ID: "child", Name: "Child", EntityType: "company"})
	ctx := context.Background()
	strength := 0.8

	in := BusinessRelationshipInput{
		SourceID: "parent",
		TargetID: "child",
		Type:     "parent_of",
		Strength: &strength,
		Details:  map[string]any{"since": "2019"},
	}
	first, err := f.svc.CreateBusinessRelationship(ctx, in)
	require.NoError(t, err)
	second, err := f.svc.CreateBusinessRelationship(ctx, in)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, domain.RelParentOf, first.Type)
	assert.Equal(t, 0.8, first.Properties["strength"])
	assert.Equal(t, map[string]any{"since": "2019"}, first.Properties["details"])

	rels, err := f.svc.PartyRelationships(ctx, "parent")
	require.NoError(t, err)
	assert.Len(t, rels.Outgoing, 2)
}

func TestCreateBusinessRelationshipValidation(t *testing.T) {
	f := newFixture(t)
	f.party(t, PartyInput{ID: "A", Name: "A"})
	f.party(t, PartyInput{ID: "B", Name: "B"})
	ctx := context.Background()

	_, err := f.svc.CreateBusinessRelationship(ctx, BusinessRelationshipInput{SourceID: "A", TargetID: "B", Type: "FRIEND_OF"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.CreateBusinessRelationship(ctx, BusinessRelationshipInput{SourceID: "A", TargetID: "B", Type: "SHARED_EMAIL"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.CreateBusinessRelationship(ctx, BusinessRelationshipInput{SourceID: "A", TargetID: "A", Type: "DIRECTOR_OF"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	negative := -0.5
	_, err = f.svc.CreateBusinessRelationship(ctx, BusinessRelationshipInput{SourceID: "A", TargetID: "B", Type: "DIRECTOR_OF", Strength: &negative})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.CreateBusinessRelationship(ctx, BusinessRelationshipInput{SourceID: "A", TargetID: "ghost", Type: "DIRECTOR_OF"})
	assert.ErrorIs(t, err, domain.ErrUnknownParty)
}

func TestRunInferenceInvalidatesMetrics(t *testing.T) {
	f := newFixture(t)
	f.party(t, PartyInput{ID: "A", Name: "A", Email: "same@example.com"})
	f.party(t, PartyInput{ID: "B", Name: "B", Email: "SAME@example.com"})
	ctx := context.Background()

	before, err := f.svc.GraphMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, before.RelationshipCount)

	run, err := f.svc.RunInference(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Created())

	after, err := f.svc.GraphMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, after.RelationshipCount)
	assert.Equal(t, 2, after.RelationshipTypeCounts[domain.RelSharedEmail])
}

func TestWritesInvalidateMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.GraphMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, m.PartyCount)

	f.party(t, PartyInput{ID: "A", Name: "A"})

	m, err = f.svc.GraphMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.PartyCount)
}

func TestShortestPathRejectsUnknownType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ShortestPath(context.Background(), "A", "B", []string{"KNOWS"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.ShortestPath(context.Background(), " ", "B", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestShortestPathAcrossInferredEdges(t *testing.T) {
	f := newFixture(t)
	f.party(t, PartyInput{ID: "A", Name: "A", Phone: "555 0100"})
	f.party(t, PartyInput{ID: "B", Name: "B", Phone: "5550100"})
	ctx := context.Background()
	_, err := f.svc.RunInference(ctx)
	require.NoError(t, err)

	path, err := f.svc.ShortestPath(ctx, "A", "B", []string{"shared_phone"})
	require.NoError(t, err)
	assert.True(t, path.Found)
	assert.Equal(t, 1, path.Length)
}

type stubRuns struct {
	limit int
	runs  []domain.InferenceRun
}

func (s *stubRuns) Recent(_ context.Context, limit int) ([]domain.InferenceRun, error) {
	s.limit = limit
	return s.runs, nil
}

func (s *stubRuns) Get(_ context.Context, runID string) (domain.InferenceRun, error) {
	for _, r := range s.runs {
		if r.RunID == runID {
			return r, nil
		}
	}
	return domain.InferenceRun{}, domain.ErrNotFound
}

func TestInferenceRunsHistory(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	svc, err := New(Dependencies{Store: store})
	require.NoError(t, err)
	runs, err := svc.InferenceRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	_, err = svc.InferenceRun(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	history := &stubRuns{runs: []domain.InferenceRun{{RunID: "r1"}}}
	svc, err = New(Dependencies{Store: store, Runs: history})
	require.NoError(t, err)

	runs, err = svc.InferenceRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, defaultRunLimit, history.limit)

	_, err = svc.InferenceRuns(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, maxRunLimit, history.limit)

	run, err := svc.InferenceRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", run.RunID)
}

func TestBulkIngestorAggregatesErrors(t *testing.T) {
	f := newFixture(t)
	ingestor := NewBulkIngestor(f.svc, 2)
	ctx := context.Background()

	ok, err := ingestor.IngestParties(ctx, []PartyInput{
		{ID: "P1", Name: "One"},
		{ID: "P2", Name: "Two"},
		{ID: "P1", Name: "Duplicate"},
		{ID: "P3", Name: ""},
	})
	require.Error(t, err)
	assert.Equal(t, 2, ok)

	var taskErr *TaskError
	require.True(t, errors.As(err, &taskErr))
	assert.Len(t, taskErr.Errors, 2)
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	ok, err = ingestor.IngestTransactions(ctx, []TransactionInput{
		{ID: "T1", SenderID: "P1", ReceiverID: "P2", Amount: 5},
		{ID: "T2", SenderID: "P2", ReceiverID: "P1", Amount: 7},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ok)
}

func TestBulkIngestorStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBulkIngestor(f.svc, 1).IngestParties(ctx, []PartyInput{{ID: "P1", Name: "One"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListHugePageReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	f.party(t, PartyInput{ID: "A", Name: "A"})
	f.party(t, PartyInput{ID: "B", Name: "B"})
	ctx := context.Background()
	_, err := f.svc.CreateTransaction(ctx, TransactionInput{ID: "t1", SenderID: "A", ReceiverID: "B", Amount: 5})
	require.NoError(t, err)

	parties, err := f.svc.ListParties(ctx, ListPartiesParams{Page: math.MaxInt, PageSize: 50})
	require.NoError(t, err)
	assert.Empty(t, parties.Items)
	assert.Equal(t, math.MaxInt, parties.Pagination.Page)
	assert.Equal(t, int64(2), parties.Pagination.TotalItems)

	txs, err := f.svc.ListTransactions(ctx, ListTransactionsParams{Page: math.MaxInt, PageSize: 50})
	require.NoError(t, err)
	assert.Empty(t, txs.Items)

	parties, err = f.svc.ListParties(ctx, ListPartiesParams{Page: 2, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, parties.Items, 1)
	assert.Equal(t, "B", parties.Items[0].ID)
}

func TestTransactionRelationshipsIncludesLinkedTransactions(t *testing.T) {
	f := newFixture(t)
	f.party(t, PartyInput{ID: "A", Name: "A"})
	f.party(t, PartyInput{ID: "B", Name: "B"})
	ctx := context.Background()
	for _, id := range []string{"t1", "t2"} {
		_, err := f.svc.CreateTransaction(ctx, TransactionInput{ID: id, SenderID: "A", ReceiverID: "B", Amount: 10, IPAddress: "10.0.0.1"})
		require.NoError(t, err)
	}
	_, err := f.svc.RunInference(ctx)
	require.NoError(t, err)

	rels, err := f.svc.TransactionRelationships(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "t2", rels.Transaction.ID)

	require.Len(t, rels.Incoming, 1)
	assert.Equal(t, domain.RelSent, rels.Incoming[0].Relationship.Type)
	assert.Equal(t, "A", rels.Incoming[0].PeerID)
	require.Len(t, rels.Outgoing, 1)
	assert.Equal(t, domain.RelReceivedBy, rels.Outgoing[0].Relationship.Type)
	assert.Equal(t, "B", rels.Outgoing[0].PeerID)

	require.Len(t, rels.Linked, 1)
	assert.Equal(t, "t1", rels.Linked[0].PeerID)
	assert.Equal(t, "BOTH", rels.Linked[0].Direction)
	assert.Equal(t, "shared_ip", rels.Linked[0].Relationship.Properties["reason"])

	_, err = f.svc.TransactionRelationships(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBusinessRelationshipsExcludesInferredLinks(t *testing.T) {
	f := newFixture(t)
	f.party(t, PartyInput{ID: "HOLD", Name: "Holdings", EntityType: "company"})
	f.party(t, PartyInput{ID: "D", Name: "Dana", EntityType: "individual"})
	f.party(t, PartyInput{ID: "X", Name: "X", Email: "ops@sub.example"})
	f.party(t, PartyInput{
		ID:             "SUB",
		Name:           "Subsidiary",
		EntityType:     "company",
		Email:          "ops@sub.example",
		ParentEntityID: "HOLD",
		Directors:      []string{"D"},
	})
	ctx := context.Background()
	_, err := f.svc.CreateTransaction(ctx, TransactionInput{SenderID: "SUB", ReceiverID: "X", Amount: 3})
	require.NoError(t, err)
	_, err = f.svc.RunInference(ctx)
	require.NoError(t, err)

	all, err := f.svc.PartyRelationships(ctx, "SUB")
	require.NoError(t, err)
	require.NotEmpty(t, all.Outgoing)

	biz, err := f.svc.BusinessRelationships(ctx, "SUB")
	require.NoError(t, err)
	assert.Equal(t, "SUB", biz.Party.ID)

	require.Len(t, biz.ParentEntities, 1)
	assert.Equal(t, domain.RelSubsidiaryOf, biz.ParentEntities[0].Relationship.Type)
	assert.Equal(t, "HOLD", biz.ParentEntities[0].PeerID)
	assert.Empty(t, biz.Outgoing)

	incoming := map[domain.RelationshipType]string{}
	for _, v := range biz.Incoming {
		incoming[v.Relationship.Type] = v.PeerID
	}
	assert.Equal(t, map[domain.RelationshipType]string{
		domain.RelParentOf:   "HOLD",
		domain.RelDirectorOf: "D",
	}, incoming)

	_, err = f.svc.BusinessRelationships(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
