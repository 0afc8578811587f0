package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/analytics"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/inference"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/memstore"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T) (http.Handler, *memstore.Store) {
	t.Helper()
	logger := quietLogger()
	store := memstore.New()
	an := analytics.New(store, logger, analytics.Options{})
	engine := inference.NewEngine(store, logger)
	svc, err := service.New(service.Dependencies{Store: store, Inference: engine, Analytics: an, Logger: logger})
	require.NoError(t, err)

	router := NewRouter(logger, RouterDependencies{
		Health: StoreHealthService{Store: store},
		API:    NewAPIHandlers(logger, svc),
	})
	return router, store
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func seedParties(t *testing.T, h http.Handler) {
	t.Helper()
	for _, p := range []map[string]any{
		{"id": "alice", "name": "Alice", "email": "shared@example.com"},
		{"id": "bob", "name": "Bob", "email": "SHARED@example.com"},
		{"id": "acme", "name": "Acme", "entityType": "company"},
	} {
		rec := do(t, h, http.MethodPost, "/parties", p)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.NotEmpty(t, rec.Header().Get(TraceIDHeader))
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return domain.ErrStoreUnavailable }

func TestHealthzDegraded(t *testing.T) {
	router := NewRouter(quietLogger(), RouterDependencies{
		Health: StoreHealthService{Auxiliary: map[string]Pinger{"cache": failingPinger{}}},
	})

	rec := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["error"], "cache")
}

func TestCreateAndGetParty(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/parties", map[string]any{
		"id":                "acme",
		"name":              " Acme  Corp ",
		"entityType":        "company",
		"incorporationDate": "2010-05-01",
		"shareholders":      []map[string]any{{"partyId": "alice", "percentage": 40}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/parties/acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	party := decode[partyResponse](t, rec)
	assert.Equal(t, "Acme Corp", party.Name)
	assert.Equal(t, "company", party.EntityType)
	assert.Equal(t, "2010-05-01T00:00:00Z", party.IncorporationDate)
	require.Len(t, party.Shareholders, 1)
	assert.Equal(t, 40.0, party.Shareholders[0].Percentage)
}

func TestPartyErrors(t *testing.T) {
	router, _ := newTestRouter(t)
	seedParties(t, router)

	rec := do(t, router, http.MethodPost, "/parties", map[string]any{"id": "alice", "name": "Again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/parties", map[string]any{"id": "x", "name": "X", "entityType": "guild"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/parties", map[string]any{"id": "x", "unknownField": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/parties/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPartiesWithFilter(t *testing.T) {
	router, _ := newTestRouter(t)
	seedParties(t, router)

	rec := do(t, router, http.MethodGet, "/parties?pageSize=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[listPartiesResponse](t, rec)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Pagination.TotalItems)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	rec = do(t, router, http.MethodGet, `/parties?filter=party.entity_type%20%3D%3D%20%22company%22`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[listPartiesResponse](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "acme", page.Items[0].ID)
}

func TestTransactionsEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	seedParties(t, router)

	rec := do(t, router, http.MethodPost, "/transactions", map[string]any{
		"id": "T1", "senderId": "alice", "receiverId": "bob", "amount": 25.5,
		"timestamp": "2024-01-02T03:04:05Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/transactions", map[string]any{
		"senderId": "alice", "receiverId": "ghost", "amount": 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, router, http.MethodPost, "/transactions", map[string]any{
		"senderId": "alice", "receiverId": "bob", "amount": -3,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/transactions/T1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tx := decode[transactionResponse](t, rec)
	assert.Equal(t, "USD", tx.Currency)
	assert.Equal(t, "completed", tx.Status)
	assert.Equal(t, "2024-01-02T03:04:05Z", tx.Timestamp)

	rec = do(t, router, http.MethodGet, "/transactions?partyId=bob&minAmount=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listTransactionsResponse](t, rec)
	assert.Len(t, list.Items, 1)

	rec = do(t, router, http.MethodGet, "/transactions?minAmount=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInferenceAndRelationships(t *testing.T) {
	router, _ := newTestRouter(t)
	seedParties(t, router)

	rec := do(t, router, http.MethodPost, "/inference/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[inferenceRunResponse](t, rec)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 2, run.Created)
	assert.Len(t, run.Passes, 9)

	rec = do(t, router, http.MethodGet, "/parties/alice/relationships", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rels := decode[partyRelationshipsResponse](t, rec)
	require.Len(t, rels.Outgoing, 1)
	assert.Equal(t, "SHARED_EMAIL", rels.Outgoing[0].Relationship.Type)
	assert.Equal(t, "bob", rels.Outgoing[0].PeerID)
	require.Len(t, rels.Incoming, 1)

	rec = do(t, router, http.MethodGet, "/inference/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

type failingStore struct {
	*memstore.Store
}

func (failingStore) AllParties(context.Context) ([]domain.Party, error) {
	return nil, errors.New("boom")
}

func TestInferencePartialFailureReturnsReport(t *testing.T) {
	logger := quietLogger()
	store := failingStore{Store: memstore.New()}
	svc, err := service.New(service.Dependencies{
		Store:     store,
		Inference: inference.NewEngine(store, logger),
		Logger:    logger,
	})
	require.NoError(t, err)
	router := NewRouter(logger, RouterDependencies{API: NewAPIHandlers(logger, svc)})

	rec := do(t, router, http.MethodPost, "/inference/runs", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	run := decode[inferenceRunResponse](t, rec)
	assert.Equal(t, "partial", run.Status)
	assert.NotEmpty(t, run.Passes[0].Error)
}

func TestBusinessRelationshipEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	seedParties(t, router)

	body := map[string]any{
		"sourceId": "alice", "targetId": "acme", "relationshipType": "DIRECTOR_OF",
		"strength": 0.9, "details": map[string]any{"role": "CEO"},
	}
	rec := do(t, router, http.MethodPost, "/business-relationships", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rel := decode[relationshipResponse](t, rec)
	assert.Equal(t, "DIRECTOR_OF", rel.Type)
	assert.NotEmpty(t, rel.ID)
	assert.Equal(t, 0.9, rel.Properties["strength"])

	rec = do(t, router, http.MethodPost, "/business-relationships", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/parties/acme/relationships", nil)
	rels := decode[partyRelationshipsResponse](t, rec)
	assert.Len(t, rels.Incoming, 2)

	body["relationshipType"] = "SENT"
	rec = do(t, router, http.MethodPost, "/business-relationships", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body["relationshipType"] = "PARENT_OF"
	body["targetId"] = "ghost"
	rec = do(t, router, http.MethodPost, "/business-relationships", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBusinessRelationshipsView(t *testing.T) {
	router, _ := newTestRouter(t)
	seedParties(t, router)

	for _, body := range []map[string]any{
		{"sourceId": "alice", "targetId": "acme", "relationshipType": "DIRECTOR_OF"},
		{"sourceId": "acme", "targetId": "bob", "relationshipType": "SUBSIDIARY_OF"},
	} {
		rec := do(t, router, http.MethodPost, "/business-relationships", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := do(t, router, http.MethodPost, "/inference/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/parties/alice/business-relationships", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	alice := decode[businessRelationshipsResponse](t, rec)
	assert.Equal(t, "alice", alice.Party.ID)
	require.Len(t, alice.Outgoing, 1)
	assert.Equal(t, "DIRECTOR_OF", alice.Outgoing[0].Relationship.Type)
	assert.Empty(t, alice.Incoming)
	assert.Empty(t, alice.ParentEntities)

	rec = do(t, router, http.MethodGet, "/parties/acme/business-relationships", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acme := decode[businessRelationshipsResponse](t, rec)
	require.Len(t, acme.ParentEntities, 1)
	assert.Equal(t, "bob", acme.ParentEntities[0].PeerID)
	assert.Equal(t, "SUBSIDIARY_OF", acme.ParentEntities[0].Relationship.Type)
	assert.Empty(t, acme.Outgoing)
	require.Len(t, acme.Incoming, 1)
	assert.Equal(t, "alice", acme.Incoming[0].PeerID)

	rec = do(t, router, http.MethodGet, "/parties/ghost/business-relationships", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransactionRelationshipsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	seedParties(t, router)

	for _, id := range []string{"T1", "T2"} {
		rec := do(t, router, http.MethodPost, "/transactions", map[string]any{
			"id": id, "senderId": "alice", "receiverId": "bob", "amount": 12, "deviceId": "dev-1",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := do(t, router, http.MethodPost, "/inference/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/transactions/T1/relationships", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rels := decode[transactionRelationshipsResponse](t, rec)
	assert.Equal(t, "T1", rels.Transaction.ID)
	require.Len(t, rels.Incoming, 1)
	assert.Equal(t, "SENT", rels.Incoming[0].Relationship.Type)
	assert.Equal(t, "alice", rels.Incoming[0].PeerID)
	require.Len(t, rels.Outgoing, 1)
	assert.Equal(t, "RECEIVED_BY", rels.Outgoing[0].Relationship.Type)
	assert.Equal(t, "bob", rels.Outgoing[0].PeerID)
	require.Len(t, rels.Linked, 1)
	assert.Equal(t, "T2", rels.Linked[0].PeerID)
	assert.Equal(t, "LINKED_TO", rels.Linked[0].Relationship.Type)

	rec = do(t, router, http.MethodGet, "/transactions/ghost/relationships", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShortestPathEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	seedParties(t, router)
	rec := do(t, router, http.MethodPost, "/transactions", map[string]any{
		"id": "T1", "senderId": "alice", "receiverId": "acme", "amount": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/analytics/shortest-path?sourceId=alice&targetId=acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	path := decode[shortestPathResponse](t, rec)
	assert.True(t, path.Found)
	assert.Equal(t, 2, path.Length)
	require.Len(t, path.Nodes, 3)
	assert.Equal(t, "Transaction", path.Nodes[1].Type)

	rec = do(t, router, http.MethodGet, "/analytics/shortest-path?sourceId=alice&targetId=acme&types=SHARED_EMAIL", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	path = decode[shortestPathResponse](t, rec)
	assert.False(t, path.Found)
	assert.NotEmpty(t, path.Message)

	rec = do(t, router, http.MethodGet, "/analytics/shortest-path?sourceId=alice&targetId=acme&types=LOVES", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/analytics/shortest-path?sourceId=alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClustersAndMetricsEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	seedParties(t, router)
	for _, tx := range []map[string]any{
		{"id": "T1", "senderId": "alice", "receiverId": "bob", "amount": 1},
		{"id": "T2", "senderId": "bob", "receiverId": "acme", "amount": 2},
	} {
		rec := do(t, router, http.MethodPost, "/transactions", tx)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, router, http.MethodGet, "/analytics/transaction-clusters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	clusters := decode[clustersResponse](t, rec)
	require.Equal(t, 1, clusters.Count)
	assert.Equal(t, "T1", clusters.Clusters[0].Center.ID)
	assert.Equal(t, 2, clusters.Clusters[0].Size)

	rec = do(t, router, http.MethodGet, "/analytics/transaction-clusters?maxDistance=9", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/analytics/transaction-clusters?minClusterSize=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/analytics/graph-metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	metrics := decode[metricsResponse](t, rec)
	assert.Equal(t, 5, metrics.TotalNodes)
	assert.Equal(t, 1, metrics.CompanyCount)
	assert.Equal(t, 4, metrics.RelationshipCount)
	assert.Equal(t, 2, metrics.RelationshipTypeCounts["SENT"])
	require.NotEmpty(t, metrics.MostConnected)
	assert.Equal(t, "T1", metrics.MostConnected[0].ID)
	assert.Equal(t, 2, metrics.MostConnected[0].Degree)

	rec = do(t, router, http.MethodGet, "/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	g := decode[graphResponse](t, rec)
	assert.Len(t, g.Nodes, 5)
	assert.Len(t, g.Edges, 4)
}

func TestCORSPreflight(t *testing.T) {
	router := NewRouter(quietLogger(), RouterDependencies{AllowedOrigins: []string{"https://ui.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	req.Header.Set("Origin", "https://ui.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ui.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
