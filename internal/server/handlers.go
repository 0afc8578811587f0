package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/analytics"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/inference"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/service"
)

const (
	defaultClusterSize     = analytics.MinClusterSize
	defaultClusterDistance = 2
)

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger  *slog.Logger
	service *service.Service
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, svc *service.Service) *APIHandlers {
	return &APIHandlers{
		logger:  logger,
		service: svc,
	}
}

func (h *APIHandlers) createParty(w http.ResponseWriter, r *http.Request) {
	var payload partyRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	input, err := payload.toServiceInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	party, err := h.service.CreateParty(r.Context(), input)
	if err != nil {
		h.serviceError(w, r, err, "failed to persist party")
		return
	}
	respondJSON(w, http.StatusCreated, statusResponse{Status: "ok", ID: party.ID})
}

func (h *APIHandlers) listParties(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result, err := h.service.ListParties(r.Context(), service.ListPartiesParams{
		Page:       parseInt(query.Get("page"), 1),
		PageSize:   parseInt(query.Get("pageSize"), 50),
		Search:     query.Get("search"),
		EntityType: query.Get("entityType"),
		Filter:     query.Get("filter"),
	})
	if err != nil {
		h.serviceError(w, r, err, "failed to list parties")
		return
	}

	resp := listPartiesResponse{
		Items:      make([]partyResponse, 0, len(result.Items)),
		Pagination: toPaginationResponse(result.Pagination),
	}
	for _, p := range result.Items {
		resp.Items = append(resp.Items, toPartyResponse(p))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *APIHandlers) getParty(w http.ResponseWriter, r *http.Request) {
	party, err := h.service.GetParty(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err, "failed to fetch party")
		return
	}
	respondJSON(w, http.StatusOK, toPartyResponse(party))
}

func (h *APIHandlers) partyRelationships(w http.ResponseWriter, r *http.Request) {
	rels, err := h.service.PartyRelationships(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err, "failed to fetch party relationships")
		return
	}
	respondJSON(w, http.StatusOK, partyRelationshipsResponse{
		Party:    toPartyResponse(rels.Party),
		Outgoing: toViewResponses(rels.Outgoing),
		Incoming: toViewResponses(rels.Incoming),
	})
}

// businessRelationships narrows the party view to ownership and control
// edges. SUBSIDIARY_OF links are reported separately as parent entities.
func (h *APIHandlers) businessRelationships(w http.ResponseWriter, r *http.Request) {
	rels, err := h.service.BusinessRelationships(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err, "failed to fetch business relationships")
		return
	}
	respondJSON(w, http.StatusOK, businessRelationshipsResponse{
		Party:          toPartyResponse(rels.Party),
		Outgoing:       toViewResponses(rels.Outgoing),
		Incoming:       toViewResponses(rels.Incoming),
		ParentEntities: toViewResponses(rels.ParentEntities),
	})
}

func (h *APIHandlers) createTransaction(w http.ResponseWriter, r *http.Request) {
	var payload transactionRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	input, err := payload.toServiceInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.service.CreateTransaction(r.Context(), input)
	if err != nil {
		h.serviceError(w, r, err, "failed to persist transaction")
		return
	}
	respondJSON(w, http.StatusCreated, statusResponse{Status: "ok", ID: tx.ID})
}

func (h *APIHandlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	minAmount, err := parseOptionalFloat(query.Get("minAmount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid minAmount")
		return
	}
	maxAmount, err := parseOptionalFloat(query.Get("maxAmount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid maxAmount")
		return
	}

	result, err := h.service.ListTransactions(r.Context(), service.ListTransactionsParams{
		Page:      parseInt(query.Get("page"), 1),
		PageSize:  parseInt(query.Get("pageSize"), 50),
		PartyID:   query.Get("partyId"),
		Status:    query.Get("status"),
		MinAmount: minAmount,
		MaxAmount: maxAmount,
		Filter:    query.Get("filter"),
	})
	if err != nil {
		h.serviceError(w, r, err, "failed to list transactions")
		return
	}

	resp := listTransactionsResponse{
		Items:      make([]transactionResponse, 0, len(result.Items)),
		Pagination: toPaginationResponse(result.Pagination),
	}
	for _, tx := range result.Items {
		resp.Items = append(resp.Items, toTransactionResponse(tx))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *APIHandlers) getTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err, "failed to fetch transaction")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *APIHandlers) transactionRelationships(w http.ResponseWriter, r *http.Request) {
	rels, err := h.service.TransactionRelationships(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err, "failed to fetch transaction relationships")
		return
	}
	respondJSON(w, http.StatusOK, transactionRelationshipsResponse{
		Transaction: toTransactionResponse(rels.Transaction),
		Incoming:    toViewResponses(rels.Incoming),
		Outgoing:    toViewResponses(rels.Outgoing),
		Linked:      toViewResponses(rels.Linked),
	})
}

func (h *APIHandlers) createBusinessRelationship(w http.ResponseWriter, r *http.Request) {
	var payload businessRelationshipRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rel, err := h.service.CreateBusinessRelationship(r.Context(), payload.toServiceInput())
	if err != nil {
		h.serviceError(w, r, err, "failed to create business relationship")
		return
	}
	respondJSON(w, http.StatusCreated, toRelationshipResponse(rel))
}

// runInference answers 200 for a clean run and 500 with the full report when
// any pass failed.
func (h *APIHandlers) runInference(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.RunInference(r.Context())
	if err != nil {
		var inferErr *inference.InferenceError
		if errors.As(err, &inferErr) {
			respondJSON(w, http.StatusInternalServerError, toInferenceRunResponse(run))
			return
		}
		h.serviceError(w, r, err, "failed to run inference")
		return
	}
	respondJSON(w, http.StatusOK, toInferenceRunResponse(run))
}

func (h *APIHandlers) listInferenceRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.InferenceRuns(r.Context(), parseInt(r.URL.Query().Get("limit"), 0))
	if err != nil {
		h.serviceError(w, r, err, "failed to list inference runs")
		return
	}
	resp := make([]inferenceRunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toInferenceRunResponse(run))
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": resp})
}

func (h *APIHandlers) getInferenceRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.InferenceRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err, "failed to fetch inference run")
		return
	}
	respondJSON(w, http.StatusOK, toInferenceRunResponse(run))
}

func (h *APIHandlers) shortestPath(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sourceID := query.Get("sourceId")
	targetID := query.Get("targetId")
	if sourceID == "" || targetID == "" {
		writeError(w, http.StatusBadRequest, "sourceId and targetId are required")
		return
	}

	path, err := h.service.ShortestPath(r.Context(), sourceID, targetID, splitList(query["types"]))
	if err != nil {
		h.serviceError(w, r, err, "failed to compute shortest path")
		return
	}
	respondJSON(w, http.StatusOK, toShortestPathResponse(path))
}

func (h *APIHandlers) transactionClusters(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	minSize, err := parseStrictInt(query.Get("minClusterSize"), defaultClusterSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid minClusterSize")
		return
	}
	maxDistance, err := parseStrictInt(query.Get("maxDistance"), defaultClusterDistance)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid maxDistance")
		return
	}

	clusters, err := h.service.ClusterTransactions(r.Context(), minSize, maxDistance)
	if err != nil {
		h.serviceError(w, r, err, "failed to cluster transactions")
		return
	}
	respondJSON(w, http.StatusOK, toClustersResponse(clusters))
}

func (h *APIHandlers) graphMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.GraphMetrics(r.Context())
	if err != nil {
		h.serviceError(w, r, err, "failed to compute graph metrics")
		return
	}
	respondJSON(w, http.StatusOK, toMetricsResponse(metrics))
}

func (h *APIHandlers) graph(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.Graph(r.Context())
	if err != nil {
		h.serviceError(w, r, err, "failed to load graph")
		return
	}
	respondJSON(w, http.StatusOK, toGraphResponse(g))
}

// serviceError maps domain errors onto HTTP statuses. Unexpected errors are
// logged and reported with the generic fallback message.
func (h *APIHandlers) serviceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnknownParty):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrDuplicateID):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.logger.Error(fallback, "error", err, "request_id", requestID(r.Context()))
		writeError(w, http.StatusServiceUnavailable, "graph store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "query timed out")
	default:
		h.logger.Error(fallback, "error", err, "request_id", requestID(r.Context()))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func toPaginationResponse(p service.PaginationMeta) paginationResponse {
	return paginationResponse{
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalItems: p.TotalItems,
		TotalPages: p.TotalPages,
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}

// parseStrictInt is parseInt for parameters where a malformed value must be
// reported instead of silently replaced.
func parseStrictInt(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func parseOptionalFloat(value string) (*float64, error) {
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
