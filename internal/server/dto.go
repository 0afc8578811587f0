package server

import (
	"errors"
	"strings"
	"time"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/service"
)

// --- Request DTOs ---

type shareholderRequest struct {
	PartyID    string  `json:"partyId"`
	Percentage float64 `json:"percentage"`
}

type partyRequest struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Email             string               `json:"email"`
	Phone             string               `json:"phone"`
	Address           string               `json:"address"`
	PaymentMethods    []string             `json:"paymentMethods"`
	EntityType        string               `json:"entityType"`
	CompanyName       string               `json:"companyName"`
	CompanyID         string               `json:"companyId"`
	TaxID             string               `json:"taxId"`
	Industry          string               `json:"industry"`
	IncorporationDate string               `json:"incorporationDate"`
	Directors         []string             `json:"directors"`
	Shareholders      []shareholderRequest `json:"shareholders"`
	ParentEntityID    string               `json:"parentEntityId"`
	Subsidiaries      []string             `json:"subsidiaries"`
}

type transactionRequest struct {
	ID         string         `json:"id"`
	SenderID   string         `json:"senderId"`
	ReceiverID string         `json:"receiverId"`
	Amount     float64        `json:"amount"`
	Currency   string         `json:"currency"`
	Timestamp  string         `json:"timestamp"`
	Status     string         `json:"status"`
	IPAddress  string         `json:"ipAddress"`
	DeviceID   string         `json:"deviceId"`
	Metadata   map[string]any `json:"metadata"`
}

type businessRelationshipRequest struct {
	SourceID string         `json:"sourceId"`
	TargetID string         `json:"targetId"`
	Type     string         `json:"relationshipType"`
	Strength *float64       `json:"strength"`
	Details  map[string]any `json:"details"`
}

// --- Response DTOs ---

type statusResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

type paginationResponse struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

type partyResponse struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Email             string               `json:"email,omitempty"`
	Phone             string               `json:"phone,omitempty"`
	Address           string               `json:"address,omitempty"`
	PaymentMethods    []string             `json:"paymentMethods"`
	EntityType        string               `json:"entityType,omitempty"`
	CompanyName       string               `json:"companyName,omitempty"`
	CompanyID         string               `json:"companyId,omitempty"`
	TaxID             string               `json:"taxId,omitempty"`
	Industry          string               `json:"industry,omitempty"`
	IncorporationDate string               `json:"incorporationDate,omitempty"`
	Directors         []string             `json:"directors"`
	Shareholders      []shareholderRequest `json:"shareholders"`
	ParentEntityID    string               `json:"parentEntityId,omitempty"`
	Subsidiaries      []string             `json:"subsidiaries"`
	CreatedAt         string               `json:"createdAt,omitempty"`
	UpdatedAt         string               `json:"updatedAt,omitempty"`
}

type transactionResponse struct {
	ID         string         `json:"id"`
	SenderID   string         `json:"senderId"`
	ReceiverID string         `json:"receiverId"`
	Amount     float64        `json:"amount"`
	Currency   string         `json:"currency"`
	Timestamp  string         `json:"timestamp"`
	Status     string         `json:"status"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	DeviceID   string         `json:"deviceId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type listPartiesResponse struct {
	Items      []partyResponse    `json:"items"`
	Pagination paginationResponse `json:"pagination"`
}

type listTransactionsResponse struct {
	Items      []transactionResponse `json:"items"`
	Pagination paginationResponse    `json:"pagination"`
}

type relationshipResponse struct {
	ID         string         `json:"id,omitempty"`
	Type       string         `json:"type"`
	SourceID   string         `json:"sourceId"`
	TargetID   string         `json:"targetId"`
	Properties map[string]any `json:"properties"`
	CreatedAt  string         `json:"createdAt,omitempty"`
}

type relationshipViewResponse struct {
	Relationship relationshipResponse `json:"relationship"`
	PeerID       string               `json:"peerId"`
	PeerType     string               `json:"peerType"`
	Direction    string               `json:"direction"`
}

type partyRelationshipsResponse struct {
	Party    partyResponse              `json:"party"`
	Outgoing []relationshipViewResponse `json:"outgoing"`
	Incoming []relationshipViewResponse `json:"incoming"`
}

type businessRelationshipsResponse struct {
	Party          partyResponse              `json:"party"`
	Outgoing       []relationshipViewResponse `json:"outgoing"`
	Incoming       []relationshipViewResponse `json:"incoming"`
	ParentEntities []relationshipViewResponse `json:"parentEntities"`
}

type transactionRelationshipsResponse struct {
	Transaction transactionResponse        `json:"transaction"`
	Incoming    []relationshipViewResponse `json:"incoming"`
	Outgoing    []relationshipViewResponse `json:"outgoing"`
	Linked      []relationshipViewResponse `json:"linked"`
}

type passResponse struct {
	Name       string `json:"name"`
	Created    int    `json:"created"`
	Skipped    int    `json:"skipped"`
	DurationMS int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

type inferenceRunResponse struct {
	RunID      string         `json:"runId"`
	Status     string         `json:"status"`
	StartedAt  string         `json:"startedAt"`
	FinishedAt string         `json:"finishedAt"`
	Created    int            `json:"created"`
	Passes     []passResponse `json:"passes"`
}

type pathNodeResponse struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type pathEdgeResponse struct {
	Type       string         `json:"type"`
	SourceID   string         `json:"sourceId"`
	TargetID   string         `json:"targetId"`
	Properties map[string]any `json:"properties,omitempty"`
}

type shortestPathResponse struct {
	Found   bool               `json:"found"`
	Message string             `json:"message,omitempty"`
	Length  int                `json:"length"`
	Nodes   []pathNodeResponse `json:"nodes"`
	Edges   []pathEdgeResponse `json:"edges"`
}

type clusterResponse struct {
	Center       transactionResponse   `json:"center"`
	Transactions []transactionResponse `json:"transactions"`
	Size         int                   `json:"size"`
}

type clustersResponse struct {
	Clusters []clusterResponse `json:"clusters"`
	Count    int               `json:"count"`
}

type connectedNodeResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Type   string `json:"type"`
	Degree int    `json:"degree"`
}

type metricsResponse struct {
	TotalNodes             int                     `json:"totalNodes"`
	PartyCount             int                     `json:"partyCount"`
	TransactionCount       int                     `json:"transactionCount"`
	CompanyCount           int                     `json:"companyCount"`
	RelationshipCount      int                     `json:"relationshipCount"`
	RelationshipTypeCounts map[string]int          `json:"relationshipTypeCounts"`
	MostConnected          []connectedNodeResponse `json:"mostConnected"`
}

type graphNodeResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name,omitempty"`
	EntityType string `json:"entityType,omitempty"`
}

type graphResponse struct {
	Nodes []graphNodeResponse    `json:"nodes"`
	Edges []relationshipResponse `json:"edges"`
}

// --- Conversions ---

func (req partyRequest) toServiceInput() (service.PartyInput, error) {
	var incorporated *time.Time
	if req.IncorporationDate != "" {
		ts, err := parseDate(req.IncorporationDate)
		if err != nil {
			return service.PartyInput{}, errors.New("invalid incorporationDate")
		}
		incorporated = &ts
	}

	shareholders := make([]service.ShareholderInput, 0, len(req.Shareholders))
	for _, sh := range req.Shareholders {
		shareholders = append(shareholders, service.ShareholderInput{
			PartyID:    sh.PartyID,
			Percentage: sh.Percentage,
		})
	}

	return service.PartyInput{
		ID:                req.ID,
		Name:              req.Name,
		Email:             req.Email,
		Phone:             req.Phone,
		Address:           req.Address,
		PaymentMethods:    req.PaymentMethods,
		EntityType:        req.EntityType,
		CompanyName:       req.CompanyName,
		CompanyID:         req.CompanyID,
		TaxID:             req.TaxID,
		Industry:          req.Industry,
		IncorporationDate: incorporated,
		Directors:         req.Directors,
		Shareholders:      shareholders,
		ParentEntityID:    req.ParentEntityID,
		Subsidiaries:      req.Subsidiaries,
	}, nil
}

func (req transactionRequest) toServiceInput() (service.TransactionInput, error) {
	var ts *time.Time
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return service.TransactionInput{}, errors.New("invalid timestamp")
		}
		ts = &parsed
	}

	return service.TransactionInput{
		ID:         req.ID,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Timestamp:  ts,
		Status:     req.Status,
		IPAddress:  req.IPAddress,
		DeviceID:   req.DeviceID,
		Metadata:   req.Metadata,
	}, nil
}

func (req businessRelationshipRequest) toServiceInput() service.BusinessRelationshipInput {
	return service.BusinessRelationshipInput{
		SourceID: req.SourceID,
		TargetID: req.TargetID,
		Type:     req.Type,
		Strength: req.Strength,
		Details:  req.Details,
	}
}

func toPartyResponse(p domain.Party) partyResponse {
	shareholders := make([]shareholderRequest, 0, len(p.Shareholders))
	for _, sh := range p.Shareholders {
		shareholders = append(shareholders, shareholderRequest{PartyID: sh.PartyID, Percentage: sh.Percentage})
	}
	return partyResponse{
		ID:                p.ID,
		Name:              p.Name,
		Email:             p.Email,
		Phone:             p.Phone,
		Address:           p.Address,
		PaymentMethods:    nonNilStrings(p.PaymentMethods),
		EntityType:        string(p.EntityType),
		CompanyName:       p.CompanyName,
		CompanyID:         p.CompanyID,
		TaxID:             p.TaxID,
		Industry:          p.Industry,
		IncorporationDate: formatTimePtr(p.IncorporationDate),
		Directors:         nonNilStrings(p.Directors),
		Shareholders:      shareholders,
		ParentEntityID:    p.ParentEntityID,
		Subsidiaries:      nonNilStrings(p.Subsidiaries),
		CreatedAt:         formatTime(p.CreatedAt),
		UpdatedAt:         formatTime(p.UpdatedAt),
	}
}

func toTransactionResponse(tx domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:         tx.ID,
		SenderID:   tx.SenderID,
		ReceiverID: tx.ReceiverID,
		Amount:     tx.Amount,
		Currency:   tx.Currency,
		Timestamp:  formatTime(tx.Timestamp),
		Status:     tx.Status,
		IPAddress:  tx.IPAddress,
		DeviceID:   tx.DeviceID,
		Metadata:   tx.Metadata,
	}
}

func toRelationshipResponse(rel domain.Relationship) relationshipResponse {
	props := rel.Properties
	if props == nil {
		props = map[string]any{}
	}
	return relationshipResponse{
		ID:         rel.ID,
		Type:       string(rel.Type),
		SourceID:   rel.SourceID,
		TargetID:   rel.TargetID,
		Properties: props,
		CreatedAt:  formatTime(rel.CreatedAt),
	}
}

func toViewResponses(views []domain.RelationshipView) []relationshipViewResponse {
	out := make([]relationshipViewResponse, 0, len(views))
	for _, v := range views {
		out = append(out, relationshipViewResponse{
			Relationship: toRelationshipResponse(v.Relationship),
			PeerID:       v.PeerID,
			PeerType:     string(v.PeerKind),
			Direction:    v.Direction,
		})
	}
	return out
}

func toInferenceRunResponse(run domain.InferenceRun) inferenceRunResponse {
	status := "completed"
	if len(run.FailedPasses()) > 0 {
		status = "partial"
	}
	passes := make([]passResponse, 0, len(run.Passes))
	for _, p := range run.Passes {
		pr := passResponse{
			Name:       p.Name,
			Created:    p.Created,
			Skipped:    p.Skipped,
			DurationMS: p.Duration.Milliseconds(),
		}
		if p.Err != nil {
			pr.Error = p.Err.Error()
		}
		passes = append(passes, pr)
	}
	return inferenceRunResponse{
		RunID:      run.RunID,
		Status:     status,
		StartedAt:  formatTime(run.StartedAt),
		FinishedAt: formatTime(run.FinishedAt),
		Created:    run.Created(),
		Passes:     passes,
	}
}

func toShortestPathResponse(p domain.PathResult) shortestPathResponse {
	resp := shortestPathResponse{
		Found:   p.Found,
		Message: p.Message,
		Length:  p.Length,
		Nodes:   make([]pathNodeResponse, 0, len(p.Nodes)),
		Edges:   make([]pathEdgeResponse, 0, len(p.Edges)),
	}
	for _, n := range p.Nodes {
		resp.Nodes = append(resp.Nodes, pathNodeResponse{ID: n.ID, Type: string(n.Kind), Name: n.Name})
	}
	for _, e := range p.Edges {
		resp.Edges = append(resp.Edges, pathEdgeResponse{
			Type:       string(e.Type),
			SourceID:   e.SourceID,
			TargetID:   e.TargetID,
			Properties: e.Properties,
		})
	}
	return resp
}

func toClustersResponse(clusters []domain.Cluster) clustersResponse {
	resp := clustersResponse{Clusters: make([]clusterResponse, 0, len(clusters)), Count: len(clusters)}
	for _, c := range clusters {
		txs := make([]transactionResponse, 0, len(c.Transactions))
		for _, tx := range c.Transactions {
			txs = append(txs, toTransactionResponse(tx))
		}
		resp.Clusters = append(resp.Clusters, clusterResponse{
			Center:       toTransactionResponse(c.Center),
			Transactions: txs,
			Size:         c.Size,
		})
	}
	return resp
}

func toMetricsResponse(m domain.Metrics) metricsResponse {
	counts := make(map[string]int, len(m.RelationshipTypeCounts))
	for t, n := range m.RelationshipTypeCounts {
		counts[string(t)] = n
	}
	connected := make([]connectedNodeResponse, 0, len(m.MostConnected))
	for _, c := range m.MostConnected {
		connected = append(connected, connectedNodeResponse{ID: c.ID, Name: c.Name, Type: string(c.Kind), Degree: c.Degree})
	}
	return metricsResponse{
		TotalNodes:             m.TotalNodes,
		PartyCount:             m.PartyCount,
		TransactionCount:       m.TransactionCount,
		CompanyCount:           m.CompanyCount,
		RelationshipCount:      m.RelationshipCount,
		RelationshipTypeCounts: counts,
		MostConnected:          connected,
	}
}

func toGraphResponse(g domain.Graph) graphResponse {
	resp := graphResponse{
		Nodes: make([]graphNodeResponse, 0, len(g.Nodes)),
		Edges: make([]relationshipResponse, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		resp.Nodes = append(resp.Nodes, graphNodeResponse{
			ID:         n.ID,
			Type:       string(n.Kind),
			Name:       n.Name,
			EntityType: string(n.EntityType),
		})
	}
	for _, e := range g.Edges {
		resp.Edges = append(resp.Edges, toRelationshipResponse(e))
	}
	return resp
}

// --- Helpers ---

func parseDate(value string) (time.Time, error) {
	if ts, err := time.Parse("2006-01-02", value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
