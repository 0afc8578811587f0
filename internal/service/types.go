package service

import (
	"time"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

// ShareholderInput is a holding declared on an inbound party payload.
type ShareholderInput struct {
	PartyID    string
	Percentage float64
}

// PartyInput is the inbound payload accepted by CreateParty. An empty ID is
// replaced with a generated one.
type PartyInput struct {
	ID             string
	Name           string
	Email          string
	Phone          string
	Address        string
	PaymentMethods []string

	EntityType        string
	CompanyName       string
	CompanyID         string
	TaxID             string
	Industry          string
	IncorporationDate *time.Time
	Directors         []string
	Shareholders      []ShareholderInput
	ParentEntityID    string
	Subsidiaries      []string
}

// TransactionInput models data required to create a transaction. Currency,
// Status and Timestamp fall back to defaults when empty.
type TransactionInput struct {
	ID         string
	SenderID   string
	ReceiverID string
	Amount     float64
	Currency   string
	Timestamp  *time.Time
	Status     string
	IPAddress  string
	DeviceID   string
	Metadata   map[string]any
}

// BusinessRelationshipInput requests an explicit edge between two parties.
type BusinessRelationshipInput struct {
	SourceID string
	TargetID string
	Type     string
	Strength *float64
	Details  map[string]any
}

// PaginationMeta captures pagination metadata returned to API clients.
type PaginationMeta struct {
	Page       int
	PageSize   int
	TotalItems int64
	TotalPages int
}

// PartiesPage represents paginated parties with metadata.
type PartiesPage struct {
	Items      []domain.Party
	Pagination PaginationMeta
}

// TransactionsPage represents paginated transactions with metadata.
type TransactionsPage struct {
	Items      []domain.Transaction
	Pagination PaginationMeta
}

// ListPartiesParams defines filters for listing parties. Filter is an
// optional CEL expression over the `party` variable.
type ListPartiesParams struct {
	Page       int
	PageSize   int
	Search     string
	EntityType string
	Filter     string
}

// ListTransactionsParams defines filters for listing transactions. Filter is
// an optional CEL expression over the `tx` variable.
type ListTransactionsParams struct {
	Page      int
	PageSize  int
	PartyID   string
	Status    string
	MinAmount *float64
	MaxAmount *float64
	Filter    string
}
