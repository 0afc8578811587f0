package domain

import "time"

// EntityType classifies a party.
type EntityType string

const (
	EntityIndividual   EntityType = "individual"
	EntityCompany      EntityType = "company"
	EntityOrganization EntityType = "organization"
)

// Valid reports whether the entity type is one of the known kinds. The empty
// value is accepted because the attribute is optional.
func (t EntityType) Valid() bool {
	switch t {
	case "", EntityIndividual, EntityCompany, EntityOrganization:
		return true
	default:
		return false
	}
}

// Shareholder records a holding of one party in another.
type Shareholder struct {
	PartyID    string
	Percentage float64
}

// Party is a natural person or organisation node in the graph.
type Party struct {
	ID             string
	Name           string
	Email          string
	Phone          string
	Address        string
	PaymentMethods []string

	EntityType        EntityType
	CompanyName       string
	CompanyID         string
	TaxID             string
	Industry          string
	IncorporationDate *time.Time
	Directors         []string
	Shareholders      []Shareholder
	ParentEntityID    string
	Subsidiaries      []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCompany reports whether the party is registered as a company.
func (p Party) IsCompany() bool {
	return p.EntityType == EntityCompany
}
