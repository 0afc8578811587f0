package domain

import (
	"sort"
	"strings"
	"time"
)

// RelationshipType names an edge label in the graph.
type RelationshipType string

const (
	RelSent                RelationshipType = "SENT"
	RelReceivedBy          RelationshipType = "RECEIVED_BY"
	RelSharedEmail         RelationshipType = "SHARED_EMAIL"
	RelSharedPhone         RelationshipType = "SHARED_PHONE"
	RelSharedAddress       RelationshipType = "SHARED_ADDRESS"
	RelSharedPaymentMethod RelationshipType = "SHARED_PAYMENT_METHOD"
	RelLinkedTo            RelationshipType = "LINKED_TO"
	RelParentOf            RelationshipType = "PARENT_OF"
	RelSubsidiaryOf        RelationshipType = "SUBSIDIARY_OF"
	RelDirectorOf          RelationshipType = "DIRECTOR_OF"
	RelShareholderOf       RelationshipType = "SHAREHOLDER_OF"
	RelComposite           RelationshipType = "COMPOSITE"
	RelLegalEntityOf       RelationshipType = "LEGAL_ENTITY_OF"
)

var knownRelationshipTypes = map[RelationshipType]struct{}{
	RelSent: {}, RelReceivedBy: {}, RelSharedEmail: {}, RelSharedPhone: {},
	RelSharedAddress: {}, RelSharedPaymentMethod: {}, RelLinkedTo: {},
	RelParentOf: {}, RelSubsidiaryOf: {}, RelDirectorOf: {}, RelShareholderOf: {},
	RelComposite: {}, RelLegalEntityOf: {},
}

// businessRelationshipTypes may be created explicitly between two parties.
var businessRelationshipTypes = map[RelationshipType]struct{}{
	RelParentOf: {}, RelSubsidiaryOf: {}, RelDirectorOf: {}, RelShareholderOf: {},
	RelLegalEntityOf: {}, RelComposite: {},
}

// Known reports whether t is a relationship type the system understands.
func (t RelationshipType) Known() bool {
	_, ok := knownRelationshipTypes[t]
	return ok
}

// Business reports whether t may be created through the business relationship API.
func (t RelationshipType) Business() bool {
	_, ok := businessRelationshipTypes[t]
	return ok
}

// ParseRelationshipType normalises s and validates it against the known set.
func ParseRelationshipType(s string) (RelationshipType, bool) {
	t := RelationshipType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Known()
}

// Relationship is a typed edge between two nodes.
type Relationship struct {
	ID         string
	Type       RelationshipType
	SourceID   string
	TargetID   string
	Properties map[string]any
	CreatedAt  time.Time
}

// EdgeDraft describes an edge to merge. Two drafts with the same Key refer to the
// same logical edge.
type EdgeDraft struct {
	Type         RelationshipType
	SourceID     string
	TargetID     string
	Discriminant string
	Undirected   bool
	Properties   map[string]any
}

// EdgeKey uniquely identifies a merged edge.
type EdgeKey struct {
	Type         RelationshipType
	SourceID     string
	TargetID     string
	Discriminant string
}

// Key returns the merge key. Undirected edges are keyed on the canonical
// (lexicographically ordered) endpoint pair.
func (s EdgeDraft) Key() EdgeKey {
	src, dst := s.SourceID, s.TargetID
	if s.Undirected && dst < src {
		src, dst = dst, src
	}
	return EdgeKey{Type: s.Type, SourceID: src, TargetID: dst, Discriminant: s.Discriminant}
}

// Canonical returns the draft with undirected endpoints ordered as in Key.
func (s EdgeDraft) Canonical() EdgeDraft {
	k := s.Key()
	s.SourceID, s.TargetID = k.SourceID, k.TargetID
	return s
}

// SortedStrings returns a sorted copy of values.
func SortedStrings(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

// RelationshipView is an edge seen from one endpoint.
type RelationshipView struct {
	Relationship Relationship
	PeerID       string
	PeerKind     NodeKind
	Direction    string // OUTGOING|INCOMING|BOTH
}

// PartyRelationships groups the edges incident to a party.
type PartyRelationships struct {
	Party    Party
	Outgoing []RelationshipView
	Incoming []RelationshipView
}

// TransactionRelationships groups the edges incident to a transaction. Linked
// holds LINKED_TO peers, which are undirected.
type TransactionRelationships struct {
	Transaction Transaction
	Incoming    []RelationshipView
	Outgoing    []RelationshipView
	Linked      []RelationshipView
}

// BusinessRelationships is the corporate-structure view of a party. Parent
// entities are the targets of its SUBSIDIARY_OF edges.
type BusinessRelationships struct {
	Party          Party
	Outgoing       []RelationshipView
	Incoming       []RelationshipView
	ParentEntities []RelationshipView
}

// BusinessView filters rels down to business edges.
func (rels PartyRelationships) BusinessView() BusinessRelationships {
	out := BusinessRelationships{Party: rels.Party}
	for _, v := range rels.Outgoing {
		switch t := v.Relationship.Type; {
		case t == RelSubsidiaryOf:
			out.ParentEntities = append(out.ParentEntities, v)
		case t.Business():
			out.Outgoing = append(out.Outgoing, v)
		}
	}
	for _, v := range rels.Incoming {
		if t := v.Relationship.Type; t.Business() && t != RelSubsidiaryOf {
			out.Incoming = append(out.Incoming, v)
		}
	}
	return out
}
