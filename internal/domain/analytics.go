package domain

// NodeKind distinguishes party and transaction nodes.
type NodeKind string

const (
	NodeParty       NodeKind = "Party"
	NodeTransaction NodeKind = "Transaction"
)

// Node is a lightweight graph node used by analytics.
type Node struct {
	ID         string
	Kind       NodeKind
	Name       string
	EntityType EntityType
}

// Graph is a point-in-time view of every node and edge.
type Graph struct {
	Nodes []Node
	Edges []Relationship
}

// PathNode represents a node within a graph path.
type PathNode struct {
	ID   string
	Kind NodeKind
	Name string
}

// PathEdge represents an edge traversed by a path.
type PathEdge struct {
	Type       RelationshipType
	SourceID   string
	TargetID   string
	Properties map[string]any
}

// PathResult is the outcome of a shortest path query. Found is false when no
// path exists; that is a valid result, not an error.
type PathResult struct {
	Found   bool
	Message string
	Length  int
	Nodes   []PathNode
	Edges   []PathEdge
}

// Cluster groups transactions reachable from a center transaction.
type Cluster struct {
	Center       Transaction
	Transactions []Transaction
	Size         int
}

// ConnectedNode is an entry of the most-connected list.
type ConnectedNode struct {
	ID     string
	Name   string
	Kind   NodeKind
	Degree int
}

// Metrics summarises the graph.
type Metrics struct {
	TotalNodes             int
	PartyCount             int
	TransactionCount       int
	CompanyCount           int
	RelationshipCount      int
	RelationshipTypeCounts map[RelationshipType]int
	MostConnected          []ConnectedNode
}
