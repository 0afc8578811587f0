package repository

import (
	"fmt"
	"strings"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

var schemaCypher = []string{
	`CREATE CONSTRAINT party_id IF NOT EXISTS FOR (p:Party) REQUIRE p.id IS UNIQUE`,
	`CREATE CONSTRAINT transaction_id IF NOT EXISTS FOR (t:Transaction) REQUIRE t.id IS UNIQUE`,
}

const createPartyCypher = `
OPTIONAL MATCH (existing)
WHERE (existing:Party OR existing:Transaction) AND existing.id = $id
WITH existing WHERE existing IS NULL
CREATE (p:Party)
SET p = $props
RETURN p.id AS id
`

const createTransactionCypher = `
MATCH (s:Party {id: $senderId}), (r:Party {id: $receiverId})
OPTIONAL MATCH (existing)
WHERE (existing:Party OR existing:Transaction) AND existing.id = $id
WITH s, r, existing WHERE existing IS NULL
CREATE (t:Transaction)
SET t = $props
CREATE (s)-[:SENT {id: $sentId, created_at: $now}]->(t)
CREATE (t)-[:RECEIVED_BY {id: $receivedId, created_at: $now}]->(r)
RETURN t.id AS id
`

const partiesExistCypher = `
MATCH (p:Party)
WHERE p.id IN $ids
RETURN collect(p.id) AS ids
`

const getPartyCypher = `
MATCH (p:Party {id: $id})
RETURN properties(p) AS props
`

const getTransactionCypher = `
MATCH (t:Transaction {id: $id})
RETURN properties(t) AS props
`

const allPartiesCypher = `
MATCH (p:Party)
RETURN properties(p) AS props
ORDER BY p.id
`

const allTransactionsCypher = `
MATCH (t:Transaction)
RETURN properties(t) AS props
ORDER BY t.id
`

// mergeEdgesCypherTemplate is formatted with a validated relationship type.
// Only edges created by this statement carry the freshly generated id, which
// is how newly created edges are counted.
const mergeEdgesCypherTemplate = `
UNWIND $edges AS edge
MATCH (a) WHERE (a:Party OR a:Transaction) AND a.id = edge.source
MATCH (b) WHERE (b:Party OR b:Transaction) AND b.id = edge.target
MERGE (a)-[r:%s {key: edge.key}]->(b)
ON CREATE SET r.id = edge.id, r.created_at = $now
SET r += edge.props
RETURN count(r) AS merged,
       sum(CASE WHEN r.id = edge.id THEN 1 ELSE 0 END) AS created
`

const createEdgeCypherTemplate = `
MATCH (a:Party {id: $sourceId}), (b:Party {id: $targetId})
CREATE (a)-[r:%s]->(b)
SET r = $props
RETURN r.id AS id
`

const relationshipsCypher = `
MATCH (a)-[r]->(b)
RETURN r.id AS id,
       type(r) AS type,
       a.id AS sourceId,
       b.id AS targetId,
       properties(r) AS props
ORDER BY r.created_at, r.id
`

const nodesCypher = `
MATCH (n)
WHERE n:Party OR n:Transaction
RETURN n.id AS id,
       CASE WHEN n:Party THEN 'Party' ELSE 'Transaction' END AS kind,
       n.name AS name,
       n.entity_type AS entityType
ORDER BY n.id
`

const partyRelationshipsCypher = `
MATCH (p:Party {id: $id})-[r]-(peer)
RETURN r.id AS id,
       type(r) AS type,
       startNode(r).id AS sourceId,
       endNode(r).id AS targetId,
       properties(r) AS props,
       peer.id AS peerId,
       CASE WHEN peer:Transaction THEN 'Transaction' ELSE 'Party' END AS peerKind
ORDER BY r.created_at, r.id
`

const transactionRelationshipsCypher = `
MATCH (t:Transaction {id: $id})-[r]-(peer)
RETURN r.id AS id,
       type(r) AS type,
       startNode(r).id AS sourceId,
       endNode(r).id AS targetId,
       properties(r) AS props,
       peer.id AS peerId,
       CASE WHEN peer:Transaction THEN 'Transaction' ELSE 'Party' END AS peerKind
ORDER BY r.created_at, r.id
`

// shortestPathCypherTemplate is formatted with a relationship pattern such as
// ":SENT|RECEIVED_BY*" or "*".
const shortestPathCypherTemplate = `
MATCH (source {id: $sourceId}), (target {id: $targetId})
WHERE (source:Party OR source:Transaction) AND (target:Party OR target:Transaction)
MATCH path = shortestPath((source)-[%s]-(target))
RETURN [n IN nodes(path) | {
  id: n.id,
  kind: CASE WHEN n:Party THEN 'Party' ELSE 'Transaction' END,
  name: coalesce(n.name, n.id)
}] AS nodes,
[rel IN relationships(path) | {
  type: type(rel),
  sourceId: startNode(rel).id,
  targetId: endNode(rel).id,
  props: properties(rel)
}] AS edges,
length(path) AS hops
`

func pathPattern(types []domain.RelationshipType) string {
	if len(types) == 0 {
		return "*"
	}
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return fmt.Sprintf(":%s*", strings.Join(names, "|"))
}
