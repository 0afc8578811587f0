package inference

import (
	"sort"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

// MinCompositeTypes is the number of distinct relationship types a pair needs
// before it earns a COMPOSITE edge.
const MinCompositeTypes = 2

var compositeBonuses = []struct {
	types []domain.RelationshipType
	bonus float64
}{
	{[]domain.RelationshipType{domain.RelParentOf, domain.RelSubsidiaryOf}, 0.3},
	{[]domain.RelationshipType{domain.RelDirectorOf}, 0.2},
	{[]domain.RelationshipType{domain.RelShareholderOf}, 0.2},
	{[]domain.RelationshipType{domain.RelSharedEmail}, 0.1},
	{[]domain.RelationshipType{domain.RelSharedPhone}, 0.1},
	{[]domain.RelationshipType{domain.RelSharedAddress}, 0.1},
	{[]domain.RelationshipType{domain.RelSharedPaymentMethod}, 0.1},
}

// CompositeStrength scores a set of distinct relationship types. The result is
// not clamped and exceeds 1.0 once enough factors are present.
func CompositeStrength(types map[domain.RelationshipType]struct{}) float64 {
	strength := 0.2 * float64(len(types))
	for _, b := range compositeBonuses {
		for _, t := range b.types {
			if _, ok := types[t]; ok {
				strength += b.bonus
				break
			}
		}
	}
	return strength
}

// compositeDrafts builds one COMPOSITE edge per ordered party pair whose direct
// outgoing edges span at least MinCompositeTypes distinct types. COMPOSITE
// edges themselves never count, so re-runs score the same input.
func compositeDrafts(parties []domain.Party, rels []domain.Relationship) []domain.EdgeDraft {
	isParty := make(map[string]struct{}, len(parties))
	for _, p := range parties {
		isParty[p.ID] = struct{}{}
	}

	type pair struct{ source, target string }
	typesByPair := map[pair]map[domain.RelationshipType]struct{}{}
	for _, rel := range rels {
		if rel.Type == domain.RelComposite || rel.SourceID == rel.TargetID {
			continue
		}
		if _, ok := isParty[rel.SourceID]; !ok {
			continue
		}
		if _, ok := isParty[rel.TargetID]; !ok {
			continue
		}
		k := pair{rel.SourceID, rel.TargetID}
		if typesByPair[k] == nil {
			typesByPair[k] = map[domain.RelationshipType]struct{}{}
		}
		typesByPair[k][rel.Type] = struct{}{}
	}

	pairs := make([]pair, 0, len(typesByPair))
	for k, types := range typesByPair {
		if len(types) >= MinCompositeTypes {
			pairs = append(pairs, k)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].source != pairs[j].source {
			return pairs[i].source < pairs[j].source
		}
		return pairs[i].target < pairs[j].target
	})

	drafts := make([]domain.EdgeDraft, 0, len(pairs))
	for _, k := range pairs {
		types := typesByPair[k]
		names := make([]string, 0, len(types))
		for t := range types {
			names = append(names, string(t))
		}
		sort.Strings(names)
		drafts = append(drafts, domain.EdgeDraft{
			Type:     domain.RelComposite,
			SourceID: k.source,
			TargetID: k.target,
			Properties: map[string]any{
				"strength":           CompositeStrength(types),
				"relationship_types": names,
			},
		})
	}
	return drafts
}
