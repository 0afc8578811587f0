package inference

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

// detection is the output of a detector: edges to merge and the number of
// source records that were ignored.
type detection struct {
	drafts  []domain.EdgeDraft
	skipped int
}

// groupBy indexes ids by a non-empty key. Ids within a group keep input order,
// which is sorted by id.
func groupBy[T any](items []T, id func(T) string, key func(T) string) (map[string][]string, []string) {
	groups := map[string][]string{}
	for _, item := range items {
		k := key(item)
		if k == "" {
			continue
		}
		groups[k] = append(groups[k], id(item))
	}
	keys := make([]string, 0, len(groups))
	for k, ids := range groups {
		if len(ids) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return groups, keys
}

func partyID(p domain.Party) string { return p.ID }

// sharedAttribute emits an edge in each direction for every pair of parties
// holding the same value.
func sharedAttribute(relType domain.RelationshipType, prop string, value func(domain.Party) string) func([]domain.Party) detection {
	return func(parties []domain.Party) detection {
		groups, keys := groupBy(parties, partyID, value)
		var out detection
		for _, v := range keys {
			ids := groups[v]
			for _, a := range ids {
				for _, b := range ids {
					if a == b {
						continue
					}
					out.drafts = append(out.drafts, domain.EdgeDraft{
						Type:         relType,
						SourceID:     a,
						TargetID:     b,
						Discriminant: v,
						Properties:   map[string]any{prop: v},
					})
				}
			}
		}
		return out
	}
}

var (
	detectSharedEmail   = sharedAttribute(domain.RelSharedEmail, "email", func(p domain.Party) string { return p.Email })
	detectSharedPhone   = sharedAttribute(domain.RelSharedPhone, "phone", func(p domain.Party) string { return p.Phone })
	detectSharedAddress = sharedAttribute(domain.RelSharedAddress, "address", func(p domain.Party) string { return p.Address })
)

// detectSharedPaymentMethods links parties whose instrument sets intersect.
// The discriminant is the sorted intersection so a changed overlap yields a
// distinct edge.
func detectSharedPaymentMethods(parties []domain.Party) detection {
	holders := map[string][]string{}
	methods := make(map[string]map[string]struct{}, len(parties))
	for _, p := range parties {
		set := map[string]struct{}{}
		for _, m := range p.PaymentMethods {
			if m == "" {
				continue
			}
			if _, dup := set[m]; dup {
				continue
			}
			set[m] = struct{}{}
			holders[m] = append(holders[m], p.ID)
		}
		methods[p.ID] = set
	}

	type pair struct{ a, b string }
	shared := map[pair][]string{}
	for m, ids := range holders {
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				a, b := ids[i], ids[j]
				if b < a {
					a, b = b, a
				}
				shared[pair{a, b}] = append(shared[pair{a, b}], m)
			}
		}
	}

	pairs := make([]pair, 0, len(shared))
	for k := range shared {
		pairs = append(pairs, k)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})

	var out detection
	for _, k := range pairs {
		common := domain.SortedStrings(shared[k])
		key := strings.Join(common, ",")
		for _, dir := range [][2]string{{k.a, k.b}, {k.b, k.a}} {
			out.drafts = append(out.drafts, domain.EdgeDraft{
				Type:         domain.RelSharedPaymentMethod,
				SourceID:     dir[0],
				TargetID:     dir[1],
				Discriminant: key,
				Properties:   map[string]any{"methods": common},
			})
		}
	}
	return out
}

// detectLinkedTransactions emits one undirected LINKED_TO edge per transaction
// pair and shared fingerprint. Sharing both ip and device yields two edges.
func detectLinkedTransactions(txs []domain.Transaction) detection {
	txID := func(t domain.Transaction) string { return t.ID }
	var out detection
	link := func(reason, prop string, value func(domain.Transaction) string) {
		groups, keys := groupBy(txs, txID, value)
		for _, v := range keys {
			ids := groups[v]
			for i := 0; i < len(ids); i++ {
				for j := i + 1; j < len(ids); j++ {
					out.drafts = append(out.drafts, domain.EdgeDraft{
						Type:         domain.RelLinkedTo,
						SourceID:     ids[i],
						TargetID:     ids[j],
						Discriminant: reason + ":" + v,
						Undirected:   true,
						Properties:   map[string]any{"reason": reason, prop: v},
					})
				}
			}
		}
	}
	link("shared_ip", "ip_address", func(t domain.Transaction) string { return t.IPAddress })
	link("shared_device", "device_id", func(t domain.Transaction) string { return t.DeviceID })
	return out
}

func indexParties(parties []domain.Party) map[string]struct{} {
	idx := make(map[string]struct{}, len(parties))
	for _, p := range parties {
		idx[p.ID] = struct{}{}
	}
	return idx
}

// detectParentChild emits PARENT_OF and SUBSIDIARY_OF for every resolvable
// parent reference.
func detectParentChild(parties []domain.Party) detection {
	known := indexParties(parties)
	var out detection
	for _, child := range parties {
		parent := child.ParentEntityID
		if parent == "" {
			continue
		}
		if _, ok := known[parent]; !ok || parent == child.ID {
			out.skipped++
			continue
		}
		out.drafts = append(out.drafts,
			domain.EdgeDraft{Type: domain.RelParentOf, SourceID: parent, TargetID: child.ID},
			domain.EdgeDraft{Type: domain.RelSubsidiaryOf, SourceID: child.ID, TargetID: parent},
		)
	}
	return out
}

func detectDirectors(parties []domain.Party) detection {
	known := indexParties(parties)
	var out detection
	for _, company := range parties {
		for _, director := range company.Directors {
			if _, ok := known[director]; !ok || director == company.ID {
				out.skipped++
				continue
			}
			out.drafts = append(out.drafts, domain.EdgeDraft{Type: domain.RelDirectorOf, SourceID: director, TargetID: company.ID})
		}
	}
	return out
}

// detectShareholders emits SHAREHOLDER_OF edges carrying the holding
// percentage. Malformed entries are logged and skipped.
func detectShareholders(logger *slog.Logger) func([]domain.Party) detection {
	return func(parties []domain.Party) detection {
		known := indexParties(parties)
		var out detection
		for _, company := range parties {
			for i, sh := range company.Shareholders {
				if err := validateShareholder(sh); err != nil {
					logger.Warn("skipping shareholder entry",
						"company_id", company.ID,
						"index", i,
						"error", err,
					)
					out.skipped++
					continue
				}
				if _, ok := known[sh.PartyID]; !ok || sh.PartyID == company.ID {
					out.skipped++
					continue
				}
				out.drafts = append(out.drafts, domain.EdgeDraft{
					Type:       domain.RelShareholderOf,
					SourceID:   sh.PartyID,
					TargetID:   company.ID,
					Properties: map[string]any{"percentage": sh.Percentage},
				})
			}
		}
		return out
	}
}

func validateShareholder(sh domain.Shareholder) error {
	switch {
	case strings.TrimSpace(sh.PartyID) == "":
		return fmt.Errorf("shareholder without party id: %w", domain.ErrMalformedAttribute)
	case math.IsNaN(sh.Percentage) || math.IsInf(sh.Percentage, 0):
		return fmt.Errorf("shareholder %s percentage is not a number: %w", sh.PartyID, domain.ErrMalformedAttribute)
	case sh.Percentage < 0:
		return fmt.Errorf("shareholder %s percentage %.2f is negative: %w", sh.PartyID, sh.Percentage, domain.ErrMalformedAttribute)
	default:
		return nil
	}
}
