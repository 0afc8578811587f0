package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/graph"
)

// internal edge properties that are not part of a relationship's payload.
var edgeBookkeeping = map[string]struct{}{"id": {}, "key": {}, "created_at": {}}

func partyProperties(p domain.Party) map[string]any {
	props := map[string]any{
		"id":         p.ID,
		"name":       p.Name,
		"created_at": formatTime(p.CreatedAt),
		"updated_at": formatTime(p.UpdatedAt),
	}
	setString(props, "email", p.Email)
	setString(props, "phone", p.Phone)
	setString(props, "address", p.Address)
	setString(props, "entity_type", string(p.EntityType))
	setString(props, "company_name", p.CompanyName)
	setString(props, "company_id", p.CompanyID)
	setString(props, "tax_id", p.TaxID)
	setString(props, "industry", p.Industry)
	setString(props, "incorporation_date", formatTimePtr(p.IncorporationDate))
	setString(props, "parent_entity_id", p.ParentEntityID)
	if len(p.PaymentMethods) > 0 {
		props["payment_methods"] = p.PaymentMethods
	}
	if len(p.Directors) > 0 {
		props["directors"] = p.Directors
	}
	if len(p.Subsidiaries) > 0 {
		props["subsidiaries"] = p.Subsidiaries
	}
	// Neo4j properties cannot hold maps, so shareholders are stored as two
	// index-aligned lists.
	if len(p.Shareholders) > 0 {
		ids := make([]string, len(p.Shareholders))
		pcts := make([]float64, len(p.Shareholders))
		for i, sh := range p.Shareholders {
			ids[i] = sh.PartyID
			pcts[i] = sh.Percentage
		}
		props["shareholder_ids"] = ids
		props["shareholder_percentages"] = pcts
	}
	return props
}

func partyFromProps(props graph.Record) (domain.Party, error) {
	p := domain.Party{
		ID:                props.String("id"),
		Name:              props.String("name"),
		Email:             props.String("email"),
		Phone:             props.String("phone"),
		Address:           props.String("address"),
		PaymentMethods:    props.Strings("payment_methods"),
		EntityType:        domain.EntityType(props.String("entity_type")),
		CompanyName:       props.String("company_name"),
		CompanyID:         props.String("company_id"),
		TaxID:             props.String("tax_id"),
		Industry:          props.String("industry"),
		IncorporationDate: props.Time("incorporation_date"),
		Directors:         props.Strings("directors"),
		ParentEntityID:    props.String("parent_entity_id"),
		Subsidiaries:      props.Strings("subsidiaries"),
	}
	if created := props.Time("created_at"); created != nil {
		p.CreatedAt = *created
	}
	if updated := props.Time("updated_at"); updated != nil {
		p.UpdatedAt = *updated
	}

	ids := props.Strings("shareholder_ids")
	pcts := props.Floats("shareholder_percentages")
	if len(ids) != len(pcts) {
		return p, fmt.Errorf("party %s: %d shareholder ids for %d percentages: %w", p.ID, len(ids), len(pcts), domain.ErrMalformedAttribute)
	}
	for i := range ids {
		p.Shareholders = append(p.Shareholders, domain.Shareholder{PartyID: ids[i], Percentage: pcts[i]})
	}
	return p, nil
}

func transactionProperties(tx domain.Transaction) (map[string]any, error) {
	props := map[string]any{
		"id":          tx.ID,
		"sender_id":   tx.SenderID,
		"receiver_id": tx.ReceiverID,
		"amount":      tx.Amount,
		"currency":    tx.Currency,
		"timestamp":   formatTime(tx.Timestamp),
		"status":      tx.Status,
	}
	setString(props, "ip_address", tx.IPAddress)
	setString(props, "device_id", tx.DeviceID)
	if len(tx.Metadata) > 0 {
		serialized, err := serializeMetadata(tx.Metadata)
		if err != nil {
			return nil, fmt.Errorf("transaction %s metadata: %w", tx.ID, err)
		}
		props["metadata_json"] = serialized
	}
	return props, nil
}

func transactionFromProps(props graph.Record) domain.Transaction {
	tx := domain.Transaction{
		ID:         props.String("id"),
		SenderID:   props.String("sender_id"),
		ReceiverID: props.String("receiver_id"),
		Amount:     props.Float("amount"),
		Currency:   props.String("currency"),
		Status:     props.String("status"),
		IPAddress:  props.String("ip_address"),
		DeviceID:   props.String("device_id"),
	}
	if ts := props.Time("timestamp"); ts != nil {
		tx.Timestamp = *ts
	}
	if raw := props.String("metadata_json"); raw != "" {
		var metadata map[string]any
		if err := json.Unmarshal([]byte(raw), &metadata); err == nil {
			tx.Metadata = metadata
		}
	}
	return tx
}

// edgeProperties flattens nested maps into JSON strings so the values can be
// stored as relationship properties.
func edgeProperties(props map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if nested, ok := v.(map[string]any); ok {
			encoded, err := json.Marshal(nested)
			if err != nil {
				return nil, fmt.Errorf("encode property %s: %w", k, err)
			}
			out[k] = string(encoded)
			continue
		}
		out[k] = v
	}
	return out, nil
}

func relationshipFromRecord(record graph.Record) domain.Relationship {
	rel := domain.Relationship{
		ID:       record.String("id"),
		Type:     domain.RelationshipType(record.String("type")),
		SourceID: record.String("sourceId"),
		TargetID: record.String("targetId"),
	}
	props := graph.Record(record.Map("props"))
	if created := props.Time("created_at"); created != nil {
		rel.CreatedAt = *created
	}
	for k, v := range props {
		if _, skip := edgeBookkeeping[k]; skip {
			continue
		}
		if rel.Properties == nil {
			rel.Properties = make(map[string]any, len(props))
		}
		if s, ok := v.(string); ok && strings.HasPrefix(s, "{") {
			var nested map[string]any
			if err := json.Unmarshal([]byte(s), &nested); err == nil {
				v = nested
			}
		}
		rel.Properties[k] = v
	}
	return rel
}

func setString(props map[string]any, key, value string) {
	if value != "" {
		props[key] = value
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return formatTime(*t)
}

func serializeMetadata(metadata map[string]any) (string, error) {
	bytes, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
