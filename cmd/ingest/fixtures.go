package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/service"
)

var errUnsupportedFormat = errors.New("unsupported fixture format")

type shareholderFixture struct {
	PartyID    string  `json:"partyId" yaml:"partyId"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

type partyFixture struct {
	ID                string               `json:"id" yaml:"id"`
	Name              string               `json:"name" yaml:"name"`
	Email             string               `json:"email" yaml:"email"`
	Phone             string               `json:"phone" yaml:"phone"`
	Address           string               `json:"address" yaml:"address"`
	PaymentMethods    []string             `json:"paymentMethods" yaml:"paymentMethods"`
	EntityType        string               `json:"entityType" yaml:"entityType"`
	CompanyName       string               `json:"companyName" yaml:"companyName"`
	CompanyID         string               `json:"companyId" yaml:"companyId"`
	TaxID             string               `json:"taxId" yaml:"taxId"`
	Industry          string               `json:"industry" yaml:"industry"`
	IncorporationDate string               `json:"incorporationDate" yaml:"incorporationDate"`
	Directors         []string             `json:"directors" yaml:"directors"`
	Shareholders      []shareholderFixture `json:"shareholders" yaml:"shareholders"`
	ParentEntityID    string               `json:"parentEntityId" yaml:"parentEntityId"`
	Subsidiaries      []string             `json:"subsidiaries" yaml:"subsidiaries"`
}

type transactionFixture struct {
	ID         string         `json:"id" yaml:"id"`
	SenderID   string         `json:"senderId" yaml:"senderId"`
	ReceiverID string         `json:"receiverId" yaml:"receiverId"`
	Amount     float64        `json:"amount" yaml:"amount"`
	Currency   string         `json:"currency" yaml:"currency"`
	Timestamp  string         `json:"timestamp" yaml:"timestamp"`
	Status     string         `json:"status" yaml:"status"`
	IPAddress  string         `json:"ipAddress" yaml:"ipAddress"`
	DeviceID   string         `json:"deviceId" yaml:"deviceId"`
	Metadata   map[string]any `json:"metadata" yaml:"metadata"`
}

type relationshipFixture struct {
	SourceID string         `json:"sourceId" yaml:"sourceId"`
	TargetID string         `json:"targetId" yaml:"targetId"`
	Type     string         `json:"relationshipType" yaml:"relationshipType"`
	Strength *float64       `json:"strength" yaml:"strength"`
	Details  map[string]any `json:"details" yaml:"details"`
}

func (f partyFixture) toInput() (service.PartyInput, error) {
	input := service.PartyInput{
		ID:             f.ID,
		Name:           f.Name,
		Email:          f.Email,
		Phone:          f.Phone,
		Address:        f.Address,
		PaymentMethods: f.PaymentMethods,
		EntityType:     f.EntityType,
		CompanyName:    f.CompanyName,
		CompanyID:      f.CompanyID,
		TaxID:          f.TaxID,
		Industry:       f.Industry,
		Directors:      f.Directors,
		ParentEntityID: f.ParentEntityID,
		Subsidiaries:   f.Subsidiaries,
	}
	for _, sh := range f.Shareholders {
		input.Shareholders = append(input.Shareholders, service.ShareholderInput{
			PartyID:    sh.PartyID,
			Percentage: sh.Percentage,
		})
	}
	if f.IncorporationDate != "" {
		ts, err := parseFixtureTime(f.IncorporationDate)
		if err != nil {
			return service.PartyInput{}, fmt.Errorf("party %q: incorporationDate: %w", f.ID, err)
		}
		input.IncorporationDate = &ts
	}
	return input, nil
}

func (f transactionFixture) toInput() (service.TransactionInput, error) {
	input := service.TransactionInput{
		ID:         f.ID,
		SenderID:   f.SenderID,
		ReceiverID: f.ReceiverID,
		Amount:     f.Amount,
		Currency:   f.Currency,
		Status:     f.Status,
		IPAddress:  f.IPAddress,
		DeviceID:   f.DeviceID,
		Metadata:   f.Metadata,
	}
	if f.Timestamp != "" {
		ts, err := parseFixtureTime(f.Timestamp)
		if err != nil {
			return service.TransactionInput{}, fmt.Errorf("transaction %q: timestamp: %w", f.ID, err)
		}
		input.Timestamp = &ts
	}
	return input, nil
}

func (f relationshipFixture) toInput() service.BusinessRelationshipInput {
	return service.BusinessRelationshipInput{
		SourceID: f.SourceID,
		TargetID: f.TargetID,
		Type:     f.Type,
		Strength: f.Strength,
		Details:  f.Details,
	}
}

func loadParties(path string) ([]service.PartyInput, error) {
	var fixtures []partyFixture
	if err := loadFixture(path, &fixtures); err != nil {
		return nil, err
	}
	inputs := make([]service.PartyInput, 0, len(fixtures))
	for _, f := range fixtures {
		input, err := f.toInput()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}

func loadTransactions(path string) ([]service.TransactionInput, error) {
	var fixtures []transactionFixture
	if err := loadFixture(path, &fixtures); err != nil {
		return nil, err
	}
	inputs := make([]service.TransactionInput, 0, len(fixtures))
	for _, f := range fixtures {
		input, err := f.toInput()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}

func loadRelationships(path string) ([]service.BusinessRelationshipInput, error) {
	var fixtures []relationshipFixture
	if err := loadFixture(path, &fixtures); err != nil {
		return nil, err
	}
	inputs := make([]service.BusinessRelationshipInput, 0, len(fixtures))
	for _, f := range fixtures {
		inputs = append(inputs, f.toInput())
	}
	return inputs, nil
}

// loadFixture decodes a JSON or YAML list, picked by file extension.
func loadFixture(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(target); err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(target); err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", errUnsupportedFormat, path)
	}
	return nil
}

func parseFixtureTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.DateOnly, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
