package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client defines the minimal contract required by the repositories to interact
// with the underlying graph database.
type Client interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error)
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Result is a simplified representation of a query response.
type Result struct {
	Records []Record
}

// Record groups key-value pairs returned from the graph engine.
type Record map[string]any

// Options configures a graph client implementation.
type Options struct {
	URI                          string
	Database                     string
	Username                     string
	Password                     string
	MaxConnections               int
	ConnectionAcquisitionTimeout time.Duration
	MaxTransactionRetryTime      time.Duration
}

// ErrMissingURI indicates the graph URI is not provided.
var ErrMissingURI = errors.New("graph URI is required")

// String returns the value at key as a string, or "" when absent.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Float returns the value at key as a float64.
func (r Record) Float(key string) float64 {
	return toFloat64(r[key])
}

// Int returns the value at key as an int.
func (r Record) Int(key string) int {
	switch v := r[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Strings returns the list at key as strings, skipping non-string members.
func (r Record) Strings(key string) []string {
	raw, ok := r[key].([]any)
	if !ok {
		if s, ok := r[key].([]string); ok {
			return append([]string(nil), s...)
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Floats returns the list at key as float64 values.
func (r Record) Floats(key string) []float64 {
	raw, ok := r[key].([]any)
	if !ok {
		if f, ok := r[key].([]float64); ok {
			return append([]float64(nil), f...)
		}
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		out = append(out, toFloat64(v))
	}
	return out
}

// Map returns the nested map at key.
func (r Record) Map(key string) map[string]any {
	if m, ok := r[key].(map[string]any); ok {
		return m
	}
	return nil
}

// Time returns the value at key parsed as a timestamp.
func (r Record) Time(key string) *time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return &v
	case string:
		if v == "" {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return &parsed
		}
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			return &parsed
		}
	}
	return nil
}

func toFloat64(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
