// Package filter compiles CEL expressions into party and transaction
// predicates, e.g. `party.entity_type == "company" && party.industry == "Finance"`.
package filter

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

// Compiler compiles and caches CEL programs. It is safe for concurrent use.
type Compiler struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCompiler creates a compiler exposing the `party` and `tx` variables.
func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("party", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Compiler{env: env, programs: make(map[string]cel.Program)}, nil
}

// Party compiles expr into a party predicate.
func (c *Compiler) Party(expr string) (func(domain.Party) bool, error) {
	prg, err := c.compile(expr)
	if err != nil {
		return nil, err
	}
	return func(p domain.Party) bool {
		return evalBool(prg, map[string]any{"party": partyVars(p), "tx": map[string]any{}})
	}, nil
}

// Transaction compiles expr into a transaction predicate.
func (c *Compiler) Transaction(expr string) (func(domain.Transaction) bool, error) {
	prg, err := c.compile(expr)
	if err != nil {
		return nil, err
	}
	return func(tx domain.Transaction) bool {
		return evalBool(prg, map[string]any{"party": map[string]any{}, "tx": transactionVars(tx)})
	}, nil
}

func (c *Compiler) compile(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.programs[expr]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile filter %q: %v: %w", expr, issues.Err(), domain.ErrInvalidArgument)
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter %q must return bool, got %s: %w", expr, out, domain.ErrInvalidArgument)
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for filter %q: %w", expr, err)
	}

	c.mu.Lock()
	c.programs[expr] = prg
	c.mu.Unlock()
	return prg, nil
}

// evalBool treats evaluation errors and non-bool results as a non-match.
func evalBool(prg cel.Program, activation map[string]any) bool {
	out, _, err := prg.Eval(activation)
	if err != nil {
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

func partyVars(p domain.Party) map[string]any {
	holders := make([]string, 0, len(p.Shareholders))
	for _, sh := range p.Shareholders {
		holders = append(holders, sh.PartyID)
	}
	return map[string]any{
		"id":               p.ID,
		"name":             p.Name,
		"email":            p.Email,
		"phone":            p.Phone,
		"address":          p.Address,
		"payment_methods":  nonNil(p.PaymentMethods),
		"entity_type":      string(p.EntityType),
		"company_name":     p.CompanyName,
		"company_id":       p.CompanyID,
		"tax_id":           p.TaxID,
		"industry":         p.Industry,
		"directors":        nonNil(p.Directors),
		"shareholders":     holders,
		"parent_entity_id": p.ParentEntityID,
		"subsidiaries":     nonNil(p.Subsidiaries),
	}
}

func transactionVars(tx domain.Transaction) map[string]any {
	metadata := tx.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return map[string]any{
		"id":          tx.ID,
		"sender_id":   tx.SenderID,
		"receiver_id": tx.ReceiverID,
		"amount":      tx.Amount,
		"currency":    tx.Currency,
		"status":      tx.Status,
		"ip_address":  tx.IPAddress,
		"device_id":   tx.DeviceID,
		"timestamp":   tx.Timestamp,
		"metadata":    metadata,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
