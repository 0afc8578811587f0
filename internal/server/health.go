package server

import "context"

// HealthService defines behaviour for readiness checks.
type HealthService interface {
	Check(ctx context.Context) error
}

// Pinger is anything that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreHealthService verifies the graph store and optional auxiliary
// backends (cache, run log) as part of health checks.
type StoreHealthService struct {
	Store     Pinger
	Auxiliary map[string]Pinger
}

// Check implements the HealthService interface.
func (s StoreHealthService) Check(ctx context.Context) error {
	if s.Store != nil {
		if err := s.Store.Ping(ctx); err != nil {
			return err
		}
	}
	for name, p := range s.Auxiliary {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			return &componentError{name: name, err: err}
		}
	}
	return nil
}

type componentError struct {
	name string
	err  error
}

func (e *componentError) Error() string { return e.name + ": " + e.err.Error() }
func (e *componentError) Unwrap() error { return e.err }
