package inference

import (
	"fmt"
	"strings"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

// InferenceError reports the passes that failed during a run. It matches
// domain.ErrInference as well as every underlying pass error.
type InferenceError struct {
	RunID  string
	Failed []domain.PassResult
}

func (e *InferenceError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, p := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s: %v", p.Name, p.Err))
	}
	return fmt.Sprintf("inference run %s: %d pass(es) failed: %s", e.RunID, len(e.Failed), strings.Join(parts, "; "))
}

func (e *InferenceError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed)+1)
	errs = append(errs, domain.ErrInference)
	for _, p := range e.Failed {
		errs = append(errs, p.Err)
	}
	return errs
}
