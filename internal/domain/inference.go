package domain

import "time"

// PassResult is the outcome of a single detector pass.
type PassResult struct {
	Name     string
	Created  int
	Skipped  int
	Duration time.Duration
	Err      error
}

// Failed reports whether the pass returned an error.
func (p PassResult) Failed() bool {
	return p.Err != nil
}

// InferenceRun summarises a full inference run.
type InferenceRun struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Passes     []PassResult
}

// Created sums the edges created by all passes.
func (r InferenceRun) Created() int {
	total := 0
	for _, p := range r.Passes {
		total += p.Created
	}
	return total
}

// FailedPasses returns the passes that returned an error.
func (r InferenceRun) FailedPasses() []PassResult {
	var failed []PassResult
	for _, p := range r.Passes {
		if p.Failed() {
			failed = append(failed, p)
		}
	}
	return failed
}
