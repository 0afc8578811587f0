// Package inference derives relationships from party and transaction
// attributes. A run executes a fixed sequence of detector passes and merges
// their edges into the store, so repeated runs converge on the same graph.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/domain"
)

var tracer = otel.Tracer("entitygraph-inference")

// Store is the subset of the entity store used by inference.
type Store interface {
	AllParties(ctx context.Context) ([]domain.Party, error)
	AllTransactions(ctx context.Context) ([]domain.Transaction, error)
	Relationships(ctx context.Context) ([]domain.Relationship, error)
	MergeEdges(ctx context.Context, drafts []domain.EdgeDraft) (int, error)
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, run domain.InferenceRun) error
}

// Engine runs inference. Concurrent calls to Run share a single in-flight run.
type Engine struct {
	store    Store
	logger   *slog.Logger
	nowFn    func() time.Time
	recorder Recorder
	afterRun []func(context.Context, domain.InferenceRun)
	group    singleflight.Group
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for run timestamps.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.nowFn = fn
		}
	}
}

// WithRecorder persists every finished run.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithAfterRun registers a hook invoked once a run finishes, failed or not.
func WithAfterRun(fn func(context.Context, domain.InferenceRun)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.afterRun = append(e.afterRun, fn)
		}
	}
}

// NewEngine builds an engine over store.
func NewEngine(store Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:  store,
		logger: logger.With("component", "inference"),
		nowFn:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type pass struct {
	name   string
	detect func(ctx context.Context, in *input) (detection, error)
}

func partyPass(name string, fn func([]domain.Party) detection) pass {
	return pass{name: name, detect: func(ctx context.Context, in *input) (detection, error) {
		parties, err := in.Parties(ctx)
		if err != nil {
			return detection{}, err
		}
		return fn(parties), nil
	}}
}

// passes returns the detectors in execution order. Composite scoring must stay
// last because it reads the edges produced by the others.
func (e *Engine) passes() []pass {
	return []pass{
		partyPass("shared_email", detectSharedEmail),
		partyPass("shared_phone", detectSharedPhone),
		partyPass("shared_address", detectSharedAddress),
		partyPass("shared_payment_method", detectSharedPaymentMethods),
		{name: "linked_transactions", detect: func(ctx context.Context, in *input) (detection, error) {
			txs, err := in.Transactions(ctx)
			if err != nil {
				return detection{}, err
			}
			return detectLinkedTransactions(txs), nil
		}},
		partyPass("parent_child", detectParentChild),
		partyPass("director", detectDirectors),
		partyPass("shareholder", detectShareholders(e.logger)),
		{name: "composite", detect: func(ctx context.Context, in *input) (detection, error) {
			parties, err := in.Parties(ctx)
			if err != nil {
				return detection{}, err
			}
			rels, err := e.store.Relationships(ctx)
			if err != nil {
				return detection{}, fmt.Errorf("load relationships: %w", err)
			}
			return detection{drafts: compositeDrafts(parties, rels)}, nil
		}},
	}
}

// PassNames lists the detector passes in execution order.
func (e *Engine) PassNames() []string {
	passes := e.passes()
	names := make([]string, len(passes))
	for i, p := range passes {
		names[i] = p.name
	}
	return names
}

// Run executes every pass and returns the run summary. A failed pass does not
// stop later passes; the returned error is an *InferenceError listing them.
// Callers arriving while a run is in flight receive that run's result.
func (e *Engine) Run(ctx context.Context) (domain.InferenceRun, error) {
	v, err, shared := e.group.Do("inference", func() (any, error) {
		return e.run(context.WithoutCancel(ctx))
	})
	run, _ := v.(domain.InferenceRun)
	if shared {
		e.logger.Debug("joined in-flight inference run", "run_id", run.RunID)
	}
	return run, err
}

func (e *Engine) run(ctx context.Context) (domain.InferenceRun, error) {
	run := domain.InferenceRun{
		RunID:     uuid.NewString(),
		StartedAt: e.nowFn().UTC(),
	}
	logger := e.logger.With("run_id", run.RunID)

	ctx, span := tracer.Start(ctx, "inference.run",
		trace.WithAttributes(attribute.String("inference.run_id", run.RunID)),
	)
	defer span.End()

	logger.Info("inference run started")
	in := &input{store: e.store}
	for _, p := range e.passes() {
		run.Passes = append(run.Passes, e.runPass(ctx, logger, p, in))
	}
	run.FinishedAt = e.nowFn().UTC()

	if e.recorder != nil {
		if err := e.recorder.Record(ctx, run); err != nil {
			logger.Warn("failed to record inference run", "error", err)
		}
	}
	for _, fn := range e.afterRun {
		fn(ctx, run)
	}

	span.SetAttributes(attribute.Int("inference.edges_created", run.Created()))
	failed := run.FailedPasses()
	logger.Info("inference run finished",
		"created", run.Created(),
		"failed_passes", len(failed),
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)
	if len(failed) > 0 {
		err := &InferenceError{RunID: run.RunID, Failed: failed}
		span.SetStatus(codes.Error, err.Error())
		return run, err
	}
	return run, nil
}

func (e *Engine) runPass(ctx context.Context, logger *slog.Logger, p pass, in *input) (res domain.PassResult) {
	ctx, span := tracer.Start(ctx, "inference."+p.name)
	defer span.End()

	start := time.Now()
	res.Name = p.name
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("pass %s panicked: %v", p.name, r)
		}
		res.Duration = time.Since(start)
		span.SetAttributes(
			attribute.Int("inference.edges_created", res.Created),
			attribute.Int("inference.skipped", res.Skipped),
		)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			logger.Error("inference pass failed", "pass", p.name, "error", res.Err)
			return
		}
		logger.Info("inference pass complete",
			"pass", p.name,
			"created", res.Created,
			"skipped", res.Skipped,
			"duration", res.Duration,
		)
	}()

	det, err := p.detect(ctx, in)
	res.Skipped = det.skipped
	if err != nil {
		res.Err = err
		return res
	}
	if len(det.drafts) == 0 {
		return res
	}
	res.Created, res.Err = e.store.MergeEdges(ctx, det.drafts)
	return res
}

// input loads parties and transactions once per run.
type input struct {
	store Store

	partiesOnce sync.Once
	parties     []domain.Party
	partiesErr  error

	txOnce sync.Once
	txs    []domain.Transaction
	txErr  error
}

func (in *input) Parties(ctx context.Context) ([]domain.Party, error) {
	in.partiesOnce.Do(func() {
		in.parties, in.partiesErr = in.store.AllParties(ctx)
		if in.partiesErr != nil {
			in.partiesErr = fmt.Errorf("load parties: %w", in.partiesErr)
		}
	})
	return in.parties, in.partiesErr
}

func (in *input) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	in.txOnce.Do(func() {
		in.txs, in.txErr = in.store.AllTransactions(ctx)
		if in.txErr != nil {
			in.txErr = fmt.Errorf("load transactions: %w", in.txErr)
		}
	})
	return in.txs, in.txErr
}
