package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// TaskError accumulates multiple errors produced during bulk ingestion.
type TaskError struct {
	Errors []error
}

func (e *TaskError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors:", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString(" ")
		b.WriteString(err.Error())
		b.WriteString(";")
	}
	return b.String()
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *TaskError) Unwrap() []error {
	return e.Errors
}

func (e *TaskError) append(err error) {
	if err == nil {
		return
	}
	e.Errors = append(e.Errors, err)
}

func (e *TaskError) asError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// BulkIngestor processes large party and transaction datasets using a
// bounded worker pool.
type BulkIngestor struct {
	service *Service
	workers int
}

// NewBulkIngestor creates a new BulkIngestor instance with the provided concurrency.
func NewBulkIngestor(service *Service, workers int) *BulkIngestor {
	if workers <= 0 {
		workers = 4
	}
	return &BulkIngestor{
		service: service,
		workers: workers,
	}
}

// IngestParties creates the provided parties concurrently. Individual
// failures are collected into a *TaskError; the remaining items still run.
func (bi *BulkIngestor) IngestParties(ctx context.Context, parties []PartyInput) (int, error) {
	return bi.run(ctx, len(parties), func(ctx context.Context, idx int) error {
		if _, err := bi.service.CreateParty(ctx, parties[idx]); err != nil {
			return fmt.Errorf("party %d (%s): %w", idx, parties[idx].ID, err)
		}
		return nil
	})
}

// IngestTransactions creates transactions concurrently. Parties must be
// ingested first since transactions reference them.
func (bi *BulkIngestor) IngestTransactions(ctx context.Context, txs []TransactionInput) (int, error) {
	return bi.run(ctx, len(txs), func(ctx context.Context, idx int) error {
		if _, err := bi.service.CreateTransaction(ctx, txs[idx]); err != nil {
			return fmt.Errorf("transaction %d (%s): %w", idx, txs[idx].ID, err)
		}
		return nil
	})
}

func (bi *BulkIngestor) run(ctx context.Context, total int, workerFn func(context.Context, int) error) (int, error) {
	if total == 0 {
		return 0, nil
	}

	var (
		mu      sync.Mutex
		taskErr TaskError
		ok      int
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(bi.workers)
	for i := 0; i < total; i++ {
		if gCtx.Err() != nil {
			break
		}
		idx := i
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			err := workerFn(gCtx, idx)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				taskErr.append(err)
			} else {
				ok++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ok, err
	}
	if err := ctx.Err(); err != nil {
		return ok, err
	}
	return ok, taskErr.asError()
}
