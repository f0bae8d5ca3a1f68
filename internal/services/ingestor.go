package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/storage"

	"github.com/google/uuid"
)

// Evaluator is the part of BudgetEvaluator the ingestion paths depend on.
type Evaluator interface {
	Evaluate(ctx context.Context, userID, category string) (Evaluation, error)
}

// TransactionSource fetches a user's transactions from the banking
// collaborator. On a mid-stream failure it returns the items fully decoded so
// far together with an error wrapping core.ErrUpstream.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, connectionToken string) ([]core.RawTransaction, error)
}

// IngestResult summarises one batch. Item errors never abort the batch.
type IngestResult struct {
	Committed  []core.LedgerEntry
	Duplicates int
	Errors     []*core.ItemError

	// Alerts counts threshold alerts raised by entries of this batch.
	Alerts int
	// EvaluationErrors are budget checks that failed after a commit. The
	// entries themselves stay committed.
	EvaluationErrors []*core.ItemError
}

// Ingestor deduplicates raw transactions into the ledger.
type Ingestor struct {
	ledger       storage.LedgerStore
	evaluator    Evaluator
	source       TransactionSource
	fetchTimeout time.Duration
	now          func() time.Time
}

// NewIngestor wires an ingestor. source may be nil when only Ingest is used.
func NewIngestor(ledger storage.LedgerStore, evaluator Evaluator, source TransactionSource, fetchTimeout time.Duration) *Ingestor {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Ingestor{
		ledger:       ledger,
		evaluator:    evaluator,
		source:       source,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
	}
}

// Ingest commits items in order. Replaying the same or an overlapping batch
// in any order leaves the ledger unchanged. The only returned error is a
// missing user identity.
func (i *Ingestor) Ingest(ctx context.Context, userID string, items []core.RawTransaction) (IngestResult, error) {
	if err := core.RequireUser(userID); err != nil {
		return IngestResult{}, err
	}

	var res IngestResult
	for idx, raw := range items {
		if err := raw.Validate(); err != nil {
			res.Errors = append(res.Errors, &core.ItemError{Index: idx, Err: err})
			continue
		}
		raw = raw.Normalized()
		entry := core.LedgerEntry{
			ID:          uuid.NewString(),
			UserID:      userID,
			Category:    raw.Category,
			Amount:      raw.Amount,
			Description: raw.Description,
			OccurredAt:  raw.OccurredAt,
			DedupKey:    core.DedupKey(userID, raw),
			Source:      core.SourceBank,
			RecordedAt:  i.now().UTC(),
		}
		i.commit(ctx, idx, entry, &res)
	}

	slog.InfoContext(ctx, "Batch ingested",
		"component", "ingest",
		"user_id", userID,
		"items", len(items),
		"committed", len(res.Committed),
		"duplicates", res.Duplicates,
		"rejected", len(res.Errors),
		"alerts", res.Alerts)
	return res, nil
}

// commit inserts one keyed entry and evaluates its budget when it is new.
func (i *Ingestor) commit(ctx context.Context, idx int, entry core.LedgerEntry, res *IngestResult) {
	inserted, err := i.ledger.InsertIfAbsent(ctx, entry)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to commit ledger entry",
			"component", "ingest",
			"user_id", entry.UserID,
			"dedup_key", entry.DedupKey,
			"error", err)
		res.Errors = append(res.Errors, &core.ItemError{Index: idx, Err: core.Persistence("insert entry", err)})
		return
	}
	if !inserted {
		res.Duplicates++
		return
	}
	res.Committed = append(res.Committed, entry)

	if i.evaluator == nil {
		return
	}
	ev, err := i.evaluator.Evaluate(ctx, entry.UserID, entry.Category)
	if err != nil {
		slog.WarnContext(ctx, "Budget evaluation failed after commit",
			"component", "ingest",
			"user_id", entry.UserID,
			"category", entry.Category,
			"error", err)
		res.EvaluationErrors = append(res.EvaluationErrors, &core.ItemError{Index: idx, Err: err})
		return
	}
	if ev.Alerted {
		res.Alerts++
	}
}

// Sync pulls the user's transactions from the banking collaborator and
// ingests them. A total failure commits nothing and returns core.ErrUpstream.
// On a mid-stream failure every fully received item is ingested and the
// result is returned together with the upstream error.
func (i *Ingestor) Sync(ctx context.Context, userID, connectionToken string) (IngestResult, error) {
	if err := core.RequireUser(userID); err != nil {
		return IngestResult{}, err
	}
	if i.source == nil {
		return IngestResult{}, fmt.Errorf("%w: no banking source configured", core.ErrUpstream)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, i.fetchTimeout)
	items, fetchErr := i.source.FetchTransactions(fetchCtx, connectionToken)
	cancel()

	if fetchErr != nil {
		if !errors.Is(fetchErr, core.ErrUpstream) {
			fetchErr = fmt.Errorf("%w: %w", core.ErrUpstream, fetchErr)
		}
		if len(items) == 0 {
			slog.WarnContext(ctx, "Bank sync failed",
				"component", "ingest", "user_id", userID, "error", fetchErr)
			return IngestResult{}, fmt.Errorf("sync transactions: %w", fetchErr)
		}
		slog.WarnContext(ctx, "Bank sync interrupted, ingesting received items",
			"component", "ingest", "user_id", userID, "received", len(items), "error", fetchErr)
	}

	res, err := i.Ingest(ctx, userID, items)
	if err != nil {
		return res, err
	}
	if fetchErr != nil {
		return res, fmt.Errorf("sync transactions: %w", fetchErr)
	}
	return res, nil
}
