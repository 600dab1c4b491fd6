package core

// committer.go writes validated records to the store in bounded batches.
//
// Records arrive as a lazy sequence in row order. Invalid records are
// reported straight into the result; valid ones are grouped into batches
// of ImportOptions.BatchSize. Each batch gets one duplicate check and one
// atomic write. Batches run on a bounded worker pool and their outcomes
// are reassembled in batch order, so a failed batch never stops the next.

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCommitConcurrency is the number of batches written in parallel.
const DefaultCommitConcurrency = 4

// BatchStats describes one finished batch.
type BatchStats struct {
	Target   Target
	Index    int // 1-based
	Size     int
	Inserted int
	Skipped  int
	Failed   int
	Duration time.Duration
	Err      error // store error that failed the whole batch, if any
}

// CommitterConfig configures a BatchCommitter.
type CommitterConfig struct {
	Concurrency  int              // batches in flight, <= 0 means DefaultCommitConcurrency
	StoreTimeout time.Duration    // bounds each Exists and InsertBatch call, 0 disables
	OnBatch      func(BatchStats) // optional, called from worker goroutines
}

// BatchCommitter partitions records into batches and commits them.
type BatchCommitter struct {
	store    Store
	resolver *DuplicateResolver
	cfg      CommitterConfig
}

// NewBatchCommitter creates a committer writing to store.
func NewBatchCommitter(store Store, cfg CommitterConfig) *BatchCommitter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultCommitConcurrency
	}
	return &BatchCommitter{
		store:    store,
		resolver: NewDuplicateResolver(store, cfg.StoreTimeout),
		cfg:      cfg,
	}
}

// batchOutcome is filled by exactly one worker.
type batchOutcome struct {
	notRun      bool
	interrupted bool
	inserted    int
	skipped     int
	failed      []RowError
}

func (o *batchOutcome) fail(rows []CandidateRecord, reason string) {
	for _, r := range rows {
		o.failed = append(o.failed, RowError{Row: r.Row, Reason: reason})
	}
}

// Commit consumes records and returns the aggregated result.
//
// When ctx ends, no further batches start. Batches already committed stay
// committed, batches cut short are reported as failed, and the partial
// result is returned together with ErrCancelled.
func (c *BatchCommitter) Commit(ctx context.Context, target Target, records iter.Seq[CandidateRecord], opts ImportOptions) (*ImportResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var (
		g         errgroup.Group
		outcomes  []*batchOutcome
		invalid   []RowError
		batch     []CandidateRecord
		cancelled bool
	)
	g.SetLimit(c.cfg.Concurrency)

	dispatch := func() {
		index := len(outcomes) + 1
		out := &batchOutcome{}
		outcomes = append(outcomes, out)
		rows := batch
		batch = make([]CandidateRecord, 0, opts.BatchSize)

		// Go blocks while Concurrency batches are in flight.
		g.Go(func() error {
			c.runBatch(ctx, target, index, rows, opts, out)
			return nil
		})
	}

	for cand := range records {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if !cand.Valid() {
			invalid = append(invalid, RowError{Row: cand.Row, Reason: cand.ErrorSummary()})
			continue
		}
		batch = append(batch, cand)
		if len(batch) >= opts.BatchSize {
			dispatch()
		}
	}
	if !cancelled && len(batch) > 0 {
		if ctx.Err() != nil {
			cancelled = true
		} else {
			dispatch()
		}
	}

	_ = g.Wait()

	result := &ImportResult{Target: target, Errors: []RowError{}}
	for _, out := range outcomes {
		if out.notRun {
			cancelled = true
			continue
		}
		if out.interrupted {
			cancelled = true
		}
		result.Batches++
		result.SuccessfulInserts += out.inserted
		result.DuplicatesSkipped += out.skipped
		result.FailedInserts += len(out.failed)
		result.Errors = append(result.Errors, out.failed...)
	}
	result.FailedInserts += len(invalid)
	result.Errors = append(result.Errors, invalid...)

	sort.SliceStable(result.Errors, func(i, j int) bool {
		return result.Errors[i].Row < result.Errors[j].Row
	})

	result.TotalProcessed = result.SuccessfulInserts + result.FailedInserts + result.DuplicatesSkipped
	// A deadline that passes after the last batch committed does not
	// cancel a finished import.
	if cancelled {
		result.Cancelled = true
		result.Incomplete = true
	}
	result.Success = result.FailedInserts == 0 && !result.Incomplete

	if result.Cancelled {
		return result, fmt.Errorf("%w: %d of %d batches completed", ErrCancelled, result.Batches, len(outcomes))
	}
	return result, nil
}

// runBatch resolves duplicates and writes one batch. It never returns an
// error: failures become row errors on out.
func (c *BatchCommitter) runBatch(ctx context.Context, target Target, index int, rows []CandidateRecord, opts ImportOptions, out *batchOutcome) {
	if ctx.Err() != nil {
		out.notRun = true
		return
	}

	start := time.Now()
	var batchErr error
	defer func() {
		if c.cfg.OnBatch == nil {
			return
		}
		c.cfg.OnBatch(BatchStats{
			Target:   target,
			Index:    index,
			Size:     len(rows),
			Inserted: out.inserted,
			Skipped:  out.skipped,
			Failed:   len(out.failed),
			Duration: time.Since(start),
			Err:      batchErr,
		})
	}()

	actions, err := c.resolver.ResolveBatch(ctx, target, rows, opts)
	if err != nil {
		batchErr = &StoreError{Op: "exists", Batch: index, Err: err}
		out.interrupted = ctx.Err() != nil
		out.fail(rows, failureReason(ctx, batchErr))
		slog.Warn("duplicate check failed", "target", target, "batch", index, "rows", len(rows), "error", err)
		return
	}

	toInsert := make([]CandidateRecord, 0, len(rows))
	for i, a := range actions {
		if a.Skip {
			out.skipped++
			continue
		}
		toInsert = append(toInsert, rows[i])
	}
	if len(toInsert) == 0 {
		return
	}

	records := make([]Record, len(toInsert))
	for i, cand := range toInsert {
		records[i] = cand.Record
	}

	writeCtx := ctx
	if c.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, c.cfg.StoreTimeout)
		defer cancel()
	}

	outcomes, err := c.store.InsertBatch(writeCtx, target, records)
	if err == nil && len(outcomes) != 0 && len(outcomes) != len(records) {
		err = fmt.Errorf("store returned %d outcomes for %d records", len(outcomes), len(records))
	}
	if err != nil {
		batchErr = &StoreError{Op: "insert", Batch: index, Err: err}
		out.interrupted = ctx.Err() != nil
		out.fail(toInsert, failureReason(ctx, batchErr))
		slog.Warn("batch write failed", "target", target, "batch", index, "rows", len(toInsert), "error", err)
		return
	}

	if len(outcomes) == 0 {
		out.inserted += len(toInsert)
		return
	}
	for i, o := range outcomes {
		if o.Err != nil {
			out.failed = append(out.failed, RowError{Row: toInsert[i].Row, Reason: o.Err.Error()})
			continue
		}
		out.inserted++
	}
}

// failureReason renders a batch failure for the operator.
func failureReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return "import cancelled before batch completed"
	case errors.Is(err, context.DeadlineExceeded):
		var se *StoreError
		if errors.As(err, &se) {
			return fmt.Sprintf("%s batch %d: store timeout", se.Op, se.Batch)
		}
		return "store timeout"
	}
	return err.Error()
}
