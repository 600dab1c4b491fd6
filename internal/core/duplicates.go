package core

import (
	"context"
	"fmt"
	"time"
)

// DuplicateResolver decides, per record, whether a batch row is inserted
// or skipped because its duplicate key already exists in the store.
type DuplicateResolver struct {
	store   Store
	timeout time.Duration
}

// NewDuplicateResolver creates a resolver that asks store for existing keys.
// A positive timeout bounds each existence check.
func NewDuplicateResolver(store Store, timeout time.Duration) *DuplicateResolver {
	return &DuplicateResolver{store: store, timeout: timeout}
}

// Resolve decides for a single record. Batches should use ResolveBatch,
// which needs one store round trip for the whole batch.
func (r *DuplicateResolver) Resolve(ctx context.Context, cand CandidateRecord, opts ImportOptions) (Action, error) {
	actions, err := r.ResolveBatch(ctx, cand.Target, []CandidateRecord{cand}, opts)
	if err != nil {
		return Action{}, err
	}
	return actions[0], nil
}

// ResolveBatch returns one action per candidate, in order. With
// SkipDuplicates off the store is not consulted and every record is
// inserted. Candidates without a Record are never looked up.
func (r *DuplicateResolver) ResolveBatch(ctx context.Context, target Target, batch []CandidateRecord, opts ImportOptions) ([]Action, error) {
	actions := make([]Action, len(batch))
	if !opts.SkipDuplicates || len(batch) == 0 {
		return actions, nil
	}

	keys := make([]Key, 0, len(batch))
	seen := make(map[Key]bool, len(batch))
	for _, c := range batch {
		if c.Record == nil {
			continue
		}
		k := c.Record.DuplicateKey()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return actions, nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	existing, err := r.store.Exists(ctx, target, keys)
	if err != nil {
		return nil, err
	}

	for i, c := range batch {
		if c.Record == nil {
			continue
		}
		if k := c.Record.DuplicateKey(); existing[k] {
			actions[i] = SkipAction(fmt.Sprintf("duplicate of existing record (%s)", k))
		}
	}
	return actions, nil
}
