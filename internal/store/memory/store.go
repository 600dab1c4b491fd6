// Package memory is an in-process implementation of core.Store and
// core.RunRecorder. It backs dry runs and tests, and can inject faults.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/JonMunkholm/crmimport/internal/core"
)

// InsertHook runs before every InsertBatch. A non-nil error fails the
// whole batch without writing anything.
type InsertHook func(ctx context.Context, target core.Target, records []core.Record) error

// Store keeps records and import runs in memory.
type Store struct {
	mu      sync.Mutex
	records map[core.Target][]core.Record
	keys    map[core.Target]map[core.Key]int
	runs    []core.ImportRun

	existsErr    error
	failKeys     map[core.Key]error
	rejectKeys   map[core.Key]error
	beforeInsert InsertHook

	existsCalls int
	insertCalls int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		records:    make(map[core.Target][]core.Record),
		keys:       make(map[core.Target]map[core.Key]int),
		failKeys:   make(map[core.Key]error),
		rejectKeys: make(map[core.Key]error),
	}
}

// Seed stores records directly, bypassing fault injection.
func (s *Store) Seed(records ...core.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.put(r)
	}
}

func (s *Store) put(r core.Record) {
	t := r.Target()
	s.records[t] = append(s.records[t], r)
	if s.keys[t] == nil {
		s.keys[t] = make(map[core.Key]int)
	}
	s.keys[t][r.DuplicateKey()]++
}

// FailExists makes every Exists call return err. Pass nil to clear.
func (s *Store) FailExists(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existsErr = err
}

// FailBatchWith makes any InsertBatch containing one of keys fail as a
// whole with err.
func (s *Store) FailBatchWith(err error, keys ...core.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.failKeys[k] = err
	}
}

// RejectRecords makes InsertBatch report err for the records with the
// given keys while writing the rest of the batch.
func (s *Store) RejectRecords(err error, keys ...core.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.rejectKeys[k] = err
	}
}

// BeforeInsert installs a hook that runs before every InsertBatch.
func (s *Store) BeforeInsert(h InsertHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeInsert = h
}

// Exists reports which keys are already stored for target.
func (s *Store) Exists(ctx context.Context, target core.Target, keys []core.Key) (map[core.Key]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.existsCalls++
	if s.existsErr != nil {
		return nil, s.existsErr
	}

	found := make(map[core.Key]bool, len(keys))
	for _, k := range keys {
		if s.keys[target][k] > 0 {
			found[k] = true
		}
	}
	return found, nil
}

// InsertBatch writes records atomically: either the batch fails and
// nothing is written, or every record not rejected is stored.
func (s *Store) InsertBatch(ctx context.Context, target core.Target, records []core.Record) ([]core.InsertOutcome, error) {
	s.mu.Lock()
	s.insertCalls++
	hook := s.beforeInsert
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, target, records); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if err, ok := s.failKeys[r.DuplicateKey()]; ok {
			return nil, err
		}
	}

	var outcomes []core.InsertOutcome
	for i, r := range records {
		if err, ok := s.rejectKeys[r.DuplicateKey()]; ok {
			if outcomes == nil {
				outcomes = make([]core.InsertOutcome, len(records))
			}
			outcomes[i].Err = err
			continue
		}
		s.put(r)
	}
	return outcomes, nil
}

// Records returns the stored records of target in insertion order.
func (s *Store) Records(target core.Target) []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records[target])
}

// Count returns the number of stored records of target.
func (s *Store) Count(target core.Target) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[target])
}

// Calls returns how many Exists and InsertBatch calls the store served.
func (s *Store) Calls() (exists, inserts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsCalls, s.insertCalls
}

// RecordRun appends an import run to the history.
func (s *Store) RecordRun(_ context.Context, run core.ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// ListRuns returns up to limit runs for target, newest first.
// A limit of zero or less returns every run.
func (s *Store) ListRuns(_ context.Context, target core.Target, limit int) ([]core.ImportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := []core.ImportRun{}
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].Target != target {
			continue
		}
		runs = append(runs, s.runs[i])
		if limit > 0 && len(runs) == limit {
			break
		}
	}
	return runs, nil
}
