package core

import (
	"context"
	"fmt"
	"io"
)

// ContextCheckInterval is how often (in rows) validation checks for cancellation.
const ContextCheckInterval = 100

// DefaultPreviewLimit caps ValidationResult.Preview.
const DefaultPreviewLimit = 50

// ImporterConfig is the explicit configuration of an Importer.
type ImporterConfig struct {
	Locale       Locale
	PreviewLimit int
	Committer    CommitterConfig
}

// DefaultImporterConfig returns the defaults used when nothing is configured.
func DefaultImporterConfig() ImporterConfig {
	return ImporterConfig{
		Locale:       DefaultLocale(),
		PreviewLimit: DefaultPreviewLimit,
		Committer:    CommitterConfig{Concurrency: DefaultCommitConcurrency},
	}
}

// Importer is the import session: one component with two entry points,
// Validate and Execute, sharing the same parser and validator so both
// agree on what counts as valid.
type Importer struct {
	registry  *Registry
	cfg       ImporterConfig
	committer *BatchCommitter
}

// NewImporter creates an importer for the targets in reg, committing to store.
func NewImporter(reg *Registry, store Store, cfg ImporterConfig) *Importer {
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = DefaultPreviewLimit
	}
	if cfg.Locale.DateOrder == "" {
		cfg.Locale.DateOrder = DateOrderDMY
	}
	return &Importer{
		registry:  reg,
		cfg:       cfg,
		committer: NewBatchCommitter(store, cfg.Committer),
	}
}

// Registry returns the targets the importer knows.
func (im *Importer) Registry() *Registry {
	return im.registry
}

func (im *Importer) open(target Target, file File) (TargetDefinition, *RowReader, *RowValidator, error) {
	def, ok := im.registry.Get(target)
	if !ok {
		return TargetDefinition{}, nil, nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	if file.Reader == nil {
		return TargetDefinition{}, nil, nil, &FormatError{Reason: ReasonEmpty}
	}

	rr, err := Parse(file.Reader, file.Format)
	if err != nil {
		return TargetDefinition{}, nil, nil, err
	}
	return def, rr, NewRowValidator(def, rr.Header(), im.cfg.Locale), nil
}

// Validate parses and validates the whole file without touching the store.
// Only a *FormatError (or cancellation) aborts it; row problems are
// collected so the operator sees every issue in one pass.
func (im *Importer) Validate(ctx context.Context, target Target, file File) (*ValidationResult, error) {
	def, rr, v, err := im.open(target, file)
	if err != nil {
		return nil, err
	}
	defer rr.Close()

	res := &ValidationResult{
		Target:   def.Info.Key,
		Columns:  def.Info.Columns,
		Errors:   []FieldIssue{},
		Warnings: v.HeaderIssues(),
		Preview:  []CandidateRecord{},
	}
	if res.Warnings == nil {
		res.Warnings = []FieldIssue{}
	}

	for row, err := range rr.All() {
		if err != nil {
			return nil, err
		}
		if row.Row%ContextCheckInterval == 0 && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}

		cand := v.Validate(row)
		res.TotalRows++
		if cand.Valid() {
			res.ValidRows++
		}
		for _, is := range cand.Issues {
			if is.Severity == SeverityError {
				res.Errors = append(res.Errors, is)
			} else {
				res.Warnings = append(res.Warnings, is)
			}
		}
		if len(res.Preview) < im.cfg.PreviewLimit {
			res.Preview = append(res.Preview, cand)
		}
	}

	res.IsValid = res.ValidRows == res.TotalRows
	return res, nil
}

// Execute re-parses and re-validates the file, then commits the valid rows
// through the batch committer. The whole file is parsed once before any
// batch is written, so a *FormatError anywhere in it returns a nil result
// and leaves the store untouched.
func (im *Importer) Execute(ctx context.Context, target Target, file File, opts ImportOptions) (*ImportResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := im.checkParses(ctx, target, file); err != nil {
		return nil, err
	}

	def, rr, v, err := im.open(target, file)
	if err != nil {
		return nil, err
	}
	defer rr.Close()

	var srcErr error
	candidates := func(yield func(CandidateRecord) bool) {
		for row, err := range rr.All() {
			if err != nil {
				srcErr = err
				return
			}
			if !yield(v.Validate(row)) {
				return
			}
		}
	}

	result, err := im.committer.Commit(ctx, def.Info.Key, candidates, opts)
	if srcErr != nil {
		// The file changed between the two passes.
		if result != nil {
			result.Incomplete = true
			result.Success = false
		}
		return result, srcErr
	}
	return result, err
}

// checkParses reads every row of file without validating it and rewinds the
// reader for the commit pass.
func (im *Importer) checkParses(ctx context.Context, target Target, file File) error {
	_, rr, _, err := im.open(target, file)
	if err != nil {
		return err
	}
	for row, err := range rr.All() {
		if err != nil {
			rr.Close()
			return err
		}
		if row.Row%ContextCheckInterval == 0 && ctx.Err() != nil {
			rr.Close()
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
	}
	rr.Close()

	if _, err := file.Reader.Seek(0, io.SeekStart); err != nil {
		return &FormatError{Reason: ReasonUnreadable, Err: fmt.Errorf("rewind %s: %w", file.Name, err)}
	}
	return nil
}
