package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/crmimport/internal/config"
	"github.com/JonMunkholm/crmimport/internal/logging"
	"github.com/JonMunkholm/crmimport/internal/metrics"
)

// runRecordTimeout bounds writing one history entry after an import.
const runRecordTimeout = 5 * time.Second

// Service is the entry point used by the HTTP server and the CLI. It wraps
// the Importer with a concurrency limit, import ids, timeouts, logging,
// metrics and run history.
type Service struct {
	importer *Importer
	recorder RunRecorder
	limiter  *ImportLimiter
	cfg      config.ImportConfig
}

// NewService creates a service importing into store. recorder may be nil,
// in which case no history is kept.
func NewService(reg *Registry, store Store, recorder RunRecorder, cfg config.ImportConfig) (*Service, error) {
	order, err := ParseDateOrder(cfg.DateOrder)
	if err != nil {
		return nil, fmt.Errorf("import config: %w", err)
	}

	imCfg := ImporterConfig{
		Locale: Locale{
			DateOrder:   order,
			CountryCode: cfg.CountryCode,
			Now:         time.Now,
		},
		PreviewLimit: cfg.PreviewLimit,
		Committer: CommitterConfig{
			Concurrency:  cfg.CommitConcurrency,
			StoreTimeout: cfg.StoreTimeout,
			OnBatch:      observeBatch,
		},
	}

	limiter := NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime)
	limiter.OnChange = metrics.SetActiveImports

	return &Service{
		importer: NewImporter(reg, store, imCfg),
		recorder: recorder,
		limiter:  limiter,
		cfg:      cfg,
	}, nil
}

func observeBatch(st BatchStats) {
	metrics.RecordBatch(string(st.Target), st.Duration, st.Err != nil)
	slog.Debug("batch committed",
		"target", st.Target,
		"batch", st.Index,
		"size", st.Size,
		"inserted", st.Inserted,
		"skipped", st.Skipped,
		"failed", st.Failed,
		"duration_ms", st.Duration.Milliseconds(),
	)
}

// Targets returns information about every import target.
func (s *Service) Targets() []TargetInfo {
	defs := s.importer.Registry().All()
	infos := make([]TargetInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// Target returns the definition for a user supplied target key.
func (s *Service) Target(key string) (TargetDefinition, error) {
	return s.importer.Registry().Lookup(key)
}

// Template returns a blank import file for target.
func (s *Service) Template(target string, format Format) ([]byte, error) {
	def, err := s.Target(target)
	if err != nil {
		return nil, err
	}
	return s.importer.Template(def.Info.Key, format)
}

// DefaultOptions returns the import options used when the caller sets none.
func (s *Service) DefaultOptions() ImportOptions {
	opts := DefaultImportOptions()
	if s.cfg.DefaultBatchSize > 0 {
		opts.BatchSize = s.cfg.DefaultBatchSize
	}
	return opts
}

// MaxFileSize returns the largest upload accepted, in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.cfg.MaxFileSize
}

// Validate runs the validation session for target. It never writes.
func (s *Service) Validate(ctx context.Context, target string, file File) (*ValidationResult, error) {
	def, err := s.Target(target)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	res, err := s.importer.Validate(ctx, def.Info.Key, file)
	elapsed := time.Since(start)

	log := logging.WithFields(ctx, "target", def.Info.Key, "file", file.Name, "format", file.Format)
	if err != nil {
		metrics.RecordRun(string(def.Info.Key), metrics.StageValidate, "error", elapsed)
		log.Warn("validation failed", "error", err, "duration_ms", elapsed.Milliseconds())
		return nil, err
	}

	outcome := "ok"
	if !res.IsValid {
		outcome = "invalid"
	}
	metrics.RecordRun(string(def.Info.Key), metrics.StageValidate, outcome, elapsed)
	log.Info("file validated",
		"rows", res.TotalRows,
		"valid", res.ValidRows,
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
		"duration_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

// Execute runs the import session for target.
//
// Returns ErrTooManyImports if no import slot frees up in time. Whenever a
// result is produced it is returned, also together with an error for
// cancelled or truncated imports.
func (s *Service) Execute(ctx context.Context, target string, file File, opts ImportOptions) (*ImportResult, error) {
	def, err := s.Target(target)
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if s.cfg.MaxBatchSize > 0 && opts.BatchSize > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size %d exceeds maximum %d", ErrInvalidOptions, opts.BatchSize, s.cfg.MaxBatchSize)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	importID := uuid.NewString()
	ctx = ContextWithImportID(ctx, importID)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	log := logging.WithFields(ctx, "import_id", importID, "target", def.Info.Key, "file", file.Name)
	log.Info("import started",
		"format", file.Format,
		"batch_size", opts.BatchSize,
		"skip_duplicates", opts.SkipDuplicates,
	)

	start := time.Now()
	res, err := s.importer.Execute(ctx, def.Info.Key, file, opts)
	elapsed := time.Since(start)

	outcome := executeOutcome(res, err)
	metrics.RecordRun(string(def.Info.Key), metrics.StageExecute, outcome, elapsed)

	if res != nil {
		metrics.RecordRows(string(def.Info.Key), res.SuccessfulInserts, res.DuplicatesSkipped, res.FailedInserts)
		log.Info("import finished",
			"outcome", outcome,
			"processed", res.TotalProcessed,
			"inserted", res.SuccessfulInserts,
			"skipped", res.DuplicatesSkipped,
			"failed", res.FailedInserts,
			"batches", res.Batches,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	if err != nil {
		log.Warn("import stopped", "error", err)
	}

	s.recordRun(ctx, ImportRun{
		ID:        importID,
		Target:    def.Info.Key,
		FileName:  file.Name,
		Format:    file.Format,
		StartedAt: start,
		Duration:  elapsed,
	}, res, err)

	return res, err
}

func executeOutcome(res *ImportResult, err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case res == nil || err != nil:
		return "error"
	case !res.Success:
		return "partial"
	}
	return "ok"
}

// recordRun stores a history entry. The caller's context may already be
// done, so the write gets its own deadline.
func (s *Service) recordRun(ctx context.Context, run ImportRun, res *ImportResult, runErr error) {
	if s.recorder == nil {
		return
	}

	run.IPAddress = GetIPAddressFromContext(ctx)
	run.UserAgent = GetUserAgentFromContext(ctx)
	if res != nil {
		run.TotalProcessed = res.TotalProcessed
		run.SuccessfulInserts = res.SuccessfulInserts
		run.FailedInserts = res.FailedInserts
		run.DuplicatesSkipped = res.DuplicatesSkipped
		run.Cancelled = res.Cancelled
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runRecordTimeout)
	defer cancel()

	if err := s.recorder.RecordRun(recCtx, run); err != nil {
		slog.Warn("failed to record import run", "import_id", run.ID, "error", err)
	}
}

// History returns the most recent runs for target, newest first.
func (s *Service) History(ctx context.Context, target string, limit int) ([]ImportRun, error) {
	def, err := s.Target(target)
	if err != nil {
		return nil, err
	}
	if s.recorder == nil {
		return []ImportRun{}, nil
	}
	return s.recorder.ListRuns(ctx, def.Info.Key, limit)
}

// LimiterStatus returns the current state of the import limiter.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until all running imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}
