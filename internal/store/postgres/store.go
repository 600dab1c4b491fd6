// Package postgres implements core.Store and core.RunRecorder on
// PostgreSQL. Every batch is written with COPY inside one transaction.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/crmimport/internal/config"
	"github.com/JonMunkholm/crmimport/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// Bookkeeping columns appended to every target's COPY columns.
var bookkeepingColumns = []string{"dedupe_key", "import_id"}

// Connect opens a connection pool configured from cfg and pings it.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Store writes import targets to their tables.
type Store struct {
	pool     *pgxpool.Pool
	registry *core.Registry
}

// New creates a store for the targets in reg.
func New(pool *pgxpool.Pool, reg *core.Registry) *Store {
	return &Store{pool: pool, registry: reg}
}

// EnsureSchema creates the target and history tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) definition(target core.Target) (core.TargetDefinition, error) {
	def, ok := s.registry.Get(target)
	if !ok {
		return core.TargetDefinition{}, fmt.Errorf("%w: %q", core.ErrUnknownTarget, target)
	}
	if def.Info.Table == "" || def.CopyRow == nil {
		return core.TargetDefinition{}, fmt.Errorf("target %s has no table mapping", target)
	}
	return def, nil
}

// Exists returns the subset of keys already present in the target table.
func (s *Store) Exists(ctx context.Context, target core.Target, keys []core.Key) (map[core.Key]bool, error) {
	def, err := s.definition(target)
	if err != nil {
		return nil, err
	}

	args := make([]string, len(keys))
	for i, k := range keys {
		args[i] = string(k)
	}

	query := fmt.Sprintf("SELECT DISTINCT dedupe_key FROM %s WHERE dedupe_key = ANY($1)",
		pgx.Identifier{def.Info.Table}.Sanitize())

	rows, err := s.pool.Query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("query existing keys: %w", err)
	}
	defer rows.Close()

	found := make(map[core.Key]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan existing key: %w", err)
		}
		found[core.Key(k)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read existing keys: %w", err)
	}
	return found, nil
}

// InsertBatch copies records into the target table in one transaction.
// Either every record is written or none is; it never returns per-record
// outcomes.
func (s *Store) InsertBatch(ctx context.Context, target core.Target, records []core.Record) ([]core.InsertOutcome, error) {
	def, err := s.definition(target)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	importID := importUUID(ctx)
	columns := append(append([]string{}, def.CopyColumns...), bookkeepingColumns...)

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := def.CopyRow(rec)
		rows[i] = append(row, string(rec.DuplicateKey()), importID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	n, err := tx.CopyFrom(ctx, pgx.Identifier{def.Info.Table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return nil, fmt.Errorf("copy into %s: %w", def.Info.Table, err)
	}
	if int(n) != len(records) {
		return nil, fmt.Errorf("copy into %s: wrote %d of %d rows", def.Info.Table, n, len(records))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return nil, nil
}

func importUUID(ctx context.Context) pgtype.UUID {
	id, err := uuid.Parse(core.GetImportIDFromContext(ctx))
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}

// RecordRun inserts an import history entry.
func (s *Store) RecordRun(ctx context.Context, run core.ImportRun) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_runs (
			id, target, file_name, format, started_at, duration_ms,
			total_processed, successful_inserts, failed_inserts, duplicates_skipped,
			cancelled, error, ip_address, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		pgtype.UUID{Bytes: id, Valid: true},
		string(run.Target),
		run.FileName,
		string(run.Format),
		run.StartedAt,
		run.Duration.Milliseconds(),
		run.TotalProcessed,
		run.SuccessfulInserts,
		run.FailedInserts,
		run.DuplicatesSkipped,
		run.Cancelled,
		core.ToPgText(run.Error),
		core.ToPgText(run.IPAddress),
		core.ToPgText(run.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs for target, newest first.
func (s *Store) ListRuns(ctx context.Context, target core.Target, limit int) ([]core.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, target, file_name, format, started_at, duration_ms,
			total_processed, successful_inserts, failed_inserts, duplicates_skipped,
			cancelled, error, ip_address, user_agent
		FROM import_runs
		WHERE target = $1
		ORDER BY started_at DESC
		LIMIT $2`, string(target), limit)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}
	defer rows.Close()

	runs := make([]core.ImportRun, 0)
	for rows.Next() {
		var (
			run        core.ImportRun
			id         pgtype.UUID
			targetKey  string
			format     string
			durationMs int64
			errText    pgtype.Text
			ip         pgtype.Text
			ua         pgtype.Text
		)
		if err := rows.Scan(&id, &targetKey, &run.FileName, &format, &run.StartedAt, &durationMs,
			&run.TotalProcessed, &run.SuccessfulInserts, &run.FailedInserts, &run.DuplicatesSkipped,
			&run.Cancelled, &errText, &ip, &ua); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		run.ID = uuid.UUID(id.Bytes).String()
		run.Target = core.Target(targetKey)
		run.Format = core.Format(format)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		run.Error = errText.String
		run.IPAddress = ip.String
		run.UserAgent = ua.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read import runs: %w", err)
	}
	return runs, nil
}
