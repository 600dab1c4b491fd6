package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crmimport/internal/config"
	"github.com/JonMunkholm/crmimport/internal/core"
	"github.com/JonMunkholm/crmimport/internal/core/targets"
	"github.com/JonMunkholm/crmimport/internal/store/memory"
	"github.com/JonMunkholm/crmimport/internal/store/postgres"
)

var (
	errInvalidFile   = errors.New("file has invalid rows")
	errPartialImport = errors.New("some rows were not imported")
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a file without writing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := importConfig()
			if err != nil {
				return err
			}
			svc, err := core.NewService(targets.NewRegistry(), memory.New(), nil, cfg)
			if err != nil {
				return err
			}

			file, f, err := root.openFile(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			start := time.Now()
			res, err := svc.Validate(cmd.Context(), root.target, file)
			if err != nil {
				return errors.New(core.FormatUserError(err))
			}

			if err := writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "validate",
				Target:     root.target,
				File:       file.Name,
				DurationMS: time.Since(start).Milliseconds(),
				Result:     res,
			}); err != nil {
				return err
			}
			if !res.IsValid {
				return fmt.Errorf("%w: %d of %d", errInvalidFile, res.InvalidRows(), res.TotalRows)
			}
			return nil
		},
	}
}

func newExecuteCmd(root *rootOptions) *cobra.Command {
	var (
		batchSize       int
		allowDuplicates bool
		dryRun          bool
	)

	cmd := &cobra.Command{
		Use:   "execute FILE",
		Short: "Import the valid rows of a file",
		Long: "Import the valid rows of a file into the database configured by DATABASE_URL.\n" +
			"With --dry-run the rows are committed to an in-memory store instead, which\n" +
			"exercises batching without touching the database. The in-memory store starts\n" +
			"empty, so no row is reported as a duplicate of existing data.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := importConfig()
			if err != nil {
				return err
			}

			store, closeStore, err := openStore(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			defer closeStore()

			svc, err := core.NewService(targets.NewRegistry(), store, store, cfg)
			if err != nil {
				return err
			}

			opts := svc.DefaultOptions()
			opts.SkipDuplicates = !allowDuplicates
			if cmd.Flags().Changed("batch-size") {
				opts.BatchSize = batchSize
			}

			file, f, err := root.openFile(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			start := time.Now()
			res, runErr := svc.Execute(cmd.Context(), root.target, file, opts)
			if res == nil {
				return errors.New(core.FormatUserError(runErr))
			}

			if err := writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "execute",
				Target:     root.target,
				File:       file.Name,
				DryRun:     dryRun,
				DurationMS: time.Since(start).Milliseconds(),
				Result:     res,
			}); err != nil {
				return err
			}

			switch {
			case runErr != nil:
				return errors.New(core.FormatUserError(runErr))
			case !res.Success:
				return fmt.Errorf("%w: %d failed", errPartialImport, res.FailedInserts)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", core.DefaultBatchSize, "Rows per committed batch (default: IMPORT_DEFAULT_BATCH_SIZE)")
	cmd.Flags().BoolVar(&allowDuplicates, "allow-duplicates", false, "Insert rows whose duplicate key already exists")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Commit to an in-memory store instead of the database")
	return cmd
}

// importStore is what execute needs from a backend.
type importStore interface {
	core.Store
	core.RunRecorder
}

func openStore(ctx context.Context, dryRun bool) (importStore, func(), error) {
	if dryRun {
		return memory.New(), func() {}, nil
	}

	var dbCfg config.DatabaseConfig
	if err := config.LoadSection(&dbCfg); err != nil {
		return nil, nil, fmt.Errorf("%w (use --dry-run to import without a database)", err)
	}
	pool, err := postgres.Connect(ctx, dbCfg)
	if err != nil {
		return nil, nil, err
	}

	store := postgres.New(pool, targets.NewRegistry())
	if dbCfg.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return store, pool.Close, nil
}
