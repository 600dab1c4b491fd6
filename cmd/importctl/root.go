package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crmimport/internal/config"
	"github.com/JonMunkholm/crmimport/internal/core"
	"github.com/JonMunkholm/crmimport/internal/logging"
)

type rootOptions struct {
	target   string
	format   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "importctl",
		Short:         "Validate and import customer, order and shipment files",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			logging.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.target, "target", "t", "", "Import target: customers, orders or shipments (required)")
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "f", "", "File format: csv, tsv or xlsx (default: from the file extension)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	_ = cmd.MarkPersistentFlagRequired("target")

	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newExecuteCmd(opts))
	cmd.AddCommand(newTemplateCmd(opts))
	return cmd
}

// importConfig reads the import section from the environment. It does not
// need DATABASE_URL.
func importConfig() (config.ImportConfig, error) {
	var cfg config.ImportConfig
	if err := config.LoadSection(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// openFile opens path and resolves its format from --format or the name.
func (o *rootOptions) openFile(path string) (core.File, *os.File, error) {
	var (
		format core.Format
		err    error
	)
	if o.format != "" {
		format, err = core.ParseFormat(o.format)
	} else {
		format, err = core.FormatFromFilename(path)
	}
	if err != nil {
		return core.File{}, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return core.File{}, nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return core.File{}, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return core.File{Name: info.Name(), Format: format, Reader: f, Size: info.Size()}, f, nil
}
