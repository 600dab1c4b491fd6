package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crmimport/internal/core"
	"github.com/JonMunkholm/crmimport/internal/core/targets"
)

func newTemplateCmd(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write a blank import file with the target's header row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format := core.FormatCSV
			if root.format != "" {
				f, err := core.ParseFormat(root.format)
				if err != nil {
					return err
				}
				format = f
			}

			def, err := targets.NewRegistry().Lookup(root.target)
			if err != nil {
				return err
			}
			data, err := core.BuildTemplate(def, format)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: stdout)")
	return cmd
}
