package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pdfchat/src/core/rag"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect or reset the vector index",
}

var indexSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the index size, its sources, the manifest and the corpus size",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.inspector().Summary(cmd.Context())
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(summary)
	},
}

var indexResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every chunk and the manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.index.Reset(cmd.Context()); err != nil {
			return rag.IndexError(fmt.Errorf("failed to reset %s index: %w", a.index.Backend(), err))
		}
		if err := a.manifests.Remove(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset %s index\n", a.index.Backend())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexSummaryCmd, indexResetCmd)
}
