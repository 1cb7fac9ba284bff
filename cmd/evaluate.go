package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pdfchat/src/core/evaluate"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure retrieval quality against a labelled dataset",
	Long: `The evaluate command reads a JSON lines file where every line holds a question
and the pages that answer it, for example:

  {"query": "Who wrote the report?", "golden": [["report.pdf", 1]]}

and reports the hit rate, recall and mean reciprocal rank of the retriever.`,
	RunE: Evaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringP("input", "i", "", "dataset file (JSON lines)")
	evaluateCmd.MarkFlagRequired("input")
	evaluateCmd.Flags().IntP("k", "k", 0, "passages retrieved per question (overrides retrieval.k)")
	viper.BindPFlag("retrieval.k", evaluateCmd.Flags().Lookup("k"))
}

func Evaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	inputPath, _ := cmd.Flags().GetString("input")

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	defer f.Close()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	r := a.newRetriever()
	result, err := evaluate.New(r).Run(ctx, f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cases:    %d (skipped %d)\n", result.Cases, result.Skipped)
	fmt.Fprintf(out, "k:        %d\n", r.K())
	fmt.Fprintf(out, "hit rate: %.3f\n", result.HitRate)
	fmt.Fprintf(out, "recall:   %.3f\n", result.Recall)
	fmt.Fprintf(out, "mrr:      %.3f\n", result.MRR)
	return nil
}
