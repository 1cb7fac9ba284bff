package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pdfchat/src/core/rag"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question from the indexed PDFs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().Bool("show-prompt", false, "print the composed prompt to stderr before answering")
	askCmd.Flags().Bool("sources", false, "list the passages the answer was based on")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.newChatService()
	if err != nil {
		return err
	}

	reply, err := svc.Ask(ctx, rag.Query{Message: strings.Join(args, " ")})
	if err != nil {
		return err
	}
	defer reply.Stream.Close()

	if showPrompt, _ := cmd.Flags().GetBool("show-prompt"); showPrompt {
		fmt.Fprintf(os.Stderr, "%s\n\n", reply.Prompt.Text)
	}

	out := cmd.OutOrStdout()
	for inc := range reply.Stream.Increments() {
		fmt.Fprint(out, inc.Fragment)
	}
	fmt.Fprintln(out)
	if err := reply.Stream.Err(); err != nil {
		return err
	}

	if sources, _ := cmd.Flags().GetBool("sources"); sources {
		for i, c := range reply.Knowledge {
			fmt.Fprintf(out, "[%d] %s p.%d (%.3f)\n", i+1, c.Source(), c.Page(), c.Score)
		}
	}
	return nil
}
