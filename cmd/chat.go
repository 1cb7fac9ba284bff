package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pdfchat/src/log"
	"pdfchat/src/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the indexed PDFs in the terminal",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// The UI owns the terminal; log lines would tear the screen.
	prev := log.Logger()
	log.SetLogger(logr.Discard())
	defer log.SetLogger(prev)

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.newChatService()
	if err != nil {
		return err
	}

	title := fmt.Sprintf("pdfchat · %s · %s index", viper.GetString("llm.provider"), a.index.Backend())
	if _, err := tea.NewProgram(tui.New(ctx, svc, title), tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return err
	}
	return nil
}
