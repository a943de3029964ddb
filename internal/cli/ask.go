package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	askConversation string
	askModel        string
	askOutputFile   string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and stream a grounded answer",
	Long: `Ask a question about your knowledge base and stream the answer.

The server retrieves relevant chunks, grounds the prompt with them and
streams the LLM's answer token by token. Pass --conversation to continue
an earlier exchange with full history.

Examples:
  docpilot ask "What does the SLA guarantee?"
  docpilot ask "And what about support hours?" --conversation conversation:abc123
  docpilot ask "Summarize the onboarding doc" --model llama3.2 -o summary.md`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "conversation ID to continue")
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "override the configured chat model")
	askCmd.Flags().StringVarP(&askOutputFile, "output", "o", "", "write the answer to a file")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]

	// Ctrl+C cancels the stream; tell the server to stop generating so the
	// partial answer gets sealed.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var answer strings.Builder
	conversationID, err := api.CompleteStream(ctx, askConversation, question, askModel, func(delta string) error {
		answer.WriteString(delta)
		if askOutputFile == "" {
			fmt.Print(delta)
		}
		return nil
	})

	if ctx.Err() != nil && conversationID != "" {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if stopErr := api.StopConversation(stopCtx, conversationID); stopErr != nil {
			fmt.Fprintf(os.Stderr, "\nWarning: failed to stop generation: %v\n", stopErr)
		}
		fmt.Println("\n[stopped]")
		return nil
	}
	if err != nil {
		return fmt.Errorf("completion: %w", err)
	}

	if askOutputFile != "" {
		if err := os.WriteFile(askOutputFile, []byte(answer.String()), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Printf("Answer written to %s\n", askOutputFile)
	} else {
		fmt.Println()
	}

	// The follow-up hint is noise when output is piped.
	if askConversation == "" && conversationID != "" && term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Printf("\nConversation: %s (use --conversation to follow up)\n", conversationID)
	}
	return nil
}
