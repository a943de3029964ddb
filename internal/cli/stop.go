package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <conversation-id>",
	Short: "Stop a conversation's in-flight completion",
	Long: `Stop the completion currently generating for a conversation.
The partial answer produced so far is kept.

Examples:
  docpilot stop conversation:abc123`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	if err := api.StopConversation(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("stop conversation: %w", err)
	}
	fmt.Println("Stopped.")
	return nil
}
