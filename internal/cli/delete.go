package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <source-id>",
	Short: "Delete a source from the knowledge base",
	Long: `Delete a source and all its indexed chunks.

Requires confirmation unless --force is used.

Examples:
  docpilot delete source:abc123
  docpilot delete source:abc123 --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]

	source, err := api.GetSource(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("get source: %w", err)
	}

	if !deleteForce {
		fmt.Printf("About to delete: %s (%v)\n", source.Title, source.ID)
		fmt.Print("\nContinue? [y/N]: ")

		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := api.DeleteSource(cmd.Context(), id); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}

	fmt.Printf("Deleted: %s\n", source.Title)
	return nil
}
