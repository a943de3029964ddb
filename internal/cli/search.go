package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Retrieve matching chunks without LLM synthesis",
	Long: `Search the knowledge base and show the retrieved chunks directly.

Returns the chunks that would ground an answer, ranked by vector
distance and filtered by the relevance guard. Use 'ask' for a
synthesized answer.

Examples:
  docpilot search "token refresh"
  docpilot search "uptime guarantees" -v`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	results, err := api.Search(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No relevant chunks found.")
		return nil
	}

	fmt.Printf("Found %d chunks:\n\n", len(results))
	for i, result := range results {
		title := ""
		if t, ok := result.Metadata["source_title"].(string); ok {
			title = t
		}
		fmt.Printf("%d. %s (distance %.4f)\n", i+1, title, result.Distance)

		content := strings.TrimSpace(result.Content)
		if !verbose && len(content) > 200 {
			content = content[:200] + "..."
		}
		for _, line := range strings.Split(content, "\n") {
			fmt.Printf("   %s\n", line)
		}
		fmt.Println()
	}
	return nil
}
