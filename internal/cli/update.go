package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	updateContent     string
	updateContentFile string
)

var updateCmd = &cobra.Command{
	Use:   "update <source-id>",
	Short: "Replace a source's content and re-index it",
	Long: `Replace a source's content. The server re-chunks and re-embeds
the source so search results reflect the new text.

Content comes from --content, --content-file, or stdin.

Examples:
  docpilot update source:abc123 --content "New documentation..."
  docpilot update source:abc123 --content-file ./updated.md
  cat updated.md | docpilot update source:abc123`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringVarP(&updateContent, "content", "c", "", "new content")
	updateCmd.Flags().StringVar(&updateContentFile, "content-file", "", "read new content from file")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	content, err := resolveUpdateContent()
	if err != nil {
		return err
	}
	if content == "" {
		return fmt.Errorf("no content specified; use --content, --content-file or stdin")
	}

	result, err := api.UpdateSourceContent(cmd.Context(), args[0], content)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}

	fmt.Printf("Updated source: %s\n", result.Source.Title)
	fmt.Printf("  Chunks re-indexed: %d\n", result.Chunks)
	return nil
}

func resolveUpdateContent() (string, error) {
	if updateContentFile != "" {
		data, err := os.ReadFile(updateContentFile)
		if err != nil {
			return "", fmt.Errorf("read content file: %w", err)
		}
		return string(data), nil
	}
	if updateContent != "" {
		return updateContent, nil
	}

	// Fall back to stdin when piped.
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
