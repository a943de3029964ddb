package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listKind string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources in the knowledge base",
	Long: `List the sources stored in the knowledge base.

Examples:
  docpilot list
  docpilot list --kind website
  docpilot list -v`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listKind, "kind", "k", "", "filter by source kind")
}

func runList(cmd *cobra.Command, args []string) error {
	sources, err := api.ListSources(cmd.Context())
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	shown := 0
	for _, source := range sources {
		if listKind != "" && source.Kind != listKind {
			continue
		}
		shown++

		fmt.Printf("- %s [%s]\n", source.Title, source.Kind)
		if verbose {
			fmt.Printf("  ID: %v\n", source.ID)
			if source.URL != nil && *source.URL != "" {
				fmt.Printf("  URL: %s\n", *source.URL)
			}
			fmt.Printf("  Updated: %s\n", source.UpdatedAt.Format("2006-01-02 15:04"))
		}
	}

	if shown == 0 {
		fmt.Println("No sources found.")
	}
	return nil
}
