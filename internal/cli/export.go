package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fkaule/docpilot/internal/client"
)

var (
	exportKind   string
	exportSource string
)

var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export sources to Markdown files",
	Long: `Export the knowledge base sources to Markdown files for backup
or migration. Sources are organized by kind with metadata preserved
in frontmatter.

Examples:
  docpilot export ./backup
  docpilot export ./backup --kind website
  docpilot export ./backup --source source:abc123`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportKind, "kind", "k", "", "export only this source kind")
	exportCmd.Flags().StringVar(&exportSource, "source", "", "export a single source by ID")
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func runExport(cmd *cobra.Command, args []string) error {
	exportPath := args[0]

	if err := os.MkdirAll(exportPath, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	var sources []client.Source
	if exportSource != "" {
		source, err := api.GetSource(cmd.Context(), exportSource)
		if err != nil {
			return fmt.Errorf("get source: %w", err)
		}
		sources = []client.Source{*source}
	} else {
		listed, err := api.ListSources(cmd.Context())
		if err != nil {
			return fmt.Errorf("list sources: %w", err)
		}
		sources = listed
	}

	exported := 0
	for _, source := range sources {
		if exportKind != "" && source.Kind != exportKind {
			continue
		}

		// The list endpoint omits content; fetch the full row.
		if source.Content == "" {
			full, err := api.GetSource(cmd.Context(), fmt.Sprintf("%v", source.ID))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to fetch %v: %v\n", source.ID, err)
				continue
			}
			source = *full
		}

		kindDir := filepath.Join(exportPath, source.Kind)
		if err := os.MkdirAll(kindDir, 0o755); err != nil {
			return fmt.Errorf("create kind directory: %w", err)
		}

		name := unsafeFilename.ReplaceAllString(strings.ToLower(source.Title), "-")
		if name == "" || name == "-" {
			name = unsafeFilename.ReplaceAllString(fmt.Sprintf("%v", source.ID), "-")
		}
		filename := filepath.Join(kindDir, name+".md")

		var doc strings.Builder
		doc.WriteString("---\n")
		fmt.Fprintf(&doc, "id: %v\n", source.ID)
		fmt.Fprintf(&doc, "kind: %s\n", source.Kind)
		fmt.Fprintf(&doc, "title: %s\n", source.Title)
		if source.URL != nil && *source.URL != "" {
			fmt.Fprintf(&doc, "url: %s\n", *source.URL)
		}
		fmt.Fprintf(&doc, "created_at: %s\n", source.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		fmt.Fprintf(&doc, "updated_at: %s\n", source.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
		doc.WriteString("---\n\n")
		doc.WriteString(source.Content)

		if err := os.WriteFile(filename, []byte(doc.String()), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write %s: %v\n", filename, err)
			continue
		}
		exported++

		if verbose {
			fmt.Printf("  Exported: %s\n", filename)
		}
	}

	fmt.Printf("Exported %d sources to %s\n", exported, exportPath)
	return nil
}
