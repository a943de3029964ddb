package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fkaule/docpilot/internal/client"
)

var (
	addKind  string
	addTitle string
	addURL   string
	addFile  string
)

var addCmd = &cobra.Command{
	Use:   "add [content]",
	Short: "Add a single source to the knowledge base",
	Long: `Add a single source to the knowledge base and index it immediately.

Sources can be inline text, a local file (converted server-side),
a website URL, or a question/answer pair.

Examples:
  docpilot add "SurrealDB supports HNSW indexes for vector search"
  docpilot add --file report.pdf
  docpilot add --kind website --url https://example.com/docs
  docpilot add "Q: What is our SLA?\nA: 99.9% monthly uptime." --kind qna --title "SLA"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addKind, "kind", "k", "", "source kind (text, document, website, qna); inferred when omitted")
	addCmd.Flags().StringVarP(&addTitle, "title", "t", "", "source title (derived from content if omitted)")
	addCmd.Flags().StringVarP(&addURL, "url", "u", "", "website URL to fetch and convert")
	addCmd.Flags().StringVarP(&addFile, "file", "f", "", "local file to upload and convert")
}

func runAdd(cmd *cobra.Command, args []string) error {
	req, err := buildSourceRequest(args)
	if err != nil {
		return err
	}

	result, err := api.CreateSource(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}

	fmt.Printf("Created source: %s (%v)\n", result.Source.Title, result.Source.ID)
	fmt.Printf("  Kind: %s\n", result.Source.Kind)
	fmt.Printf("  Chunks indexed: %d\n", result.Chunks)
	return nil
}

// buildSourceRequest assembles the request from flags and the positional
// argument, inferring the kind when it is not set explicitly.
func buildSourceRequest(args []string) (client.SourceRequest, error) {
	req := client.SourceRequest{
		Kind:  addKind,
		Title: addTitle,
		URL:   addURL,
	}

	switch {
	case addFile != "":
		data, err := os.ReadFile(addFile)
		if err != nil {
			return req, fmt.Errorf("read file: %w", err)
		}
		req.FileName = filepath.Base(addFile)
		req.FileBase64 = base64.StdEncoding.EncodeToString(data)
		if req.Kind == "" {
			req.Kind = "document"
		}
	case addURL != "":
		if req.Kind == "" {
			req.Kind = "website"
		}
	case len(args) == 1:
		req.Content = args[0]
		if req.Kind == "" {
			req.Kind = "text"
		}
	default:
		return req, fmt.Errorf("provide content, --file or --url")
	}

	if req.Kind == "document" && req.FileBase64 == "" {
		return req, fmt.Errorf("document sources need --file")
	}
	return req, nil
}
