package cli

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fkaule/docpilot/internal/client"
)

var (
	ingestURLs       []string
	ingestRecursive  bool
	ingestNoProgress bool
)

// ingestExtensions are the file types the conversion service understands.
var ingestExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".pptx": true, ".xlsx": true,
	".html": true, ".md": true, ".txt": true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Ingest files and websites as a background job",
	Long: `Ingest multiple files and websites into the knowledge base.

The server processes sources in the background; an interactive progress
bar tracks the job. Press Ctrl+C to detach and let it continue.

Examples:
  docpilot ingest docs/handbook.pdf notes.md
  docpilot ingest ./docs --recursive
  docpilot ingest --url https://example.com/faq --url https://example.com/pricing`,
	Args: cobra.ArbitraryArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestURLs, "url", nil, "website URL to ingest (repeatable)")
	ingestCmd.Flags().BoolVarP(&ingestRecursive, "recursive", "r", false, "descend into directories")
	ingestCmd.Flags().BoolVar(&ingestNoProgress, "no-progress", false, "print the job ID and exit instead of showing progress")
}

func runIngest(cmd *cobra.Command, args []string) error {
	requests, err := collectIngestRequests(args, ingestURLs)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		return fmt.Errorf("nothing to ingest; pass file paths or --url")
	}

	job, err := api.IngestAsync(cmd.Context(), requests)
	if err != nil {
		return fmt.Errorf("start ingestion: %w", err)
	}

	if ingestNoProgress {
		fmt.Printf("Started job %s with %d sources. Use 'docpilot jobs %s' to check status.\n",
			job.ID, len(requests), job.ID)
		return nil
	}
	return RunJobProgress(api, job)
}

// collectIngestRequests expands paths and URLs into source requests.
// Directories are walked only with --recursive; unsupported file types
// are skipped with a warning.
func collectIngestRequests(paths, urls []string) ([]client.SourceRequest, error) {
	var requests []client.SourceRequest

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		if info.IsDir() {
			if !ingestRecursive {
				return nil, fmt.Errorf("%s is a directory; use --recursive", path)
			}
			err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return err
				}
				if !ingestExtensions[strings.ToLower(filepath.Ext(p))] {
					return nil
				}
				req, err := fileSourceRequest(p)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", p, err)
					return nil
				}
				requests = append(requests, req)
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("walk %s: %w", path, err)
			}
			continue
		}

		req, err := fileSourceRequest(path)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}

	for _, url := range urls {
		requests = append(requests, client.SourceRequest{Kind: "website", URL: url})
	}
	return requests, nil
}

func fileSourceRequest(path string) (client.SourceRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return client.SourceRequest{}, fmt.Errorf("read %s: %w", path, err)
	}

	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".md" || ext == ".txt" {
		return client.SourceRequest{
			Kind:    "text",
			Title:   strings.TrimSuffix(name, ext),
			Content: string(data),
		}, nil
	}
	return client.SourceRequest{
		Kind:       "document",
		FileName:   name,
		FileBase64: base64.StdEncoding.EncodeToString(data),
	}, nil
}
