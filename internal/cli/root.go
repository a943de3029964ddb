// Package cli provides the command-line interface for docpilot.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/fkaule/docpilot/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string
	apiToken  string
	account   string

	// api talks to the docpilot server; created in PersistentPreRunE.
	api *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "docpilot",
	Short: "Document grounding and chat over your own sources",
	Long: `Docpilot ingests documents, websites and notes into a searchable
knowledge base and answers questions about them with grounded,
streamed LLM completions.

All commands talk to a running docpilot-server. Configure the server
address with --server or DOCPILOT_SERVER_URL.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		api = client.New(serverURL)
		if apiToken != "" {
			api = api.WithToken(apiToken)
		}
		if account != "" {
			api = api.WithAccount(account)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "docpilot server URL (default DOCPILOT_SERVER_URL or http://localhost:8088)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "API bearer token (default DOCPILOT_API_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&account, "account", "", "tenant account ID (default DOCPILOT_ACCOUNT)")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(toolserverCmd)
}
