package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fkaule/docpilot/internal/client"
)

var (
	toolserverTransport string
	toolserverCommand   string
	toolserverArgs      []string
	toolserverEnv       []string
	toolserverEndpoint  string
	toolserverToken     string
	toolserverAPIKey    string
)

var toolserverCmd = &cobra.Command{
	Use:   "toolserver",
	Short: "Manage MCP tool servers",
	Long: `Register and manage MCP tool servers. Connected servers expose
their tools to chat completions in conversations bound to them.

Examples:
  docpilot toolserver add files --transport stdio --command mcp-filesystem --args /data
  docpilot toolserver add search --transport http --endpoint https://mcp.example.com --token s3cret
  docpilot toolserver list
  docpilot toolserver connect toolserver:abc123
  docpilot toolserver bind conversation:xyz toolserver:abc123`,
}

var toolserverAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a tool server",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolserverAdd,
}

var toolserverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tool servers",
	RunE:  runToolserverList,
}

var toolserverConnectCmd = &cobra.Command{
	Use:   "connect <id>",
	Short: "Open a tool server's MCP session",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolserverConnect,
}

var toolserverDisconnectCmd = &cobra.Command{
	Use:   "disconnect <id>",
	Short: "Close a tool server's MCP session",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolserverDisconnect,
}

var toolserverDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a tool server and its bindings",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolserverDelete,
}

var toolserverBindCmd = &cobra.Command{
	Use:   "bind <conversation-id> <server-id>",
	Short: "Enable a tool server for a conversation",
	Args:  cobra.ExactArgs(2),
	RunE:  runToolserverBind,
}

func init() {
	toolserverAddCmd.Flags().StringVarP(&toolserverTransport, "transport", "t", "stdio", "transport (stdio, http, sse)")
	toolserverAddCmd.Flags().StringVarP(&toolserverCommand, "command", "c", "", "command to launch (stdio transport)")
	toolserverAddCmd.Flags().StringSliceVar(&toolserverArgs, "args", nil, "command arguments")
	toolserverAddCmd.Flags().StringSliceVarP(&toolserverEnv, "env", "e", nil, "environment variables as KEY=VALUE")
	toolserverAddCmd.Flags().StringVar(&toolserverEndpoint, "endpoint", "", "server URL (http and sse transports)")
	toolserverAddCmd.Flags().StringVar(&toolserverToken, "auth-token", "", "bearer token for the server")
	toolserverAddCmd.Flags().StringVar(&toolserverAPIKey, "api-key", "", "API key header for the server")

	toolserverCmd.AddCommand(toolserverAddCmd)
	toolserverCmd.AddCommand(toolserverListCmd)
	toolserverCmd.AddCommand(toolserverConnectCmd)
	toolserverCmd.AddCommand(toolserverDisconnectCmd)
	toolserverCmd.AddCommand(toolserverDeleteCmd)
	toolserverCmd.AddCommand(toolserverBindCmd)
}

func runToolserverAdd(cmd *cobra.Command, args []string) error {
	env := make(map[string]string, len(toolserverEnv))
	for _, pair := range toolserverEnv {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid env entry %q (expected KEY=VALUE)", pair)
		}
		env[key] = value
	}

	server, err := api.CreateToolServer(cmd.Context(), client.ToolServerRequest{
		Name:      args[0],
		Transport: toolserverTransport,
		Command:   toolserverCommand,
		Args:      toolserverArgs,
		Env:       env,
		Endpoint:  toolserverEndpoint,
		Token:     toolserverToken,
		APIKey:    toolserverAPIKey,
	})
	if err != nil {
		return fmt.Errorf("create tool server: %w", err)
	}

	fmt.Printf("Registered tool server: %s (%v)\n", server.Name, server.ID)
	fmt.Printf("Use 'docpilot toolserver connect %v' to open its session.\n", server.ID)
	return nil
}

func runToolserverList(cmd *cobra.Command, args []string) error {
	servers, err := api.ListToolServers(cmd.Context())
	if err != nil {
		return fmt.Errorf("list tool servers: %w", err)
	}

	if len(servers) == 0 {
		fmt.Println("No tool servers registered.")
		return nil
	}

	fmt.Printf("%-20s %-10s %-14s %s\n", "NAME", "TRANSPORT", "STATUS", "ID")
	fmt.Println("----------------------------------------------------------------------")
	for _, server := range servers {
		fmt.Printf("%-20s %-10s %-14s %v\n", server.Name, server.Transport, server.Status, server.ID)
	}
	return nil
}

func runToolserverConnect(cmd *cobra.Command, args []string) error {
	result, err := api.ConnectToolServer(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("connect tool server: %w", err)
	}

	fmt.Printf("Status: %v\n", result["status"])
	if lastError, ok := result["last_error"].(string); ok && lastError != "" {
		fmt.Printf("Last error: %s\n", lastError)
	}
	if latency, ok := result["latency_ms"].(float64); ok {
		fmt.Printf("Latency: %.0fms\n", latency)
	}
	for _, key := range []string{"tools", "prompts", "resources"} {
		if count, ok := result[key].(float64); ok && count > 0 {
			fmt.Printf("%s: %.0f\n", key, count)
		}
	}
	return nil
}

func runToolserverDisconnect(cmd *cobra.Command, args []string) error {
	if err := api.DisconnectToolServer(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("disconnect tool server: %w", err)
	}
	fmt.Println("Disconnected.")
	return nil
}

func runToolserverDelete(cmd *cobra.Command, args []string) error {
	if err := api.DeleteToolServer(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete tool server: %w", err)
	}
	fmt.Printf("Deleted: %s\n", args[0])
	return nil
}

func runToolserverBind(cmd *cobra.Command, args []string) error {
	if err := api.BindToolServer(cmd.Context(), args[0], args[1], true); err != nil {
		return fmt.Errorf("bind tool server: %w", err)
	}
	fmt.Printf("Bound %s to %s\n", args[1], args[0])
	return nil
}
