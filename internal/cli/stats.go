package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fkaule/docpilot/internal/client"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long: `Show the server's in-memory runtime statistics: operation timings
and token usage since the last restart.

Examples:
  docpilot stats`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := api.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printServerStats(stats)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(stats *client.ServerStats) {
	fmt.Printf("Server Statistics (in-memory, since restart)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %.1f seconds\n", stats.UptimeSeconds)

	sections := []struct {
		name string
		op   *client.OperationStats
	}{
		{"Embeddings", stats.Embedding},
		{"LLM Generate", stats.LLMGenerate},
		{"LLM Stream", stats.LLMStream},
		{"Guard Checks", stats.GuardCheck},
		{"Tool Calls", stats.ToolCall},
		{"Conversions", stats.Conversion},
		{"DB Query", stats.DBQuery},
		{"DB Search", stats.DBSearch},
	}

	for _, section := range sections {
		if section.op == nil {
			continue
		}
		fmt.Printf("\n%s:\n", section.name)
		printOpStats(section.op)
		printTokenStats(section.op)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *client.OperationStats) {
	fmt.Printf("  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op *client.OperationStats) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Printf("  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgInputTokens)
	}
	if op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Printf(", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Println()

	fmt.Printf("  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgOutputTokens)
	}
	if op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Printf(", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Println()
}
