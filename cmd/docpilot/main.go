// Package main provides the entry point for the docpilot CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/fkaule/docpilot/internal/cli"
)

func main() {
	// Optional; config comes from the environment.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
