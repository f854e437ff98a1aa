// Package main is the entry point for osad, the OSA agent runtime.
//
// Start the server:
//
//	osad serve --config osa.yaml
//
// Check system status:
//
//	osad status
//
// Apply database migrations:
//
//	osad migrate
//
// Classify a single message without running the full agent loop:
//
//	osad classify "can you deploy the release now?"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "osad",
		Short:        "OSA autonomous agent runtime",
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildStatusCmd(),
		buildClassifyCmd(),
	)
	return root
}
