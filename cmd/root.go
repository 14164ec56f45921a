// Package cmd contains the lodestone CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lodestone",
	Short: "Lodestone - retrieval-augmented question answering over your documents",
	Long: `Lodestone ingests CSV document collections into a pgvector index and
answers questions about them through a local Ollama model, either over a
streaming HTTP API or in one-shot builds from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
