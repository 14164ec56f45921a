package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lodestone-ai/lodestone/internal/app"
	"github.com/lodestone-ai/lodestone/internal/config"
	"github.com/lodestone-ai/lodestone/internal/ingest"
)

// verificationPreviewLen bounds fragment previews printed after a build.
const verificationPreviewLen = 100

var (
	buildContentColumn   string
	buildMetadataColumns []string
	buildChunkSize       int
	buildChunkOverlap    int
	buildVerifyQuery     string
	buildReplace         bool
)

var buildCmd = &cobra.Command{
	Use:   "build <csv-file>",
	Short: "Ingest a CSV document collection into the vector index",
	Long: `Build reads a CSV file, splits each document into overlapping
fragments, embeds them with the configured Ollama model and upserts them
into the pgvector index. Re-running a build on the same file updates
fragments in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuild(cmd.Context(), args[0])
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildContentColumn, "content-column", "content",
		"CSV column holding the document text")
	buildCmd.Flags().StringSliceVar(&buildMetadataColumns, "metadata", nil,
		"CSV columns to carry as fragment metadata")
	buildCmd.Flags().IntVar(&buildChunkSize, "chunk-size", 0,
		"fragment size in characters (0 = from config)")
	buildCmd.Flags().IntVar(&buildChunkOverlap, "chunk-overlap", 0,
		"overlap between consecutive fragments (0 = from config)")
	buildCmd.Flags().StringVar(&buildVerifyQuery, "verify-query", "test query",
		"query used to sanity-check the index after the build")
	buildCmd.Flags().BoolVar(&buildReplace, "replace", false,
		"clear the index before building, removing fragments from earlier runs")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(parent context.Context, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if buildChunkSize > 0 {
		cfg.ChunkSize = buildChunkSize
	}
	if buildChunkOverlap > 0 {
		cfg.ChunkOverlap = buildChunkOverlap
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening csv: %w", err)
	}
	defer f.Close()

	rows, err := ingest.ReadCSV(f, buildContentColumn, buildMetadataColumns)
	if err != nil {
		return fmt.Errorf("reading csv: %w", err)
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	if buildReplace {
		if err := a.Store.Clear(ctx); err != nil {
			return fmt.Errorf("clearing index: %w", err)
		}
	}

	report, buildErr := a.Pipeline.Build(ctx, rows)

	fmt.Printf("Documents processed: %d\n", report.DocumentsProcessed)
	fmt.Printf("Documents skipped:   %d\n", report.DocumentsSkipped)
	fmt.Printf("Fragments indexed:   %d\n", report.FragmentsCreated)
	if buildErr != nil {
		return fmt.Errorf("build incomplete: %w", buildErr)
	}

	if err := verifyIndex(ctx, a, buildVerifyQuery); err != nil {
		return fmt.Errorf("verifying index: %w", err)
	}
	return nil
}

// verifyIndex runs a search against the freshly built index and prints
// the top matches, mirroring what the chat endpoint will retrieve.
func verifyIndex(ctx context.Context, a *app.App, query string) error {
	vec, err := a.Embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embedding query: %w", err)
	}

	results, err := a.Store.Search(ctx, vec, 3)
	if err != nil {
		return fmt.Errorf("searching index: %w", err)
	}

	fmt.Printf("\nVerification query %q returned %d fragments:\n", query, len(results))
	for i, res := range results {
		preview := []rune(res.Entry.Content)
		if len(preview) > verificationPreviewLen {
			preview = preview[:verificationPreviewLen]
		}
		fmt.Printf("  %d. [%.4f] %s\n", i+1, res.Score, string(preview))
	}
	return nil
}
