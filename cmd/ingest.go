package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/finchat/internal/audit"
	"github.com/ziadkadry99/finchat/internal/ingest"
	"github.com/ziadkadry99/finchat/internal/progress"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the document corpus into the vector database",
	Long: `Walks the corpus directory, chunks and embeds every supported document,
and stores the chunks in the department collection matching each file's
top-level folder. Unchanged files are skipped; files deleted from the
corpus are removed from the index.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Bool("watch", false, "keep running and re-ingest on file changes")
	ingestCmd.Flags().Int("concurrency", 0, "max parallel embedding calls (overrides config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency > 0 {
		cfg.Ingest.Concurrency = concurrency
	}
	watch, _ := cmd.Flags().GetBool("watch")

	logger := newLogger()

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	store, err := createVectorStoreFromConfig(cfg, embedder)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}

	// Load the persisted index so unchanged documents keep their chunks.
	if err := store.Load(ctx, cfg.DataDir); err != nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "No persisted vector index found (fresh ingest): %v\n", err)
		}
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	registry := ingest.NewStore(database)
	recorder := audit.NewRecorder(audit.NewStore(database), logger)

	pipeline := ingest.NewPipeline(store, registry, cfg, logger)

	// Progress reporting. The pipeline reports from worker goroutines
	// and only knows the file total once the walk is done, so the bar
	// starts on the first callback.
	reporter := progress.NewReporter()
	var mu sync.Mutex
	started := false
	pipeline.SetProgressFunc(func(processed, total int, currentFile string) {
		mu.Lock()
		defer mu.Unlock()
		if !started {
			reporter.Start(total)
			started = true
		}
		reporter.Update(processed, currentFile)
	})

	result, err := pipeline.Run(ctx)
	mu.Lock()
	if started {
		reporter.Finish()
	}
	mu.Unlock()
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	recorder.IngestRun(ctx, result.FilesProcessed, result.FilesRemoved, result.FilesFailed)
	printIngestSummary(cfg.CorpusDir, result)

	if !watch {
		return nil
	}

	// Watch mode: re-run on corpus changes until interrupted. Re-runs
	// log their own results instead of drawing a progress bar.
	pipeline.SetProgressFunc(nil)

	watchCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Watching %s for changes (ctrl-c to stop)\n", cfg.CorpusDir)
	if err := pipeline.Watch(watchCtx, ingest.DefaultDebounce); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(os.Stderr, "\nWatch stopped.")
	return nil
}

func printIngestSummary(corpusDir string, result *ingest.Result) {
	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Files processed: %d\n", result.FilesProcessed)
	fmt.Printf("  Files skipped:   %d (unchanged)\n", result.FilesSkipped)
	fmt.Printf("  Files removed:   %d\n", result.FilesRemoved)
	fmt.Printf("  Files failed:    %d\n", result.FilesFailed)
	fmt.Printf("  Chunks added:    %d\n", result.ChunksAdded)
	fmt.Printf("  Duration:        %s\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("  Corpus:          %s\n", corpusDir)

	if len(result.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "\nWarnings (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  - %v\n", e)
		}
	}
}
