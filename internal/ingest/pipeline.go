package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ziadkadry99/finchat/internal/config"
	"github.com/ziadkadry99/finchat/internal/vectordb"
)

// corpusUploader marks chunks ingested from the corpus tree rather than a
// user upload.
const corpusUploader = "system"

// ProgressFunc is called as files complete to report progress.
type ProgressFunc func(processed, total int, currentFile string)

// Result summarizes one ingestion run.
type Result struct {
	FilesProcessed int
	FilesSkipped   int
	FilesFailed    int
	FilesRemoved   int
	ChunksAdded    int
	Duration       time.Duration
	Errors         []error
}

// Pipeline orchestrates the full ingestion workflow:
// walk -> read -> chunk -> embed -> store, plus a sweep that drops
// documents whose corpus files have vanished.
type Pipeline struct {
	store      vectordb.Store
	registry   *Store
	cfg        config.IngestConfig
	corpusDir  string
	dataDir    string
	logger     *slog.Logger
	onProgress ProgressFunc
}

// NewPipeline creates a new ingestion Pipeline.
func NewPipeline(vstore vectordb.Store, registry *Store, cfg *config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     vstore,
		registry:  registry,
		cfg:       cfg.Ingest,
		corpusDir: cfg.CorpusDir,
		dataDir:   cfg.DataDir,
		logger:    logger,
	}
}

// SetProgressFunc sets the progress callback.
func (p *Pipeline) SetProgressFunc(fn ProgressFunc) {
	p.onProgress = fn
}

// Run executes one full ingestion pass. Unchanged files are skipped via
// the content-hash ledger; files that disappeared since the last run are
// removed from the vector store and the registry.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	files, err := Walk(WalkConfig{
		RootDir: p.corpusDir,
		Include: p.cfg.Include,
		Exclude: p.cfg.Exclude,
	})
	if err != nil {
		return nil, err
	}

	ledger, err := p.registry.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]LedgerEntry, len(ledger))
	for _, e := range ledger {
		known[e.Path] = e
	}

	// Select changed files; unreadable formats never enter the pipeline.
	var changed []FileInfo
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if !Supported(f.Path) {
			continue
		}
		seen[f.RelPath] = true
		if e, ok := known[f.RelPath]; ok && e.ContentHash == f.ContentHash {
			result.FilesSkipped++
			continue
		}
		changed = append(changed, f)
	}

	// Sweep documents whose files vanished from the corpus.
	for _, e := range ledger {
		if seen[e.Path] {
			continue
		}
		if err := p.store.DeleteDocument(ctx, e.Collection, e.Path); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("delete chunks for %s: %w", e.Path, err))
			continue
		}
		if err := p.registry.RemoveDocument(ctx, e.Path); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("deregister %s: %w", e.Path, err))
			continue
		}
		result.FilesRemoved++
		p.logger.Info("removed stale document", "path", e.Path, "collection", e.Collection)
	}

	if len(changed) > 0 {
		p.processFiles(ctx, changed, result)
	}

	// Persist the vector store so a restart starts from the same index.
	if err := p.store.Persist(ctx, p.dataDir); err != nil {
		return result, fmt.Errorf("persisting vector store: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// processFiles pushes the given files through the pipeline with bounded
// parallelism.
func (p *Pipeline) processFiles(ctx context.Context, files []FileInfo, result *Result) {
	total := len(files)
	concurrency := p.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var mu sync.Mutex
	var processed int64
	var wg sync.WaitGroup

	for _, file := range files {
		select {
		case <-ctx.Done():
			mu.Lock()
			result.Errors = append(result.Errors, fmt.Errorf("ingest %s: %w", file.RelPath, ctx.Err()))
			result.FilesFailed++
			mu.Unlock()
			count := atomic.AddInt64(&processed, 1)
			if p.onProgress != nil {
				p.onProgress(int(count), total, file.RelPath)
			}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(f FileInfo) {
			defer wg.Done()
			defer func() { <-sem }()

			added, err := p.ingestFile(ctx, f)
			mu.Lock()
			if err != nil {
				result.Errors = append(result.Errors, err)
				result.FilesFailed++
			} else {
				result.FilesProcessed++
				result.ChunksAdded += added
			}
			mu.Unlock()

			count := atomic.AddInt64(&processed, 1)
			if p.onProgress != nil {
				p.onProgress(int(count), total, f.RelPath)
			}
		}(file)
	}

	wg.Wait()
}

// ingestFile runs one file through read -> chunk -> replace-in-store ->
// register. The ledger hash only advances after the chunks are stored, so
// a failed file is retried on the next run.
func (p *Pipeline) ingestFile(ctx context.Context, f FileInfo) (int, error) {
	content, err := ReadDocument(f.Path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", f.RelPath, err)
	}

	pieces := ChunkText(content, p.cfg.ChunkSize, p.cfg.ChunkOverlap)

	// Replace any previous chunks before adding the new set.
	if err := p.store.DeleteDocument(ctx, f.Department, f.DocumentID()); err != nil {
		return 0, fmt.Errorf("delete old chunks for %s: %w", f.RelPath, err)
	}

	now := time.Now().UTC()
	chunks := make([]vectordb.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, vectordb.Chunk{
			ID:      vectordb.ChunkID(f.DocumentID(), i),
			Content: piece,
			Metadata: vectordb.ChunkMetadata{
				DocumentID:   f.DocumentID(),
				DocumentName: documentName(f.RelPath),
				Collection:   f.Department,
				ChunkIndex:   i,
				ContentHash:  f.ContentHash,
				UploaderRole: corpusUploader,
				IndexedAt:    now,
			},
		})
	}

	if len(chunks) > 0 {
		if err := p.store.Add(ctx, f.Department, chunks); err != nil {
			return 0, fmt.Errorf("index %s: %w", f.RelPath, err)
		}
	}

	if err := p.registry.RecordDocument(ctx, f, len(chunks), corpusUploader); err != nil {
		return 0, fmt.Errorf("register %s: %w", f.RelPath, err)
	}

	return len(chunks), nil
}
