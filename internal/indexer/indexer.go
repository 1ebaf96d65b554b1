package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/docqa/internal/ai"
	"github.com/seanblong/docqa/internal/chunker"
	"github.com/seanblong/docqa/internal/convert"
	"github.com/seanblong/docqa/internal/discovery"
	"github.com/seanblong/docqa/internal/index"
	"github.com/seanblong/docqa/internal/ledger"
	"github.com/seanblong/docqa/pkg/models"
)

// Options configures an ingestion run.
type Options struct {
	DataDir    string
	Extensions map[string]bool
	Chunk      chunker.Config
	Workers    int
}

// DefaultWorkers is the worker count used when Options.Workers is zero.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8 // Cap at 8 to avoid overwhelming the embedding API
	}
	return n
}

// Indexer ingests a directory of documents into a vector index.
type Indexer struct {
	Ledger    ledger.Ledger
	Index     index.VectorIndex
	Embedder  ai.Embedder
	Converter convert.Converter
	Lister    *discovery.Lister
	HashFile  func(path string) (string, error)

	opts  Options
	locks *keyedMutex
}

// New creates a new Indexer instance.
func New(opts Options, l ledger.Ledger, ix index.VectorIndex, emb ai.Embedder, conv convert.Converter) (*Indexer, error) {
	if err := opts.Chunk.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	return &Indexer{
		Ledger:    l,
		Index:     ix,
		Embedder:  emb,
		Converter: conv,
		Lister:    discovery.NewLister(),
		HashFile:  ledger.HashFile,
		opts:      opts,
		locks:     newKeyedMutex(),
	}, nil
}

type outcome int

const (
	outcomeIngested outcome = iota
	outcomeSkipped
	outcomeEmpty
	outcomeFailed
)

// result is what a worker reports for one file.
type result struct {
	outcome outcome
	chunks  int
}

// Run discovers the data directory and ingests every file not yet in the
// ledger. Per-file failures are counted and logged; storage failures and
// cancellation stop the run and are returned with the partial summary.
func (ix *Indexer) Run(ctx context.Context) (models.RunSummary, error) {
	start := time.Now()
	sum := models.RunSummary{RunID: uuid.NewString()}
	logger := log.With().Str("run", sum.RunID).Logger()

	found, err := ix.Lister.ListCandidates(ix.opts.DataDir, ix.opts.Extensions)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("dir", ix.opts.DataDir).Msg("data directory does not exist, nothing to ingest")
			sum.Duration = time.Since(start)
			return sum, nil
		}
		return sum, fmt.Errorf("discover %s: %w", ix.opts.DataDir, err)
	}
	sum.FilesScanned = len(found.Candidates) + len(found.Unsupported)
	sum.FilesUnsupported = len(found.Unsupported)
	for _, p := range found.Unsupported {
		logger.Debug().Str("path", p).Msg("unsupported extension, skipping")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numWorkers := ix.opts.Workers
	logger.Info().Int("workers", numWorkers).Int("candidates", len(found.Candidates)).Msg("starting ingestion")

	// Create channels for work distribution
	workChan := make(chan string, numWorkers*2)
	errorChan := make(chan error, 1)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Debug().Int("worker", workerID).Msg("worker started")

			for path := range workChan {
				if ctx.Err() != nil {
					continue // drain after an abort
				}
				res, err := ix.processFile(ctx, path)
				if err != nil {
					select {
					case errorChan <- err:
					default:
						logger.Error().Err(err).Str("path", path).Msg("worker processing error")
					}
					cancel()
					continue
				}

				mu.Lock()
				switch res.outcome {
				case outcomeIngested:
					sum.FilesIngested++
					sum.ChunksAdded += res.chunks
				case outcomeSkipped:
					sum.FilesSkipped++
				case outcomeEmpty:
					sum.FilesEmpty++
				case outcomeFailed:
					sum.FilesFailed++
				}
				mu.Unlock()
			}

			log.Debug().Int("worker", workerID).Msg("worker finished")
		}(i)
	}

feed:
	for _, path := range found.Candidates {
		select {
		case workChan <- path:
		case <-ctx.Done():
			break feed
		}
	}
	close(workChan)
	wg.Wait()

	sum.Duration = time.Since(start)

	select {
	case err := <-errorChan:
		return sum, err
	default:
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	logger.Info().
		Int("scanned", sum.FilesScanned).
		Int("ingested", sum.FilesIngested).
		Int("skipped", sum.FilesSkipped).
		Int("unsupported", sum.FilesUnsupported).
		Int("empty", sum.FilesEmpty).
		Int("failed", sum.FilesFailed).
		Int("chunks", sum.ChunksAdded).
		Dur("took", sum.Duration).
		Msg("ingestion finished")
	return sum, nil
}

// processFile runs one file through hash, convert, chunk, embed, upsert and
// ledger commit. A non-nil error aborts the run; per-file failures come
// back as outcomeFailed.
func (ix *Indexer) processFile(ctx context.Context, path string) (result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	logger := log.With().Str("path", abs).Logger()

	hash, err := ix.HashFile(path)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to hash file")
		return result{outcome: outcomeFailed}, nil
	}
	logger = logger.With().Str("hash", hash).Logger()

	done, err := ix.isCurrent(ctx, hash)
	if err != nil {
		return result{}, err
	}
	if done {
		return ix.skip(ctx, abs, hash, logger)
	}

	// Identical content under two paths must not be ingested twice.
	unlock := ix.locks.Lock(hash)
	defer unlock()
	if done, err = ix.isCurrent(ctx, hash); err != nil {
		return result{}, err
	} else if done {
		return ix.skip(ctx, abs, hash, logger)
	}

	doc, err := ix.Converter.Convert(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return result{}, ctx.Err()
		}
		logger.Warn().Err(err).Msg("conversion failed, skipping")
		return result{outcome: outcomeFailed}, nil
	}

	src := chunker.Source{Filename: filepath.Base(abs), Path: abs, DocumentKind: doc.Kind}
	chunks, err := chunker.Split(doc.Text, ix.opts.Chunk, src)
	if err != nil {
		return result{}, err
	}

	entry := models.LedgerEntry{ContentHash: hash, AbsolutePath: abs, Filename: src.Filename}

	if len(chunks) == 0 {
		logger.Warn().Int("chars", len([]rune(doc.Text))).Msg("no chunks produced, recording without vectors")
		if err := ix.dropReplaced(ctx, abs, hash, logger); err != nil {
			return result{}, err
		}
		entry.IngestedAt = time.Now().UTC()
		if err := ix.Ledger.RecordIngested(ctx, entry); err != nil {
			return result{}, err
		}
		return result{outcome: outcomeEmpty}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := ix.Embedder.Embed(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return result{}, ctx.Err()
		}
		logger.Warn().Err(err).Int("chunks", len(chunks)).Msg("embedding failed, file will be retried next run")
		return result{outcome: outcomeFailed}, nil
	}
	if len(vecs) != len(chunks) {
		logger.Warn().Int("chunks", len(chunks)).Int("vectors", len(vecs)).Msg("embedding count mismatch, file will be retried next run")
		return result{outcome: outcomeFailed}, nil
	}

	records := make([]models.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = models.VectorRecord{
			ID:         index.RecordID(hash, c.ChunkIndex),
			SourceHash: hash,
			Chunk:      c,
			Embedding:  vecs[i],
		}
	}

	// Vectors are durable before the ledger row exists, so a failure between
	// the two leaves the file re-ingestable.
	if err := ix.Index.Upsert(ctx, records); err != nil {
		return result{}, err
	}
	if err := ix.dropReplaced(ctx, abs, hash, logger); err != nil {
		return result{}, err
	}
	entry.Chunks = len(records)
	entry.IngestedAt = time.Now().UTC()
	if err := ix.Ledger.RecordIngested(ctx, entry); err != nil {
		return result{}, err
	}

	logger.Info().Int("chunks", len(chunks)).Str("kind", doc.Kind).Msg("ingested")
	return result{outcome: outcomeIngested, chunks: len(chunks)}, nil
}

// isCurrent reports whether hash is in the ledger and, when it produced
// chunks, whether the index still holds them. A ledger row whose vectors are
// gone, because the index was wiped or renamed, is not current and the file
// is ingested again.
func (ix *Indexer) isCurrent(ctx context.Context, hash string) (bool, error) {
	entry, ok, err := ix.Ledger.Get(ctx, hash)
	if err != nil || !ok {
		return false, err
	}
	if entry.Chunks == 0 {
		return true, nil
	}
	has, err := ix.Index.HasSource(ctx, hash)
	if err != nil {
		return false, err
	}
	if !has {
		log.Info().Str("hash", hash).Int("chunks", entry.Chunks).Msg("ledger entry has no vectors in the index, re-ingesting")
	}
	return has, nil
}

// skip handles an already ingested file. The path may still carry records of
// an earlier version of the file, which are dropped.
func (ix *Indexer) skip(ctx context.Context, abs, hash string, logger zerolog.Logger) (result, error) {
	if err := ix.dropReplaced(ctx, abs, hash, logger); err != nil {
		return result{}, err
	}
	logger.Info().Msg("already ingested, skipping")
	return result{outcome: outcomeSkipped}, nil
}

// dropReplaced removes the records of earlier versions of the file at abs.
func (ix *Indexer) dropReplaced(ctx context.Context, abs, hash string, logger zerolog.Logger) error {
	n, err := ix.Index.DeleteSource(ctx, abs, hash)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info().Int("removed", n).Msg("dropped chunks of the previous version")
	}
	return nil
}
