package models

import "errors"

// Failure classes shared across the ingestion and query paths. Callers
// classify with errors.Is; concrete causes are wrapped underneath.
var (
	// ErrFileRead means a single source file could not be read. Not fatal to a run.
	ErrFileRead = errors.New("file read error")

	// ErrConversionFailed means a file could not be converted to text. Not fatal to a run.
	ErrConversionFailed = errors.New("conversion failed")

	// ErrInvalidChunkConfig means the chunk overlap is not smaller than the chunk size.
	ErrInvalidChunkConfig = errors.New("invalid chunk config")

	// ErrEmbeddingUnavailable means the embedding backend failed after retries.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrStorageUnavailable means the ledger or vector index could not be read or written.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrTimeout means a model call exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrGenerationUnavailable means the generation backend failed.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrInvalidInput indicates malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
)
