package models

import "time"

// SourceFile is a discovered file identified by the SHA-256 of its bytes.
type SourceFile struct {
	Path        string `json:"path"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentHash string `json:"content_hash"`
}

// LedgerEntry records a source file that finished ingestion. Chunks is the
// number of vector records written for it; zero means the file produced no
// chunks.
type LedgerEntry struct {
	ContentHash  string    `json:"content_hash"`
	AbsolutePath string    `json:"absolute_path"`
	Filename     string    `json:"filename"`
	Chunks       int       `json:"chunks"`
	IngestedAt   time.Time `json:"ingested_at"`
}

type Chunk struct {
	Text            string `json:"text"`
	ByteOffsetStart int    `json:"byte_offset_start"`
	SourceFilename  string `json:"source_filename"`
	SourcePath      string `json:"source_path"`
	DocumentKind    string `json:"document_kind"`
	ChunkIndex      int    `json:"chunk_index"`
}

// VectorRecord is the unit stored in a vector index. ID is derived from
// the source hash and chunk index so re-embedding upserts in place.
type VectorRecord struct {
	ID         string    `json:"id"`
	SourceHash string    `json:"source_hash"`
	Chunk      Chunk     `json:"chunk"`
	Embedding  []float32 `json:"-"`
}

type SearchResult struct {
	Record VectorRecord `json:"record"`
	Score  float64      `json:"score"`
}

// Citation points at one retrieved chunk backing an answer.
type Citation struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Excerpt  string `json:"excerpt"`
}

// QueryStatus tells an answered query apart from an empty retrieval.
type QueryStatus string

const (
	StatusAnswered    QueryStatus = "answered"
	StatusNoDocuments QueryStatus = "no_documents"
)

type QueryResult struct {
	Status       QueryStatus `json:"status"`
	AnswerText   string      `json:"answer"`
	CitedSources []Citation  `json:"sources"`
}

// IndexStatus values reported by DocumentInfo.
const (
	IndexStatusEmpty = "No documents indexed"
	IndexStatusReady = "Ready for queries"
)

type DocumentInfo struct {
	Status      string `json:"status"`
	TotalChunks int    `json:"total_chunks"`
}

// RunSummary aggregates the outcome of one ingestion run.
type RunSummary struct {
	RunID            string        `json:"run_id"`
	FilesScanned     int           `json:"files_scanned"`
	FilesIngested    int           `json:"files_ingested"`
	FilesSkipped     int           `json:"files_skipped"`
	FilesUnsupported int           `json:"files_unsupported"`
	FilesEmpty       int           `json:"files_empty"`
	FilesFailed      int           `json:"files_failed"`
	ChunksAdded      int           `json:"chunks_added"`
	Duration         time.Duration `json:"duration"`
}
