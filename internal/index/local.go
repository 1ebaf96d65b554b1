package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/seanblong/docqa/pkg/models"
)

// LocalIndex keeps records in a SQLite file and serves searches from an
// in-memory copy loaded at open.
type LocalIndex struct {
	mu      sync.RWMutex
	db      *sql.DB
	path    string
	records map[string]models.VectorRecord
	// record counts per source hash, and per source path then hash
	sources map[string]int
	paths   map[string]map[string]int
}

const localSchema = `
CREATE TABLE IF NOT EXISTS records (
  id              TEXT PRIMARY KEY,
  source_hash     TEXT NOT NULL,
  chunk_index     INTEGER NOT NULL,
  text            TEXT NOT NULL,
  byte_offset     INTEGER NOT NULL,
  source_filename TEXT NOT NULL,
  source_path     TEXT NOT NULL,
  document_kind   TEXT NOT NULL,
  embedding       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS records_source_hash_idx ON records (source_hash);
CREATE INDEX IF NOT EXISTS records_source_path_idx ON records (source_path);`

// Open opens the index called name under dir, creating both when missing.
func Open(dir, name string) (*LocalIndex, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: index name is required", models.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create index directory: %w", models.ErrStorageUnavailable, err)
	}

	path := filepath.Join(dir, name+".db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("%w: open index: %w", models.ErrStorageUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(localSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate index: %w", models.ErrStorageUnavailable, err)
	}

	ix := &LocalIndex{
		db:      db,
		path:    path,
		records: make(map[string]models.VectorRecord),
		sources: make(map[string]int),
		paths:   make(map[string]map[string]int),
	}
	if err := ix.load(); err != nil {
		db.Close()
		return nil, err
	}
	return ix, nil
}

// Path returns the database file path.
func (ix *LocalIndex) Path() string { return ix.path }

func (ix *LocalIndex) load() error {
	rows, err := ix.db.Query(`
		SELECT id, source_hash, chunk_index, text, byte_offset, source_filename, source_path, document_kind, embedding
		FROM records`)
	if err != nil {
		return fmt.Errorf("%w: load index: %w", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.VectorRecord
		var blob []byte
		if err := rows.Scan(&r.ID, &r.SourceHash, &r.Chunk.ChunkIndex, &r.Chunk.Text, &r.Chunk.ByteOffsetStart,
			&r.Chunk.SourceFilename, &r.Chunk.SourcePath, &r.Chunk.DocumentKind, &blob); err != nil {
			return fmt.Errorf("%w: scan record: %w", models.ErrStorageUnavailable, err)
		}
		r.Embedding = bytesToFloat32Slice(blob)
		ix.put(r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: load index: %w", models.ErrStorageUnavailable, err)
	}
	return nil
}

// Upsert writes all records in one transaction, then publishes them to the
// in-memory copy.
func (ix *LocalIndex) Upsert(ctx context.Context, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r.ID == "" || len(r.Embedding) == 0 {
			return fmt.Errorf("%w: record %q has no id or embedding", models.ErrInvalidInput, r.ID)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", models.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, source_hash, chunk_index, text, byte_offset, source_filename, source_path, document_kind, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source_hash     = excluded.source_hash,
			chunk_index     = excluded.chunk_index,
			text            = excluded.text,
			byte_offset     = excluded.byte_offset,
			source_filename = excluded.source_filename,
			source_path     = excluded.source_path,
			document_kind   = excluded.document_kind,
			embedding       = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %w", models.ErrStorageUnavailable, err)
	}
	defer stmt.Close()

	for _, r := range records {
		c := r.Chunk
		if _, err := stmt.ExecContext(ctx, r.ID, r.SourceHash, c.ChunkIndex, c.Text, c.ByteOffsetStart,
			c.SourceFilename, c.SourcePath, c.DocumentKind, float32SliceToBytes(r.Embedding)); err != nil {
			return fmt.Errorf("%w: upsert %s: %w", models.ErrStorageUnavailable, r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", models.ErrStorageUnavailable, err)
	}

	for _, r := range records {
		r.Embedding = append([]float32(nil), r.Embedding...)
		ix.put(r)
	}
	return nil
}

// put stores r in the in-memory copy. Callers hold mu or own ix exclusively.
func (ix *LocalIndex) put(r models.VectorRecord) {
	if old, ok := ix.records[r.ID]; ok {
		ix.forget(old)
	}
	ix.records[r.ID] = r
	ix.sources[r.SourceHash]++
	byHash := ix.paths[r.Chunk.SourcePath]
	if byHash == nil {
		byHash = make(map[string]int)
		ix.paths[r.Chunk.SourcePath] = byHash
	}
	byHash[r.SourceHash]++
}

func (ix *LocalIndex) forget(r models.VectorRecord) {
	delete(ix.records, r.ID)
	if ix.sources[r.SourceHash]--; ix.sources[r.SourceHash] <= 0 {
		delete(ix.sources, r.SourceHash)
	}
	byHash := ix.paths[r.Chunk.SourcePath]
	if byHash[r.SourceHash]--; byHash[r.SourceHash] <= 0 {
		delete(byHash, r.SourceHash)
	}
	if len(byHash) == 0 {
		delete(ix.paths, r.Chunk.SourcePath)
	}
}

func (ix *LocalIndex) HasSource(ctx context.Context, sourceHash string) (bool, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.sources[sourceHash] > 0, nil
}

func (ix *LocalIndex) DeleteSource(ctx context.Context, path, keepHash string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	stale := false
	for hash := range ix.paths[path] {
		if hash != keepHash {
			stale = true
			break
		}
	}
	if !stale {
		return 0, nil
	}

	res, err := ix.db.ExecContext(ctx, `DELETE FROM records WHERE source_path = ? AND source_hash <> ?`, path, keepHash)
	if err != nil {
		return 0, fmt.Errorf("%w: delete %s: %w", models.ErrStorageUnavailable, path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: delete %s: %w", models.ErrStorageUnavailable, path, err)
	}
	for _, r := range ix.records {
		if r.Chunk.SourcePath == path && r.SourceHash != keepHash {
			ix.forget(r)
		}
	}
	return int(n), nil
}

func (ix *LocalIndex) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return []models.SearchResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]models.SearchResult, 0, len(ix.records))
	for _, r := range ix.records {
		if len(r.Embedding) != len(query) {
			return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", models.ErrInvalidInput, len(query), len(r.Embedding))
		}
		results = append(results, models.SearchResult{Record: r, Score: Cosine(query, r.Embedding)})
	}
	return Rank(results, k), nil
}

func (ix *LocalIndex) Count(ctx context.Context) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records), nil
}

func (ix *LocalIndex) Close() error {
	return ix.db.Close()
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
