package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/seanblong/docqa/pkg/models"
)

// Store keeps vector records and the ingestion ledger in PostgreSQL with the
// pgvector extension. It satisfies both index.VectorIndex and ledger.Ledger.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// New creates a new Store connected to the given database URL. name selects
// the record table so several indexes can share one database.
func New(ctx context.Context, url, name string) (*Store, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: index name %q must be lowercase letters, digits or underscores", models.ErrInvalidInput, name)
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse db url: %w", models.ErrStorageUnavailable, err)
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", models.ErrStorageUnavailable, err)
	}
	return &Store{pool: p, table: name + "_records"}, nil
}

// ivfflatLists is the list count of the embedding index. Searches visit every
// list, so results match an exact scan.
const ivfflatLists = 100

// searchAllLists makes ivfflat visit every list for the rest of a transaction.
var searchAllLists = fmt.Sprintf("SET LOCAL ivfflat.probes = %d", ivfflatLists)

func validName(name string) bool {
	if name == "" || len(name) > 48 {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies necessary database migrations and schema setup.
func (s *Store) Migrate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", models.ErrInvalidInput)
	}
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
  id              TEXT PRIMARY KEY,
  source_hash     TEXT NOT NULL,
  chunk_index     INT NOT NULL,
  text            TEXT NOT NULL,
  byte_offset     INT NOT NULL,
  source_filename TEXT NOT NULL,
  source_path     TEXT NOT NULL,
  document_kind   TEXT NOT NULL,
  embedding       vector(%[2]d) NOT NULL,
  created_at      TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS %[1]s_source_hash_idx
  ON %[1]s (source_hash);

CREATE INDEX IF NOT EXISTS %[1]s_source_path_idx
  ON %[1]s (source_path);

CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx
  ON %[1]s USING ivfflat (embedding vector_cosine_ops) WITH (lists = %[3]d);

CREATE TABLE IF NOT EXISTS ledger_entries (
  content_hash  TEXT PRIMARY KEY,
  absolute_path TEXT NOT NULL,
  filename      TEXT NOT NULL,
  chunk_count   INT NOT NULL DEFAULT 0,
  ingested_at   TIMESTAMP WITH TIME ZONE NOT NULL
);

ALTER TABLE ledger_entries ADD COLUMN IF NOT EXISTS chunk_count INT NOT NULL DEFAULT 0;
`
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(q, s.table, dim, ivfflatLists)); err != nil {
		return fmt.Errorf("%w: migrate: %w", models.ErrStorageUnavailable, err)
	}
	return nil
}

// Upsert writes all records in one transaction.
func (s *Store) Upsert(ctx context.Context, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (
			id, source_hash, chunk_index, text, byte_offset,
			source_filename, source_path, document_kind, embedding
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			source_hash     = EXCLUDED.source_hash,
			chunk_index     = EXCLUDED.chunk_index,
			text            = EXCLUDED.text,
			byte_offset     = EXCLUDED.byte_offset,
			source_filename = EXCLUDED.source_filename,
			source_path     = EXCLUDED.source_path,
			document_kind   = EXCLUDED.document_kind,
			embedding       = EXCLUDED.embedding,
			created_at      = %s.created_at;`, s.table, s.table)

	batch := &pgx.Batch{}
	for _, r := range records {
		if r.ID == "" || len(r.Embedding) == 0 {
			return fmt.Errorf("%w: record %q has no id or embedding", models.ErrInvalidInput, r.ID)
		}
		c := r.Chunk
		batch.Queue(q, r.ID, r.SourceHash, c.ChunkIndex, c.Text, c.ByteOffsetStart,
			c.SourceFilename, c.SourcePath, c.DocumentKind, pgvector.NewVector(r.Embedding))
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("%w: upsert: %w", models.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return []models.SearchResult{}, nil
	}

	q := fmt.Sprintf(`
SELECT id, source_hash, chunk_index, text, byte_offset, source_filename, source_path, document_kind,
       1.0 - (embedding <=> $1::vector) AS score
FROM %s
ORDER BY embedding <=> $1::vector, id
LIMIT %d;`, s.table, k)

	out := []models.SearchResult{}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// With the default of one list the scan can miss rows and return fewer than k.
		if _, err := tx.Exec(ctx, searchAllLists); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, q, pgvector.NewVector(query))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r models.VectorRecord
			var score float64
			if err := rows.Scan(
				&r.ID, &r.SourceHash, &r.Chunk.ChunkIndex, &r.Chunk.Text, &r.Chunk.ByteOffsetStart,
				&r.Chunk.SourceFilename, &r.Chunk.SourcePath, &r.Chunk.DocumentKind,
				&score,
			); err != nil {
				return err
			}
			out = append(out, models.SearchResult{Record: r, Score: score})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", models.ErrStorageUnavailable, err)
	}
	return out, nil
}

func (s *Store) HasSource(ctx context.Context, sourceHash string) (bool, error) {
	var ok bool
	q := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE source_hash = $1)", s.table)
	if err := s.pool.QueryRow(ctx, q, sourceHash).Scan(&ok); err != nil {
		return false, fmt.Errorf("%w: lookup %s: %w", models.ErrStorageUnavailable, sourceHash, err)
	}
	return ok, nil
}

func (s *Store) DeleteSource(ctx context.Context, path, keepHash string) (int, error) {
	q := fmt.Sprintf("DELETE FROM %s WHERE source_path = $1 AND source_hash <> $2", s.table)
	tag, err := s.pool.Exec(ctx, q, path, keepHash)
	if err != nil {
		return 0, fmt.Errorf("%w: delete %s: %w", models.ErrStorageUnavailable, path, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", models.ErrStorageUnavailable, err)
	}
	return n, nil
}

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Ledger returns a view of the store's ledger table. It shares the pool;
// closing it is a no-op.
func (s *Store) Ledger() *Ledger { return &Ledger{pool: s.pool} }

// Ledger is the PostgreSQL ingestion ledger.
type Ledger struct {
	pool *pgxpool.Pool
}

func (l *Ledger) Close() error { return nil }

func (l *Ledger) IsIngested(ctx context.Context, hash string) (bool, error) {
	_, ok, err := l.Get(ctx, hash)
	return ok, err
}

func (l *Ledger) RecordIngested(ctx context.Context, e models.LedgerEntry) error {
	if e.ContentHash == "" {
		return fmt.Errorf("%w: empty content hash", models.ErrInvalidInput)
	}
	if e.IngestedAt.IsZero() {
		e.IngestedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO ledger_entries (content_hash, absolute_path, filename, chunk_count, ingested_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (content_hash) DO UPDATE SET
			absolute_path = EXCLUDED.absolute_path,
			filename      = EXCLUDED.filename,
			chunk_count   = EXCLUDED.chunk_count,
			ingested_at   = EXCLUDED.ingested_at;`
	if _, err := l.pool.Exec(ctx, q, e.ContentHash, e.AbsolutePath, e.Filename, e.Chunks, e.IngestedAt); err != nil {
		return fmt.Errorf("%w: record %s: %w", models.ErrStorageUnavailable, e.ContentHash, err)
	}
	return nil
}

// Get retrieves the ledger entry for hash.
func (l *Ledger) Get(ctx context.Context, hash string) (models.LedgerEntry, bool, error) {
	const q = `
      SELECT content_hash, absolute_path, filename, chunk_count, ingested_at
      FROM ledger_entries
      WHERE content_hash = $1
      LIMIT 1`
	var e models.LedgerEntry
	err := l.pool.QueryRow(ctx, q, hash).Scan(&e.ContentHash, &e.AbsolutePath, &e.Filename, &e.Chunks, &e.IngestedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.LedgerEntry{}, false, nil
		}
		return models.LedgerEntry{}, false, fmt.Errorf("%w: lookup %s: %w", models.ErrStorageUnavailable, hash, err)
	}
	return e, true, nil
}

func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT count(*) FROM ledger_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", models.ErrStorageUnavailable, err)
	}
	return n, nil
}
