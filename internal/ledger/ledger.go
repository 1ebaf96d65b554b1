package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/seanblong/docqa/pkg/models"
)

// Ledger records which source files have been ingested, keyed by content hash.
type Ledger interface {
	IsIngested(ctx context.Context, hash string) (bool, error)
	RecordIngested(ctx context.Context, entry models.LedgerEntry) error
	Get(ctx context.Context, hash string) (models.LedgerEntry, bool, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// SQLiteLedger is a Ledger stored in a single SQLite file.
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
  content_hash  TEXT PRIMARY KEY,
  absolute_path TEXT NOT NULL,
  filename      TEXT NOT NULL,
  chunk_count   INTEGER NOT NULL DEFAULT 0,
  ingested_at   TEXT NOT NULL
);`

// Open opens (creating when missing) the ledger database at path.
func Open(path string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create ledger directory: %w", models.ErrStorageUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("%w: open ledger: %w", models.ErrStorageUnavailable, err)
	}
	// One connection serializes writers on the file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate ledger: %w", models.ErrStorageUnavailable, err)
	}
	if err := addChunkCount(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate ledger: %w", models.ErrStorageUnavailable, err)
	}
	return &SQLiteLedger{db: db, path: path}, nil
}

// addChunkCount upgrades ledgers written before chunk counts were kept. Their
// rows read as zero chunks.
func addChunkCount(db *sql.DB) error {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('ledger_entries') WHERE name = 'chunk_count'`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := db.Exec(`ALTER TABLE ledger_entries ADD COLUMN chunk_count INTEGER NOT NULL DEFAULT 0`)
	return err
}

// Path returns the database file path.
func (l *SQLiteLedger) Path() string { return l.path }

func (l *SQLiteLedger) Close() error { return l.db.Close() }

func (l *SQLiteLedger) IsIngested(ctx context.Context, hash string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, `SELECT 1 FROM ledger_entries WHERE content_hash = ?`, hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: lookup %s: %w", models.ErrStorageUnavailable, hash, err)
	}
	return true, nil
}

// RecordIngested upserts by hash; an existing row gets its path, filename
// and timestamp refreshed.
func (l *SQLiteLedger) RecordIngested(ctx context.Context, e models.LedgerEntry) error {
	if e.ContentHash == "" {
		return fmt.Errorf("%w: empty content hash", models.ErrInvalidInput)
	}
	if e.IngestedAt.IsZero() {
		e.IngestedAt = time.Now()
	}
	const q = `
		INSERT INTO ledger_entries (content_hash, absolute_path, filename, chunk_count, ingested_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (content_hash) DO UPDATE SET
			absolute_path = excluded.absolute_path,
			filename      = excluded.filename,
			chunk_count   = excluded.chunk_count,
			ingested_at   = excluded.ingested_at`
	_, err := l.db.ExecContext(ctx, q, e.ContentHash, e.AbsolutePath, e.Filename, e.Chunks, e.IngestedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: record %s: %w", models.ErrStorageUnavailable, e.ContentHash, err)
	}
	return nil
}

func (l *SQLiteLedger) Get(ctx context.Context, hash string) (models.LedgerEntry, bool, error) {
	var e models.LedgerEntry
	var ts string
	err := l.db.QueryRowContext(ctx,
		`SELECT content_hash, absolute_path, filename, chunk_count, ingested_at FROM ledger_entries WHERE content_hash = ?`, hash).
		Scan(&e.ContentHash, &e.AbsolutePath, &e.Filename, &e.Chunks, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerEntry{}, false, nil
	}
	if err != nil {
		return models.LedgerEntry{}, false, fmt.Errorf("%w: get %s: %w", models.ErrStorageUnavailable, hash, err)
	}
	if e.IngestedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return models.LedgerEntry{}, false, fmt.Errorf("%w: parse timestamp %q: %w", models.ErrStorageUnavailable, ts, err)
	}
	return e, true, nil
}

func (l *SQLiteLedger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", models.ErrStorageUnavailable, err)
	}
	return n, nil
}
