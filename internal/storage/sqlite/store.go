package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dedupe/internal/fault"
	"dedupe/internal/storage"

	_ "modernc.org/sqlite"
)

// Store persists the digest index inside a SQLite database.
type Store struct {
	db *sql.DB
}

// Open initializes (or reuses) a SQLite database at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fault.IO("create database directory", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fault.Store("open sqlite database", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			db.Close()
			return nil, fault.Store(fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS files (
        path TEXT PRIMARY KEY,
        digest TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_state (
        id INTEGER PRIMARY KEY CHECK (id = 1),
        root_path TEXT NOT NULL,
        finished_at INTEGER NOT NULL,
        files INTEGER NOT NULL,
        bytes INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_digest ON files(digest);
`

	if _, err := s.db.Exec(schema); err != nil {
		return fault.Store("initialize schema", err)
	}
	return nil
}

// Scan is an open replace-all transaction. Nothing it writes is visible until
// Commit; Rollback leaves the previous index untouched.
type Scan struct {
	tx     *sql.Tx
	insert *sql.Stmt
}

// BeginScan starts a transaction that discards every existing record.
func (s *Store) BeginScan(ctx context.Context) (storage.ScanTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fault.Store("begin scan", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files`); err != nil {
		tx.Rollback()
		return nil, fault.Store("reset records", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO files(path, digest) VALUES(?, ?)`)
	if err != nil {
		tx.Rollback()
		return nil, fault.Store("prepare insert", err)
	}
	return &Scan{tx: tx, insert: stmt}, nil
}

// Insert records one file.
func (sc *Scan) Insert(ctx context.Context, record storage.Record) error {
	if _, err := sc.insert.ExecContext(ctx, record.Path, record.Digest); err != nil {
		return fault.Store(fmt.Sprintf("insert record %s", record.Path), err)
	}
	return nil
}

// Commit stores the scan state and makes the new records visible.
func (sc *Scan) Commit(ctx context.Context, state storage.ScanState) error {
	defer sc.insert.Close()

	_, err := sc.tx.ExecContext(ctx, `
INSERT INTO scan_state(id, root_path, finished_at, files, bytes)
VALUES(1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
        root_path=excluded.root_path,
        finished_at=excluded.finished_at,
        files=excluded.files,
        bytes=excluded.bytes
`, state.RootPath, state.FinishedAt.UnixNano(), state.Files, state.Bytes)
	if err != nil {
		sc.tx.Rollback()
		return fault.Store("update scan state", err)
	}

	if err := sc.tx.Commit(); err != nil {
		return fault.Store("commit scan", err)
	}
	return nil
}

// Rollback abandons the scan. It is safe to call after Commit.
func (sc *Scan) Rollback() error {
	sc.insert.Close()
	if err := sc.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fault.Store("rollback scan", err)
	}
	return nil
}

// DuplicateGroups returns every digest held by two or more records, ordered by
// digest. Paths are left empty.
func (s *Store) DuplicateGroups(ctx context.Context) ([]storage.DuplicateGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT digest, COUNT(*) FROM files
GROUP BY digest
HAVING COUNT(*) > 1
ORDER BY digest
`)
	if err != nil {
		return nil, fault.Store("query duplicate groups", err)
	}
	defer rows.Close()

	var groups []storage.DuplicateGroup
	for rows.Next() {
		var group storage.DuplicateGroup
		if scanErr := rows.Scan(&group.Digest, &group.Count); scanErr != nil {
			return nil, fault.Store("scan duplicate group", scanErr)
		}
		groups = append(groups, group)
	}

	if err := rows.Err(); err != nil {
		return nil, fault.Store("iterate duplicate groups", err)
	}

	return groups, nil
}

// PathsFor lists the paths recorded under digest in insertion order.
func (s *Store) PathsFor(ctx context.Context, digest string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files WHERE digest = ? ORDER BY rowid`, digest)
	if err != nil {
		return nil, fault.Store("query paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if scanErr := rows.Scan(&path); scanErr != nil {
			return nil, fault.Store("scan path", scanErr)
		}
		paths = append(paths, path)
	}

	if err := rows.Err(); err != nil {
		return nil, fault.Store("iterate paths", err)
	}

	return paths, nil
}

// Delete removes a record by its path.
func (s *Store) Delete(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return fault.Store(fmt.Sprintf("delete record %s", path), err)
	}
	return nil
}

// Count returns the number of indexed files.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fault.Store("count records", err)
	}
	return n, nil
}

// ScanState retrieves the bookkeeping of the last committed scan. The boolean
// is false when no scan has ever completed.
func (s *Store) ScanState(ctx context.Context) (storage.ScanState, bool, error) {
	var (
		state    storage.ScanState
		finished int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT root_path, finished_at, files, bytes FROM scan_state WHERE id = 1
`).Scan(&state.RootPath, &finished, &state.Files, &state.Bytes)

	if errors.Is(err, sql.ErrNoRows) {
		return storage.ScanState{}, false, nil
	}
	if err != nil {
		return storage.ScanState{}, false, fault.Store("query scan state", err)
	}

	state.FinishedAt = time.Unix(0, finished)
	return state, true, nil
}
