package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dsmanager/internal/infra/persistence/memory"
	"dsmanager/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain catalog interface.
var _ domain.Dataset = (*Store)(nil)

// Store keeps the catalog in memory and writes every committed mutation to
// SQLite, one JSON payload row per sample.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the SQLite file at path and hydrates the
// dataset named by info from it.
func NewStore(ctx context.Context, path string, info domain.DatasetInfo) (*Store, error) {
	if path == "" {
		path = "dsmanager.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, ddl := range schema {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	s := &Store{db: db, path: path}
	snapshot, err := s.load(ctx, info.Name)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.Store = memory.NewStore(info, memory.WithCommitter(s))
	s.ImportState(snapshot)
	return s, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		name TEXT PRIMARY KEY,
		root_dir TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS samples (
		filepath TEXT NOT NULL,
		dataset TEXT NOT NULL,
		seq INTEGER NOT NULL,
		payload BLOB NOT NULL,
		PRIMARY KEY (dataset, filepath)
	)`,
}

func (s *Store) load(ctx context.Context, name string) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{Info: domain.DatasetInfo{Name: name}}
	var root string
	err := s.db.QueryRowContext(ctx, `SELECT root_dir FROM datasets WHERE name = ?`, name).Scan(&root)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return memory.Snapshot{}, fmt.Errorf("select dataset: %w", err)
	default:
		snapshot.Info.RootDir = root
	}
	rows, err := s.db.QueryContext(ctx, `SELECT seq, payload FROM samples WHERE dataset = ? ORDER BY seq`, name)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select samples: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			seq     int64
			payload []byte
		)
		if err := rows.Scan(&seq, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan: %w", err)
		}
		var sample domain.Sample
		if err := json.Unmarshal(payload, &sample); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode sample: %w", err)
		}
		snapshot.Entries = append(snapshot.Entries, memory.Entry{Seq: seq, Sample: sample})
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate samples: %w", err)
	}
	return snapshot, nil
}

// Commit implements memory.Committer.
func (s *Store) Commit(ctx context.Context, c memory.Commit) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO datasets(name,root_dir) VALUES(?,?) ON CONFLICT(name) DO UPDATE SET root_dir=excluded.root_dir`, c.Info.Name, c.Info.RootDir); err != nil {
		return fmt.Errorf("upsert dataset: %w", err)
	}
	for _, e := range c.Upserts {
		payload, err := json.Marshal(e.Sample)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.Sample.FilePath, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO samples(filepath,dataset,seq,payload) VALUES(?,?,?,?) ON CONFLICT(dataset,filepath) DO UPDATE SET seq=excluded.seq, payload=excluded.payload`, e.Sample.FilePath, c.Info.Name, e.Seq, payload); err != nil {
			return fmt.Errorf("upsert %s: %w", e.Sample.FilePath, err)
		}
	}
	for _, path := range c.Deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM samples WHERE filepath = ? AND dataset = ?`, path, c.Info.Name); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
