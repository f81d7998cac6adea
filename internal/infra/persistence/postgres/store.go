// Package postgres provides a Postgres-backed catalog that mirrors the
// in-memory semantics and writes every committed mutation to the server.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"dsmanager/internal/infra/persistence/memory"
	"dsmanager/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain catalog interface.
var _ domain.Dataset = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/dsmanager?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		name TEXT PRIMARY KEY,
		root_dir TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS samples (
		filepath TEXT NOT NULL,
		dataset TEXT NOT NULL REFERENCES datasets(name) ON DELETE CASCADE,
		seq BIGINT NOT NULL,
		payload JSONB NOT NULL,
		PRIMARY KEY (dataset, filepath)
	)`,
}

// Store keeps the catalog in memory while persisting mutations to Postgres.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed catalog using the provided DSN (falls back
// to defaultDSN), ensures the schema exists and hydrates the dataset named by
// info.
func NewStore(ctx context.Context, dsn string, info domain.DatasetInfo) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, ddl := range schema {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	snapshot, err := loadSnapshot(ctx, db, info.Name)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(info, memory.WithCommitter(s))
	s.ImportState(snapshot)
	return s, nil
}

func loadSnapshot(ctx context.Context, db *sql.DB, name string) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{Info: domain.DatasetInfo{Name: name}}
	var root string
	err := db.QueryRowContext(ctx, `SELECT root_dir FROM datasets WHERE name = $1`, name).Scan(&root)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return memory.Snapshot{}, fmt.Errorf("select dataset: %w", err)
	default:
		snapshot.Info.RootDir = root
	}
	rows, err := db.QueryContext(ctx, `SELECT seq, payload FROM samples WHERE dataset = $1 ORDER BY seq`, name)
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
			return memory.Snapshot{}, fmt.Errorf("scan sample: %w", err)
		}
		if len(payload) == 0 {
			continue
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
func (s *Store) Commit(ctx context.Context, c memory.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO datasets(name,root_dir) VALUES($1,$2) ON CONFLICT(name) DO UPDATE SET root_dir=EXCLUDED.root_dir`, c.Info.Name, c.Info.RootDir); err != nil {
		return fmt.Errorf("upsert dataset: %w", err)
	}
	for _, e := range c.Upserts {
		payload, err := json.Marshal(e.Sample)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.Sample.FilePath, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO samples(filepath,dataset,seq,payload) VALUES($1,$2,$3,$4) ON CONFLICT(dataset,filepath) DO UPDATE SET seq=EXCLUDED.seq, payload=EXCLUDED.payload`, e.Sample.FilePath, c.Info.Name, e.Seq, payload); err != nil {
			return fmt.Errorf("upsert %s: %w", e.Sample.FilePath, err)
		}
	}
	for _, path := range c.Deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM samples WHERE filepath = $1 AND dataset = $2`, path, c.Info.Name); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
