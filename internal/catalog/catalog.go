// Package catalog selects the persistent dataset backend.
package catalog

import (
	"context"
	"fmt"

	"dsmanager/internal/config"
	"dsmanager/internal/infra/persistence/memory"
	"dsmanager/internal/infra/persistence/postgres"
	"dsmanager/internal/infra/persistence/sqlite"
	"dsmanager/pkg/domain"
)

// Driver identifies a concrete persistent storage implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Catalog is a dataset handle that owns its backing connection.
type Catalog interface {
	domain.Dataset
	Close() error
}

var (
	_ Catalog = (*memory.Store)(nil)
	_ Catalog = (*sqlite.Store)(nil)
	_ Catalog = (*postgres.Store)(nil)
)

// Open returns the dataset named in cfg from the configured backend.
func Open(ctx context.Context, cfg config.Config) (Catalog, error) {
	info := domain.DatasetInfo{Name: cfg.DatasetName, RootDir: cfg.DatasetRoot}
	switch Driver(cfg.StorageDriver) {
	case DriverMemory:
		return memory.NewStore(info), nil
	case DriverSQLite, "":
		return sqlite.NewStore(ctx, cfg.SQLitePath, info)
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, info)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.StorageDriver)
	}
}
