// Package config resolves runtime settings from DSM_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MaxWorkers is the hard cap on concurrent tasks per batch operation.
const MaxWorkers = 48

// Config holds the settings shared by the CLI commands.
//
//	DSM_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	DSM_SQLITE_PATH: sqlite catalog file (default ./dsmanager.db)
//	DSM_POSTGRES_DSN: postgres DSN when driver=postgres
//	DSM_BLOB_DRIVER: fs|s3|memory destination for mirrored exports (default fs)
//	DSM_BLOB_FS_ROOT: directory root when blob driver=fs (default ./blobdata)
//	DSM_WORKERS: pool size per batch, 1..48 (default 48)
//	DSM_DATASET_NAME: catalog dataset name (default "default")
//	DSM_DATASET_ROOT: media root directory scanned by update, made absolute
//
// S3 settings are read by the blob package (DSM_BLOB_S3_*).
type Config struct {
	StorageDriver string
	SQLitePath    string
	PostgresDSN   string
	BlobDriver    string
	BlobFSRoot    string
	Workers       int
	DatasetName   string
	DatasetRoot   string
}

// FromEnv reads Config from the process environment.
func FromEnv() (Config, error) {
	cfg := Config{
		StorageDriver: envOr("DSM_STORAGE_DRIVER", "sqlite"),
		SQLitePath:    envOr("DSM_SQLITE_PATH", "dsmanager.db"),
		PostgresDSN:   os.Getenv("DSM_POSTGRES_DSN"),
		BlobDriver:    envOr("DSM_BLOB_DRIVER", "fs"),
		BlobFSRoot:    envOr("DSM_BLOB_FS_ROOT", "./blobdata"),
		Workers:       MaxWorkers,
		DatasetName:   envOr("DSM_DATASET_NAME", "default"),
		DatasetRoot:   os.Getenv("DSM_DATASET_ROOT"),
	}
	if raw := strings.TrimSpace(os.Getenv("DSM_WORKERS")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("DSM_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if cfg.DatasetRoot != "" {
		root, err := filepath.Abs(cfg.DatasetRoot)
		if err != nil {
			return Config{}, fmt.Errorf("DSM_DATASET_ROOT: %w", err)
		}
		cfg.DatasetRoot = root
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and clamps Workers to MaxWorkers.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.Workers > MaxWorkers {
		c.Workers = MaxWorkers
	}
	switch c.StorageDriver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if strings.TrimSpace(c.DatasetName) == "" {
		return fmt.Errorf("dataset name required")
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
