package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"dsmanager/internal/config"
	"dsmanager/pkg/domain"
)

func TestOpenMemory(t *testing.T) {
	c, err := Open(context.Background(), config.Config{StorageDriver: "memory", DatasetName: "ds", DatasetRoot: "/media"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = c.Close() }()
	if c.Name() != "ds" || c.RootDir() != "/media" {
		t.Fatalf("unexpected catalog %s %s", c.Name(), c.RootDir())
	}
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{StorageDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "c.db"), DatasetName: "ds"}
	c, err := Open(ctx, cfg)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := c.Add(ctx, domain.Sample{FilePath: "/m/a.jpg"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	again, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = again.Close() }()
	if !again.Has("/m/a.jpg") {
		t.Fatalf("sample not persisted")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.Config{StorageDriver: "mongo"}); err == nil {
		t.Fatalf("expected error")
	}
}
