package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"dsmanager/pkg/domain"
)

func openStore(t *testing.T, path string, info domain.DatasetInfo) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), path, info)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	store := openStore(t, path, domain.DatasetInfo{Name: "sgcc", RootDir: "/data"})

	added, err := store.Add(ctx, domain.Sample{
		FilePath:    "/data/a.jpg",
		Metadata:    &domain.ImageMetadata{Width: 640, Height: 480, NumChannels: 3},
		GroundTruth: &domain.Detections{Detections: []domain.Detection{{Label: "bird", BoundingBox: [4]float64{0.1, 0.2, 0.3, 0.4}}}},
		Fields:      map[string]any{domain.FieldXMLMD5: "d41d8cd9"},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.Add(ctx, domain.Sample{FilePath: "/data/b.jpg"}); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := store.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := openStore(t, path, domain.DatasetInfo{Name: "sgcc"})
	if reloaded.Len() != 2 {
		t.Fatalf("expected 2 samples, got %d", reloaded.Len())
	}
	if reloaded.RootDir() != "/data" {
		t.Fatalf("root dir not restored: %q", reloaded.RootDir())
	}
	got, err := reloaded.Get("/data/a.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != added.ID || got.Metadata.Width != 640 || len(got.GroundTruth.Detections) != 1 {
		t.Fatalf("unexpected reloaded sample %+v", got)
	}
	if v, _ := got.Field(domain.FieldXMLMD5); v != "d41d8cd9" {
		t.Fatalf("extra field lost: %v", v)
	}
	if paths := reloaded.Paths(); paths[0] != "/data/a.jpg" || paths[1] != "/data/b.jpg" {
		t.Fatalf("order not preserved: %v", paths)
	}
}

func TestSQLiteStoreBatchSaveAndDelete(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	store := openStore(t, path, domain.DatasetInfo{Name: "sgcc"})
	for _, p := range []string{"/d/1.png", "/d/2.png", "/d/3.png"} {
		if _, err := store.Add(ctx, domain.Sample{FilePath: p}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	saver := store.SaveContext(2)
	for _, s := range store.Samples() {
		if err := s.SetField("reviewed", true); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := saver.Save(ctx, s); err != nil {
			t.Fatalf("batch save: %v", err)
		}
	}
	if err := saver.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if ok, err := store.Delete(ctx, "/d/2.png"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}

	reloaded := openStore(t, path, domain.DatasetInfo{Name: "sgcc"})
	if reloaded.Len() != 2 || reloaded.Has("/d/2.png") {
		t.Fatalf("unexpected reloaded paths %v", reloaded.Paths())
	}
	for _, s := range reloaded.Samples() {
		if v, _ := s.Field("reviewed"); v != true {
			t.Fatalf("batch saved field missing on %s", s.FilePath)
		}
	}
}

func TestSQLiteStoreIsolatesDatasets(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	first := openStore(t, path, domain.DatasetInfo{Name: "one"})
	if _, err := first.Add(ctx, domain.Sample{FilePath: "/x/a.jpg"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	second := openStore(t, path, domain.DatasetInfo{Name: "two"})
	if second.Len() != 0 {
		t.Fatalf("dataset two should be empty, got %d", second.Len())
	}
}
