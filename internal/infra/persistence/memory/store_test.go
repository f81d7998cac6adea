package memory

import (
	"context"
	"errors"
	"testing"

	"dsmanager/pkg/domain"
)

type recordingCommitter struct {
	commits []Commit
	err     error
}

func (r *recordingCommitter) Commit(_ context.Context, c Commit) error {
	r.commits = append(r.commits, c)
	return r.err
}

func seedStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := NewStore(domain.DatasetInfo{Name: "ds"}, opts...)
	for _, p := range []string{"/data/a.jpg", "/data/b.jpg", "/data/c.jpg"} {
		if _, err := s.Add(context.Background(), domain.Sample{FilePath: p}); err != nil {
			t.Fatalf("add %s: %v", p, err)
		}
	}
	return s
}

func TestStoreAddAssignsIDAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewStore(domain.DatasetInfo{Name: "ds"})
	added, err := s.Add(ctx, domain.Sample{FilePath: "/data/a.jpg"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.ID == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := s.Add(ctx, domain.Sample{FilePath: "/data/a.jpg"}); !errors.Is(err, domain.ErrDuplicateSample) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := s.Add(ctx, domain.Sample{}); err == nil {
		t.Fatalf("expected empty filepath error")
	}
	if !s.Has("/data/a.jpg") || s.Has("/data/z.jpg") {
		t.Fatalf("unexpected membership")
	}
}

func TestStoreOrderingAndRootDir(t *testing.T) {
	s := seedStore(t)
	paths := s.Paths()
	want := []string{"/data/a.jpg", "/data/b.jpg", "/data/c.jpg"}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("paths[%d] = %s, want %s", i, paths[i], want[i])
		}
	}
	if got := s.RootDir(); got != "/data" {
		t.Fatalf("root dir = %q", got)
	}
	explicit := NewStore(domain.DatasetInfo{Name: "x", RootDir: "/media"})
	if got := explicit.RootDir(); got != "/media" {
		t.Fatalf("explicit root dir = %q", got)
	}
	if got := NewStore(domain.DatasetInfo{}).RootDir(); got != "" {
		t.Fatalf("empty store root dir = %q", got)
	}
}

func TestStoreGetReturnsClone(t *testing.T) {
	ctx := context.Background()
	s := NewStore(domain.DatasetInfo{Name: "ds"})
	if _, err := s.Add(ctx, domain.Sample{FilePath: "/data/a.jpg", Tags: []string{"x"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := s.Get("/data/a.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Tags[0] = "mutated"
	again, _ := s.Get("/data/a.jpg")
	if again.Tags[0] != "x" {
		t.Fatalf("store state leaked through clone")
	}
	if _, err := s.Get("/nope.jpg"); !errors.Is(err, domain.ErrSampleNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreSaveSampleOnlyExisting(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)
	sample, _ := s.Get("/data/b.jpg")
	if err := sample.SetField(domain.FieldXMLMD5, "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SaveSample(ctx, sample); err != nil {
		t.Fatalf("save: %v", err)
	}
	reloaded, _ := s.Get("/data/b.jpg")
	if v, _ := reloaded.Field(domain.FieldXMLMD5); v != "abc" {
		t.Fatalf("field not saved: %v", v)
	}
	err := s.SaveSample(ctx, domain.Sample{FilePath: "/data/new.jpg"})
	if !errors.Is(err, domain.ErrSampleNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if s.Has("/data/new.jpg") {
		t.Fatalf("save must never add samples")
	}
}

func TestStoreSelectByPathsAndIDs(t *testing.T) {
	s := seedStore(t)
	view := s.SelectByPaths([]string{"/data/c.jpg", "/data/a.jpg", "/data/missing.jpg"})
	paths := view.Paths()
	if len(paths) != 2 || paths[0] != "/data/a.jpg" || paths[1] != "/data/c.jpg" {
		t.Fatalf("unexpected selection %v", paths)
	}
	b, _ := s.Get("/data/b.jpg")
	byID := s.SelectIDs([]string{b.ID})
	if byID.Len() != 1 || byID.Samples()[0].FilePath != "/data/b.jpg" {
		t.Fatalf("unexpected id selection %v", byID.Paths())
	}
	if s.SelectIDs(nil).Len() != 0 {
		t.Fatalf("empty id list should select nothing")
	}
	if s.All().Len() != 3 {
		t.Fatalf("all view should contain every sample")
	}
}

func TestSaveContextFlushesInBatches(t *testing.T) {
	ctx := context.Background()
	rc := &recordingCommitter{}
	s := seedStore(t, WithCommitter(rc))
	rc.commits = nil

	saver := s.SaveContext(2)
	for _, sample := range s.Samples() {
		if err := saver.Save(ctx, sample); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if len(rc.commits) != 1 || len(rc.commits[0].Upserts) != 2 {
		t.Fatalf("expected one full batch before close, got %+v", rc.commits)
	}
	if err := saver.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(rc.commits) != 2 || len(rc.commits[1].Upserts) != 1 {
		t.Fatalf("expected remainder flushed on close, got %d commits", len(rc.commits))
	}
	if err := saver.Close(ctx); err != nil || len(rc.commits) != 2 {
		t.Fatalf("empty close should not commit")
	}
}

func TestCommitErrorPropagates(t *testing.T) {
	rc := &recordingCommitter{err: errors.New("disk full")}
	s := NewStore(domain.DatasetInfo{Name: "ds"}, WithCommitter(rc))
	if _, err := s.Add(context.Background(), domain.Sample{FilePath: "/a.jpg"}); err == nil {
		t.Fatalf("expected commit error")
	}
	if err := s.Save(context.Background()); err == nil {
		t.Fatalf("expected commit error on save")
	}
	if rc.commits[len(rc.commits)-1].Info.Name != "ds" {
		t.Fatalf("commit should carry dataset info")
	}
}

func TestExportImportStateRoundTrip(t *testing.T) {
	s := seedStore(t)
	snap := s.ExportState()
	restored := NewStore(domain.DatasetInfo{})
	restored.ImportState(snap)
	if restored.Name() != "ds" || restored.Len() != 3 {
		t.Fatalf("unexpected restored store %s/%d", restored.Name(), restored.Len())
	}
	if _, err := restored.Add(context.Background(), domain.Sample{FilePath: "/data/d.jpg"}); err != nil {
		t.Fatalf("add after import: %v", err)
	}
	paths := restored.Paths()
	if paths[len(paths)-1] != "/data/d.jpg" {
		t.Fatalf("sequence not continued after import: %v", paths)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)
	view := s.All()
	ok, err := s.Delete(ctx, "/data/a.jpg")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = s.Delete(ctx, "/data/a.jpg")
	if err != nil || ok {
		t.Fatalf("second delete should report false")
	}
	if len(view.Samples()) != 2 {
		t.Fatalf("view should skip deleted samples")
	}
}
