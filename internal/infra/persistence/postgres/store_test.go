package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"dsmanager/internal/infra/persistence/postgres/testutil"
	"dsmanager/pkg/domain"
)

func openWithStub(t *testing.T, db *sql.DB, info domain.DatasetInfo) *Store {
	t.Helper()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore(context.Background(), "", info)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestNewStoreEnsuresSchema(t *testing.T) {
	db, conn := testutil.NewStubDB()
	openWithStub(t, db, domain.DatasetInfo{Name: "sgcc"})
	var creates int
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			creates++
		}
	}
	if creates != len(schema) {
		t.Fatalf("expected %d CREATE TABLE statements, got %d", len(schema), creates)
	}
}

func TestCommitPersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	store := openWithStub(t, db, domain.DatasetInfo{Name: "sgcc", RootDir: "/data"})

	for _, p := range []string{"/data/a.jpg", "/data/b.jpg"} {
		if _, err := store.Add(ctx, domain.Sample{FilePath: p}); err != nil {
			t.Fatalf("add %s: %v", p, err)
		}
	}
	a, _ := store.Get("/data/a.jpg")
	if err := a.SetField(domain.FieldXMLMD5, "cafe"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SaveSample(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}

	rows := conn.Rows("samples")
	if len(rows) != 2 {
		t.Fatalf("expected upsert to keep 2 rows, got %d", len(rows))
	}
	var decoded domain.Sample
	for _, row := range rows {
		if row["filepath"] == "/data/a.jpg" {
			if err := json.Unmarshal(row["payload"].([]byte), &decoded); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
		}
	}
	if v, _ := decoded.Field(domain.FieldXMLMD5); v != "cafe" {
		t.Fatalf("payload not updated: %+v", decoded)
	}

	reloaded := openWithStub(t, db, domain.DatasetInfo{Name: "sgcc"})
	if reloaded.Len() != 2 || reloaded.RootDir() != "/data" {
		t.Fatalf("unexpected reload: %d %q", reloaded.Len(), reloaded.RootDir())
	}
	if paths := reloaded.Paths(); paths[0] != "/data/a.jpg" {
		t.Fatalf("order not restored: %v", paths)
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	store := openWithStub(t, db, domain.DatasetInfo{Name: "sgcc"})
	if _, err := store.Add(ctx, domain.Sample{FilePath: "/x.jpg"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if ok, err := store.Delete(ctx, "/x.jpg"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if rows := conn.Rows("samples"); len(rows) != 0 {
		t.Fatalf("expected no sample rows, got %v", rows)
	}
}

func TestCommitFailuresSurface(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	store := openWithStub(t, db, domain.DatasetInfo{Name: "sgcc"})

	conn.FailTables = map[string]bool{"samples": true}
	if _, err := store.Add(ctx, domain.Sample{FilePath: "/a.jpg"}); err == nil {
		t.Fatalf("expected exec failure")
	}
	conn.FailTables = nil
	conn.FailCommit = true
	if err := store.Save(ctx); err == nil {
		t.Fatalf("expected commit failure")
	}
	conn.FailCommit = false
	conn.FailBegin = true
	if err := store.Save(ctx); err == nil {
		t.Fatalf("expected begin failure")
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "", domain.DatasetInfo{Name: "x"}); err == nil {
		t.Fatalf("expected ping error")
	}
}
