package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"dsmanager/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver")
	}
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false, got %v %v", ok, err)
	}
	info, err := store.Put(ctx, "anno/a.anno", bytes.NewReader([]byte("{}")), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"dataset": "d"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 2 || info.ETag != "99914b932bd37a50b983c5e7c90ae93b" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "anno/a.anno", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := store.Get(ctx, "anno/a.anno")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "{}" {
		t.Fatalf("get body %q", b)
	}
	if _, err := store.Put(ctx, "other/b", bytes.NewReader(nil), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := store.List(ctx, "anno/")
	if err != nil || len(list) != 1 || list[0].Metadata["dataset"] != "d" {
		t.Fatalf("list prefix: %v %+v", err, list)
	}
	if ok, err := store.Delete(ctx, "anno/a.anno"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("fail") }

func TestStorePutReadError(t *testing.T) {
	if _, err := New().Put(context.Background(), "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
}
