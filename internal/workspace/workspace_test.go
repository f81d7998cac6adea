package workspace

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"dsmanager/internal/infra/persistence/memory"
	"dsmanager/pkg/domain"
)

func TestResolveDatasetPrefersExplicit(t *testing.T) {
	explicit := memory.NewStore(domain.DatasetInfo{Name: "explicit"})
	fallback := memory.NewStore(domain.DatasetInfo{Name: "fallback"})
	ws := Workspace{Dataset: explicit, Resolver: Static{DS: fallback}}
	ds, ok := ws.ResolveDataset(context.Background())
	if !ok || ds.Name() != "explicit" {
		t.Fatalf("expected explicit dataset, got %v %v", ds, ok)
	}
	ws.Dataset = nil
	ds, ok = ws.ResolveDataset(context.Background())
	if !ok || ds.Name() != "fallback" {
		t.Fatalf("expected resolver dataset, got %v %v", ds, ok)
	}
}

func TestResolveDatasetMissingWarns(t *testing.T) {
	var buf bytes.Buffer
	ws := Workspace{Logger: slog.New(slog.NewTextHandler(&buf, nil)), Resolver: Static{}}
	if _, ok := ws.ResolveDataset(context.Background()); ok {
		t.Fatalf("expected no dataset")
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("expected warning, got %q", buf.String())
	}
}

func TestRefreshSession(t *testing.T) {
	ctx := context.Background()
	if err := (Workspace{}).RefreshSession(ctx); err != nil {
		t.Fatalf("refresh without session: %v", err)
	}
	s := NewStaticSession("a")
	ws := Workspace{Resolver: Static{Current: s}}
	if err := ws.RefreshSession(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if s.Refreshes() != 1 {
		t.Fatalf("refreshes = %d", s.Refreshes())
	}
	s.Select("b", "c")
	if got := s.Selected(); len(got) != 2 || got[0] != "b" {
		t.Fatalf("selected = %v", got)
	}
}
