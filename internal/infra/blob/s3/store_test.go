package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"dsmanager/internal/blob/core"
)

func newMock(t *testing.T) *Store {
	t.Helper()
	s, err := NewMock(context.Background())
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newMock(t)
	if s.Driver() != core.DriverS3 {
		t.Fatalf("expected s3 driver")
	}
	info, err := s.Put(ctx, "ds/a.anno", bytes.NewReader([]byte(`{"ID": "x"}`)), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"dataset": "ds"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 11 || info.ContentType != "application/json" || info.Metadata["dataset"] != "ds" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "ds/a.anno", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := s.Get(ctx, "ds/a.anno")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"ID": "x"}` {
		t.Fatalf("body %q", body)
	}
	if _, err := s.Put(ctx, "other/b.anno", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := s.List(ctx, "ds/")
	if err != nil || len(list) != 1 || list[0].Key != "ds/a.anno" {
		t.Fatalf("list: %v %+v", err, list)
	}
	if ok, err := s.Delete(ctx, "ds/a.anno"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, "ds/a.anno"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
	if _, err := s.Head(ctx, "ds/a.anno"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "ds/a.anno"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on get, got %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DSM_BLOB_S3_BUCKET", "")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	t.Setenv("DSM_BLOB_S3_BUCKET", "exports")
	t.Setenv("DSM_BLOB_S3_PATH_STYLE", "TRUE")
	t.Setenv("DSM_BLOB_S3_ENDPOINT", "http://minio:9000")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Bucket != "exports" || !cfg.PathStyle || cfg.Endpoint != "http://minio:9000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket required error")
	}
}

func TestDecodeSingleChunk(t *testing.T) {
	got, ok := decodeSingleChunk([]byte("3\r\nabc\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"))
	if !ok || string(got) != "abc" {
		t.Fatalf("decode = %q %v", got, ok)
	}
	for _, bad := range []string{"plain body", "zz\r\nabc\r\n0\r\n", "5\r\nabc\r\n0\r\n"} {
		if _, ok := decodeSingleChunk([]byte(bad)); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
