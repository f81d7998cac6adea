package config

import (
	"path/filepath"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"DSM_STORAGE_DRIVER", "DSM_SQLITE_PATH", "DSM_WORKERS", "DSM_DATASET_NAME", "DSM_DATASET_ROOT", "DSM_BLOB_DRIVER"} {
		t.Setenv(k, "")
	}
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.StorageDriver != "sqlite" || cfg.SQLitePath != "dsmanager.db" || cfg.Workers != MaxWorkers || cfg.DatasetName != "default" || cfg.BlobDriver != "fs" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DSM_STORAGE_DRIVER", "memory")
	t.Setenv("DSM_WORKERS", "8")
	t.Setenv("DSM_DATASET_NAME", "sgcc")
	t.Setenv("DSM_DATASET_ROOT", "/data/imgs")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.StorageDriver != "memory" || cfg.Workers != 8 || cfg.DatasetName != "sgcc" || cfg.DatasetRoot != "/data/imgs" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestFromEnvDatasetRootIsAbsolute(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DSM_DATASET_ROOT", "media")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	want, err := filepath.Abs("media")
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	if cfg.DatasetRoot != want || !filepath.IsAbs(cfg.DatasetRoot) {
		t.Fatalf("dataset root = %q, want %q", cfg.DatasetRoot, want)
	}
}

func TestWorkersValidation(t *testing.T) {
	cases := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "1", want: 1},
		{raw: "48", want: 48},
		{raw: "200", want: MaxWorkers},
		{raw: "0", wantErr: true},
		{raw: "many", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			t.Setenv("DSM_STORAGE_DRIVER", "")
			t.Setenv("DSM_WORKERS", tc.raw)
			cfg, err := FromEnv()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromEnv: %v", err)
			}
			if cfg.Workers != tc.want {
				t.Fatalf("workers = %d, want %d", cfg.Workers, tc.want)
			}
		})
	}
}

func TestUnknownStorageDriver(t *testing.T) {
	t.Setenv("DSM_STORAGE_DRIVER", "mongo")
	t.Setenv("DSM_WORKERS", "")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
