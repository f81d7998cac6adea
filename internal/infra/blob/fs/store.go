// Package fs implements the blob store on a directory through go-billy.
// Each key maps to a file under the root with a JSON `.meta` sidecar holding
// content type, user metadata and the md5 ETag.
package fs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"dsmanager/internal/blob/core"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

const metaSuffix = ".meta"

// Store implements core.Store on a billy filesystem.
type Store struct {
	fs billy.Filesystem
	// mu serialises existence checks against writes.
	mu sync.Mutex
}

// New returns a store rooted at the host directory root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./blobdata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{fs: osfs.New(root)}, nil
}

// NewOn returns a store using fsys as its root.
func NewOn(fsys billy.Filesystem) *Store {
	return &Store{fs: fsys}
}

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// sanitizeKey rejects empty, absolute and escaping keys.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	raw := strings.ReplaceAll(key, "\\", "/")
	if strings.HasPrefix(raw, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return "", fmt.Errorf("invalid key %q", key)
		}
	}
	clean := path.Clean(raw)
	if strings.HasSuffix(clean, metaSuffix) {
		return "", fmt.Errorf("invalid key %q: reserved suffix", key)
	}
	return clean, nil
}

type metaFile struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (m metaFile) info(key string) core.Info {
	return core.Info{Key: key, Size: m.Size, ContentType: m.ContentType, ETag: m.ETag, Metadata: core.CloneMetadata(m.Metadata), LastModified: m.UpdatedAt}
}

func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.fs.Stat(k); err == nil {
		return core.Info{}, fmt.Errorf("%s: %w", key, core.ErrExists)
	}
	if err := s.fs.MkdirAll(path.Dir(k), 0o755); err != nil {
		return core.Info{}, err
	}
	tmp, err := util.TempFile(s.fs, path.Dir(k), ".tmp-")
	if err != nil {
		return core.Info{}, err
	}
	tmpName := tmp.Name()
	h := md5.New()
	size, copyErr := io.Copy(io.MultiWriter(tmp, h), r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = s.fs.Remove(tmpName)
		return core.Info{}, errors.Join(copyErr, closeErr)
	}
	if err := s.fs.Rename(tmpName, k); err != nil {
		_ = s.fs.Remove(tmpName)
		return core.Info{}, err
	}
	mf := metaFile{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(h.Sum(nil)),
		Size:        size,
		UpdatedAt:   time.Now().UTC(),
	}
	b, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return core.Info{}, err
	}
	if err := util.WriteFile(s.fs, k+metaSuffix, b, 0o644); err != nil {
		return core.Info{}, err
	}
	return mf.info(key), nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	k, _ := sanitizeKey(key)
	f, err := s.fs.Open(k)
	if err != nil {
		return core.Info{}, nil, notFound(key, err)
	}
	return info, f, nil
}

func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return core.Info{}, err
	}
	mf, err := s.readMeta(k + metaSuffix)
	if err != nil {
		return core.Info{}, notFound(key, err)
	}
	return mf.info(key), nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.Remove(k); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	_ = s.fs.Remove(k + metaSuffix)
	return true, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := util.Walk(s.fs, "/", func(p string, fi os.FileInfo, err error) error {
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if fi.IsDir() || !strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		key := strings.TrimPrefix(strings.TrimSuffix(p, metaSuffix), "/")
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		mf, err := s.readMeta(p)
		if err != nil {
			return err
		}
		infos = append(infos, mf.info(key))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) readMeta(p string) (metaFile, error) {
	b, err := util.ReadFile(s.fs, p)
	if err != nil {
		return metaFile{}, err
	}
	var mf metaFile
	if err := json.Unmarshal(b, &mf); err != nil {
		return metaFile{}, fmt.Errorf("decode %s: %w", p, err)
	}
	return mf, nil
}

func notFound(key string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	return err
}
