// Package voc is a MediaExporter producing a flat directory of media files,
// each with a Pascal VOC XML label next to it.
package voc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"dsmanager/internal/export"
	"dsmanager/internal/fsutil"
	"dsmanager/internal/pascalvoc"
	"dsmanager/pkg/domain"

	"github.com/go-git/go-billy/v5"
)

var (
	// ErrDuplicateName is returned when two samples in one export share a
	// file name.
	ErrDuplicateName = errors.New("voc: duplicate file name in export")
	errNoMetadata    = errors.New("voc: image metadata required")
)

// Options configures an Exporter.
type Options struct {
	// Overwrite replaces existing files; otherwise existing outputs are kept
	// and counted as skipped.
	Overwrite bool
	// LabelsOnly writes the XML labels without copying media.
	LabelsOnly bool
	Logger     *slog.Logger
}

// Stats counts the outcome of an export.
type Stats struct {
	Exported int
	Skipped  int
	Labels   int
}

// Exporter writes <dir>/<basename> and <dir>/<stem>.xml per sample.
type Exporter struct {
	fs   billy.Filesystem
	dir  string
	opts Options

	mu         sync.Mutex
	names      map[string]string
	collection export.CollectionInfo
	stats      Stats
}

var _ export.MediaExporter = (*Exporter)(nil)

// New returns an exporter writing into dir on fsys.
func New(fsys billy.Filesystem, dir string, opts Options) *Exporter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Exporter{fs: fsys, dir: dir, opts: opts, names: make(map[string]string)}
}

func (e *Exporter) RequiresImageMetadata() bool { return true }

func (e *Exporter) Setup(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.names = make(map[string]string)
	e.stats = Stats{}
	return e.fs.MkdirAll(e.dir, 0o755)
}

func (e *Exporter) LogCollection(_ context.Context, info export.CollectionInfo) error {
	e.mu.Lock()
	e.collection = info
	e.mu.Unlock()
	e.opts.Logger.Info("exporting collection", "dataset", info.Name, "root", info.RootDir, "samples", info.Len, "dir", e.dir)
	return nil
}

func (e *Exporter) ExportSample(_ context.Context, mediaPath string, label *domain.Detections, md *domain.ImageMetadata) error {
	if md == nil {
		return fmt.Errorf("%s: %w", mediaPath, errNoMetadata)
	}
	name := filepath.Base(mediaPath)
	if err := e.claim(name, mediaPath); err != nil {
		return err
	}
	mediaOut := filepath.Join(e.dir, name)
	labelOut := filepath.Join(e.dir, fsutil.ReplaceExt(name, ".xml"))

	if !e.opts.Overwrite {
		exists, err := fsutil.Exists(e.fs, labelOut)
		if err != nil {
			return err
		}
		if exists {
			e.count(func(s *Stats) { s.Skipped++ })
			return nil
		}
	}
	if !e.opts.LabelsOnly {
		if err := fsutil.CopyFile(e.fs, mediaPath, mediaOut); err != nil {
			return fmt.Errorf("copy media %s: %w", mediaPath, err)
		}
	}
	anno := pascalvoc.New(name, *md, label)
	anno.Folder = filepath.Base(e.dir)
	anno.Path = mediaOut
	e.mu.Lock()
	if e.collection.Name != "" {
		anno.Source = &pascalvoc.Source{Database: e.collection.Name}
	}
	e.mu.Unlock()
	var buf bytes.Buffer
	if err := anno.Encode(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", labelOut, err)
	}
	if err := fsutil.WriteFile(e.fs, labelOut, buf.Bytes()); err != nil {
		return err
	}
	e.count(func(s *Stats) {
		s.Exported++
		if label != nil {
			s.Labels += len(label.Detections)
		}
	})
	return nil
}

// Close logs the export summary.
func (e *Exporter) Close(context.Context) error {
	st := e.Stats()
	e.opts.Logger.Info("export finished", "dir", e.dir, "exported", st.Exported, "skipped", st.Skipped, "objects", st.Labels)
	return nil
}

// Stats returns the counters of the current export.
func (e *Exporter) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Exporter) claim(name, mediaPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.names[name]; ok && prev != mediaPath {
		return fmt.Errorf("%s and %s: %w", prev, mediaPath, ErrDuplicateName)
	}
	e.names[name] = mediaPath
	return nil
}

func (e *Exporter) count(fn func(*Stats)) {
	e.mu.Lock()
	fn(&e.stats)
	e.mu.Unlock()
}
