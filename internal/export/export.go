// Package export writes dataset samples out of the catalog: per-sample
// annotation files, media/label pairs through a MediaExporter, and mirrors of
// the produced annotation files into a blob store.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"dsmanager/internal/annotation"
	"dsmanager/internal/blob"
	"dsmanager/internal/dispatch"
	"dsmanager/internal/fsutil"
	"dsmanager/internal/importer"
	"dsmanager/internal/workspace"
	"dsmanager/pkg/domain"

	"github.com/go-git/go-billy/v5"
)

// Operation names used for dispatch reports and metrics.
const (
	OpAnno   = "export_anno"
	OpSample = "export_sample"
	OpMirror = "mirror_anno"
)

// CollectionInfo describes the dataset handed to MediaExporter.LogCollection.
type CollectionInfo struct {
	Name    string
	RootDir string
	Len     int
}

// MediaExporter writes one media file and its label. ExportSample is called
// concurrently from the worker pool.
type MediaExporter interface {
	// RequiresImageMetadata reports whether ExportSample needs metadata.
	RequiresImageMetadata() bool
	Setup(ctx context.Context) error
	LogCollection(ctx context.Context, info CollectionInfo) error
	ExportSample(ctx context.Context, mediaPath string, label *domain.Detections, md *domain.ImageMetadata) error
	Close(ctx context.Context) error
}

// Options configures Samples.
type Options struct {
	SaveDir string
	// GetAnno also writes the .anno file of every exported sample into SaveDir.
	GetAnno  bool
	Exporter MediaExporter
}

// AnnoFiles writes one .anno file per dataset sample into saveDir. A missing
// dataset yields an empty report.
func AnnoFiles(ctx context.Context, ws workspace.Workspace, saveDir string) (dispatch.Report, error) {
	ds, ok := ws.ResolveDataset(ctx)
	if !ok {
		return dispatch.Report{Operation: OpAnno}, nil
	}
	fsys := ws.Files()
	if err := fsys.MkdirAll(saveDir, 0o755); err != nil {
		return dispatch.Report{Operation: OpAnno}, fmt.Errorf("create %s: %w", saveDir, err)
	}
	samples := ds.Samples()
	report := dispatch.Run(ctx, samples, func(_ context.Context, s domain.Sample) (string, error) {
		return annotation.Write(fsys, saveDir, s)
	}, options(ws, OpAnno, progressLogger(ws, OpAnno)))
	return report, nil
}

// Samples exports every dataset sample through opts.Exporter, which is set
// up before and closed after the batch regardless of task failures.
func Samples(ctx context.Context, ws workspace.Workspace, opts Options) (report dispatch.Report, err error) {
	report.Operation = OpSample
	if opts.Exporter == nil {
		return report, fmt.Errorf("export samples: no exporter")
	}
	ds, ok := ws.ResolveDataset(ctx)
	if !ok {
		return report, nil
	}
	fsys := ws.Files()
	if err := fsys.MkdirAll(opts.SaveDir, 0o755); err != nil {
		return report, fmt.Errorf("create %s: %w", opts.SaveDir, err)
	}
	if err := opts.Exporter.Setup(ctx); err != nil {
		return report, fmt.Errorf("exporter setup: %w", err)
	}
	defer func() {
		if cerr := opts.Exporter.Close(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("exporter close: %w", cerr)
		}
	}()
	info := CollectionInfo{Name: ds.Name(), RootDir: ds.RootDir(), Len: ds.Len()}
	if err := opts.Exporter.LogCollection(ctx, info); err != nil {
		return report, fmt.Errorf("log collection: %w", err)
	}
	samples := ds.Samples()
	report = dispatch.Run(ctx, samples, func(ctx context.Context, s domain.Sample) (string, error) {
		return exportOne(ctx, fsys, s, opts)
	}, options(ws, OpSample, progressLogger(ws, OpSample)))
	return report, nil
}

func exportOne(ctx context.Context, fsys billy.Filesystem, s domain.Sample, opts Options) (string, error) {
	// s is a clone; metadata built here feeds the anno file but is not stored.
	if s.Metadata == nil && opts.Exporter.RequiresImageMetadata() {
		built, err := importer.BuildImageMetadata(fsys, s.FilePath)
		if err != nil {
			return "", err
		}
		s.Metadata = built
	}
	if err := opts.Exporter.ExportSample(ctx, s.FilePath, s.GroundTruth, s.Metadata); err != nil {
		return "", fmt.Errorf("%s: %w", s.FilePath, err)
	}
	if !opts.GetAnno {
		return s.FilePath, nil
	}
	return annotation.Write(fsys, opts.SaveDir, s)
}

// Mirror uploads every .anno file under dir to store as <prefix>/<relative
// path>, replacing existing objects.
func Mirror(ctx context.Context, ws workspace.Workspace, dir string, store blob.Store, prefix string) (dispatch.Report, error) {
	fsys := ws.Files()
	files, err := fsutil.ListFiles(fsys, dir, []string{annotation.Ext})
	if err != nil {
		return dispatch.Report{Operation: OpMirror}, fmt.Errorf("list %s: %w", dir, err)
	}
	report := dispatch.Run(ctx, files, func(ctx context.Context, path string) (string, error) {
		key, err := mirrorKey(dir, path, prefix)
		if err != nil {
			return "", err
		}
		f, err := fsys.Open(path)
		if err != nil {
			return "", err
		}
		defer func() { _ = f.Close() }()
		if _, err := blob.Replace(ctx, store, key, f, blob.PutOptions{ContentType: "application/json"}); err != nil {
			return "", err
		}
		return key, nil
	}, dispatch.Options[string]{
		Workers:   ws.Workers,
		Operation: OpMirror,
		Key:       func(p string) string { return p },
		Observer:  ws.Observer,
		Logger:    ws.Log(),
	})
	return report, nil
}

func mirrorKey(dir, path, prefix string) (string, error) {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return "", err
	}
	key := filepath.ToSlash(rel)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key, nil
}

func options(ws workspace.Workspace, op string, progress func(dispatch.Progress)) dispatch.Options[domain.Sample] {
	return dispatch.Options[domain.Sample]{
		Workers:   ws.Workers,
		Operation: op,
		Key:       func(s domain.Sample) string { return s.FilePath },
		Progress:  progress,
		Observer:  ws.Observer,
		Logger:    ws.Log(),
	}
}

// progressLogger logs roughly every tenth of the batch at debug level.
func progressLogger(ws workspace.Workspace, op string) func(dispatch.Progress) {
	logger := ws.Log()
	return func(p dispatch.Progress) {
		step := p.Total / 10
		if step == 0 {
			step = 1
		}
		if p.Done%step == 0 || p.Done == p.Total {
			logger.Debug("progress", "operation", op, "done", p.Done, "total", p.Total)
		}
	}
}
