// Package updater resynchronises catalog samples with the media directory and
// the VOC sidecars stored next to each media file.
package updater

import (
	"context"
	"errors"
	"fmt"

	"dsmanager/internal/fsutil"
	"dsmanager/internal/importer"
	"dsmanager/internal/workspace"
	"dsmanager/pkg/domain"

	"github.com/go-git/go-billy/v5"
)

// Stats summarises one Update call.
type Stats struct {
	Visited   int
	Added     int
	Updated   int
	Cleared   int
	Unchanged int
}

// Update reconciles samples with their sidecar files.
//
// With a nil view the workspace dataset is resynchronised against every media
// file under its root directory: unknown files are added, known files are
// reparsed when their sidecar checksum changed. With a view only its existing
// members are refreshed and nothing is added.
//
// A member whose sidecar disappeared loses its label and checksum. The
// session, when present, is refreshed afterwards.
func Update(ctx context.Context, ws workspace.Workspace, view domain.SampleView) (Stats, error) {
	var (
		st  Stats
		err error
	)
	if view == nil {
		ds, ok := ws.ResolveDataset(ctx)
		if !ok {
			return st, nil
		}
		st, err = syncDirectory(ctx, ws, ds)
	} else {
		st, err = syncView(ctx, ws, view)
	}
	if err != nil {
		return st, err
	}
	ws.Log().Info("dataset updated", "visited", st.Visited, "added", st.Added, "updated", st.Updated, "cleared", st.Cleared, "unchanged", st.Unchanged)
	if err := ws.RefreshSession(ctx); err != nil {
		return st, fmt.Errorf("refresh session: %w", err)
	}
	return st, nil
}

func syncDirectory(ctx context.Context, ws workspace.Workspace, ds domain.Dataset) (Stats, error) {
	var st Stats
	root := ds.RootDir()
	if root == "" {
		return st, fmt.Errorf("dataset %s has no root directory", ds.Name())
	}
	fsys := ws.Files()
	paths, err := fsutil.ListFiles(fsys, root, fsutil.ImageExtensions)
	if err != nil {
		return st, err
	}
	saver := ds.SaveContext(0)
	err = syncPaths(ctx, fsys, ds, saver, paths, &st)
	if cerr := saver.Close(ctx); cerr != nil {
		err = errors.Join(err, fmt.Errorf("flush samples: %w", cerr))
	}
	if err != nil {
		return st, err
	}
	if err := ds.Save(ctx); err != nil {
		return st, fmt.Errorf("save dataset: %w", err)
	}
	return st, nil
}

func syncPaths(ctx context.Context, fsys billy.Filesystem, ds domain.Dataset, saver domain.BatchSaver, paths []string, st *Stats) error {
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		st.Visited++
		if !ds.Has(path) {
			s, err := importer.BuildSample(fsys, path)
			if err != nil {
				return fmt.Errorf("build sample %s: %w", path, err)
			}
			if _, err := ds.Add(ctx, s); err != nil {
				return err
			}
			st.Added++
			continue
		}
		s, err := ds.Get(path)
		if err != nil {
			return err
		}
		if err := refresh(fsys, &s, st); err != nil {
			return err
		}
		if err := saver.Save(ctx, s); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
	}
	return nil
}

func syncView(ctx context.Context, ws workspace.Workspace, view domain.SampleView) (Stats, error) {
	var st Stats
	fsys := ws.Files()
	for _, s := range view.Samples() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		st.Visited++
		if err := refresh(fsys, &s, &st); err != nil {
			return st, err
		}
		if err := view.SaveSample(ctx, s); err != nil {
			return st, fmt.Errorf("save %s: %w", s.FilePath, err)
		}
	}
	return st, nil
}

// refresh applies the checksum rule to s in place.
func refresh(fsys billy.Filesystem, s *domain.Sample, st *Stats) error {
	sidecar := importer.SidecarPath(s.FilePath)
	exists, err := fsutil.Exists(fsys, sidecar)
	if err != nil {
		return err
	}
	if !exists {
		s.ClearField(domain.FieldGroundTruth)
		s.ClearField(domain.FieldXMLMD5)
		st.Cleared++
		return nil
	}
	sum, err := fsutil.MD5File(fsys, sidecar)
	if err != nil {
		return err
	}
	if cached, ok := s.Field(domain.FieldXMLMD5); ok && cached == sum {
		st.Unchanged++
		return nil
	}
	info, err := importer.ParseSampleInfo(fsys, s.FilePath)
	if err != nil {
		return fmt.Errorf("parse %s: %w", s.FilePath, err)
	}
	if err := importer.Apply(s, info, sum); err != nil {
		return err
	}
	st.Updated++
	return nil
}
