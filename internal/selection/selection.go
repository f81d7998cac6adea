// Package selection resolves the samples a user picked, either in the UI
// session or through a path-list file, and bulk-assigns fields to them.
package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dsmanager/internal/fsutil"
	"dsmanager/internal/workspace"
	"dsmanager/pkg/domain"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// SelectedView returns the samples listed in listPath, or the session's
// selection when listPath is empty. It returns nil when the workspace lacks a
// dataset or a session, or when listPath names a missing file.
func SelectedView(ctx context.Context, ws workspace.Workspace, listPath string) (domain.SampleView, error) {
	ds, ok := ws.ResolveDataset(ctx)
	if !ok {
		return nil, nil
	}
	session, ok := ws.ResolveSession(ctx)
	if !ok {
		ws.Log().Warn("no session in workspace, nothing selected")
		return nil, nil
	}
	if listPath == "" {
		return ds.SelectIDs(session.Selected()), nil
	}
	fsys := ws.Files()
	exists, err := fsutil.Exists(fsys, listPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		ws.Log().Warn("selection list not found", "path", listPath)
		return nil, nil
	}
	paths, err := fsutil.ReadPathList(fsys, listPath, nil)
	if err != nil {
		return nil, err
	}
	return ds.SelectByPaths(paths), nil
}

// LoadFields reads a JSON object of field values.
func LoadFields(fsys billy.Filesystem, path string) (map[string]any, error) {
	data, err := util.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decode %s: expected a JSON object", path)
	}
	return fields, nil
}

// AssignFields sets every entry of fields on the dataset samples listed in
// listPath. Listed paths that are not images or not dataset members are
// skipped. It returns the number of samples written.
func AssignFields(ctx context.Context, ws workspace.Workspace, listPath string, fields map[string]any) (int, error) {
	ds, ok := ws.ResolveDataset(ctx)
	if !ok {
		return 0, nil
	}
	// Field checks do not depend on the sample, so a scratch sample rejects
	// bad values before anything is queued for saving.
	var scratch domain.Sample
	if err := scratch.UpdateFields(fields); err != nil {
		return 0, fmt.Errorf("assign fields: %w", err)
	}
	paths, err := fsutil.ReadPathList(ws.Files(), listPath, fsutil.ImageExtensions)
	if err != nil {
		return 0, err
	}
	saver := ds.SaveContext(0)
	n, err := assign(ctx, saver, ds.SelectByPaths(paths), fields)
	if cerr := saver.Close(ctx); cerr != nil {
		err = errors.Join(err, fmt.Errorf("flush samples: %w", cerr))
	}
	if err != nil {
		return n, err
	}
	ws.Log().Info("fields assigned", "samples", n, "listed", len(paths), "fields", len(fields))
	if err := ws.RefreshSession(ctx); err != nil {
		return n, fmt.Errorf("refresh session: %w", err)
	}
	return n, nil
}

func assign(ctx context.Context, saver domain.BatchSaver, view domain.SampleView, fields map[string]any) (int, error) {
	n := 0
	for _, s := range view.Samples() {
		if err := s.UpdateFields(fields); err != nil {
			return n, fmt.Errorf("%s: %w", s.FilePath, err)
		}
		if err := saver.Save(ctx, s); err != nil {
			return n, fmt.Errorf("save %s: %w", s.FilePath, err)
		}
		n++
	}
	return n, nil
}
