// Package workspace carries the current dataset and UI session explicitly
// through the export, update and selection operations.
package workspace

import (
	"context"
	"log/slog"
	"sync"

	"dsmanager/internal/fsutil"
	"dsmanager/internal/metrics"
	"dsmanager/pkg/domain"

	"github.com/go-git/go-billy/v5"
)

// Session is the UI session viewing a dataset.
type Session interface {
	// Selected returns the IDs of the samples currently selected.
	Selected() []string
	// Refresh asks the session to reload its view.
	Refresh(ctx context.Context) error
}

// Resolver supplies a dataset or session when the workspace has none.
type Resolver interface {
	Dataset(ctx context.Context) (domain.Dataset, bool)
	Session(ctx context.Context) (Session, bool)
}

// Workspace bundles the collaborators of one operation. Zero values are
// valid: a missing Dataset turns most operations into logged no-ops.
type Workspace struct {
	Dataset  domain.Dataset
	Session  Session
	Resolver Resolver
	FS       billy.Filesystem
	Logger   *slog.Logger
	// Workers bounds batch pools; zero means the dispatcher default.
	Workers  int
	Observer metrics.Observer
}

// ResolveDataset returns the explicit dataset, falling back to the resolver.
// The second result is false when neither yields one; a warning is logged.
func (w Workspace) ResolveDataset(ctx context.Context) (domain.Dataset, bool) {
	if w.Dataset != nil {
		return w.Dataset, true
	}
	if w.Resolver != nil {
		if ds, ok := w.Resolver.Dataset(ctx); ok && ds != nil {
			return ds, true
		}
	}
	w.Log().Warn("no dataset in workspace, nothing to do")
	return nil, false
}

// ResolveSession returns the explicit session or the resolver's. It does
// not log; a missing session is normal for headless runs.
func (w Workspace) ResolveSession(ctx context.Context) (Session, bool) {
	if w.Session != nil {
		return w.Session, true
	}
	if w.Resolver != nil {
		if s, ok := w.Resolver.Session(ctx); ok && s != nil {
			return s, true
		}
	}
	return nil, false
}

// RefreshSession refreshes the session when one is available.
func (w Workspace) RefreshSession(ctx context.Context) error {
	s, ok := w.ResolveSession(ctx)
	if !ok {
		return nil
	}
	return s.Refresh(ctx)
}

// Files returns the configured filesystem or the host filesystem.
func (w Workspace) Files() billy.Filesystem {
	if w.FS != nil {
		return w.FS
	}
	return fsutil.OS()
}

// Log returns the configured logger or slog.Default.
func (w Workspace) Log() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// StaticSession is a session with a fixed selection. It counts refreshes.
type StaticSession struct {
	mu        sync.Mutex
	selected  []string
	refreshes int
}

// NewStaticSession returns a session selecting ids.
func NewStaticSession(ids ...string) *StaticSession {
	return &StaticSession{selected: append([]string(nil), ids...)}
}

func (s *StaticSession) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.selected...)
}

// Select replaces the selection.
func (s *StaticSession) Select(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = append([]string(nil), ids...)
}

func (s *StaticSession) Refresh(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return nil
}

// Refreshes reports how many times Refresh was called.
func (s *StaticSession) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// Static is a Resolver over fixed values.
type Static struct {
	DS      domain.Dataset
	Current Session
}

func (r Static) Dataset(context.Context) (domain.Dataset, bool) { return r.DS, r.DS != nil }

// Session falls back to nothing when Current is nil.
func (r Static) Session(context.Context) (Session, bool) { return r.Current, r.Current != nil }
