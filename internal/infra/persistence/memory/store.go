// Package memory provides the in-memory sample catalog used directly by tests
// and ephemeral runs, and as the working set of the sqlite and postgres stores.
package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"dsmanager/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain catalog interface.
var _ domain.Dataset = (*Store)(nil)

// DefaultBatchSize is the flush threshold used by SaveContext when the caller passes <= 0.
const DefaultBatchSize = 64

// Entry is a stored sample with its insertion sequence.
type Entry struct {
	Seq    int64         `json:"seq"`
	Sample domain.Sample `json:"sample"`
}

// Commit describes a batch of mutations already applied to memory.
type Commit struct {
	Info    domain.DatasetInfo
	Upserts []Entry
	Deletes []string
}

// Committer persists mutations applied to the in-memory state.
type Committer interface {
	Commit(ctx context.Context, c Commit) error
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Info    domain.DatasetInfo `json:"info"`
	Entries []Entry            `json:"entries"`
}

// Store keeps samples keyed by file path in insertion order.
type Store struct {
	mu        sync.RWMutex
	info      domain.DatasetInfo
	seq       int64
	entries   map[string]Entry
	committer Committer
}

// Option configures a Store.
type Option func(*Store)

// WithCommitter installs a persistence hook invoked after every mutation.
func WithCommitter(c Committer) Option {
	return func(s *Store) { s.committer = c }
}

// NewStore constructs an empty catalog for the dataset described by info.
func NewStore(info domain.DatasetInfo, opts ...Option) *Store {
	s := &Store{info: info, entries: make(map[string]Entry)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the dataset name.
func (s *Store) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.Name
}

// Info returns the dataset identity.
func (s *Store) Info() domain.DatasetInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// RootDir returns the configured media root or the directory of the first sample.
func (s *Store) RootDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info.RootDir != "" {
		return s.info.RootDir
	}
	ordered := s.orderedLocked()
	if len(ordered) == 0 {
		return ""
	}
	return filepath.Dir(ordered[0].Sample.FilePath)
}

// Len returns the number of samples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Has reports dataset membership of a file path.
func (s *Store) Has(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[path]
	return ok
}

// Get returns a clone of the sample stored under path.
func (s *Store) Get(path string) (domain.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[path]
	if !ok {
		return domain.Sample{}, fmt.Errorf("%s: %w", path, domain.ErrSampleNotFound)
	}
	return e.Sample.Clone(), nil
}

// First returns the earliest inserted sample.
func (s *Store) First() (domain.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ordered := s.orderedLocked()
	if len(ordered) == 0 {
		return domain.Sample{}, false
	}
	return ordered[0].Sample.Clone(), true
}

// Paths lists file paths in insertion order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ordered := s.orderedLocked()
	out := make([]string, len(ordered))
	for i, e := range ordered {
		out[i] = e.Sample.FilePath
	}
	return out
}

// Samples returns clones of every sample in insertion order.
func (s *Store) Samples() []domain.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ordered := s.orderedLocked()
	out := make([]domain.Sample, len(ordered))
	for i, e := range ordered {
		out[i] = e.Sample.Clone()
	}
	return out
}

// Add inserts a new sample, assigning an ID when empty.
func (s *Store) Add(ctx context.Context, sample domain.Sample) (domain.Sample, error) {
	if sample.FilePath == "" {
		return domain.Sample{}, fmt.Errorf("add sample: empty filepath")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[sample.FilePath]; exists {
		return domain.Sample{}, fmt.Errorf("%s: %w", sample.FilePath, domain.ErrDuplicateSample)
	}
	stored := sample.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	s.seq++
	entry := Entry{Seq: s.seq, Sample: stored}
	s.entries[stored.FilePath] = entry
	if err := s.commitLocked(ctx, Commit{Upserts: []Entry{cloneEntry(entry)}}); err != nil {
		return domain.Sample{}, err
	}
	return stored.Clone(), nil
}

// Delete removes a sample, returning false when it was not a member.
func (s *Store) Delete(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[path]; !ok {
		return false, nil
	}
	delete(s.entries, path)
	if err := s.commitLocked(ctx, Commit{Deletes: []string{path}}); err != nil {
		return true, err
	}
	return true, nil
}

// SaveSample overwrites an existing member.
func (s *Store) SaveSample(ctx context.Context, sample domain.Sample) error {
	return s.saveBatch(ctx, []domain.Sample{sample})
}

// Save persists dataset-level state.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, Commit{})
}

// All returns a view over every sample.
func (s *Store) All() domain.SampleView {
	return &View{store: s, paths: s.Paths()}
}

// SelectByPaths returns the members whose file path is listed, in dataset
// order. Unknown paths are skipped.
func (s *Store) SelectByPaths(paths []string) domain.SampleView {
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[p] = struct{}{}
	}
	return s.selectWhere(func(sample domain.Sample) bool {
		_, ok := want[sample.FilePath]
		return ok
	})
}

// SelectIDs returns the members whose ID is listed, in dataset order.
func (s *Store) SelectIDs(ids []string) domain.SampleView {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return s.selectWhere(func(sample domain.Sample) bool {
		_, ok := want[sample.ID]
		return ok
	})
}

func (s *Store) selectWhere(keep func(domain.Sample) bool) *View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var paths []string
	for _, e := range s.orderedLocked() {
		if keep(e.Sample) {
			paths = append(paths, e.Sample.FilePath)
		}
	}
	return &View{store: s, paths: paths}
}

// SaveContext returns a batch saver flushing every batchSize samples.
func (s *Store) SaveContext(batchSize int) domain.BatchSaver {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SaveContext{store: s, batchSize: batchSize}
}

// ExportState returns a deep copy of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ordered := s.orderedLocked()
	snap := Snapshot{Info: s.info, Entries: make([]Entry, len(ordered))}
	for i, e := range ordered {
		snap.Entries[i] = cloneEntry(e)
	}
	return snap
}

// ImportState replaces the current state without invoking the committer.
// An empty snapshot name or root keeps the configured one.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Info.Name != "" {
		s.info.Name = snap.Info.Name
	}
	if snap.Info.RootDir != "" && s.info.RootDir == "" {
		s.info.RootDir = snap.Info.RootDir
	}
	s.entries = make(map[string]Entry, len(snap.Entries))
	s.seq = 0
	for _, e := range snap.Entries {
		s.entries[e.Sample.FilePath] = cloneEntry(e)
		if e.Seq > s.seq {
			s.seq = e.Seq
		}
	}
}

func (s *Store) saveBatch(ctx context.Context, samples []domain.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []error
	upserts := make([]Entry, 0, len(samples))
	for _, sample := range samples {
		existing, ok := s.entries[sample.FilePath]
		if !ok {
			missing = append(missing, fmt.Errorf("%s: %w", sample.FilePath, domain.ErrSampleNotFound))
			continue
		}
		stored := sample.Clone()
		if stored.ID == "" {
			stored.ID = existing.Sample.ID
		}
		entry := Entry{Seq: existing.Seq, Sample: stored}
		s.entries[stored.FilePath] = entry
		upserts = append(upserts, cloneEntry(entry))
	}
	if len(upserts) > 0 {
		if err := s.commitLocked(ctx, Commit{Upserts: upserts}); err != nil {
			return err
		}
	}
	return errors.Join(missing...)
}

func (s *Store) commitLocked(ctx context.Context, c Commit) error {
	if s.committer == nil {
		return nil
	}
	c.Info = s.info
	if err := s.committer.Commit(ctx, c); err != nil {
		return fmt.Errorf("commit %s: %w", s.info.Name, err)
	}
	return nil
}

func (s *Store) orderedLocked() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func cloneEntry(e Entry) Entry {
	return Entry{Seq: e.Seq, Sample: e.Sample.Clone()}
}

// Close is a no-op; it lets the memory store stand in for persistent catalogs.
func (s *Store) Close() error { return nil }
