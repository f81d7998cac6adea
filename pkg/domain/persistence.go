package domain

import (
	"context"
	"errors"
)

var (
	// ErrSampleNotFound is returned when a file path is not a dataset member.
	ErrSampleNotFound = errors.New("sample not found")
	// ErrDuplicateSample is returned when adding a file path that is already a member.
	ErrDuplicateSample = errors.New("sample already exists")
)

// DatasetInfo identifies a dataset and the media directory it mirrors.
type DatasetInfo struct {
	Name    string `json:"name"`
	RootDir string `json:"root_dir,omitempty"`
}

// SampleView is an ordered subset of a dataset.
type SampleView interface {
	Len() int
	Paths() []string
	// Samples returns clones in view order.
	Samples() []Sample
	// SaveSample writes back an existing member. Members missing from the
	// underlying dataset yield ErrSampleNotFound; views never add samples.
	SaveSample(ctx context.Context, s Sample) error
}

// BatchSaver buffers sample writes and flushes them in batches.
type BatchSaver interface {
	Save(ctx context.Context, s Sample) error
	// Close flushes pending writes.
	Close(ctx context.Context) error
}

// Dataset is the catalog abstraction used by the export, update and selection
// tools. Implementations must be safe for concurrent use.
type Dataset interface {
	SampleView
	Name() string
	// RootDir is the configured media root, falling back to the directory of
	// the first sample.
	RootDir() string
	Has(path string) bool
	Get(path string) (Sample, error)
	Add(ctx context.Context, s Sample) (Sample, error)
	Delete(ctx context.Context, path string) (bool, error)
	SelectByPaths(paths []string) SampleView
	SelectIDs(ids []string) SampleView
	SaveContext(batchSize int) BatchSaver
	// Save persists dataset-level state.
	Save(ctx context.Context) error
}
