package memory

import (
	"context"
	"sync"

	"dsmanager/pkg/domain"
)

// View is an ordered subset of a Store captured at selection time.
type View struct {
	store *Store
	paths []string
}

// Len returns the number of selected paths.
func (v *View) Len() int { return len(v.paths) }

// Paths returns the selected file paths.
func (v *View) Paths() []string { return append([]string(nil), v.paths...) }

// Samples returns clones of the selected samples still present in the store.
func (v *View) Samples() []domain.Sample {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	out := make([]domain.Sample, 0, len(v.paths))
	for _, p := range v.paths {
		if e, ok := v.store.entries[p]; ok {
			out = append(out, e.Sample.Clone())
		}
	}
	return out
}

// SaveSample writes an existing member back to the store.
func (v *View) SaveSample(ctx context.Context, s domain.Sample) error {
	return v.store.SaveSample(ctx, s)
}

// SaveContext buffers sample writes and flushes them to the store in batches.
type SaveContext struct {
	store     *Store
	batchSize int

	mu      sync.Mutex
	pending []domain.Sample
}

// Save queues a sample, flushing once the batch is full.
func (c *SaveContext) Save(ctx context.Context, s domain.Sample) error {
	c.mu.Lock()
	c.pending = append(c.pending, s.Clone())
	if len(c.pending) < c.batchSize {
		c.mu.Unlock()
		return nil
	}
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()
	return c.store.saveBatch(ctx, batch)
}

// Close flushes pending samples.
func (c *SaveContext) Close(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()
	return c.store.saveBatch(ctx, batch)
}
