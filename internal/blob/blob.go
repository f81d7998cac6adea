// Package blob is the facade the rest of dsmanager uses for object storage.
// Drivers live under internal/infra/blob; callers depend only on Store.
package blob

import (
	"context"
	"fmt"
	"io"

	"dsmanager/internal/blob/core"
)

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)

// Replace writes r under key, deleting any existing object first.
func Replace(ctx context.Context, store Store, key string, r io.Reader, opts PutOptions) (Info, error) {
	if _, err := store.Delete(ctx, key); err != nil {
		return Info{}, fmt.Errorf("replace %s: %w", key, err)
	}
	return store.Put(ctx, key, r, opts)
}
