package blob

import (
	"context"
	"fmt"

	fsblob "dsmanager/internal/infra/blob/fs"
	memblob "dsmanager/internal/infra/blob/memory"
	s3blob "dsmanager/internal/infra/blob/s3"
)

// Open selects a Store implementation by driver name.
//
//	fs     directory rooted at fsRoot (default ./blobdata)
//	s3     bucket configured through DSM_BLOB_S3_* variables
//	memory process-local map
//
// An empty driver means fs.
func Open(ctx context.Context, driver, fsRoot string) (Store, error) {
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(fsRoot)
	case DriverS3:
		return s3blob.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem returns a directory-backed store.
func NewFilesystem(root string) (Store, error) { return fsblob.New(root) }

// NewMemory returns an in-memory store.
func NewMemory() Store { return memblob.New() }

// NewS3 returns a bucket-backed store.
func NewS3(ctx context.Context, cfg s3blob.Config) (Store, error) { return s3blob.New(ctx, cfg) }

// NewMockS3ForTests returns an S3 store served by an in-process fake bucket.
func NewMockS3ForTests(ctx context.Context) (Store, error) { return s3blob.NewMock(ctx) }
