package port

import (
	"context"
	"time"
)

// BlobInfo describes one stored blob
type BlobInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FileStorage defines blob storage operations. Paths are slash separated keys.
// Save replaces an existing blob; Create fails with ErrConflict instead.
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Create(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	URL(path string) string
}
