package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
)

// LocalFileStorage implements port.FileStorage on the local filesystem.
// Keys are slash separated paths relative to baseDir.
type LocalFileStorage struct {
	baseDir string
	baseURL string
	logger  *zap.Logger
}

// NewLocalFileStorage creates a new LocalFileStorage. baseURL is the public
// prefix blobs are served under.
func NewLocalFileStorage(baseDir, baseURL string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Save writes content to the key, replacing any existing blob. The blob
// appears under its final name only once fully written.
func (s *LocalFileStorage) Save(ctx context.Context, path string, content []byte) error {
	return s.write(path, content, false)
}

// Create writes content to a key that must not exist yet. An existing blob is
// left untouched and port.ErrConflict is returned.
func (s *LocalFileStorage) Create(ctx context.Context, path string, content []byte) error {
	return s.write(path, content, true)
}

func (s *LocalFileStorage) write(path string, content []byte, exclusive bool) error {
	target, err := s.resolve(path)
	if err != nil {
		return err
	}
	err = writeAtomic(target, content, exclusive)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("blob %s already exists: %w", path, port.ErrConflict)
	}
	if err != nil {
		s.logger.Error("Blob write failed", zap.String("key", path), zap.Error(err))
		return err
	}
	s.logger.Debug("Blob saved", zap.String("key", path), zap.Int("bytes", len(content)))
	return nil
}

const tempPrefix = ".upload-"

// writeAtomic fills a temp file next to target and moves it into place. With
// exclusive set it hard-links instead of renaming, so an existing target
// fails with fs.ErrExist.
func writeAtomic(target string, content []byte, exclusive bool) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close blob: %w", err)
	}

	if exclusive {
		if err := os.Link(tmpName, target); err != nil {
			return fmt.Errorf("failed to link blob into place: %w", err)
		}
		return nil
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to move blob into place: %w", err)
	}
	return nil
}

// Read returns port.ErrNotFound when the key does not exist
func (s *LocalFileStorage) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("blob %s: %w", path, port.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("failed to read blob %s: %w", path, err)
	}
	return content, nil
}

// Exists checks if a blob exists at the key
func (s *LocalFileStorage) Exists(ctx context.Context, path string) bool {
	fullPath, err := s.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// Delete removes the blob. Deleting a missing key succeeds.
func (s *LocalFileStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", path, err)
	}
	s.logger.Debug("Blob deleted", zap.String("key", path))
	return nil
}

// List returns every blob whose key starts with prefix
func (s *LocalFileStorage) List(ctx context.Context, prefix string) ([]port.BlobInfo, error) {
	var blobs []port.BlobInfo

	err := filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == s.baseDir {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		blobs = append(blobs, port.BlobInfo{Path: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	return blobs, nil
}

// URL returns the public URL of a key
func (s *LocalFileStorage) URL(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(segments, "/")
}

// resolve maps a key into baseDir, rejecting keys that escape it
func (s *LocalFileStorage) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty blob path")
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(path))

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", path)
	}
	return fullPath, nil
}

// Verify interface compliance
var _ port.FileStorage = (*LocalFileStorage)(nil)
