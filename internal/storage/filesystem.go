package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStorage stores objects under baseDir/<container>/<key>
type FilesystemStorage struct {
	baseDir string
}

// NewFilesystemStorage creates a filesystem-backed object store
func NewFilesystemStorage(baseDir string) (*FilesystemStorage, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	// Ensure base directory exists
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FilesystemStorage{
		baseDir: abs,
	}, nil
}

// resolve maps container/key to a path inside baseDir
func (fs *FilesystemStorage) resolve(container, key string) (string, error) {
	p := filepath.Join(fs.baseDir, container, filepath.FromSlash(key))

	// Security: prevent directory traversal
	rel, err := filepath.Rel(fs.baseDir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q: path traversal detected", key)
	}
	return p, nil
}

// Get reads the object at container/key
func (fs *FilesystemStorage) Get(ctx context.Context, container, key string) ([]byte, error) {
	p, err := fs.resolve(container, key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", container, key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Upload writes the object, replacing any existing content.
// The content type is not persisted on the filesystem.
func (fs *FilesystemStorage) Upload(ctx context.Context, container, key string, data []byte, contentType string) error {
	p, err := fs.resolve(container, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// URI returns a file:// locator for container/key
func (fs *FilesystemStorage) URI(container, key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(fs.baseDir, container, filepath.FromSlash(key)))
}

// Exists checks if an object exists at container/key
func (fs *FilesystemStorage) Exists(ctx context.Context, container, key string) (bool, error) {
	p, err := fs.resolve(container, key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	return true, nil
}
