// Package storage provides the blob and table backends the ingestion
// pipeline reads archives from and writes assets and records to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an object or item does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidKey is returned for object keys that could resolve outside
	// their container
	ErrInvalidKey = errors.New("invalid object key")
)

// ValidateKey rejects empty keys and keys with empty, "." or ".." segments.
// Keys are built from catalog names, which come from uploaded archives.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, seg := range strings.Split(key, "/") {
		switch seg {
		case "", ".", "..":
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// Fetcher provides read access to archive objects
type Fetcher interface {
	// Get returns the full content of the object at container/key
	Get(ctx context.Context, container, key string) ([]byte, error)
}

// Uploader provides write access to destination objects.
// Uploading to an existing key overwrites it.
type Uploader interface {
	Upload(ctx context.Context, container, key string, data []byte, contentType string) error

	// URI returns the fully-qualified locator of container/key
	URI(container, key string) string
}

// Object is a stored blob with its content type
type Object struct {
	Data        []byte
	ContentType string
}
