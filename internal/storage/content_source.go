package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"
)

// ContentSource reads archives stored in a simple-content service.
// The object key is the content ID; the container is not used.
type ContentSource struct {
	service simplecontent.Service
}

// NewContentSource creates an archive source backed by simple-content
func NewContentSource(service simplecontent.Service) *ContentSource {
	return &ContentSource{
		service: service,
	}
}

// Get downloads the content identified by key
func (cs *ContentSource) Get(ctx context.Context, container, key string) ([]byte, error) {
	id, err := uuid.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("invalid content ID: %w", err)
	}

	reader, err := cs.service.DownloadContent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to download content: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return data, nil
}

// Exists checks if content exists by content ID
func (cs *ContentSource) Exists(ctx context.Context, key string) (bool, error) {
	id, err := uuid.Parse(key)
	if err != nil {
		return false, fmt.Errorf("invalid content ID: %w", err)
	}

	// Any lookup error is treated as absent
	if _, err := cs.service.GetContent(ctx, id); err != nil {
		return false, nil
	}
	return true, nil
}
