package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPBlobStore reads and writes objects through an S3-compatible HTTP
// endpoint using path-style addressing: {baseURL}/{container}/{key}
type HTTPBlobStore struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPBlobStore creates a new HTTP-based object store
func NewHTTPBlobStore(baseURL string) *HTTPBlobStore {
	return NewHTTPBlobStoreWithClient(baseURL, &http.Client{})
}

// NewHTTPBlobStoreWithClient creates an HTTP object store with a custom client
func NewHTTPBlobStoreWithClient(baseURL string, httpClient *http.Client) *HTTPBlobStore {
	return &HTTPBlobStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// objectURL escapes each key segment. Dot segments are refused because
// gateways clean them out of the path before routing.
func (s *HTTPBlobStore) objectURL(container, key string) (string, error) {
	if err := ValidateKey(container); err != nil || strings.Contains(container, "/") {
		return "", fmt.Errorf("%w: container %q", ErrInvalidKey, container)
	}
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/%s/%s", s.baseURL, url.PathEscape(container), strings.Join(segments, "/")), nil
}

// Get downloads the object at container/key
func (s *HTTPBlobStore) Get(ctx context.Context, container, key string) ([]byte, error) {
	objectURL, err := s.objectURL(container, key)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s/%s: %w", container, key, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Upload PUTs the object, overwriting any existing one
func (s *HTTPBlobStore) Upload(ctx context.Context, container, key string, data []byte, contentType string) error {
	objectURL, err := s.objectURL(container, key)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, objectURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// URI returns the s3:// locator of container/key
func (s *HTTPBlobStore) URI(container, key string) string {
	return fmt.Sprintf("s3://%s/%s", container, key)
}
