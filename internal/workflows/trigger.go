package workflows

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

// RequestFromEvent extracts the archive location from the first record of
// a trigger event. Object keys arrive form-encoded: '+' is a space.
func RequestFromEvent(event pipeline.TriggerEvent, defaultContainer string) (pipeline.IngestRequest, error) {
	if len(event.Records) == 0 {
		return pipeline.IngestRequest{}, fmt.Errorf("%w: trigger event has no records", pipeline.ErrValidation)
	}
	rec := event.Records[0]

	container := rec.S3.Bucket.Name
	if container == "" {
		container = defaultContainer
	}
	if container == "" {
		return pipeline.IngestRequest{}, fmt.Errorf("%w: trigger event names no container", pipeline.ErrValidation)
	}

	key, err := DecodeKey(rec.S3.Object.Key)
	if err != nil {
		return pipeline.IngestRequest{}, err
	}

	return pipeline.IngestRequest{
		Container: container,
		Key:       key,
		Job:       pipeline.JobCatalogIngest,
	}, nil
}

// DecodeKey URL-decodes an object key from a storage notification
func DecodeKey(raw string) (string, error) {
	key, err := url.PathUnescape(strings.ReplaceAll(raw, "+", " "))
	if err != nil {
		return "", fmt.Errorf("%w: bad object key %q: %v", pipeline.ErrValidation, raw, err)
	}
	if key == "" {
		return "", fmt.Errorf("%w: trigger event names no object key", pipeline.ErrValidation)
	}
	return key, nil
}
