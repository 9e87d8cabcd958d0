package catalog

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/tendant/catalog-ingest-pipeline/internal/assets"
	"github.com/tendant/catalog-ingest-pipeline/internal/metrics"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

// Uploader writes objects to destination storage, overwriting by key
type Uploader interface {
	Upload(ctx context.Context, container, key string, data []byte, contentType string) error

	// URI returns the fully-qualified locator of an object
	URI(container, key string) string
}

// Thumbnailer derives a poster thumbnail from image bytes
type Thumbnailer interface {
	Generate(data []byte) ([]byte, error)
}

// Committer uploads matched assets and writes catalog records, one entry at
// a time in position order. The first failure aborts the run; earlier
// uploads and records are left in place.
type Committer struct {
	cfg         pipeline.Config
	uploader    Uploader
	table       Table
	thumbnailer Thumbnailer
	metrics     *metrics.Metrics
}

// NewCommitter creates a committer. thumbnailer may be nil.
func NewCommitter(cfg pipeline.Config, uploader Uploader, table Table, thumbnailer Thumbnailer, m *metrics.Metrics) *Committer {
	cfg.WithDefaults()
	return &Committer{
		cfg:         cfg,
		uploader:    uploader,
		table:       table,
		thumbnailer: thumbnailer,
		metrics:     m,
	}
}

// Commit persists every plan and returns the written records
func (c *Committer) Commit(ctx context.Context, runID string, plans []Plan) ([]Record, error) {
	records := make([]Record, 0, len(plans))
	for _, p := range plans {
		if err := ctx.Err(); err != nil {
			return records, fmt.Errorf("commit interrupted before id %d: %w", p.ID, err)
		}

		imageURIs, thumbURIs, err := c.uploadImages(ctx, runID, p)
		if err != nil {
			return records, err
		}
		videoURIs, err := c.uploadAll(ctx, runID, p.Folder, p.Videos)
		if err != nil {
			return records, err
		}

		record := c.buildRecord(p, imageURIs, videoURIs, thumbURIs)
		if err := c.table.Put(ctx, c.cfg.TableName, record); err != nil {
			log.Printf("[%s] Failed to write record id=%d name=%q: %v", runID, p.ID, p.Name, err)
			return records, fmt.Errorf("%w: id %d: %v", pipeline.ErrRecordWrite, p.ID, err)
		}
		c.metrics.IncRecordWrite()
		log.Printf("[%s] Record written: id=%d name=%q images=%d videos=%d", runID, p.ID, p.Name, len(imageURIs), len(videoURIs))

		records = append(records, record)
	}
	return records, nil
}

func (c *Committer) uploadImages(ctx context.Context, runID string, p Plan) ([]string, []string, error) {
	uris, err := c.uploadAll(ctx, runID, p.Folder, p.Images)
	if err != nil || c.thumbnailer == nil {
		return uris, nil, err
	}

	thumbs := make([]string, 0, len(p.Images))
	for _, a := range p.Images {
		data, err := a.Bytes()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", pipeline.ErrUpload, a.Path, err)
		}
		thumb, err := c.thumbnailer.Generate(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: thumbnail for %s: %v", pipeline.ErrUpload, a.Path, err)
		}
		key := ThumbnailKey(p.Folder, a.Path)
		if err := c.uploader.Upload(ctx, c.cfg.DestinationContainer, key, thumb, "image/jpeg"); err != nil {
			log.Printf("[%s] Failed to upload thumbnail %s: %v", runID, key, err)
			return nil, nil, uploadFailure(ctx, key, err)
		}
		c.metrics.IncUpload("thumbnail")
		thumbs = append(thumbs, c.uploader.URI(c.cfg.DestinationContainer, key))
	}
	return uris, thumbs, nil
}

func (c *Committer) uploadAll(ctx context.Context, runID, folder string, list []assets.Asset) ([]string, error) {
	uris := make([]string, 0, len(list))
	for _, a := range list {
		data, err := a.Bytes()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", pipeline.ErrUpload, a.Path, err)
		}
		key := AssetKey(folder, a.Path)
		if err := c.uploader.Upload(ctx, c.cfg.DestinationContainer, key, data, a.ContentType); err != nil {
			log.Printf("[%s] Failed to upload %s: %v", runID, key, err)
			return nil, uploadFailure(ctx, key, err)
		}
		c.metrics.IncUpload(string(a.Kind))
		uris = append(uris, c.uploader.URI(c.cfg.DestinationContainer, key))
	}
	return uris, nil
}

// uploadFailure reports a failed upload. A cancelled run is not an upload
// error and keeps the context error instead.
func uploadFailure(ctx context.Context, key string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("upload of %s interrupted: %w", key, ctxErr)
	}
	return fmt.Errorf("%w: %s: %v", pipeline.ErrUpload, key, err)
}

// buildRecord copies the entry fields, then sets the identifier and
// reference lists. Assigned fields win over same-named entry fields.
func (c *Committer) buildRecord(p Plan, images, videos, thumbs []string) Record {
	record := make(Record, len(p.Entry)+4)
	for k, v := range p.Entry {
		record[k] = v
	}
	record[c.cfg.IdentifierField] = p.ID
	record[c.cfg.ImageField] = images
	record[c.cfg.VideoField] = videos
	if c.thumbnailer != nil {
		record[c.cfg.ThumbnailField] = thumbs
	}
	return record
}

// AssetKey is the destination key of an asset: "<folder>/<archive path>"
func AssetKey(folder, assetPath string) string {
	return folder + "/" + assetPath
}

// ThumbnailKey is the destination key of an image's thumbnail
func ThumbnailKey(folder, assetPath string) string {
	base := path.Base(assetPath)
	return folder + "/thumbnails/" + strings.TrimSuffix(base, path.Ext(base)) + ".jpg"
}
