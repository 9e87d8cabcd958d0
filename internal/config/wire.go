package config

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tendant/catalog-ingest-pipeline/internal/dedupe"
	"github.com/tendant/catalog-ingest-pipeline/internal/derive"
	"github.com/tendant/catalog-ingest-pipeline/internal/metrics"
	"github.com/tendant/catalog-ingest-pipeline/internal/storage"
	"github.com/tendant/catalog-ingest-pipeline/internal/workflows"
)

// IngestDeps assembles the workflow collaborators. With a nil db the
// catalog table lives in memory and no dedupe ledger is kept.
func (c *Config) IngestDeps(ctx context.Context, store ObjectStore, db *sql.DB, m *metrics.Metrics) (workflows.IngestDeps, error) {
	deps := workflows.IngestDeps{
		Source:   store,
		Uploader: store,
		Metrics:  m,
	}

	if db != nil {
		deps.Table = storage.NewPostgresTable(db, c.Pipeline.IdentifierField)
		tracker, err := dedupe.NewTracker(ctx, db)
		if err != nil {
			return workflows.IngestDeps{}, fmt.Errorf("failed to initialize dedupe tracker: %w", err)
		}
		deps.Seen = tracker
	} else {
		deps.Table = storage.NewMemoryTable(c.Pipeline.IdentifierField)
	}

	if c.Pipeline.Thumbnails {
		deps.Thumbnailer = derive.NewThumbnailer()
	}
	return deps, nil
}
