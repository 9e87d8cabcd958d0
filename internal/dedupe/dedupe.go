package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// Tracker counts how often each archive has been submitted for ingestion
type Tracker struct {
	db *sql.DB
}

// NewTracker creates a new dedupe tracker
func NewTracker(ctx context.Context, db *sql.DB) (*Tracker, error) {
	tracker := &Tracker{db: db}

	// Create table if not exists
	if err := tracker.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure dedupe table: %w", err)
	}

	return tracker, nil
}

// ensureTable creates the archive_dedupe table if it doesn't exist
func (t *Tracker) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS archive_dedupe (
			archive_key TEXT PRIMARY KEY,
			pipeline TEXT,
			first_seen_at TIMESTAMPTZ DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ DEFAULT NOW(),
			seen_count INTEGER DEFAULT 1
		)
	`

	_, err := t.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create archive_dedupe table: %w", err)
	}

	log.Printf("✓ archive_dedupe table ready")
	return nil
}

// Record records an archive submission and returns the seen count
func (t *Tracker) Record(ctx context.Context, archiveKey string, pipeline string) (int, error) {
	// Upsert: increment seen_count if exists, insert if not
	query := `
		INSERT INTO archive_dedupe (archive_key, pipeline, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, $2, NOW(), NOW(), 1)
		ON CONFLICT (archive_key) DO UPDATE
		SET last_seen_at = NOW(),
		    seen_count = archive_dedupe.seen_count + 1,
		    pipeline = EXCLUDED.pipeline
		RETURNING seen_count
	`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, archiveKey, pipeline).Scan(&seenCount)
	if err != nil {
		return 0, fmt.Errorf("failed to record dedupe: %w", err)
	}

	return seenCount, nil
}

// GetSeenCount retrieves the seen count for an archive
func (t *Tracker) GetSeenCount(ctx context.Context, archiveKey string) (int, error) {
	query := `SELECT seen_count FROM archive_dedupe WHERE archive_key = $1`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, archiveKey).Scan(&seenCount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seen count: %w", err)
	}

	return seenCount, nil
}

// Key is the ledger key of an archive object
func Key(container, key string) string {
	return container + "/" + key
}
