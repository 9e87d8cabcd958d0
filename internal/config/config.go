// Package config reads service settings from the environment.
package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/tendant/catalog-ingest-pipeline/internal/dbosruntime"
	"github.com/tendant/catalog-ingest-pipeline/internal/storage"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

// Config holds the settings shared by the catalog ingestion binaries
type Config struct {
	// Pipeline is the record layout and container configuration
	Pipeline pipeline.Config

	// HTTPAddr is the listen address of the HTTP surface
	HTTPAddr string

	// StorageDir is the root of the filesystem object store
	StorageDir string

	// BlobAPIURL selects an S3-compatible HTTP object store instead of StorageDir
	BlobAPIURL string

	// ContentSource reads archives from an embedded simple-content service
	ContentSource bool

	// DatabaseURL selects the Postgres catalog table and dedupe ledger.
	// Empty means an in-memory table.
	DatabaseURL string

	// DBOS holds the durable queue settings used by the worker
	DBOS dbosruntime.Config
}

// Load reads a .env file if one exists, then the environment
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables
func FromEnv() (*Config, error) {
	cfg := &Config{
		Pipeline: pipeline.Config{
			SourceContainer:      getenv("SOURCE_CONTAINER", "archives"),
			DestinationContainer: getenv("DESTINATION_CONTAINER", "catalog-assets"),
			TableName:            getenv("CATALOG_TABLE", "Movies"),
			IdentifierField:      os.Getenv("CATALOG_ID_FIELD"),
		},
		HTTPAddr:    getenv("WORKER_HTTP_ADDR", ":8081"),
		StorageDir:  getenv("STORAGE_DIR", "./dev-data"),
		BlobAPIURL:  os.Getenv("BLOB_API_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBOS: dbosruntime.Config{
			DatabaseURL: os.Getenv("DBOS_SYSTEM_DATABASE_URL"),
			QueueName:   os.Getenv("DBOS_QUEUE_NAME"),
		},
	}

	var err error
	if cfg.Pipeline.Thumbnails, err = getbool("THUMBNAILS"); err != nil {
		return nil, err
	}
	if cfg.ContentSource, err = getbool("CONTENT_SOURCE"); err != nil {
		return nil, err
	}
	if v := os.Getenv("METADATA_EVAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid METADATA_EVAL_TIMEOUT %q", v)
		}
		cfg.Pipeline.EvalTimeout = d
	}
	if v := os.Getenv("METADATA_EVAL_MEMORY_LIMIT"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid METADATA_EVAL_MEMORY_LIMIT %q", v)
		}
		cfg.Pipeline.EvalMemoryLimit = n
	}
	if v := os.Getenv("DBOS_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid DBOS_CONCURRENCY %q", v)
		}
		cfg.DBOS.Concurrency = n
	}

	cfg.Pipeline.WithDefaults()
	cfg.DBOS.WithDefaults()
	return cfg, nil
}

// ObjectStore returns the blob store for archives and assets: the HTTP
// store when BlobAPIURL is set, the filesystem store otherwise.
func (c *Config) ObjectStore() (ObjectStore, error) {
	if c.BlobAPIURL != "" {
		return storage.NewHTTPBlobStore(c.BlobAPIURL), nil
	}
	fs, err := storage.NewFilesystemStorage(c.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage directory: %w", err)
	}
	return fs, nil
}

// ObjectStore reads archives and writes assets
type ObjectStore interface {
	storage.Fetcher
	storage.Uploader
}

// OpenDatabase connects to DatabaseURL. It returns nil when no database is
// configured.
func (c *Config) OpenDatabase(ctx context.Context) (*sql.DB, error) {
	if c.DatabaseURL == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, v)
	}
	return b, nil
}
