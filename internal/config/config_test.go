package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/catalog-ingest-pipeline/internal/storage"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"SOURCE_CONTAINER", "DESTINATION_CONTAINER", "CATALOG_TABLE", "CATALOG_ID_FIELD",
		"WORKER_HTTP_ADDR", "STORAGE_DIR", "BLOB_API_URL", "DATABASE_URL",
		"DBOS_SYSTEM_DATABASE_URL", "DBOS_QUEUE_NAME", "DBOS_CONCURRENCY",
		"THUMBNAILS", "CONTENT_SOURCE", "METADATA_EVAL_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "archives", cfg.Pipeline.SourceContainer)
	assert.Equal(t, "catalog-assets", cfg.Pipeline.DestinationContainer)
	assert.Equal(t, "Movies", cfg.Pipeline.TableName)
	assert.Equal(t, "Movie_ID", cfg.Pipeline.IdentifierField)
	assert.Equal(t, "testArray", cfg.Pipeline.ScriptSymbol)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.EvalTimeout)
	assert.Equal(t, uint64(256<<20), cfg.Pipeline.EvalMemoryLimit)
	assert.False(t, cfg.Pipeline.Thumbnails)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "./dev-data", cfg.StorageDir)
	assert.Equal(t, "catalog-ingest", cfg.DBOS.QueueName)
	assert.Equal(t, 4, cfg.DBOS.Concurrency)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DESTINATION_CONTAINER", "posters")
	t.Setenv("CATALOG_TABLE", "Films")
	t.Setenv("CATALOG_ID_FIELD", "Film_ID")
	t.Setenv("THUMBNAILS", "true")
	t.Setenv("CONTENT_SOURCE", "1")
	t.Setenv("METADATA_EVAL_TIMEOUT", "250ms")
	t.Setenv("METADATA_EVAL_MEMORY_LIMIT", "67108864")
	t.Setenv("DBOS_CONCURRENCY", "8")
	t.Setenv("DBOS_QUEUE_NAME", "catalog")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "posters", cfg.Pipeline.DestinationContainer)
	assert.Equal(t, "Films", cfg.Pipeline.TableName)
	assert.Equal(t, "Film_ID", cfg.Pipeline.IdentifierField)
	assert.True(t, cfg.Pipeline.Thumbnails)
	assert.True(t, cfg.ContentSource)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.EvalTimeout)
	assert.Equal(t, uint64(64<<20), cfg.Pipeline.EvalMemoryLimit)
	assert.Equal(t, 8, cfg.DBOS.Concurrency)
	assert.Equal(t, "catalog", cfg.DBOS.QueueName)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"THUMBNAILS":                 "sometimes",
		"METADATA_EVAL_TIMEOUT":      "soon",
		"METADATA_EVAL_MEMORY_LIMIT": "lots",
		"DBOS_CONCURRENCY":           "-1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := FromEnv()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestObjectStore(t *testing.T) {
	cfg := &Config{StorageDir: t.TempDir()}
	store, err := cfg.ObjectStore()
	require.NoError(t, err)
	assert.IsType(t, &storage.FilesystemStorage{}, store)

	cfg.BlobAPIURL = "http://localhost:9000"
	store, err = cfg.ObjectStore()
	require.NoError(t, err)
	assert.IsType(t, &storage.HTTPBlobStore{}, store)
}

func TestOpenDatabaseWithoutURL(t *testing.T) {
	db, err := (&Config{}).OpenDatabase(context.Background())
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestIngestDepsInMemory(t *testing.T) {
	cfg := &Config{StorageDir: t.TempDir()}
	cfg.Pipeline.Thumbnails = true
	cfg.Pipeline.WithDefaults()
	store, err := cfg.ObjectStore()
	require.NoError(t, err)

	deps, err := cfg.IngestDeps(context.Background(), store, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryTable{}, deps.Table)
	assert.Nil(t, deps.Seen)
	assert.NotNil(t, deps.Thumbnailer)
	assert.Equal(t, store, deps.Source)
}
