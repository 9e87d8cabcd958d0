// Package runner embeds the catalog ingestion pipeline in another program.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/tendant/catalog-ingest-pipeline/internal/config"
	"github.com/tendant/catalog-ingest-pipeline/internal/dbosruntime"
	"github.com/tendant/catalog-ingest-pipeline/internal/metrics"
	"github.com/tendant/catalog-ingest-pipeline/internal/workflows"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

// Config holds the configuration for initializing the pipeline runner
type Config struct {
	DatabaseURL        string // DBOS PostgreSQL connection string; also hosts the catalog table
	AppName            string // Application name for DBOS
	QueueName          string // DBOS queue name
	Concurrency        int    // Number of concurrent workers
	ApplicationVersion string // Optional: Override binary hash for version matching

	Pipeline   pipeline.Config // Record layout and containers
	StorageDir string          // Filesystem object store root, used when BlobAPIURL is empty
	BlobAPIURL string          // S3-compatible object store endpoint
}

func (c Config) dbos() dbosruntime.Config {
	return dbosruntime.Config{
		DatabaseURL:        c.DatabaseURL,
		AppName:            c.AppName,
		QueueName:          c.QueueName,
		Concurrency:        c.Concurrency,
		ApplicationVersion: c.ApplicationVersion,
	}
}

// Runner provides a high-level API for running catalog ingestion via DBOS
type Runner struct {
	runtime *dbosruntime.Runtime
	runner  *workflows.WorkflowRunner
}

// New creates and initializes a new pipeline runner with DBOS integration.
// Records are written to a catalog table in the DBOS database.
func New(ctx context.Context, cfg Config) (_ *Runner, err error) {
	dbosRuntime, err := dbosruntime.NewRuntime(ctx, cfg.dbos())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}
	defer shutdownOnError(&err, dbosRuntime)

	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)

	svc := &config.Config{
		Pipeline:   cfg.Pipeline,
		StorageDir: cfg.StorageDir,
		BlobAPIURL: cfg.BlobAPIURL,
	}
	svc.Pipeline.WithDefaults()
	store, err := svc.ObjectStore()
	if err != nil {
		return nil, err
	}
	deps, err := svc.IngestDeps(ctx, store, dbosRuntime.DB(), metrics.Default())
	if err != nil {
		return nil, err
	}
	ingest, err := workflows.NewIngestWorkflow(svc.Pipeline, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest workflow: %w", err)
	}
	workflowRunner.Register(pipeline.JobCatalogIngest, ingest)

	// Launch DBOS (must be after workflow registration)
	if err := dbosRuntime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}

	return &Runner{
		runtime: dbosRuntime,
		runner:  workflowRunner,
	}, nil
}

type shutdowner interface {
	Shutdown(timeout time.Duration) error
}

// shutdownOnError releases rt when construction failed after it was created
func shutdownOnError(err *error, rt shutdowner) {
	if *err != nil {
		rt.Shutdown(shutdownTimeout)
	}
}

const shutdownTimeout = 5 * time.Second

// RunIngest enqueues ingestion of the archive at container/key
func (r *Runner) RunIngest(ctx context.Context, container, key string) (string, error) {
	return r.runner.RunAsync(ctx, pipeline.IngestRequest{
		Container: container,
		Key:       key,
		Job:       pipeline.JobCatalogIngest,
	})
}

// Status returns the state of an enqueued run
func (r *Runner) Status(ctx context.Context, runID string) (*workflows.WorkflowStatus, error) {
	return r.runner.GetStatus(ctx, runID)
}

// Shutdown gracefully shuts down the pipeline runner
func (r *Runner) Shutdown(timeout time.Duration) {
	if r.runtime != nil {
		r.runtime.Shutdown(timeout)
	}
}
