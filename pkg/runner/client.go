package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/tendant/catalog-ingest-pipeline/internal/dbosruntime"
	"github.com/tendant/catalog-ingest-pipeline/internal/workflows"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

// Client enqueues ingestion runs without executing them.
// Workers must be running separately to execute the enqueued workflows.
type Client struct {
	runtime *dbosruntime.Runtime
	runner  *workflows.WorkflowRunner
}

// NewClient creates a client that can start workflows but doesn't execute them
func NewClient(ctx context.Context, cfg Config) (_ *Client, err error) {
	dbosCfg := cfg.dbos()
	dbosCfg.ClientMode = true

	dbosRuntime, err := dbosruntime.NewRuntime(ctx, dbosCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}
	defer shutdownOnError(&err, dbosRuntime)

	// Registers the DBOS entry point so runs can be enqueued by name; the
	// client-mode queue never dequeues them here
	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)

	if err := dbosRuntime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}

	return &Client{
		runtime: dbosRuntime,
		runner:  workflowRunner,
	}, nil
}

// RunIngest enqueues ingestion of the archive at container/key for workers to execute
func (c *Client) RunIngest(ctx context.Context, container, key string) (string, error) {
	return c.runner.RunAsync(ctx, pipeline.IngestRequest{
		Container: container,
		Key:       key,
		Job:       pipeline.JobCatalogIngest,
	})
}

// Shutdown gracefully shuts down the client
func (c *Client) Shutdown(timeout time.Duration) {
	if c.runtime != nil {
		c.runtime.Shutdown(timeout)
	}
}
