package dbosruntime

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	_ "github.com/lib/pq"
)

// ErrAlreadyQueued is returned when an archive already has a run waiting
// on the ingestion queue
var ErrAlreadyQueued = errors.New("archive already queued for ingestion")

// Runtime manages the DBOS runtime lifecycle
type Runtime struct {
	dbosContext dbos.DBOSContext
	queue       *dbos.WorkflowQueue
	config      Config
	db          *sql.DB
}

// NewRuntime creates a new DBOS runtime instance
// Returns error if the database URL is not set
func NewRuntime(ctx context.Context, cfg Config) (*Runtime, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DBOS_SYSTEM_DATABASE_URL is required")
	}

	cfg.WithDefaults()

	dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, err
	}

	// Worker concurrency bounds how many archives this process ingests at
	// once; zero in client mode keeps the process from dequeuing at all
	queue := dbos.NewWorkflowQueue(dbosCtx, cfg.QueueName,
		dbos.WithWorkerConcurrency(cfg.Concurrency),
	)

	// Shared with the catalog table and dedupe ledger when no separate
	// catalog database is configured
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		dbos.Shutdown(dbosCtx, time.Second)
		return nil, err
	}

	return &Runtime{
		dbosContext: dbosCtx,
		queue:       &queue,
		config:      cfg,
		db:          db,
	}, nil
}

// Launch starts the DBOS runtime and workers
func (r *Runtime) Launch() error {
	return dbos.Launch(r.dbosContext)
}

// Shutdown gracefully shuts down the DBOS runtime
func (r *Runtime) Shutdown(timeout time.Duration) error {
	dbos.Shutdown(r.dbosContext, timeout)
	if r.db != nil {
		r.db.Close()
	}
	return nil
}

// Context returns the DBOS context
func (r *Runtime) Context() dbos.DBOSContext {
	return r.dbosContext
}

// DB returns the SQL connection to the DBOS database
func (r *Runtime) DB() *sql.DB {
	return r.db
}

// QueueName returns the ingestion queue name
func (r *Runtime) QueueName() string {
	return r.config.QueueName
}

// Concurrency returns how many runs this process executes at once
func (r *Runtime) Concurrency() int {
	return r.config.Concurrency
}

// ClientMode reports whether this runtime only enqueues
func (r *Runtime) ClientMode() bool {
	return r.config.ClientMode
}

// EnqueueError translates DBOS enqueue failures: a deduplicated enqueue
// becomes ErrAlreadyQueued, anything else is returned unchanged.
func EnqueueError(err error) error {
	var dbosErr *dbos.DBOSError
	if errors.As(err, &dbosErr) && dbosErr.Code == dbos.QueueDeduplicated {
		return ErrAlreadyQueued
	}
	return err
}
