package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/catalog-ingest-pipeline/internal/config"
	"github.com/tendant/catalog-ingest-pipeline/internal/dbosruntime"
	"github.com/tendant/catalog-ingest-pipeline/internal/handlers"
	"github.com/tendant/catalog-ingest-pipeline/internal/metrics"
	"github.com/tendant/catalog-ingest-pipeline/internal/workflows"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	ctx := context.Background()

	// Initialize DBOS runtime (required)
	dbosRuntime, err := dbosruntime.NewRuntime(ctx, cfg.DBOS)
	if err != nil {
		log.Fatalf("Failed to initialize DBOS: %v", err)
	}

	// Catalog table and dedupe ledger: DATABASE_URL if set, else the DBOS database
	db, err := cfg.OpenDatabase(ctx)
	if err != nil {
		log.Fatalf("Failed to open catalog database: %v", err)
	}
	if db == nil {
		db = dbosRuntime.DB()
	} else {
		defer db.Close()
	}

	store, err := cfg.ObjectStore()
	if err != nil {
		log.Fatalf("Failed to initialize object store: %v", err)
	}
	if cfg.BlobAPIURL != "" {
		log.Printf("Using blob API at: %s", cfg.BlobAPIURL)
	} else {
		log.Printf("Using filesystem storage at: %s", cfg.StorageDir)
	}

	deps, err := cfg.IngestDeps(ctx, store, db, metrics.Default())
	if err != nil {
		log.Fatalf("Failed to initialize ingest dependencies: %v", err)
	}
	ingestWorkflow, err := workflows.NewIngestWorkflow(cfg.Pipeline, deps)
	if err != nil {
		log.Fatalf("Failed to create ingest workflow: %v", err)
	}

	// Initialize workflow runner with DBOS support (registers workflows with DBOS)
	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)
	workflowRunner.Register(pipeline.JobCatalogIngest, ingestWorkflow)
	log.Printf("✓ Registered workflow: %s for job: %s", ingestWorkflow.Name(), pipeline.JobCatalogIngest)

	// Launch DBOS (must be done after workflow registration)
	if err := dbosRuntime.Launch(); err != nil {
		log.Fatalf("Failed to launch DBOS: %v", err)
	}
	defer dbosRuntime.Shutdown(10 * time.Second)

	log.Printf("✓ DBOS runtime initialized")
	log.Printf("  Queue: %s", dbosRuntime.QueueName())
	log.Printf("  Concurrency: %d", dbosRuntime.Concurrency())
	log.Printf("  Catalog table: %s (id field %s)", cfg.Pipeline.TableName, cfg.Pipeline.IdentifierField)
	log.Printf("  Destination container: %s", cfg.Pipeline.DestinationContainer)

	mux := http.NewServeMux()

	ingestHandler := handlers.NewIngestHandler(ingestWorkflow)
	asyncHandler := handlers.NewAsyncHandler(workflowRunner, cfg.Pipeline.SourceContainer)

	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/v1/ingest", ingestHandler.HandleIngest)
	mux.HandleFunc("/v1/ingest/async", asyncHandler.HandleIngestAsync)
	mux.HandleFunc("/v1/runs/", asyncHandler.HandleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	log.Printf("✓ Registered endpoints")

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("Catalog worker starting on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
