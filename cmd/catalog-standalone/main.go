package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tendant/simple-content/pkg/simplecontent/presets"

	"github.com/tendant/catalog-ingest-pipeline/internal/config"
	"github.com/tendant/catalog-ingest-pipeline/internal/handlers"
	"github.com/tendant/catalog-ingest-pipeline/internal/storage"
	"github.com/tendant/catalog-ingest-pipeline/internal/workflows"
)

// Standalone catalog ingestion for quick testing.
// Filesystem storage (./dev-data) + in-memory catalog table; no database needed.
func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	httpAddr := os.Getenv("PIPELINE_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	// The standalone table is always in memory
	cfg.DatabaseURL = ""

	log.Printf("Catalog Ingest Standalone")
	log.Printf("  Mode: Embedded (in-memory table + filesystem storage)")
	log.Printf("  Storage directory: %s", cfg.StorageDir)
	log.Printf("  HTTP address: %s", httpAddr)

	store, err := cfg.ObjectStore()
	if err != nil {
		log.Fatalf("Failed to initialize object store: %v", err)
	}

	deps, err := cfg.IngestDeps(context.Background(), store, nil, nil)
	if err != nil {
		log.Fatalf("Failed to initialize ingest dependencies: %v", err)
	}

	// Archives can instead be read from an embedded simple-content service,
	// addressed by content ID
	if cfg.ContentSource {
		svc, cleanup, err := presets.NewDevelopment(
			presets.WithDevStorage(cfg.StorageDir),
		)
		if err != nil {
			log.Fatalf("Failed to initialize simple-content service: %v", err)
		}
		defer cleanup()
		deps.Source = storage.NewContentSource(svc)
		log.Printf("✓ simple-content archive source initialized")
	}

	ingestWorkflow, err := workflows.NewIngestWorkflow(cfg.Pipeline, deps)
	if err != nil {
		log.Fatalf("Failed to create ingest workflow: %v", err)
	}
	log.Printf("✓ Workflow ready: %s", ingestWorkflow.Name())

	mux := http.NewServeMux()
	ingestHandler := handlers.NewIngestHandler(ingestWorkflow)
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/v1/ingest", ingestHandler.HandleIngest)

	server := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("✓ Catalog ingest ready on %s", httpAddr)
		log.Printf("")
		log.Printf("Quick test:")
		log.Printf("  mkdir -p %s/%s && cp batch.zip %s/%s/", cfg.StorageDir, cfg.Pipeline.SourceContainer, cfg.StorageDir, cfg.Pipeline.SourceContainer)
		log.Printf("  go run ./examples/trigger -key batch.zip")
		log.Printf("")
		log.Printf("Available endpoints:")
		log.Printf("  GET  /health           - Health check")
		log.Printf("  POST /v1/ingest        - Ingest an archive (S3-style trigger event)")
		log.Printf("")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
