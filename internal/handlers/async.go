package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/tendant/catalog-ingest-pipeline/internal/dbosruntime"
	"github.com/tendant/catalog-ingest-pipeline/internal/workflows"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

// AsyncRunner enqueues ingestion runs and reports their status
type AsyncRunner interface {
	RunAsync(ctx context.Context, req pipeline.IngestRequest) (string, error)
	GetStatus(ctx context.Context, runID string) (*workflows.WorkflowStatus, error)
}

// AsyncHandler handles asynchronous ingestion requests
type AsyncHandler struct {
	workflowRunner   AsyncRunner
	defaultContainer string
}

// NewAsyncHandler creates a new async handler. defaultContainer is used
// for trigger records that name no bucket.
func NewAsyncHandler(runner AsyncRunner, defaultContainer string) *AsyncHandler {
	return &AsyncHandler{
		workflowRunner:   runner,
		defaultContainer: defaultContainer,
	}
}

// HandleIngestAsync handles POST /v1/ingest/async - enqueues a run and returns immediately
func (h *AsyncHandler) HandleIngestAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event pipeline.TriggerEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	req, err := workflows.RequestFromEvent(event, h.defaultContainer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("Enqueueing catalog ingestion: %s/%s", req.Container, req.Key)

	runID, err := h.workflowRunner.RunAsync(r.Context(), req)
	if err != nil {
		log.Printf("Failed to enqueue workflow: %v", err)
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, workflows.ErrNoRuntime):
			status = http.StatusServiceUnavailable
		case errors.Is(err, dbosruntime.ErrAlreadyQueued):
			status = http.StatusConflict
		}
		http.Error(w, fmt.Sprintf("Failed to enqueue workflow: %v", err), status)
		return
	}

	log.Printf("Workflow enqueued successfully: run_id=%s", runID)

	writeJSON(w, http.StatusAccepted, pipeline.AsyncResponse{RunID: runID})
}

// HandleStatus handles GET /v1/runs/{runID} - returns workflow status
func (h *AsyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if runID == "" || runID == r.URL.Path {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}

	status, err := h.workflowRunner.GetStatus(r.Context(), runID)
	if err != nil {
		log.Printf("Failed to get workflow status: run_id=%s: %v", runID, err)
		if errors.Is(err, dbosruntime.ErrWorkflowNotFound) {
			http.Error(w, "Workflow not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get workflow status", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
