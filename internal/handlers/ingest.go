// Package handlers exposes the ingestion pipeline over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

// Ingester runs one ingestion per trigger event
type Ingester interface {
	Handle(ctx context.Context, event pipeline.TriggerEvent) pipeline.Response
}

// IngestHandler runs ingestions synchronously
type IngestHandler struct {
	ingester Ingester
}

// NewIngestHandler creates a new synchronous ingestion handler
func NewIngestHandler(ingester Ingester) *IngestHandler {
	return &IngestHandler{ingester: ingester}
}

// HandleIngest handles POST /v1/ingest. The reply status mirrors the
// invocation outcome: 200 on success, 500 on any pipeline failure.
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event pipeline.TriggerEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	resp := h.ingester.Handle(r.Context(), event)
	log.Printf("[%s] Ingestion finished with status %d", resp.Body.RunID, resp.StatusCode)

	writeJSON(w, resp.StatusCode, resp.Body)
}

// HandleHealth returns health status
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
