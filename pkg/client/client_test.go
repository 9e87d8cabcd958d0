package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

func TestIngest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ingest", r.URL.Path)
		var event pipeline.TriggerEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		assert.Equal(t, "batch.zip", event.Records[0].S3.Object.Key)

		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(pipeline.ResponseBody{
			Message: pipeline.MessageFailure,
			Error:   "evaluated: metadata evaluation error: boom",
		})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Ingest(context.Background(), pipeline.NewTriggerEvent("archives", "batch.zip"))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, pipeline.MessageFailure, resp.Body.Message)
	assert.Contains(t, resp.Body.Error, "boom")
}

func TestIngestUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Ingest(context.Background(), pipeline.TriggerEvent{})
	assert.ErrorContains(t, err, "unexpected status 400")
}

func TestIngestAsync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ingest/async", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(pipeline.AsyncResponse{RunID: "run-9"})
	}))
	defer srv.Close()

	resp, err := NewWithHTTPClient(srv.URL, srv.Client()).IngestAsync(context.Background(), pipeline.NewTriggerEvent("archives", "batch.zip"))
	require.NoError(t, err)
	assert.Equal(t, "run-9", resp.RunID)
}
