package pipeline

// IngestRequest identifies one archive to ingest
type IngestRequest struct {
	Container string            `json:"container"`
	Key       string            `json:"key"`
	Job       string            `json:"job"` // catalog_ingest
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TriggerEvent is the storage notification that announces a new archive.
// Only the fields the pipeline reads are modelled.
type TriggerEvent struct {
	Records []TriggerRecord `json:"Records"`
}

// TriggerRecord is a single object notification within a TriggerEvent
type TriggerRecord struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// NewTriggerEvent builds a single-record trigger event for the given object
func NewTriggerEvent(container, key string) TriggerEvent {
	var rec TriggerRecord
	rec.S3.Bucket.Name = container
	rec.S3.Object.Key = key
	return TriggerEvent{Records: []TriggerRecord{rec}}
}

// Response is the invocation result returned to the caller
type Response struct {
	StatusCode int          `json:"statusCode"`
	Body       ResponseBody `json:"body"`
}

// ResponseBody is the JSON body of a Response
type ResponseBody struct {
	Message string         `json:"message"`
	Error   string         `json:"error,omitempty"`
	RunID   string         `json:"run_id,omitempty"`
	Records []RecordResult `json:"records,omitempty"`
}

// RecordResult summarizes one committed catalog record
type RecordResult struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Images []string `json:"images"`
	Videos []string `json:"videos"`
}

// AsyncResponse is returned when an ingestion is enqueued
type AsyncResponse struct {
	RunID string `json:"run_id"`
}

// JobType constants
const (
	JobCatalogIngest = "catalog_ingest"
)

// Response messages
const (
	MessageSuccess = "Items processed successfully."
	MessageFailure = "Failed to process item."
)
