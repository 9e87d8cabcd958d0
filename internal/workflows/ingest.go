package workflows

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/catalog-ingest-pipeline/internal/archive"
	"github.com/tendant/catalog-ingest-pipeline/internal/assets"
	"github.com/tendant/catalog-ingest-pipeline/internal/catalog"
	"github.com/tendant/catalog-ingest-pipeline/internal/dedupe"
	"github.com/tendant/catalog-ingest-pipeline/internal/metadata"
	"github.com/tendant/catalog-ingest-pipeline/internal/metrics"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

// ArchiveSource fetches archive objects
type ArchiveSource interface {
	Get(ctx context.Context, container, key string) ([]byte, error)
}

// SeenRecorder counts archive submissions
type SeenRecorder interface {
	Record(ctx context.Context, archiveKey string, pipeline string) (int, error)
}

// IngestDeps holds the collaborators of an IngestWorkflow
type IngestDeps struct {
	Source      ArchiveSource
	Uploader    catalog.Uploader
	Table       catalog.Table
	Thumbnailer catalog.Thumbnailer // used only when Config.Thumbnails is set
	Seen        SeenRecorder        // optional
	Metrics     *metrics.Metrics    // optional
}

// IngestWorkflow turns an uploaded archive into catalog records
type IngestWorkflow struct {
	cfg       pipeline.Config
	deps      IngestDeps
	evaluator *metadata.Evaluator
	committer *catalog.Committer
}

// NewIngestWorkflow creates a new catalog ingestion workflow
func NewIngestWorkflow(cfg pipeline.Config, deps IngestDeps) (*IngestWorkflow, error) {
	cfg.WithDefaults()
	if cfg.DestinationContainer == "" {
		return nil, errors.New("destination container is required")
	}
	if cfg.TableName == "" {
		return nil, errors.New("table name is required")
	}
	if deps.Source == nil || deps.Uploader == nil || deps.Table == nil {
		return nil, errors.New("source, uploader and table are required")
	}

	evaluator, err := NewMetadataEvaluator(cfg)
	if err != nil {
		return nil, err
	}

	var thumbnailer catalog.Thumbnailer
	if cfg.Thumbnails {
		if deps.Thumbnailer == nil {
			return nil, errors.New("thumbnails enabled without a thumbnailer")
		}
		thumbnailer = deps.Thumbnailer
	}

	return &IngestWorkflow{
		cfg:       cfg,
		deps:      deps,
		evaluator: evaluator,
		committer: catalog.NewCommitter(cfg, deps.Uploader, deps.Table, thumbnailer, deps.Metrics),
	}, nil
}

// Name returns the workflow name
func (w *IngestWorkflow) Name() string {
	return "CatalogIngestWorkflow"
}

// Config returns the effective configuration
func (w *IngestWorkflow) Config() pipeline.Config {
	return w.cfg
}

// Execute runs the ingestion for wctx.Request
func (w *IngestWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	records, err := w.Ingest(wctx.Ctx, wctx.RunID, wctx.Request)
	if err != nil {
		result := &WorkflowResult{Success: false, Error: err.Error(), Records: records}
		var se *pipeline.StageError
		if errors.As(err, &se) {
			result.Stage = string(se.Stage)
		}
		return result, err
	}
	return &WorkflowResult{Success: true, Stage: string(pipeline.StageCompleted), Records: records}, nil
}

// Handle is the invocation boundary: it decodes a trigger event, runs one
// ingestion and converts the outcome into a Response. It never panics on
// pipeline errors and never returns them; they are logged and reported.
func (w *IngestWorkflow) Handle(ctx context.Context, event pipeline.TriggerEvent) pipeline.Response {
	runID := uuid.New().String()

	req, err := RequestFromEvent(event, w.cfg.SourceContainer)
	if err != nil {
		err = pipeline.Fail(pipeline.StageReceived, err)
		log.Printf("[%s] Rejected trigger event: %v", runID, err)
		w.deps.Metrics.IncFailure(string(pipeline.StageReceived), pipeline.Kind(err))
		return NewResponse(runID, nil, err)
	}

	records, err := w.Ingest(ctx, runID, req)
	return NewResponse(runID, records, err)
}

// Ingest processes one archive. Records committed before a failure are
// returned alongside the error; they are not rolled back.
func (w *IngestWorkflow) Ingest(ctx context.Context, runID string, req pipeline.IngestRequest) ([]pipeline.RecordResult, error) {
	w.deps.Metrics.RunStarted()
	defer w.deps.Metrics.RunFinished()

	log.Printf("[%s] Starting catalog ingestion for %s/%s", runID, req.Container, req.Key)
	records, err := w.ingest(ctx, runID, req)
	if err != nil {
		var se *pipeline.StageError
		stage := "unknown"
		if errors.As(err, &se) {
			stage = string(se.Stage)
		}
		w.deps.Metrics.IncFailure(stage, pipeline.Kind(err))
		log.Printf("[%s] Catalog ingestion failed at stage=%s kind=%s after %d record(s): %v", runID, stage, pipeline.Kind(err), len(records), err)
		return records, err
	}

	log.Printf("[%s] Catalog ingestion completed successfully: %d record(s)", runID, len(records))
	return records, nil
}

func (w *IngestWorkflow) ingest(ctx context.Context, runID string, req pipeline.IngestRequest) ([]pipeline.RecordResult, error) {
	// Step 1: Fetch archive
	w.recordSubmission(ctx, runID, req)

	var data []byte
	err := w.timed(pipeline.StageReceived, func() (err error) {
		data, err = w.deps.Source.Get(ctx, req.Container, req.Key)
		return err
	})
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageReceived, err)
	}
	log.Printf("[%s] Step 1: Archive fetched (%d bytes)", runID, len(data))

	// Step 2: Unpack
	var a *archive.Archive
	err = w.timed(pipeline.StageUnpacked, func() (err error) {
		a, err = archive.Open(data)
		return err
	})
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageUnpacked, err)
	}
	log.Printf("[%s] Step 2: Archive unpacked (%d entries)", runID, a.Len())

	// Step 3: Evaluate metadata script
	var script *archive.Entry
	var entries []catalog.Entry
	err = w.timed(pipeline.StageEvaluated, func() (err error) {
		script, entries, err = evaluateScript(ctx, w.evaluator, a)
		return err
	})
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageEvaluated, err)
	}
	log.Printf("[%s] Step 3: Metadata script %s evaluated: %d entries", runID, script.Path, len(entries))

	// Step 4: Classify media assets
	var images, videos []assets.Asset
	err = w.timed(pipeline.StageClassified, func() (err error) {
		images, videos, err = classifyMedia(a, script)
		return err
	})
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageClassified, err)
	}
	log.Printf("[%s] Step 4: Classified %d image(s) and %d video(s)", runID, len(images), len(videos))

	// Step 5: Allocate identifiers and match assets
	var hwm int64
	var plans []catalog.Plan
	err = w.timed(pipeline.StageAllocated, func() error {
		if err := catalog.ValidateNames(entries); err != nil {
			return err
		}
		var err error
		hwm, err = catalog.HighWaterMark(ctx, w.deps.Table, w.cfg.TableName, w.cfg.IdentifierField)
		if err != nil {
			return err
		}
		plans, err = catalog.Allocate(entries, images, videos, hwm)
		return err
	})
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageAllocated, err)
	}
	log.Printf("[%s] Step 5: High-water mark %d, allocated ids %d..%d", runID, hwm, hwm+1, hwm+int64(len(plans)))

	// Step 6: Upload assets and write records, one entry at a time
	var records []catalog.Record
	err = w.timed(pipeline.StagePersisting, func() error {
		var err error
		records, err = w.committer.Commit(ctx, runID, plans)
		return err
	})
	results := w.summarize(plans, records)
	if err != nil {
		return results, pipeline.Fail(pipeline.StagePersisting, err)
	}
	log.Printf("[%s] Step 6: Persisted %d record(s)", runID, len(records))

	return results, nil
}

// recordSubmission notes the archive in the dedupe ledger. A repeat
// submission reallocates identifiers, so it is logged loudly.
func (w *IngestWorkflow) recordSubmission(ctx context.Context, runID string, req pipeline.IngestRequest) {
	if w.deps.Seen == nil {
		return
	}
	count, err := w.deps.Seen.Record(ctx, dedupe.Key(req.Container, req.Key), req.Job)
	if err != nil {
		log.Printf("[%s] Failed to record archive submission: %v", runID, err)
		return
	}
	if count > 1 {
		log.Printf("[%s] WARNING: archive %s/%s seen %d times; identifiers will be reallocated and may duplicate earlier records", runID, req.Container, req.Key, count)
	}
}

func (w *IngestWorkflow) timed(stage pipeline.Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	w.deps.Metrics.ObserveStage(string(stage), status, time.Since(start))
	return err
}

// summarize pairs committed records with their plans
func (w *IngestWorkflow) summarize(plans []catalog.Plan, records []catalog.Record) []pipeline.RecordResult {
	results := make([]pipeline.RecordResult, 0, len(records))
	for i, rec := range records {
		images, _ := rec[w.cfg.ImageField].([]string)
		videos, _ := rec[w.cfg.VideoField].([]string)
		results = append(results, pipeline.RecordResult{
			ID:     plans[i].ID,
			Name:   plans[i].Name,
			Images: images,
			Videos: videos,
		})
	}
	return results
}

// NewResponse converts an ingestion outcome into an invocation Response
func NewResponse(runID string, records []pipeline.RecordResult, err error) pipeline.Response {
	if err != nil {
		return pipeline.Response{
			StatusCode: 500,
			Body: pipeline.ResponseBody{
				Message: pipeline.MessageFailure,
				Error:   err.Error(),
				RunID:   runID,
				Records: records,
			},
		}
	}
	return pipeline.Response{
		StatusCode: 200,
		Body: pipeline.ResponseBody{
			Message: pipeline.MessageSuccess,
			RunID:   runID,
			Records: records,
		},
	}
}
