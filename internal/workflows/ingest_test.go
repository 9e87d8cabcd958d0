package workflows

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/catalog-ingest-pipeline/internal/archive"
	"github.com/tendant/catalog-ingest-pipeline/internal/metrics"
	"github.com/tendant/catalog-ingest-pipeline/internal/storage"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

type fixture struct {
	source   *storage.MemoryStore
	dest     *storage.MemoryStore
	table    *storage.MemoryTable
	seen     *fakeSeen
	workflow *IngestWorkflow
}

type fakeSeen struct {
	counts map[string]int
}

func (f *fakeSeen) Record(ctx context.Context, archiveKey string, job string) (int, error) {
	f.counts[archiveKey]++
	return f.counts[archiveKey], nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		source: storage.NewMemoryStore(),
		dest:   storage.NewMemoryStore(),
		table:  storage.NewMemoryTable("Movie_ID"),
		seen:   &fakeSeen{counts: map[string]int{}},
	}
	w, err := NewIngestWorkflow(pipeline.Config{
		SourceContainer:      "source",
		DestinationContainer: "dest",
		TableName:            "Movies",
	}, IngestDeps{
		Source:   f.source,
		Uploader: f.dest,
		Table:    f.table,
		Seen:     f.seen,
		Metrics:  metrics.MustNew(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	f.workflow = w
	return f
}

func (f *fixture) putArchive(t *testing.T, key string, files ...archive.File) {
	t.Helper()
	data, err := archive.Build(files...)
	require.NoError(t, err)
	require.NoError(t, f.source.Upload(context.Background(), "source", key, data, "application/zip"))
}

func (f *fixture) seedIDs(t *testing.T, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.table.Put(context.Background(), "Movies", map[string]any{"Movie_ID": id, "Name": "existing"}))
	}
}

const twoMovies = `const testArray = [{ Name: "Alpha", Year: 2001 }, { Name: "Beta" }];`

func TestHandleEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.seedIDs(t, 2, 5, 3)
	f.putArchive(t, "batch one.zip",
		archive.File{Name: "movies.js", Body: []byte(twoMovies)},
		archive.File{Name: "Poster_Images/Alpha.png", Body: []byte("alpha")},
		archive.File{Name: "Movie_Videos/Beta.mp4", Body: []byte("beta")},
		archive.File{Name: "readme.txt", Body: []byte("ignored")},
	)
	puts := f.table.Puts()

	resp := f.workflow.Handle(context.Background(), pipeline.NewTriggerEvent("source", "batch+one.zip"))
	require.Equal(t, 200, resp.StatusCode, resp.Body.Error)
	assert.Equal(t, pipeline.MessageSuccess, resp.Body.Message)
	assert.Empty(t, resp.Body.Error)
	assert.NotEmpty(t, resp.Body.RunID)

	assert.Equal(t, 2, f.dest.Uploads())
	assert.Equal(t, 2, f.table.Puts()-puts)

	require.Len(t, resp.Body.Records, 2)
	alpha, beta := resp.Body.Records[0], resp.Body.Records[1]
	assert.Equal(t, int64(6), alpha.ID)
	assert.Equal(t, "Alpha", alpha.Name)
	assert.Equal(t, []string{"mem://dest/Alpha/Poster_Images/Alpha.png"}, alpha.Images)
	assert.Empty(t, alpha.Videos)
	assert.Equal(t, int64(7), beta.ID)
	assert.Empty(t, beta.Images)
	assert.Equal(t, []string{"mem://dest/Beta/Movie_Videos/Beta.mp4"}, beta.Videos)

	item, ok := f.table.Item("Movies", 6)
	require.True(t, ok)
	assert.Equal(t, "Alpha", item["Name"])
	assert.Equal(t, []any{"mem://dest/Alpha/Poster_Images/Alpha.png"}, item["Image_url"])
	assert.Equal(t, []any{}, item["Video_url"])

	obj, ok := f.dest.Object("dest", "Alpha/Poster_Images/Alpha.png")
	require.True(t, ok)
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, 1, f.seen.counts["source/batch one.zip"])
}

func TestHandleMissingMetadataScript(t *testing.T) {
	f := newFixture(t)
	f.putArchive(t, "batch.zip",
		archive.File{Name: "Poster_Images/Alpha.png", Body: []byte("alpha")},
	)

	resp := f.workflow.Handle(context.Background(), pipeline.NewTriggerEvent("source", "batch.zip"))
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, pipeline.MessageFailure, resp.Body.Message)
	assert.Contains(t, resp.Body.Error, "validation error")
	assert.Equal(t, 0, f.dest.Uploads())
	assert.Equal(t, 0, f.table.Puts())
}

func TestIngestFailureKinds(t *testing.T) {
	cases := []struct {
		name  string
		files []archive.File
		raw   []byte
		kind  error
		stage pipeline.Stage
	}{
		{
			name:  "not a zip",
			raw:   []byte("plain text"),
			kind:  pipeline.ErrArchiveFormat,
			stage: pipeline.StageUnpacked,
		},
		{
			name: "no assets",
			files: []archive.File{
				{Name: "movies.js", Body: []byte(twoMovies)},
				{Name: "notes/readme.txt", Body: []byte("x")},
			},
			kind:  pipeline.ErrValidation,
			stage: pipeline.StageClassified,
		},
		{
			name: "script throws",
			files: []archive.File{
				{Name: "movies.js", Body: []byte(`throw new Error("bad batch")`)},
				{Name: "Poster_Images/Alpha.png", Body: []byte("x")},
			},
			kind:  pipeline.ErrMetadataEval,
			stage: pipeline.StageEvaluated,
		},
		{
			name: "reads environment",
			files: []archive.File{
				{Name: "movies.js", Body: []byte(`const testArray = [{ Name: process.env.AWS_SECRET_ACCESS_KEY }];`)},
				{Name: "Poster_Images/Alpha.png", Body: []byte("x")},
			},
			kind:  pipeline.ErrMetadataEval,
			stage: pipeline.StageEvaluated,
		},
		{
			name: "nameless entry",
			files: []archive.File{
				{Name: "movies.js", Body: []byte(`const testArray = [{ Name: "Alpha" }, { Title: "Beta" }];`)},
				{Name: "Poster_Images/Alpha.png", Body: []byte("x")},
			},
			kind:  pipeline.ErrValidation,
			stage: pipeline.StageAllocated,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			data := tc.raw
			if data == nil {
				var err error
				data, err = archive.Build(tc.files...)
				require.NoError(t, err)
			}
			require.NoError(t, f.source.Upload(context.Background(), "source", "batch.zip", data, "application/zip"))

			req := pipeline.IngestRequest{Container: "source", Key: "batch.zip", Job: pipeline.JobCatalogIngest}
			_, err := f.workflow.Ingest(context.Background(), "run", req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)

			var se *pipeline.StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tc.stage, se.Stage)

			assert.Equal(t, 0, f.dest.Uploads())
			assert.Equal(t, 0, f.table.Puts())
		})
	}
}

func TestIngestMissingArchive(t *testing.T) {
	f := newFixture(t)
	req := pipeline.IngestRequest{Container: "source", Key: "missing.zip", Job: pipeline.JobCatalogIngest}

	_, err := f.workflow.Ingest(context.Background(), "run", req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

type brokenScanTable struct {
	*storage.MemoryTable
}

func (brokenScanTable) Scan(ctx context.Context, table string, projection ...string) ([]map[string]any, error) {
	return nil, errors.New("table unavailable")
}

func TestIngestAllocationFetchFailure(t *testing.T) {
	f := newFixture(t)
	w, err := NewIngestWorkflow(f.workflow.Config(), IngestDeps{
		Source:   f.source,
		Uploader: f.dest,
		Table:    brokenScanTable{f.table},
	})
	require.NoError(t, err)
	f.putArchive(t, "batch.zip",
		archive.File{Name: "movies.js", Body: []byte(twoMovies)},
		archive.File{Name: "Poster_Images/Alpha.png", Body: []byte("alpha")},
	)

	resp := w.Handle(context.Background(), pipeline.NewTriggerEvent("source", "batch.zip"))
	assert.Equal(t, 500, resp.StatusCode)
	assert.Contains(t, resp.Body.Error, "allocation fetch error")
	assert.Equal(t, 0, f.dest.Uploads())
}

func TestIngestUnmatchedEntryIsAccepted(t *testing.T) {
	f := newFixture(t)
	f.putArchive(t, "batch.zip",
		archive.File{Name: "movies.js", Body: []byte(`const testArray = [{ Name: "Gamma" }];`)},
		archive.File{Name: "Poster_Images/Alpha.png", Body: []byte("alpha")},
	)

	resp := f.workflow.Handle(context.Background(), pipeline.NewTriggerEvent("source", "batch.zip"))
	require.Equal(t, 200, resp.StatusCode, resp.Body.Error)
	require.Len(t, resp.Body.Records, 1)
	assert.Equal(t, int64(1), resp.Body.Records[0].ID)
	assert.Empty(t, resp.Body.Records[0].Images)
	assert.Equal(t, 0, f.dest.Uploads())
	assert.Equal(t, 1, f.table.Puts())
}

func TestIngestRepeatedArchiveIsTracked(t *testing.T) {
	f := newFixture(t)
	f.putArchive(t, "batch.zip",
		archive.File{Name: "movies.js", Body: []byte(twoMovies)},
		archive.File{Name: "Poster_Images/Alpha.png", Body: []byte("alpha")},
	)

	first := f.workflow.Handle(context.Background(), pipeline.NewTriggerEvent("source", "batch.zip"))
	second := f.workflow.Handle(context.Background(), pipeline.NewTriggerEvent("source", "batch.zip"))
	require.Equal(t, 200, first.StatusCode)
	require.Equal(t, 200, second.StatusCode)

	assert.Equal(t, 2, f.seen.counts["source/batch.zip"])
	// Uploads overwrite by key; identifiers are reallocated
	assert.Equal(t, []string{"dest/Alpha/Poster_Images/Alpha.png"}, f.dest.Keys())
	assert.Equal(t, int64(3), second.Body.Records[0].ID)
	assert.Equal(t, 4, f.table.Len("Movies"))
}

func TestExecuteReportsStage(t *testing.T) {
	f := newFixture(t)
	runner := NewWorkflowRunner(nil)
	runner.Register(pipeline.JobCatalogIngest, f.workflow)

	result, err := runner.Run(&WorkflowContext{
		Ctx:     context.Background(),
		Request: pipeline.IngestRequest{Container: "source", Key: "missing.zip", Job: pipeline.JobCatalogIngest},
		RunID:   "run-1",
	})
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, string(pipeline.StageReceived), result.Stage)

	f.putArchive(t, "batch.zip",
		archive.File{Name: "movies.js", Body: []byte(twoMovies)},
		archive.File{Name: "Poster_Images/Alpha.png", Body: []byte("alpha")},
	)
	result, err = runner.Run(&WorkflowContext{
		Ctx:     context.Background(),
		Request: pipeline.IngestRequest{Container: "source", Key: "batch.zip", Job: pipeline.JobCatalogIngest},
		RunID:   "run-2",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, string(pipeline.StageCompleted), result.Stage)
	assert.Len(t, result.Records, 2)

	_, err = runner.Run(&WorkflowContext{Ctx: context.Background(), Request: pipeline.IngestRequest{Job: "thumbnail"}})
	assert.True(t, errors.Is(err, ErrWorkflowNotFound))

	_, err = runner.RunAsync(context.Background(), pipeline.IngestRequest{Key: "k", Job: pipeline.JobCatalogIngest})
	assert.True(t, errors.Is(err, ErrNoRuntime))
}

func TestNewIngestWorkflowValidatesConfig(t *testing.T) {
	store := storage.NewMemoryStore()
	table := storage.NewMemoryTable("Movie_ID")
	deps := IngestDeps{Source: store, Uploader: store, Table: table}

	_, err := NewIngestWorkflow(pipeline.Config{TableName: "Movies"}, deps)
	assert.Error(t, err)
	_, err = NewIngestWorkflow(pipeline.Config{DestinationContainer: "dest"}, deps)
	assert.Error(t, err)
	_, err = NewIngestWorkflow(pipeline.Config{DestinationContainer: "dest", TableName: "Movies", Thumbnails: true}, deps)
	assert.Error(t, err)
	_, err = NewIngestWorkflow(pipeline.Config{DestinationContainer: "dest", TableName: "Movies", ScriptSymbol: "a b"}, deps)
	assert.Error(t, err)
}

func TestIngestDotNameStaysInsideContainer(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(t)
	w, err := NewIngestWorkflow(f.workflow.Config(), IngestDeps{
		Source:   f.source,
		Uploader: storage.NewHTTPBlobStore(srv.URL),
		Table:    f.table,
	})
	require.NoError(t, err)
	f.putArchive(t, "batch.zip",
		archive.File{Name: "movies.js", Body: []byte(`var testArray = [{ Name: ".." }];`)},
		archive.File{Name: "Poster_Images/a..png", Body: []byte("x")},
	)

	resp := w.Handle(context.Background(), pipeline.NewTriggerEvent("source", "batch.zip"))
	assert.Equal(t, 500, resp.StatusCode)
	assert.Contains(t, resp.Body.Error, "upload error")
	assert.Contains(t, resp.Body.Error, storage.ErrInvalidKey.Error())
	assert.Empty(t, paths)
	assert.Equal(t, 0, f.table.Puts())
}
