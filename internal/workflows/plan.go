package workflows

import (
	"context"
	"fmt"

	"github.com/tendant/catalog-ingest-pipeline/internal/archive"
	"github.com/tendant/catalog-ingest-pipeline/internal/assets"
	"github.com/tendant/catalog-ingest-pipeline/internal/catalog"
	"github.com/tendant/catalog-ingest-pipeline/internal/metadata"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

// DryRun is what an archive would produce, computed without touching
// storage or the catalog table
type DryRun struct {
	Script  string
	Entries []catalog.Entry
	Images  []assets.Asset
	Videos  []assets.Asset
	Plans   []catalog.Plan
}

// NewMetadataEvaluator builds the sandboxed script evaluator for cfg
func NewMetadataEvaluator(cfg pipeline.Config) (*metadata.Evaluator, error) {
	cfg.WithDefaults()
	evaluator, err := metadata.NewEvaluator(cfg.ScriptSymbol, cfg.EvalTimeout)
	if err != nil {
		return nil, err
	}
	evaluator.SetMemoryLimit(cfg.EvalMemoryLimit)
	return evaluator, nil
}

// PlanArchive runs the unpack, evaluate, classify and allocate steps over
// data, allocating identifiers above hwm. Failures carry their stage like
// a real ingestion.
func PlanArchive(ctx context.Context, evaluator *metadata.Evaluator, data []byte, hwm int64) (*DryRun, error) {
	a, err := archive.Open(data)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageUnpacked, err)
	}
	script, entries, err := evaluateScript(ctx, evaluator, a)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageEvaluated, err)
	}
	images, videos, err := classifyMedia(a, script)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageClassified, err)
	}
	plans, err := catalog.Allocate(entries, images, videos, hwm)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageAllocated, err)
	}
	return &DryRun{
		Script:  script.Path,
		Entries: entries,
		Images:  images,
		Videos:  videos,
		Plans:   plans,
	}, nil
}

// evaluateScript finds the archive's metadata script and evaluates it
func evaluateScript(ctx context.Context, evaluator *metadata.Evaluator, a *archive.Archive) (*archive.Entry, []catalog.Entry, error) {
	script, err := metadata.FindScript(a)
	if err != nil {
		return nil, nil, err
	}
	src, err := script.Text()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", pipeline.ErrMetadataEval, err)
	}
	entries, err := evaluator.Evaluate(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	return script, entries, nil
}

// classifyMedia sorts every entry but the script into images and videos.
// An archive with neither is rejected.
func classifyMedia(a *archive.Archive, script *archive.Entry) ([]assets.Asset, []assets.Asset, error) {
	media := make([]*archive.Entry, 0, a.Len())
	for _, e := range a.Entries() {
		if e != script {
			media = append(media, e)
		}
	}
	images, videos := assets.Classify(media)
	if len(images) == 0 && len(videos) == 0 {
		return nil, nil, fmt.Errorf("%w: no image or video assets in archive", pipeline.ErrValidation)
	}
	return images, videos, nil
}
