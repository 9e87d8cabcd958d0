package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tendant/catalog-ingest-pipeline/internal/config"
	"github.com/tendant/catalog-ingest-pipeline/internal/workflows"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

func newIngestCmd() *cobra.Command {
	var (
		table      string
		dest       string
		thumbnails bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <archive.zip>",
		Short: "Ingest a local archive",
		Long: `Copies the archive into the source container, then runs one ingestion
against it and prints the invocation response as JSON.

Records go to Postgres when DATABASE_URL is set, otherwise to an in-memory
table that is discarded on exit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if table != "" {
				cfg.Pipeline.TableName = table
			}
			if dest != "" {
				cfg.Pipeline.DestinationContainer = dest
			}
			if cmd.Flags().Changed("thumbnails") {
				cfg.Pipeline.Thumbnails = thumbnails
			}

			resp, err := runIngest(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if resp.StatusCode != 200 {
				return fmt.Errorf("ingestion failed: %s", resp.Body.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "catalog table (overrides CATALOG_TABLE)")
	cmd.Flags().StringVar(&dest, "dest", "", "destination container (overrides DESTINATION_CONTAINER)")
	cmd.Flags().BoolVar(&thumbnails, "thumbnails", false, "generate poster thumbnails")

	return cmd
}

func runIngest(ctx context.Context, cfg *config.Config, archivePath string, out io.Writer) (*pipeline.Response, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	store, err := cfg.ObjectStore()
	if err != nil {
		return nil, err
	}
	key := filepath.Base(archivePath)
	if err := store.Upload(ctx, cfg.Pipeline.SourceContainer, key, data, "application/zip"); err != nil {
		return nil, fmt.Errorf("failed to stage archive: %w", err)
	}

	db, err := cfg.OpenDatabase(ctx)
	if err != nil {
		return nil, err
	}
	if db != nil {
		defer db.Close()
	}

	deps, err := cfg.IngestDeps(ctx, store, db, nil)
	if err != nil {
		return nil, err
	}
	workflow, err := workflows.NewIngestWorkflow(cfg.Pipeline, deps)
	if err != nil {
		return nil, err
	}

	resp := workflow.Handle(ctx, pipeline.NewTriggerEvent(cfg.Pipeline.SourceContainer, key))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return nil, fmt.Errorf("failed to write response: %w", err)
	}
	return &resp, nil
}
