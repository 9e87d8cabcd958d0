package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tendant/catalog-ingest-pipeline/internal/workflows"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

func newInspectCmd() *cobra.Command {
	var hwm int64

	cmd := &cobra.Command{
		Use:   "inspect <archive.zip>",
		Short: "Show the records an archive would produce",
		Long: `Evaluates the metadata script and matches assets without uploading
or writing anything. Identifiers are allocated above --hwm.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read archive: %w", err)
			}
			return inspect(cmd.Context(), data, hwm, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Int64Var(&hwm, "hwm", 0, "current highest identifier in the catalog table")

	return cmd
}

func inspect(ctx context.Context, data []byte, hwm int64, out io.Writer) error {
	var cfg pipeline.Config
	cfg.WithDefaults()

	evaluator, err := workflows.NewMetadataEvaluator(cfg)
	if err != nil {
		return err
	}
	plan, err := workflows.PlanArchive(ctx, evaluator, data, hwm)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "script: %s\nimages: %d\nvideos: %d\n\n", plan.Script, len(plan.Images), len(plan.Videos))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tIMAGES\tVIDEOS")
	for _, p := range plan.Plans {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", p.ID, p.Name, len(p.Images), len(p.Videos))
	}
	return tw.Flush()
}
