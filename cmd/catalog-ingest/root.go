package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog-ingest",
		Short: "Ingest media archives into the catalog",
		Long: `catalog-ingest unpacks a zip archive holding a metadata script, poster
images and movie videos, uploads the assets and writes one catalog record
per metadata entry.

Storage and table settings are read from the environment (and .env).`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newInspectCmd())

	return cmd
}
