package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/notegraph/notegraph/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	var (
		prefix  string
		force   bool
		watch   bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest the markdown corpus into the index",
		Long: `Ingest walks the corpus directory, parses every markdown document,
splits it into heading-scoped chunks, and persists chunks, tags,
entities, and embeddings. Unchanged documents are skipped unless
--force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			batch, results, err := a.pipeline.Sync(ctx, a.source, prefix, force)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"batch":   batch,
					"results": results,
				})
			}
			printer().IngestBatch(batch, results)

			if watch {
				w := ingest.NewWatcher(a.pipeline, a.source, a.cfg.Paths.Corpus, 0)
				return w.Run(ctx)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Only ingest objects under this prefix")
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest documents even when unchanged")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep watching the corpus for changes")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted output")
	return cmd
}
