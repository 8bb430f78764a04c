package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/notegraph/notegraph/internal/ingest"
	"github.com/notegraph/notegraph/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		addr  string
		watch bool
		sync  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve starts the message bus, registers the agents, and exposes the
engine over a JSON HTTP API. With --watch the corpus directory is
monitored and changed documents are re-ingested automatically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			if sync {
				batch, _, err := a.pipeline.Sync(ctx, a.source, "", false)
				if err != nil {
					return err
				}
				slog.Info("corpus synced",
					slog.Int("ingested", batch.Successful),
					slog.Int("skipped", batch.Skipped),
					slog.Int("failed", batch.Failed))
			}

			if watch {
				w := ingest.NewWatcher(a.pipeline, a.source, a.cfg.Paths.Corpus, 0)
				go func() {
					if err := w.Run(ctx); err != nil && ctx.Err() == nil {
						slog.Error("watcher stopped", slog.String("error", err.Error()))
					}
				}()
			}

			if addr == "" {
				addr = a.cfg.Addr()
			}
			srv := server.New(addr, server.Options{
				Store:     a.store,
				Searcher:  a.searcher,
				Assembler: a.assembler,
				Linker:    a.linker,
				Workflows: a.workflows,
				Bus:       a.bus,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				slog.Info("shutting down")
				return srv.Shutdown(context.Background())
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Watch the corpus and re-ingest changes")
	cmd.Flags().BoolVar(&sync, "sync", true, "Sync the corpus before serving")
	return cmd
}
