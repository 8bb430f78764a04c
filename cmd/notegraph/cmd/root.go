// Package cmd provides the CLI commands for notegraph.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/notegraph/notegraph/internal/config"
	"github.com/notegraph/notegraph/internal/logging"
	"github.com/notegraph/notegraph/internal/ui"
	"github.com/notegraph/notegraph/pkg/version"
)

// Persistent flags shared by every command.
var (
	configPath string
	dataDir    string
	corpusDir  string
	noColor    bool
	debugMode  bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the notegraph CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notegraph",
		Short: "Knowledge engine for markdown corpora",
		Long: `notegraph ingests markdown documents into a searchable knowledge graph:
chunked by heading, embedded, entity-tagged, and linked by semantic
similarity. Retrieval combines BM25, vector similarity, and graph
traversal.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("notegraph version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to notegraph.yaml")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the data directory")
	cmd.PersistentFlags().StringVar(&corpusDir, "corpus", "", "Override the corpus directory")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAnswerCmd())
	cmd.AddCommand(newFacetsCmd())
	cmd.AddCommand(newLinksCmd())
	cmd.AddCommand(newWorkflowCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// setupLogging installs the process logger before any command runs.
func setupLogging(*cobra.Command, []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg.Level = "debug"
	}
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

// applyFlagOverrides layers CLI flags over the loaded configuration.
func applyFlagOverrides(cfg *config.Config) {
	if dataDir != "" {
		cfg.Paths.Data = dataDir
	}
	if corpusDir != "" {
		cfg.Paths.Corpus = corpusDir
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
}

// printer returns the output renderer honoring the color flags.
func printer() *ui.Printer {
	return ui.NewPrinter(os.Stdout, noColor || !ui.IsTerminal(os.Stdout))
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		printer().Error(err)
		slog.Error("command failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
