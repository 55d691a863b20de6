// Package cmd provides the bm25admin CLI commands.
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/paradex-labs/bm25index/internal/am"
	"github.com/paradex-labs/bm25index/internal/config"
	"github.com/paradex-labs/bm25index/internal/obs"
	"github.com/paradex-labs/bm25index/internal/ui"
)

// indexPath and jsonOutput/noColor are shared by every subcommand;
// cobra persistent flags rather than a context value.
var (
	indexPath  string
	jsonOutput bool
	noColor    bool
	debug      bool

	logger *obs.Logger
)

// NewRootCmd creates the root command for bm25admin.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bm25admin",
		Short: "Inspect and validate BM25 index access method indexes",
		Long: `bm25admin opens an index's on-disk catalog and segment files
directly, without a live writer process, and reports schema,
segment/merge/vacuum state, checksum validation and amcheck-style
cross-checking against a source of truth.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&indexPath, "index", "", "path to the index directory (required)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging to the index's log file")
	_ = root.MarkPersistentFlagRequired("index")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if !debug {
			return nil
		}
		l, err := obs.Open(obs.Options{IndexDir: indexPath, Debug: true})
		if err != nil {
			return fmt.Errorf("setting up debug logging: %w", err)
		}
		logger = l
		return nil
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	}

	root.AddCommand(newInitCmd())
	root.AddCommand(newSchemaCmd())
	root.AddCommand(newIndexInfoCmd())
	root.AddCommand(newMergeInfoCmd())
	root.AddCommand(newVacuumInfoCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newLayersCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// renderer builds the report renderer for the current invocation's
// --no-color flag (or NO_COLOR from the environment).
func renderer(cmd *cobra.Command) *ui.Renderer {
	return ui.NewRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor())
}

// openIndex attaches to the index at --index: it reads the persisted
// header and options sidecar am.Build wrote, then calls am.Open. Every
// subcommand needs exactly this, since none of them run inside a
// process that already holds the index open.
func openIndex() (*am.Index, error) {
	if indexPath == "" {
		return nil, fmt.Errorf("--index is required")
	}
	opts, err := config.Load(filepath.Join(indexPath, "options.yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading index options: %w", err)
	}
	hdr, err := am.ReadHeader(indexPath)
	if err != nil {
		return nil, fmt.Errorf("reading index header: %w", err)
	}
	idx, err := am.Open(indexPath, opts, hdr)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if logger != nil {
		idx.SetLogger(logger.For("admin"))
	}
	return idx, nil
}
