package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/paradex-labs/bm25index/configs"
)

func newInitCmd() *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "init",
		Short: "Write a starter options.yaml into the index directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}
	c.Flags().BoolVar(&force, "force", false, "overwrite an existing options.yaml")
	return c
}

func runInit(cmd *cobra.Command, force bool) error {
	target := filepath.Join(indexPath, "options.yaml")
	if !force {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", target)
		}
	}
	if err := os.MkdirAll(indexPath, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(configs.IndexOptionsTemplate), 0o644); err != nil {
		return fmt.Errorf("writing options template: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", target)
	return nil
}
