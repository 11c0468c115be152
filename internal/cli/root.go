// Package cli implements the finex command line: local extraction of a
// statement file and read access to persisted runs.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finextract/internal/config"
	"finextract/internal/logger"
)

// ConfigLoader supplies the application configuration.
type ConfigLoader func() (*config.Config, error)

type env struct {
	load   ConfigLoader
	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand builds the finex command tree.
func NewRootCommand(load ConfigLoader) *cobra.Command {
	e := &env{load: load}

	root := &cobra.Command{
		Use:           "finex",
		Short:         "Extract securities positions from bank statement text",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := e.load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			zl, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			e.cfg, e.logger = cfg, zl
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}

	root.AddCommand(newExtractCommand(e), newRunsCommand(e))
	return root
}

// writeOutput sends fn's output to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(w)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
