// Command cleanmaster runs the clean-master build and the order-date backfill
// against CSV exports, without any database or network dependency.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/order-reconciler/internal/pkg/logger"
	"github.com/ignite/order-reconciler/internal/sheet"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	logLevel string
	out      io.Writer
}

func (o *rootOptions) logger() (*logger.Logger, error) {
	level, err := logger.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	return logger.New(os.Stderr, level).With("service", "cleanmaster-cli"), nil
}

func (o *rootOptions) printJSON(v any) error {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}
	root := &cobra.Command{
		Use:           "cleanmaster",
		Short:         "Build a deduplicated, exclusion-filtered order table from platform exports",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")

	root.AddCommand(newBuildCmd(opts), newBackfillCmd(opts))
	return root
}

func loadCSV(name, path string) (*sheet.MemoryTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return sheet.LoadCSV(name, f)
}
