package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ignite/order-reconciler/internal/backfill"
	"github.com/ignite/order-reconciler/internal/pkg/distlock"
)

type backfillOptions struct {
	rawA, rawB  string
	cleanMaster string
	out         string
}

func newBackfillCmd(root *rootOptions) *cobra.Command {
	o := &backfillOptions{}
	cmd := &cobra.Command{
		Use:   "backfill-dates",
		Short: "Fill blank order dates of a canonical table from the raw exports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBackfill(cmd.Context(), root, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.rawA, "raw-a", "", "Platform A export (CSV)")
	f.StringVar(&o.rawB, "raw-b", "", "Platform B export (CSV)")
	f.StringVar(&o.cleanMaster, "clean-master", "", "canonical table to repair (CSV)")
	f.StringVar(&o.out, "out", "", "where to write the repaired table (default: overwrite --clean-master)")
	cmd.MarkFlagRequired("raw-a")
	cmd.MarkFlagRequired("raw-b")
	cmd.MarkFlagRequired("clean-master")
	return cmd
}

func runBackfill(ctx context.Context, root *rootOptions, o *backfillOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := root.logger()
	if err != nil {
		return err
	}
	rawA, err := loadCSV("Platform A Orders", o.rawA)
	if err != nil {
		return err
	}
	rawB, err := loadCSV("Platform B Orders", o.rawB)
	if err != nil {
		return err
	}
	output, err := loadCSV("Clean Master", o.cleanMaster)
	if err != nil {
		return err
	}

	res, err := (&backfill.OrderDates{
		RawA:   rawA,
		RawB:   rawB,
		Output: output,
		Lock:   distlock.NewMemoryLock("cleanmaster-cli"),
		Log:    log,
	}).Run(ctx)
	if err != nil {
		return err
	}

	out := o.out
	if out == "" {
		out = o.cleanMaster
	}
	if err := writeCSV(ctx, out, output); err != nil {
		return err
	}
	return root.printJSON(res)
}
