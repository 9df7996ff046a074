package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/order-reconciler/internal/buildstate"
	"github.com/ignite/order-reconciler/internal/cleanmaster"
	"github.com/ignite/order-reconciler/internal/config"
	"github.com/ignite/order-reconciler/internal/eventlog"
	"github.com/ignite/order-reconciler/internal/exclusion"
	"github.com/ignite/order-reconciler/internal/pkg/distlock"
	"github.com/ignite/order-reconciler/internal/service/banned"
	"github.com/ignite/order-reconciler/internal/sheet"
)

type buildOptions struct {
	rawA, rawB string
	out        string
	bannedFile string
	configPath string
	keywords   []string
	chunkSize  int
}

func newBuildCmd(root *rootOptions) *cobra.Command {
	o := &buildOptions{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the canonical table from two raw CSV exports",
		Example: `  cleanmaster build --raw-a a.csv --raw-b b.csv --banned banned.txt --out clean-master.csv
  cleanmaster build --raw-a a.csv --raw-b b.csv --config config/config.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), root, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.rawA, "raw-a", "", "Platform A export (CSV)")
	f.StringVar(&o.rawB, "raw-b", "", "Platform B export (CSV)")
	f.StringVar(&o.out, "out", "clean-master.csv", "where to write the canonical table")
	f.StringVar(&o.bannedFile, "banned", "", "file of banned emails or domains, one per line")
	f.StringVar(&o.configPath, "config", "", "YAML config supplying exclusion rules and chunk size")
	f.StringSliceVar(&o.keywords, "keyword", nil, "banned product keyword (repeatable, added to the config list)")
	f.IntVar(&o.chunkSize, "chunk-size", 0, "rows per chunk (default from config or 1500)")
	cmd.MarkFlagRequired("raw-a")
	cmd.MarkFlagRequired("raw-b")
	return cmd
}

func runBuild(ctx context.Context, root *rootOptions, o *buildOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := root.logger()
	if err != nil {
		return err
	}

	var excl config.ExclusionConfig
	chunk := cleanmaster.DefaultChunkSize
	if o.configPath != "" {
		cfg, err := config.Load(o.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		excl = cfg.Exclusion
		chunk = cfg.Build.ChunkSize
	}
	if o.chunkSize > 0 {
		chunk = o.chunkSize
	}

	rawA, err := loadCSV("Platform A Orders", o.rawA)
	if err != nil {
		return err
	}
	rawB, err := loadCSV("Platform B Orders", o.rawB)
	if err != nil {
		return err
	}

	svc := banned.NewService(banned.NewMemoryRepository())
	if o.bannedFile != "" {
		n, err := loadBanned(ctx, svc, o.bannedFile)
		if err != nil {
			return err
		}
		log.Info("banned list loaded", "entries", n)
	}

	output := sheet.NewMemoryTable("Clean Master", nil)
	b := cleanmaster.New(cleanmaster.Deps{
		RawA:     rawA,
		RawB:     rawB,
		Output:   output,
		State:    buildstate.NewMemoryRepository(),
		Orders:   buildstate.NewMemoryOrderIndex(),
		Lock:     distlock.NewMemoryLock("cleanmaster-cli"),
		Banned:   exclusion.NewCache(svc),
		Products: exclusion.NewProductRules(append(excl.BannedProductKeywords, o.keywords...)),
		Renewal: exclusion.RenewalRule{
			Year:          excl.Renewal.Year,
			Jurisdictions: excl.Renewal.Jurisdictions,
			Entities:      excl.Renewal.Entities,
			RenewalStems:  excl.Renewal.RenewalStems,
		},
		Events: eventlog.NewLoggerSink(log),
		Log:    log,
	}, cleanmaster.Options{ChunkSize: chunk, SoftLimit: 24 * time.Hour})

	var res cleanmaster.Result
	for res.Status != cleanmaster.StatusCompleted {
		if res, err = b.Run(ctx); err != nil {
			return err
		}
	}

	if err := writeCSV(ctx, o.out, output); err != nil {
		return err
	}
	return root.printJSON(struct {
		cleanmaster.Result
		Output string `json:"output"`
	}{res, o.out})
}

// loadBanned adds every non-blank, non-comment line of path.
func loadBanned(ctx context.Context, svc *banned.Service, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open banned list: %w", err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if _, err := svc.Add(ctx, text, ""); err != nil {
			return n, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		n++
	}
	return n, sc.Err()
}

func writeCSV(ctx context.Context, path string, t sheet.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := sheet.WriteCSV(ctx, f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
