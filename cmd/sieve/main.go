package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/oriumgames/sieve"
	"github.com/oriumgames/sieve/format"
	"github.com/oriumgames/sieve/region"
	"github.com/oriumgames/sieve/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sieve",
		Short:        "Scan, clean and stack Minecraft world saves",
		SilenceUsage: true,
	}
	root.AddCommand(newScanCmd(), newStackCmd())
	return root
}

type scanFlags struct {
	world             string
	config            string
	threads           int
	blocks            bool
	persistentLeaves  bool
	stripDisplayNames bool
	players           bool
	journal           string
	report            string
	db                string
	metrics           string
	perChunk          bool
	aligned           bool
	alignedSet        bool
	verbose           bool
}

func newScanCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a world for disallowed blocks and items",
		Long: `Scans the region files of a world for disallowed blocks and the player data
files for disallowed items. Chunks can be rewritten on the way.

Examples:
  sieve scan --world ./world --blocks
  sieve scan --world ./world --blocks --players --report out.jsonl.zst
  sieve scan --world ./world --persistent-leaves --strip-display-names`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("threads") {
				f.threads = 0
			}
			f.alignedSet = cmd.Flags().Changed("aligned")
			return runScan(cmd.Context(), f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.world, "world", "", "world folder to scan")
	fl.StringVar(&f.config, "config", "", "configuration file")
	fl.IntVar(&f.threads, "threads", sieve.DefaultThreads, "chunks processed at the same time")
	fl.BoolVar(&f.blocks, "blocks", false, "report disallowed blocks")
	fl.BoolVar(&f.persistentLeaves, "persistent-leaves", false, "mark every leaves block persistent")
	fl.BoolVar(&f.stripDisplayNames, "strip-display-names", false, "drop display names of plugin items in containers")
	fl.BoolVar(&f.players, "players", false, "report disallowed items held by players")
	fl.StringVar(&f.journal, "journal", "", "journal directory used to resume an interrupted scan")
	fl.StringVar(&f.report, "report", "", "write a JSON lines report, zstd compressed if the name ends in .zst")
	fl.StringVar(&f.db, "db", "", "record findings in a SQLite database")
	fl.StringVar(&f.metrics, "metrics", "", "write metrics in text format to this file")
	fl.BoolVar(&f.perChunk, "per-chunk", false, "report progress per chunk instead of per region")
	fl.BoolVar(&f.aligned, "aligned", false, "read block data written without straddling indices, overriding level.dat")
	fl.BoolVar(&f.verbose, "verbose", false, "log at debug level")
	_ = cmd.MarkFlagRequired("world")
	return cmd
}

func runScan(ctx context.Context, f scanFlags) error {
	log := newLogger(f.verbose)
	cfg, err := sieve.LoadConfig(f.config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if f.threads > 0 {
		cfg.Threads = f.threads
	}

	reg := prometheus.NewRegistry()
	metrics := sieve.NewMetrics(reg)
	rep := report.Report{}
	var scanErr error

	// Scan regions
	var mutators []sieve.Mutator
	if f.persistentLeaves {
		mutators = append(mutators, sieve.PersistentLeaves{})
	}
	if f.stripDisplayNames {
		mutators = append(mutators, sieve.StripDisplayNames{})
	}
	if f.blocks || len(mutators) > 0 {
		res, err := scanRegions(ctx, log, f, cfg, metrics, mutators)
		if res == nil {
			return err
		}
		rep.Scan = res
		if err != nil {
			log.Error("scan finished with errors", "err", err)
			scanErr = err
		}
	}

	// Scan players
	if f.players && ctx.Err() == nil {
		rules, err := cfg.ItemRules()
		if err != nil {
			return err
		}
		allow, err := cfg.Allowlist()
		if err != nil {
			return err
		}
		pr, err := sieve.ScanPlayers(ctx, f.world,
			sieve.WithItemRules(rules),
			sieve.WithAllowlist(allow),
			sieve.WithPlayerThreads(cfg.Threads),
			sieve.WithPlayerLogger(log),
		)
		if err != nil && pr == nil {
			return fmt.Errorf("scan players: %w", err)
		}
		rep.Players = pr
		for id, items := range pr.Offending {
			for _, item := range items {
				log.Warn("disallowed item", "player", id, "item", item.ID, "count", item.Count)
			}
		}
		log.Info("player scan done", "players", pr.Players, "offending", len(pr.Offending), "failed", len(pr.Failed), "ignored", len(pr.Ignored))
	}

	return errors.Join(scanErr, writeOutputs(ctx, log, f, rep, reg))
}

func scanRegions(ctx context.Context, log *slog.Logger, f scanFlags, cfg sieve.Config, metrics *sieve.Metrics, mutators []sieve.Mutator) (*sieve.Result, error) {
	files, err := sieve.RegionFiles(f.world)
	if err != nil {
		return nil, err
	}

	layout, err := worldLayout(log, f.world, f.aligned, f.alignedSet, len(mutators) > 0)
	if err != nil {
		return nil, err
	}

	var classifier *sieve.Classifier
	if f.blocks {
		if classifier, err = cfg.Classifier(); err != nil {
			return nil, err
		}
	}
	mode := sieve.ProgressPerRegion
	if f.perChunk {
		mode = sieve.ProgressPerChunk
	}
	opts := []sieve.ScanOption{
		sieve.WithThreads(cfg.Threads),
		sieve.WithLogger(log),
		sieve.WithProgress(sieve.LogProgress{Log: log}, mode),
		sieve.WithMetrics(metrics),
		sieve.WithMutators(mutators...),
		sieve.WithLayout(layout),
	}
	if f.journal != "" {
		j, err := sieve.OpenJournal(f.journal)
		if err != nil {
			return nil, err
		}
		defer j.Close()
		opts = append(opts, sieve.WithJournal(j))
	}

	log.Info("scanning regions", "world", f.world, "files", len(files), "threads", cfg.Threads, "mutators", len(mutators))
	res, err := sieve.NewScanner(region.Provider{}, classifier, opts...).Scan(ctx, files)
	for _, typ := range res.Types() {
		log.Warn("disallowed block", "type", typ, "count", len(res.Findings[typ]))
	}
	log.Info("region scan done",
		"regions", res.Regions,
		"chunks", res.Chunks,
		"findings", res.Count(),
		"failed", len(res.Failed),
		"mutated", res.Mutated,
		"write_failures", len(res.WriteFailures),
	)
	return res, err
}

// worldLayout reads the level.dat of the world in dir and picks the block data
// layout to scan it with.
func worldLayout(log *slog.Logger, dir string, aligned, forced, writing bool) (format.Layout, error) {
	requested := format.LayoutPacked
	if aligned {
		requested = format.LayoutAligned
	}
	var level *sieve.Level
	if l, err := sieve.ReadLevel(dir); err != nil {
		log.Warn("read level.dat failed", "world", dir, "err", err)
	} else {
		level = &l
		log.Info("world", "name", l.Name, "version", l.Version, "data_version", l.DataVersion)
	}

	layout, err := sieve.ChooseLayout(level, requested, forced, writing)
	if err != nil {
		return layout, fmt.Errorf("world %s: %w", dir, err)
	}
	if level != nil && layout != level.Layout() {
		log.Warn("block data layout does not match the world's data version", "world", dir, "layout", layout, "expected", level.Layout())
	}
	return layout, nil
}

func writeOutputs(ctx context.Context, log *slog.Logger, f scanFlags, rep report.Report, reg *prometheus.Registry) error {
	if f.report != "" {
		var err error
		if strings.HasSuffix(f.report, ".zst") {
			err = report.WriteJSONLZstd(f.report, rep)
		} else {
			err = writeJSONLFile(f.report, rep)
		}
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		log.Info("report written", "file", f.report)
	}

	if f.db != "" && rep.Scan != nil {
		idx, err := report.OpenSQLite(f.db)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer idx.Close()
		runID := uuid.NewString()
		if err := idx.Record(context.WithoutCancel(ctx), runID, rep.Scan); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		log.Info("run recorded", "db", f.db, "run", runID)
	}

	if f.metrics != "" {
		if err := prometheus.WriteToTextfile(f.metrics, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func writeJSONLFile(path string, rep report.Report) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteJSONL(out, rep); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

type stackFlags struct {
	config     string
	plan       string
	out        string
	threads    int
	aligned    bool
	alignedSet bool
	verbose    bool
}

func newStackCmd() *cobra.Command {
	var f stackFlags
	cmd := &cobra.Command{
		Use:   "stack WORLD_DIR...",
		Short: "Stack several worlds into one",
		Long: `Merges the region files of several worlds into one world, moving the blocks
of each world vertically as configured by the sections of the config file or
of a separate plan file. Worlds are matched against sections by folder name,
and later worlds overwrite earlier ones where they overlap.

Each world is read with the block data layout its level.dat implies. The
stacked world is written with the layout shared by all worlds, or with the
one selected by --aligned.

Examples:
  sieve stack --config deeperworld.yml --out ./stacked ./top ./middle ./bottom
  sieve stack --plan plan.yml --aligned --out ./stacked ./top ./bottom`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.alignedSet = cmd.Flags().Changed("aligned")
			return runStack(cmd.Context(), f, args)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "configuration file holding the stacking sections")
	fl.StringVar(&f.plan, "plan", "", "plan file holding the stacking sections, used instead of the config's")
	fl.StringVar(&f.out, "out", "", "output world folder")
	fl.IntVar(&f.threads, "threads", sieve.DefaultThreads, "regions stacked at the same time")
	fl.BoolVar(&f.aligned, "aligned", false, "use block data without straddling indices, overriding level.dat")
	fl.BoolVar(&f.verbose, "verbose", false, "log at debug level")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func loadStackPlan(f stackFlags) (*sieve.Plan, error) {
	if f.plan != "" {
		plan, err := sieve.LoadPlan(f.plan)
		if err != nil {
			return nil, fmt.Errorf("load plan: %w", err)
		}
		return plan, nil
	}
	if f.config == "" {
		return nil, errors.New("either --config or --plan is required")
	}
	cfg, err := sieve.LoadConfig(f.config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg.Plan(), nil
}

func runStack(ctx context.Context, f stackFlags, worlds []string) error {
	log := newLogger(f.verbose)
	plan, err := loadStackPlan(f)
	if err != nil {
		return err
	}
	if len(plan.Sections) == 0 {
		return errors.New("no stacking sections configured")
	}

	var sources []sieve.Source
	layouts := make(map[format.Layout]bool)
	for _, dir := range worlds {
		files, err := sieve.RegionFiles(dir)
		if err != nil {
			return err
		}
		layout, err := worldLayout(log, dir, f.aligned, f.alignedSet, false)
		if err != nil {
			return err
		}
		layouts[layout] = true
		name := filepath.Base(filepath.Clean(dir))
		for _, file := range files {
			sources = append(sources, sieve.Source{World: name, Path: file, Layout: layout})
		}
	}

	out := format.LayoutPacked
	switch {
	case f.alignedSet:
		if f.aligned {
			out = format.LayoutAligned
		}
	case len(layouts) > 1:
		return errors.New("worlds use different block data layouts, pass --aligned=true or --aligned=false to pick the output layout")
	case layouts[format.LayoutAligned]:
		out = format.LayoutAligned
	}

	sink, err := sieve.NewRegionSink(filepath.Join(f.out, "region"), region.Provider{})
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	log.Info("stacking", "worlds", len(worlds), "sources", len(sources), "sections", len(plan.Sections), "layout", out)
	res, stackErr := sieve.NewStacker(region.Provider{}, plan, sink,
		sieve.WithStackThreads(f.threads),
		sieve.WithStackLogger(log),
		sieve.WithStackMetrics(sieve.NewMetrics(reg)),
		sieve.WithStackLayout(out),
	).Stack(ctx, sources)
	if err := sink.Close(); err != nil {
		stackErr = errors.Join(stackErr, err)
	}

	log.Info("stacking done",
		"sources", len(sources),
		"chunks", res.Chunks,
		"placed", res.Placed,
		"dropped", res.Dropped,
		"failed_sources", len(res.FailedSources),
		"read_failures", len(res.ReadFailures),
		"write_failures", len(res.WriteFailures),
	)
	return stackErr
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
