package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"govlsm/adapters/cohortload"
	"govlsm/adapters/ledger"
	"govlsm/adapters/nifti"
	"govlsm/adapters/nulllog"
	"govlsm/adapters/rng"
	"govlsm/app"
	"govlsm/internal"
	"govlsm/internal/config"
	"govlsm/ports"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	listRuns := flag.Int("list-runs", 0, "list the N most recent runs from the ledger and exit")
	noLedger := flag.Bool("no-ledger", false, "disable the run ledger database")
	flag.Parse()

	// Optional .env overlay for local development; real deployments set
	// the environment directly.
	if err := godotenv.Load(); err == nil {
		internal.DefaultLogger.Debug("[Main] loaded environment from .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(2)
	}

	logger := internal.NewDefaultLogger()

	if *listRuns > 0 {
		if err := printRuns(cfg, *listRuns); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		fmt.Fprintln(os.Stderr, "cannot create output directory:", err)
		os.Exit(1)
	}

	var runLedger ports.RunLedgerPort
	if !*noLedger {
		l, err := ledger.Open(filepath.Join(cfg.Output.Dir, cfg.Output.LedgerDB))
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot open run ledger:", err)
			os.Exit(1)
		}
		defer l.Close()
		runLedger = l
	}

	codec := nifti.NewCodec()
	loader := cohortload.NewLoader(cfg.Cohort, codec, logger)
	logPath := cfg.Permutation.LogPath
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(cfg.Output.Dir, logPath)
	}
	pipeline := app.NewPipelineService(
		cfg,
		loader,
		codec,
		codec,
		nulllog.NewFileLog(logPath),
		rng.NewAdapter(),
		runLedger,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.Run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run failed:", err)
		os.Exit(1)
	}

	fmt.Printf("Run %s completed: %d voxels tested, outputs in %s\n",
		result.RunID, result.TestedVoxels, cfg.Output.Dir)
}

func printRuns(cfg *config.Config, limit int) error {
	l, err := ledger.Open(filepath.Join(cfg.Output.Dir, cfg.Output.LedgerDB))
	if err != nil {
		return err
	}
	defer l.Close()

	records, err := l.ListRuns(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, rec := range records {
		finished := "-"
		if rec.FinishedAt != nil {
			finished = rec.FinishedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%s  %-9s  subjects=%-4d voxels=%-7d perms=%-5d started=%s finished=%s\n",
			rec.RunID, rec.Status, rec.Subjects, rec.TestedVoxels, rec.PermutationsDone,
			rec.StartedAt.Format("2006-01-02 15:04:05"), finished)
		if rec.Error != "" {
			fmt.Printf("    error: %s\n", rec.Error)
		}
	}
	return nil
}
