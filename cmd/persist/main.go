package main

// Evaluates the persistence baseline on y.npy for a list of lead times and
// writes one observed vs. predicted plot per lead time.
//
// Usage:
//
//	go run ./cmd/persist -data data -out out -lead-times 1,2,3,6,12,23

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Noofbiz/sstaGraph/config"
	"github.com/Noofbiz/sstaGraph/datasets"
	"github.com/Noofbiz/sstaGraph/experiment"
	"github.com/Noofbiz/sstaGraph/persist"
	"github.com/Noofbiz/sstaGraph/runlog"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env", ".env", "path to a .env file with SSTA_* defaults (optional)")
	dataDir := flag.String("data", "", "directory holding y.npy (default $SSTA_DATA_DIR or 'data')")
	outDir := flag.String("out", "", "output directory for plots (default $SSTA_OUT_DIR or 'out')")
	runsDB := flag.String("runs-db", "", "SQLite run ledger path (default $SSTA_RUNS_DB; empty disables)")
	trainSplit := flag.Float64("train-split", 0.8, "fraction of the series before the test period")
	leadTimes := flag.String("lead-times", "", "comma-separated lead times (default 1,2,3,6,12,23)")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if err := config.LoadEnv(*envFile); err != nil {
		log.Fatalw("failed to load env file", "path", *envFile, "error", err)
	}
	sweep := config.DefaultSweep()
	sweep.Base.RunsDB = ""
	if err := sweep.ApplyEnv(); err != nil {
		log.Fatalw("failed to read environment", "error", err)
	}
	if *dataDir != "" {
		sweep.Base.DataDir = *dataDir
	}
	if *outDir != "" {
		sweep.Base.OutDir = *outDir
	}
	if *runsDB != "" {
		sweep.Base.RunsDB = *runsDB
	}

	leads := persist.DefaultLeadTimes
	if *leadTimes != "" {
		leads = nil
		for _, f := range strings.Split(*leadTimes, ",") {
			v, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				log.Fatalw("invalid -lead-times", "error", err)
			}
			leads = append(leads, v)
		}
	}

	path := filepath.Join(sweep.Base.DataDir, datasets.TargetsFile)
	targets, err := datasets.ReadTargets(path)
	if err != nil {
		log.Fatalw("failed to read targets", "path", path, "error", err)
	}
	log.Infow("targets loaded", "path", path, "months", len(targets))

	runner := &experiment.Runner{Log: log}
	if sweep.Base.RunsDB != "" {
		store, err := runlog.NewStore(sweep.Base.RunsDB)
		if err != nil {
			log.Fatalw("failed to open run ledger", "path", sweep.Base.RunsDB, "error", err)
		}
		defer store.Close()
		runner.Store = store
	}

	results, err := runner.RunPersistence(context.Background(), targets, *trainSplit, leads, sweep.Base.OutDir)
	if err != nil {
		log.Fatalw("persistence baseline failed", "error", err)
	}
	for _, r := range results {
		fmt.Printf("lead time %2d: test MSE %.4f  RMSE %.4f\n", r.LeadTime, r.MSE, r.RMSE)
	}
}
