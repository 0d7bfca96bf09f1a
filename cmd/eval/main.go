// Command eval scores extraction quality against a dataset of fixture
// documents.
//
// Usage:
//
//	go run ./cmd/eval --dataset ./testdata/flipkart/dataset.yaml
//
// With a config file and a JSON report:
//
//	go run ./cmd/eval \
//	  --dataset ./testdata/meesho/dataset.yaml \
//	  --config ./orderdoc.yaml \
//	  --output ./reports/meesho.json
//
// Passing --db runs every fixture through the full engine, so the same
// database can be inspected afterwards. Without it nothing is stored.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/brunobiangulo/orderdoc"
	"github.com/brunobiangulo/orderdoc/eval"
)

func main() {
	var (
		datasetPath = flag.String("dataset", "", "Path to dataset YAML file")
		configPath  = flag.String("config", "", "Path to config file (YAML or JSON)")
		outputFile  = flag.String("output", "", "Path to write JSON report")
		dbPath      = flag.String("db", "", "Store results in this SQLite database (default: parse only)")
		fixtureDir  = flag.String("fixtures", "", "Resolve fixture paths against this directory instead of the dataset's")
		verbose     = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	if *datasetPath == "" {
		log.Fatal("--dataset flag is required")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := orderdoc.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = orderdoc.LoadConfig(*configPath); err != nil {
			log.Fatalf("loading config: %v", err)
		}
	}

	ds, err := eval.LoadDataset(*datasetPath)
	if err != nil {
		log.Fatalf("loading dataset: %v", err)
	}
	if *fixtureDir != "" {
		ds = ds.WithDir(*fixtureDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var p eval.DocumentParser
	if *dbPath != "" {
		cfg.DBPath = *dbPath
		engine, err := orderdoc.New(cfg)
		if err != nil {
			log.Fatalf("creating engine: %v", err)
		}
		defer engine.Close()
		p = engine
	} else {
		oc, err := cfg.OrdersConfig()
		if err != nil {
			log.Fatalf("building pipeline config: %v", err)
		}
		p = eval.NewLocalParser(oc)
	}

	slog.Info("eval: starting", "dataset", ds.Name, "tests", len(ds.Tests))
	report, err := eval.NewEvaluator(p).Run(ctx, ds)
	if err != nil {
		slog.Warn("eval: run interrupted", "error", err, "completed", len(report.Results))
	}

	fmt.Println(eval.FormatReport(report))

	if *outputFile != "" {
		if err := writeReport(*outputFile, report); err != nil {
			log.Fatalf("writing report: %v", err)
		}
		slog.Info("eval: report written", "path", *outputFile)
	}

	if err != nil || report.Failed > 0 {
		os.Exit(1)
	}
}

func writeReport(path string, report *eval.Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(struct {
		*eval.Report
		GeneratedAt string `json:"generated_at"`
	}{report, time.Now().UTC().Format(time.RFC3339)}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
