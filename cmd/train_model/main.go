package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"pricelab/apps"
	"pricelab/config"
	"pricelab/db"
	"pricelab/logger"
)

type trainFlags struct {
	app        string
	configPath string
	dataset    string
	datasetDir string
	modelDir   string
	modelType  string
	testRatio  float64
}

func main() {
	var f trainFlags
	flag.StringVar(&f.app, "app", "all", "app to train: house, car, stock or all")
	flag.StringVar(&f.configPath, "config", "config.yaml", "path to config file")
	flag.StringVar(&f.dataset, "dataset", "", "dataset CSV, overrides the app's file (single app only)")
	flag.StringVar(&f.datasetDir, "dataset_dir", "", "directory holding the datasets")
	flag.StringVar(&f.modelDir, "model_dir", "", "directory the artifacts are written to")
	flag.StringVar(&f.modelType, "model_type", "", "linear or random_forest")
	flag.Float64Var(&f.testRatio, "test_ratio", 0, "held-out fraction of the rows")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, f trainFlags, out io.Writer) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if f.datasetDir != "" {
		cfg.Dataset.Dir = f.datasetDir
	}
	if f.modelDir != "" {
		cfg.Models.Dir = f.modelDir
	}

	log := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Sync()

	targets, err := selectApps(cfg, f.app)
	if err != nil {
		return err
	}
	if f.dataset != "" && len(targets) != 1 {
		return errors.New("-dataset needs a single -app")
	}

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Warn("training log unavailable", zap.String("path", cfg.Database.Path), zap.Error(err))
	} else {
		defer store.Close()
	}

	var failed []string
	for _, app := range targets {
		report, err := apps.Train(ctx, app, apps.Options{
			DatasetDir:  cfg.Dataset.Dir,
			DatasetPath: f.dataset,
			ModelDir:    cfg.Models.Dir,
			ModelType:   f.modelType,
			TestRatio:   f.testRatio,
			Logger:      log,
		})
		if err != nil {
			if errors.Is(err, apps.ErrDatasetMissing) {
				fmt.Fprintf(out, "%s: dataset not found (%v)\n", app.Name, err)
			} else {
				fmt.Fprintf(out, "%s: training failed: %v\n", app.Name, err)
			}
			failed = append(failed, app.Name)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		printReport(out, report)

		if store != nil {
			err := store.SaveTrainingLog(db.TrainingLog{
				App:          report.App,
				ModelType:    report.ModelType,
				R2:           report.R2,
				MAE:          report.MAE,
				RMSE:         report.RMSE,
				DataPoints:   report.Rows,
				TrainRows:    report.TrainRows,
				TestRows:     report.TestRows,
				FeatureCount: len(report.Features),
				TrainedAt:    report.TrainedAt,
			})
			if err != nil {
				log.Warn("training log not saved", zap.String("app", report.App), zap.Error(err))
			}
			if err := store.SaveQualityIssues(ctx, report.App, report.Rejected); err != nil {
				log.Warn("quality issues not saved", zap.String("app", report.App), zap.Error(err))
			}
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("training failed for %v", failed)
	}
	return nil
}

// selectApps resolves -app against the registry, with config overrides
// applied.
func selectApps(cfg *config.Config, name string) ([]*apps.App, error) {
	if name == "" || name == "all" {
		return apps.All(cfg), nil
	}
	app, err := apps.Lookup(name)
	if err != nil {
		return nil, err
	}
	return []*apps.App{app.WithConfig(cfg.App(name))}, nil
}

func printReport(out io.Writer, r *apps.Report) {
	fmt.Fprintf(out, "%s: %s, %s split, %d rows (%d train / %d test), %d features\n",
		r.App, r.ModelType, r.Split, r.Rows, r.TrainRows, r.TestRows, len(r.Features))
	if len(r.Rejected) > 0 {
		fmt.Fprintf(out, "  Rejected rows: %d\n", len(r.Rejected))
	}
	fmt.Fprintf(out, "  Model R2 Score: %.4f\n", r.R2)
	fmt.Fprintf(out, "  Mean Absolute Error: %.4f\n", r.MAE)
	fmt.Fprintf(out, "  Root Mean Squared Error: %.4f\n", r.RMSE)
	fmt.Fprintf(out, "  Model saved to %s\n", r.ModelPath)
	fmt.Fprintf(out, "  Features saved to %s\n", r.SchemaPath)
}
