package apps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"pricelab/ml"
	"pricelab/pipeline"
)

// Options controls one trainer run. Zero values keep the app's settings.
type Options struct {
	DatasetDir string
	// DatasetPath overrides DatasetDir plus the app's file name.
	DatasetPath string
	ModelDir    string
	ModelType   string
	TestRatio   float64
	Now         func() time.Time
	Logger      *zap.Logger
}

// Report summarises a finished training run.
type Report struct {
	App        string    `json:"app"`
	ModelType  string    `json:"model_type"`
	Split      string    `json:"split"`
	Rows       int       `json:"rows"`
	TrainRows  int       `json:"train_rows"`
	TestRows   int       `json:"test_rows"`
	Features   []string  `json:"features"`
	R2         float64   `json:"r2"`
	MAE        float64   `json:"mae"`
	RMSE       float64   `json:"rmse"`
	ModelPath  string    `json:"model_path"`
	SchemaPath string    `json:"schema_path"`
	TrainedAt  time.Time `json:"trained_at"`
	// Rejected lists the rows dropped by cleaning.
	Rejected []pipeline.QualityIssue `json:"rejected,omitempty"`
}

// Train runs the whole batch for app: load, prepare, encode, split, fit,
// score and persist. The model and its schema are each replaced atomically.
func Train(ctx context.Context, app *App, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("app", app.Name))
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	modelType := firstNonEmpty(opts.ModelType, app.ModelType)
	testRatio := app.TestRatio
	if opts.TestRatio > 0 {
		testRatio = opts.TestRatio
	}
	path := opts.DatasetPath
	if path == "" {
		path = app.DatasetPath(opts.DatasetDir)
	}

	logger.Info("loading dataset", zap.String("path", path))
	frame, err := pipeline.ReadCSV(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetMissing, path)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	env := &prepareEnv{now: now(), logger: logger}
	frame, err = app.prepare(frame, env)
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", app.Name, err)
	}
	var categories map[string][]string
	if len(app.Categorical) > 0 {
		present := make([]string, 0, len(app.Categorical))
		for _, col := range app.Categorical {
			if frame.Has(col) {
				present = append(present, col)
			}
		}
		categories, err = frame.OneHot(present, true)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", app.Name, err)
		}
	}
	if frame.Len() < 2 {
		return nil, fmt.Errorf("%s: %d usable rows, need at least 2", app.Name, frame.Len())
	}

	features := app.Features
	if len(features) == 0 {
		for _, col := range frame.Columns() {
			if col != app.Target {
				features = append(features, col)
			}
		}
	}
	x, err := frame.Matrix(features)
	if err != nil {
		return nil, fmt.Errorf("features %s: %w", app.Name, err)
	}
	y, err := frame.Floats(app.Target)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", app.Name, err)
	}

	var trainIdx, testIdx []int
	if app.Split == SplitChronological {
		trainIdx, testIdx = ml.ChronologicalSplit(len(y), testRatio)
	} else {
		trainIdx, testIdx = ml.RandomSplit(len(y), testRatio, app.Params.Seed)
	}
	xTrain, yTrain := ml.Subset(x, y, trainIdx)
	xTest, yTest := ml.Subset(x, y, testIdx)

	model, err := ml.NewRegressor(modelType, app.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %q", app.Name, err, modelType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Info("training model",
		zap.String("model_type", modelType),
		zap.Int("train_rows", len(yTrain)),
		zap.Int("features", len(features)),
	)
	if err := model.Fit(xTrain, yTrain); err != nil {
		return nil, fmt.Errorf("fit %s: %w", app.Name, err)
	}
	predictions, err := ml.PredictAll(model, xTest)
	if err != nil {
		return nil, err
	}

	report := &Report{
		App:        app.Name,
		ModelType:  modelType,
		Split:      app.Split.String(),
		Rows:       len(y),
		TrainRows:  len(yTrain),
		TestRows:   len(yTest),
		Features:   features,
		R2:         ml.R2(yTest, predictions),
		MAE:        ml.MAE(yTest, predictions),
		RMSE:       ml.RMSE(yTest, predictions),
		ModelPath:  ModelPath(opts.ModelDir, app.Name),
		SchemaPath: SchemaPath(opts.ModelDir, app.Name),
		TrainedAt:  now().UTC(),
		Rejected:   env.issues,
	}

	schema := &ml.Schema{
		App:        app.Name,
		Target:     app.Target,
		ModelType:  modelType,
		Features:   features,
		Categories: categories,
		Metrics:    map[string]float64{"r2": report.R2, "mae": report.MAE, "rmse": report.RMSE},
		TrainedAt:  report.TrainedAt,
	}
	// schema first: a watcher reacting to model.json must see matching features
	if err := ml.SaveSchema(report.SchemaPath, schema); err != nil {
		return nil, fmt.Errorf("save schema: %w", err)
	}
	if err := ml.SaveModel(report.ModelPath, model); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}

	logger.Info("model saved",
		zap.Float64("r2", report.R2),
		zap.Float64("mae", report.MAE),
		zap.String("path", report.ModelPath),
	)
	return report, nil
}
