// Package apps defines the three regression demos: what each trainer does to
// its dataset and how each form maps onto the persisted feature list.
package apps

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"pricelab/config"
	"pricelab/ml"
	"pricelab/pipeline"
)

var (
	ErrUnknownApp     = errors.New("unknown app")
	ErrDatasetMissing = errors.New("dataset missing")
	ErrInvalidInput   = errors.New("invalid input")
)

type SplitKind int

const (
	SplitRandom SplitKind = iota
	SplitChronological
)

func (k SplitKind) String() string {
	if k == SplitChronological {
		return "chronological"
	}
	return "random"
}

type InputType string

const (
	InputNumber InputType = "number"
	InputSelect InputType = "select"
	InputRadio  InputType = "radio"
)

// FormField describes one input of an app's form. Options for selects are
// either static or, when FromCategory is set, read from the trained schema.
type FormField struct {
	Name         string    `json:"name"`
	Label        string    `json:"label"`
	Type         InputType `json:"type"`
	Default      string    `json:"default,omitempty"`
	Min          string    `json:"min,omitempty"`
	Max          string    `json:"max,omitempty"`
	Step         string    `json:"step,omitempty"`
	Options      []string  `json:"options,omitempty"`
	FromCategory string    `json:"-"`
}

// prepareEnv carries what preparation steps may depend on besides the data,
// and collects the rows they reject.
type prepareEnv struct {
	now    time.Time
	logger *zap.Logger
	issues []pipeline.QualityIssue
}

// clean drops the rows failing any rule and records why.
func (env *prepareEnv) clean(frame *pipeline.Frame, rules ...pipeline.CleaningRule) *pipeline.Frame {
	cleaned, issues := pipeline.NewDataCleaner(env.logger, rules...).Clean(frame)
	env.issues = append(env.issues, issues...)
	return cleaned
}

// Outcome is a prediction decorated for display.
type Outcome struct {
	Value     float64  `json:"value"`
	Formatted string   `json:"formatted"`
	Label     string   `json:"label"`
	Delta     *float64 `json:"delta,omitempty"`
	Trend     string   `json:"trend,omitempty"`
	Note      string   `json:"note,omitempty"`
}

type App struct {
	Name        string
	Title       string
	Description string
	Dataset     string
	Target      string
	Categorical []string
	// Features fixes the feature columns. Empty means every prepared column
	// except the target.
	Features  []string
	Split     SplitKind
	ModelType string
	Params    ml.Params
	TestRatio float64
	Strict    bool
	Money     Money
	Inputs    []ml.Field

	form     []FormField
	prepare  func(*pipeline.Frame, *prepareEnv) (*pipeline.Frame, error)
	toRecord func(values map[string]string, now time.Time, strict bool) (ml.Record, error)
	decorate func(app *App, value float64, values map[string]string) Outcome
}

var registry = map[string]func() *App{
	"house": newHouse,
	"car":   newCar,
	"stock": newStock,
}

// Names lists the apps in display order.
func Names() []string {
	return []string{"house", "car", "stock"}
}

// Lookup returns a fresh definition of the named app.
func Lookup(name string) (*App, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownApp, name)
	}
	return build(), nil
}

// All returns fresh definitions of every app, each with its config overrides
// applied.
func All(cfg *config.Config) []*App {
	out := make([]*App, 0, len(registry))
	for _, name := range Names() {
		app, _ := Lookup(name)
		if cfg != nil {
			app = app.WithConfig(cfg.App(name))
		}
		out = append(out, app)
	}
	return out
}

// WithConfig returns a copy of a with the non-zero overrides of c applied.
func (a *App) WithConfig(c config.AppConfig) *App {
	out := *a
	if c.Dataset != "" {
		out.Dataset = c.Dataset
	}
	if c.ModelType != "" {
		out.ModelType = c.ModelType
	}
	if c.Trees > 0 {
		out.Params.Trees = c.Trees
	}
	if c.MaxDepth > 0 {
		out.Params.MaxDepth = c.MaxDepth
	}
	if c.Seed != nil {
		out.Params.Seed = *c.Seed
	}
	if c.TestRatio > 0 {
		out.TestRatio = c.TestRatio
	}
	out.Strict = out.Strict || c.Strict
	if c.Currency != "" || c.Locale != "" {
		symbol := out.Money.Symbol
		if c.Currency != "" && c.Currency != out.Money.Code {
			symbol = ""
		}
		money, err := NewMoney(firstNonEmpty(c.Currency, out.Money.Code), symbol, firstNonEmpty(c.Locale, out.Money.Locale))
		if err == nil {
			out.Money = money
		}
	}
	return &out
}

// DatasetPath resolves the app's dataset against dir unless it is absolute.
func (a *App) DatasetPath(dir string) string {
	if filepath.IsAbs(a.Dataset) || dir == "" {
		return a.Dataset
	}
	return filepath.Join(dir, a.Dataset)
}

func ModelPath(dir, app string) string {
	return filepath.Join(dir, app, "model.json")
}

func SchemaPath(dir, app string) string {
	return filepath.Join(dir, app, "features.json")
}

// Form resolves the form for display. Dynamic bounds use now, select options
// flagged FromCategory come from schema, and defaults overrides static ones.
func (a *App) Form(now time.Time, schema *ml.Schema, defaults map[string]string) []FormField {
	out := make([]FormField, len(a.form))
	for i, field := range a.form {
		field.Options = append([]string(nil), field.Options...)
		if field.Max == maxCurrentYear {
			field.Max = strconv.Itoa(now.Year())
		}
		if field.FromCategory != "" && schema != nil {
			if levels := categoryLevels(schema, field.FromCategory); len(levels) > 0 {
				field.Options = levels
			}
		}
		if v, ok := defaults[field.Name]; ok {
			field.Default = v
		}
		if field.Type != InputNumber && field.Default == "" && len(field.Options) > 0 {
			field.Default = field.Options[0]
		}
		out[i] = field
	}
	return out
}

// Record converts raw form values into the encoder's record.
func (a *App) Record(values map[string]string, now time.Time) (ml.Record, error) {
	return a.toRecord(values, now, a.Strict)
}

// Decorate formats a raw model output for display.
func (a *App) Decorate(value float64, values map[string]string) Outcome {
	if a.decorate != nil {
		return a.decorate(a, value, values)
	}
	return Outcome{Value: value, Formatted: a.Money.Format(value), Label: a.Money.Label()}
}

const maxCurrentYear = "now"

// categoryLevels returns the sorted levels of a categorical field. Schemas
// without recorded categories fall back to the one-hot slot names, which lack
// the reference level.
func categoryLevels(schema *ml.Schema, field string) []string {
	levels := schema.Levels(field)
	if len(levels) == 0 {
		head := field + "_"
		for _, name := range schema.Features {
			if strings.HasPrefix(name, head) {
				levels = append(levels, strings.TrimPrefix(name, head))
			}
		}
	}
	sort.Strings(levels)
	return levels
}

// numericInputs parses the named form values.
func numericInputs(values map[string]string, names ...string) (map[string]float64, error) {
	out := make(map[string]float64, len(names))
	for _, name := range names {
		raw, ok := values[name]
		if !ok || strings.TrimSpace(raw) == "" {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidInput, name, raw)
		}
		out[name] = v
	}
	return out, nil
}

func categoricalInputs(values map[string]string, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v := strings.TrimSpace(values[name])
		if v == "" {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
		}
		out[name] = v
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
