// Package serving owns the loaded models. Each app's predictor is built once
// from its artifacts, never mutated, and replaced as a whole on reload.
package serving

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"pricelab/apps"
	"pricelab/ml"
)

var ErrModelNotLoaded = errors.New("model not loaded")

// Prediction is the raw model output for one record.
type Prediction struct {
	App      string    `json:"app"`
	Value    float64   `json:"value"`
	Features []string  `json:"features"`
	Vector   []float64 `json:"vector"`
	Cached   bool      `json:"cached"`
}

// Predictor pairs a model with the schema it was trained on.
type Predictor struct {
	App      *apps.App
	Model    ml.Regressor
	Schema   *ml.Schema
	LoadedAt time.Time

	encoder *ml.Encoder
	cache   *lru.Cache[string, float64]
}

// NewPredictor checks that model and schema agree and resolves the encoder.
// cacheSize <= 0 disables the prediction memo.
func NewPredictor(app *apps.App, model ml.Regressor, schema *ml.Schema, cacheSize int) (*Predictor, error) {
	if model.NumFeatures() != len(schema.Features) {
		return nil, fmt.Errorf("%w: model has %d inputs, schema lists %d features",
			ml.ErrSchemaMismatch, model.NumFeatures(), len(schema.Features))
	}
	encoder, err := ml.NewEncoder(schema, app.Inputs, app.Strict)
	if err != nil {
		return nil, err
	}
	p := &Predictor{
		App:      app,
		Model:    model,
		Schema:   schema,
		LoadedAt: time.Now().UTC(),
		encoder:  encoder,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, float64](cacheSize)
		if err != nil {
			return nil, err
		}
		p.cache = cache
	}
	return p, nil
}

// LoadPredictor reads an app's artifacts from modelDir. Missing artifacts
// yield ErrModelNotLoaded.
func LoadPredictor(app *apps.App, modelDir string, cacheSize int) (*Predictor, error) {
	schema, err := ml.LoadSchema(apps.SchemaPath(modelDir, app.Name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no feature list", ErrModelNotLoaded, app.Name)
		}
		return nil, err
	}
	model, err := ml.LoadModel(apps.ModelPath(modelDir, app.Name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no model", ErrModelNotLoaded, app.Name)
		}
		return nil, err
	}
	return NewPredictor(app, model, schema, cacheSize)
}

// Predict encodes record against the schema and runs the model on it.
func (p *Predictor) Predict(record ml.Record) (Prediction, error) {
	vector, err := p.encoder.Encode(record)
	if err != nil {
		return Prediction{}, err
	}
	if len(vector) != p.Model.NumFeatures() {
		return Prediction{}, fmt.Errorf("%w: encoded %d values, model expects %d",
			ml.ErrSchemaMismatch, len(vector), p.Model.NumFeatures())
	}

	out := Prediction{
		App:      p.App.Name,
		Features: p.encoder.Features(),
		Vector:   vector,
	}
	key := vectorKey(vector)
	if p.cache != nil {
		if v, ok := p.cache.Get(key); ok {
			out.Value = v
			out.Cached = true
			return out, nil
		}
	}
	value, err := p.Model.Predict(vector)
	if err != nil {
		return Prediction{}, err
	}
	if p.cache != nil {
		p.cache.Add(key, value)
	}
	out.Value = value
	return out, nil
}

func vectorKey(vector []float64) string {
	var b strings.Builder
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
