package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"pricelab/apps"
	"pricelab/db"
	"pricelab/ml"
	"pricelab/monitoring"
)

// predictResult is the decorated answer to one prediction request.
type predictResult struct {
	App       string `json:"app"`
	RequestID string `json:"request_id,omitempty"`
	apps.Outcome
	Features []string  `json:"features"`
	Vector   []float64 `json:"vector"`
	Cached   bool      `json:"cached"`
}

type appSummary struct {
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Target      string    `json:"target"`
	Loaded      bool      `json:"loaded"`
	ModelType   string    `json:"model_type,omitempty"`
	LoadedAt    time.Time `json:"loaded_at"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	models := make(map[string]bool)
	for _, app := range h.service.Apps() {
		_, err := h.service.Predictor(app.Name)
		models[app.Name] = err == nil
	}
	respondJSON(w, map[string]interface{}{
		"status": "ok",
		"models": models,
	})
}

func (h *handlers) handleAppList(w http.ResponseWriter, r *http.Request) {
	list := make([]appSummary, 0, len(h.service.Apps()))
	for _, app := range h.service.Apps() {
		s := appSummary{
			Name:        app.Name,
			Title:       app.Title,
			Description: app.Description,
			Target:      app.Target,
		}
		if p, err := h.service.Predictor(app.Name); err == nil {
			s.Loaded = true
			s.ModelType = p.Model.Type()
			s.LoadedAt = p.LoadedAt
		}
		list = append(list, s)
	}
	respondJSON(w, list)
}

func (h *handlers) handleSchema(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.App(r.PathValue("app"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.service.Predictor(app.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, map[string]interface{}{
		"schema": p.Schema,
		"form":   app.Form(h.now(), p.Schema, nil),
	})
}

func (h *handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.App(r.PathValue("app"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if app.Split != apps.SplitChronological {
		respondError(w, http.StatusNotFound, fmt.Errorf("%s has no price history", app.Name))
		return
	}
	n := queryInt(r, "limit", 5)
	history, err := h.history.Load(app.DatasetPath(h.datasetDir), n)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, history)
}

func (h *handlers) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.App(r.PathValue("app"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.store == nil {
		respondJSON(w, []db.TrainingLog{})
		return
	}
	logs, err := h.store.LoadTrainingLog(app.Name, queryInt(r, "limit", 20))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, logs)
}

// handleQualityIssues lists the dataset rows the trainer rejected.
func (h *handlers) handleQualityIssues(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.App(r.PathValue("app"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.store == nil {
		respondJSON(w, []db.QualityIssue{})
		return
	}
	issues, err := h.store.QualityIssues(app.Name, queryInt(r, "limit", 50))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, issues)
}

func (h *handlers) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.App(r.PathValue("app"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.store == nil {
		respondJSON(w, []db.Prediction{})
		return
	}
	preds, err := h.store.RecentPredictions(app.Name, queryInt(r, "limit", 20))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, preds)
}

// handlePredict accepts either an encoded record
// {"numeric":{...},"categorical":{...}} or the app's raw form fields.
func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.App(r.PathValue("app"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	values, record, err := decodePredictBody(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.predict(r, app, values, record)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, result)
}

// predict runs one request through the served model, then audits and
// announces it. A nil record is built from the raw values.
func (h *handlers) predict(r *http.Request, app *apps.App, values map[string]string, record *ml.Record) (*predictResult, error) {
	if record == nil {
		rec, err := app.Record(values, h.now())
		if err != nil {
			return nil, err
		}
		record = &rec
	}
	out, err := h.service.Predict(app.Name, *record)
	if err != nil {
		return nil, err
	}

	requestID := GetRequestID(r.Context())
	result := &predictResult{
		App:       app.Name,
		RequestID: requestID,
		Outcome:   app.Decorate(out.Value, values),
		Features:  out.Features,
		Vector:    out.Vector,
		Cached:    out.Cached,
	}
	h.audit(requestID, app.Name, values, out.Value)
	h.publish(monitoring.PredictionServed, app.Name, map[string]interface{}{
		"request_id": requestID,
		"value":      out.Value,
		"formatted":  result.Formatted,
	})
	return result, nil
}

// audit stores the prediction. Failures are logged, never surfaced.
func (h *handlers) audit(requestID, app string, values map[string]string, value float64) {
	if h.store == nil {
		return
	}
	input, err := json.Marshal(values)
	if err != nil {
		h.logger.Warn("prediction input not serialisable", zap.Error(err))
		return
	}
	err = h.store.SavePrediction(db.Prediction{
		RequestID: requestID,
		App:       app,
		Input:     string(input),
		Value:     value,
		CreatedAt: h.now().UTC(),
	})
	if err != nil {
		h.logger.Warn("prediction audit failed", zap.String("app", app), zap.Error(err))
	}
}

func decodePredictBody(body io.Reader) (map[string]string, *ml.Record, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apps.ErrInvalidInput, err)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, nil, fmt.Errorf("%w: body must be a JSON object: %v", apps.ErrInvalidInput, err)
	}

	_, hasNumeric := probe["numeric"]
	_, hasCategorical := probe["categorical"]
	if hasNumeric || hasCategorical {
		var record ml.Record
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apps.ErrInvalidInput, err)
		}
		values := make(map[string]string, len(record.Numeric)+len(record.Categorical))
		for k, v := range record.Numeric {
			values[k] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		for k, v := range record.Categorical {
			values[k] = v
		}
		return values, &record, nil
	}

	var flat map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&flat); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apps.ErrInvalidInput, err)
	}
	values := make(map[string]string, len(flat))
	for k, v := range flat {
		switch v := v.(type) {
		case string:
			values[k] = v
		case json.Number:
			values[k] = v.String()
		case bool:
			values[k] = strconv.FormatBool(v)
		default:
			return nil, nil, fmt.Errorf("%w: %s must be a string or a number", apps.ErrInvalidInput, k)
		}
	}
	return values, nil, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
