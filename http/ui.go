package http

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"math"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"pricelab/apps"
	"pricelab/serving"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const historyRows = 5

// pages holds one parsed template set per page, each sharing the layout.
type pages struct {
	byName map[string]*template.Template
}

func loadPages() *pages {
	p := &pages{byName: make(map[string]*template.Template)}
	for _, name := range []string{"index.html", "form.html", "unavailable.html"} {
		p.byName[name] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	}
	return p
}

// render executes the page into a buffer first so a template failure never
// leaves a half written response.
func (p *pages) render(w http.ResponseWriter, status int, name string, data interface{}) error {
	tmpl, ok := p.byName[name]
	if !ok {
		return fmt.Errorf("page %q: %w", name, fs.ErrNotExist)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
	return nil
}

type indexEntry struct {
	App    *apps.App
	Loaded bool
}

type indexView struct {
	Title string
	Apps  []indexEntry
}

type formView struct {
	Title   string
	App     *apps.App
	Fields  []apps.FormField
	Values  map[string]string
	History *apps.History
	Chart   *priceChart
	Result  *predictResult
	Delta   string
	Error   string
}

const (
	chartWidth  = 600
	chartHeight = 200
)

// priceChart is a close price series scaled into an SVG viewBox.
type priceChart struct {
	Width, Height int
	Points        string
	First, Last   apps.PricePoint
	Min, Max      float64
}

// newPriceChart returns nil for fewer than two points.
func newPriceChart(series []apps.PricePoint) *priceChart {
	if len(series) < 2 {
		return nil
	}
	c := &priceChart{
		Width:  chartWidth,
		Height: chartHeight,
		First:  series[0],
		Last:   series[len(series)-1],
		Min:    series[0].Close,
		Max:    series[0].Close,
	}
	for _, p := range series {
		c.Min = math.Min(c.Min, p.Close)
		c.Max = math.Max(c.Max, p.Close)
	}

	var b strings.Builder
	step := float64(chartWidth) / float64(len(series)-1)
	for i, p := range series {
		y := float64(chartHeight) / 2
		if c.Max > c.Min {
			y = float64(chartHeight) * (c.Max - p.Close) / (c.Max - c.Min)
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.1f,%.1f", float64(i)*step, y)
	}
	c.Points = b.String()
	return c
}

type unavailableView struct {
	Title   string
	App     *apps.App
	Command string
}

func (h *handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	view := indexView{Title: "Price Lab"}
	for _, app := range h.service.Apps() {
		_, err := h.service.Predictor(app.Name)
		view.Apps = append(view.Apps, indexEntry{App: app, Loaded: err == nil})
	}
	h.page(w, r, http.StatusOK, "index.html", view)
}

func (h *handlers) handleForm(w http.ResponseWriter, r *http.Request) {
	view, ok := h.formView(w, r)
	if !ok {
		return
	}
	h.page(w, r, http.StatusOK, "form.html", view)
}

func (h *handlers) handleSubmit(w http.ResponseWriter, r *http.Request) {
	view, ok := h.formView(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		view.Error = err.Error()
		h.page(w, r, http.StatusBadRequest, "form.html", view)
		return
	}

	values := make(map[string]string, len(view.Fields))
	for _, field := range view.Fields {
		values[field.Name] = r.PostForm.Get(field.Name)
	}
	view.Values = values

	result, err := h.predict(r, view.App, values, nil)
	if err != nil {
		if errors.Is(err, serving.ErrModelNotLoaded) {
			h.unavailable(w, r, view.App)
			return
		}
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("prediction failed", zap.String("app", view.App.Name), zap.Error(err))
		}
		view.Error = err.Error()
		h.page(w, r, status, "form.html", view)
		return
	}
	view.Result = result
	if result.Delta != nil {
		view.Delta = fmt.Sprintf("%+.2f", *result.Delta)
	}
	h.page(w, r, http.StatusOK, "form.html", view)
}

// formView resolves the app, its schema and its defaults. It answers the
// request itself and returns false when the form cannot be shown.
func (h *handlers) formView(w http.ResponseWriter, r *http.Request) (*formView, bool) {
	app, err := h.service.App(r.PathValue("app"))
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	p, err := h.service.Predictor(app.Name)
	if err != nil {
		h.unavailable(w, r, app)
		return nil, false
	}

	view := &formView{Title: app.Title, App: app}
	var defaults map[string]string
	if app.Split == apps.SplitChronological {
		history, err := h.history.Load(app.DatasetPath(h.datasetDir), historyRows)
		if err != nil {
			h.logger.Warn("price history unavailable", zap.String("app", app.Name), zap.Error(err))
		} else {
			view.History = history
			view.Chart = newPriceChart(history.Series)
			defaults = history.Defaults
		}
	}
	view.Fields = app.Form(h.now(), p.Schema, defaults)
	view.Values = make(map[string]string, len(view.Fields))
	for _, field := range view.Fields {
		view.Values[field.Name] = field.Default
	}
	return view, true
}

func (h *handlers) unavailable(w http.ResponseWriter, r *http.Request, app *apps.App) {
	h.page(w, r, http.StatusServiceUnavailable, "unavailable.html", unavailableView{
		Title:   app.Title,
		App:     app,
		Command: "train_model -app " + app.Name,
	})
}

func (h *handlers) page(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	if err := h.pages.render(w, status, name, data); err != nil {
		h.logger.Error("render failed",
			zap.String("page", name),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
