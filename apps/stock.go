package apps

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"pricelab/ml"
	"pricelab/pipeline"
)

var stockFeatures = []string{"Open", "High", "Low", "Close", "Volume"}

// StockFallback holds the form defaults used when no dataset is available.
var StockFallback = map[string]string{
	"Open":   "500.00",
	"High":   "510.00",
	"Low":    "490.00",
	"Close":  "505.00",
	"Volume": "100000",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02-01-2006",
	"01/02/2006",
	"2-Jan-2006",
	"Jan 2, 2006",
}

// ParseDate accepts the date layouts found in exchange exports.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func newStock() *App {
	inputs := make([]ml.Field, len(stockFeatures))
	for i, name := range stockFeatures {
		inputs[i] = ml.Field{Name: name, Kind: ml.Numeric}
	}
	form := make([]FormField, len(stockFeatures))
	for i, name := range stockFeatures {
		label := name + " Price"
		step := "0.01"
		if name == "Volume" {
			label, step = "Volume", "1"
		}
		form[i] = FormField{Name: name, Label: label, Type: InputNumber, Default: StockFallback[name], Min: "0", Step: step}
	}

	return &App{
		Name:        "stock",
		Title:       "Tata Motors Stock Price Forecaster",
		Description: "Next day's closing price from today's open, high, low, close and volume.",
		Dataset:     "tata_stock.csv",
		Target:      "Next_Close",
		Features:    stockFeatures,
		Split:       SplitChronological,
		ModelType:   ml.ModelTypeLinear,
		Params:      ml.Params{Trees: 100, Seed: 42},
		TestRatio:   0.2,
		Money:       mustMoney("INR", "₹"),
		Inputs:      inputs,
		form:        form,
		prepare:     prepareStock,
		toRecord: func(values map[string]string, _ time.Time, _ bool) (ml.Record, error) {
			numeric, err := numericInputs(values, stockFeatures...)
			if err != nil {
				return ml.Record{}, err
			}
			return ml.Record{Numeric: numeric}, nil
		},
		decorate: decorateStock,
	}
}

// prepareStock orders trading days, validates prices and attaches the next
// day's close to every row. The last day has no target and is dropped.
func prepareStock(frame *pipeline.Frame, env *prepareEnv) (*pipeline.Frame, error) {
	if err := sortByDate(frame); err != nil {
		return nil, err
	}

	// the target is paired before cleaning so a rejected day never hands its
	// neighbour a close from two trading days ahead
	if err := frame.Shift("Close", "Next_Close", -1); err != nil {
		return nil, err
	}
	if err := frame.DropNA("Next_Close"); err != nil {
		return nil, err
	}

	return env.clean(frame,
		pipeline.NewNumericRule(append(stockFeatures, "Next_Close")...),
		pipeline.NewNonNegativeRule("Volume"),
		pipeline.NewPriceValidationRule(),
	), nil
}

func sortByDate(frame *pipeline.Frame) error {
	return frame.SortBy("Date", func(v string) (float64, error) {
		t, err := ParseDate(v)
		if err != nil {
			return 0, err
		}
		return float64(t.Unix()), nil
	})
}

func decorateStock(app *App, value float64, values map[string]string) Outcome {
	out := Outcome{
		Value:     value,
		Formatted: app.Money.Plain(value),
		Label:     app.Money.Label(),
	}
	today, err := strconv.ParseFloat(strings.TrimSpace(values["Close"]), 64)
	if err != nil {
		return out
	}
	delta := value - today
	out.Delta = &delta
	out.Trend, out.Note = Trend(value, today)
	return out
}

// Trend classifies a forecast against today's close. Equal prices count as
// bearish.
func Trend(predicted, today float64) (string, string) {
	if predicted > today {
		return "Bullish", "The trend is Bullish (Upwards)."
	}
	return "Bearish", "The trend is Bearish (Downwards)."
}

// PricePoint is one day of the close price series.
type PricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// History is what the stock form shows around the inputs.
type History struct {
	Latest   []map[string]string `json:"latest"`
	Defaults map[string]string   `json:"defaults"`
	Columns  []string            `json:"columns"`
	Series   []PricePoint        `json:"series"`
	Warning  string              `json:"warning,omitempty"`
}

// priceHistory is a dataset read once: rows oldest first.
type priceHistory struct {
	columns  []string
	records  []map[string]string
	defaults map[string]string
	series   []PricePoint
	warning  string
}

// LoadHistory reads the stock dataset and returns its newest n rows, newest
// first, plus form defaults taken from the last trading day and the whole
// close series. A missing dataset yields the fallback defaults and a warning
// instead of an error.
func LoadHistory(path string, n int) (*History, error) {
	ph, err := readHistory(path)
	if err != nil {
		return nil, err
	}
	return ph.view(n), nil
}

func missingHistory() *priceHistory {
	return &priceHistory{
		defaults: StockFallback,
		warning:  "Dataset not found. Please ensure the stock CSV is in the dataset folder.",
	}
}

func readHistory(path string) (*priceHistory, error) {
	frame, err := pipeline.ReadCSV(path)
	if errors.Is(err, fs.ErrNotExist) {
		return missingHistory(), nil
	}
	if err != nil {
		return nil, err
	}
	if frame.Has("Date") {
		if err := sortByDate(frame); err != nil {
			return nil, err
		}
	}

	ph := &priceHistory{
		columns:  frame.Columns(),
		records:  frame.Records(),
		defaults: copyStrings(StockFallback),
	}
	if frame.Len() == 0 {
		ph.warning = "Dataset is empty."
		return ph, nil
	}

	last := frame.Row(frame.Len() - 1)
	for _, name := range stockFeatures {
		if v := last.Get(name); !pipeline.IsMissing(v) {
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				ph.defaults[name] = strings.TrimSpace(v)
			}
		}
	}

	if frame.Has("Close") {
		for i := 0; i < frame.Len(); i++ {
			row := frame.Row(i)
			v, err := row.Float("Close")
			if err != nil {
				continue
			}
			ph.series = append(ph.series, PricePoint{Date: row.Get("Date"), Close: v})
		}
	}
	return ph, nil
}

// view copies out the newest n rows, newest first.
func (ph *priceHistory) view(n int) *History {
	h := &History{
		Columns:  ph.columns,
		Defaults: copyStrings(ph.defaults),
		Series:   ph.series,
		Warning:  ph.warning,
	}
	if n > len(ph.records) {
		n = len(ph.records)
	}
	if n > 0 {
		h.Latest = make([]map[string]string, 0, n)
		for i := len(ph.records) - 1; i >= len(ph.records)-n; i-- {
			h.Latest = append(h.Latest, copyStrings(ph.records[i]))
		}
	}
	return h
}

// HistoryCache keeps each parsed dataset until the file changes on disk.
type HistoryCache struct {
	mu      sync.Mutex
	entries map[string]historyEntry
}

type historyEntry struct {
	modTime time.Time
	size    int64
	history *priceHistory
}

func NewHistoryCache() *HistoryCache {
	return &HistoryCache{entries: make(map[string]historyEntry)}
}

// Load behaves like LoadHistory but only re-reads path when its size or
// modification time changed.
func (c *HistoryCache) Load(path string, n int) (*History, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.mu.Lock()
		delete(c.entries, path)
		c.mu.Unlock()
		return missingHistory().view(n), nil
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok && e.size == info.Size() && e.modTime.Equal(info.ModTime()) {
		return e.history.view(n), nil
	}
	ph, err := readHistory(path)
	if err != nil {
		return nil, err
	}
	c.entries[path] = historyEntry{modTime: info.ModTime(), size: info.Size(), history: ph}
	return ph.view(n), nil
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
