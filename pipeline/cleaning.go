package pipeline

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CleaningRule validates a single row. A non-nil error rejects the row.
type CleaningRule interface {
	Apply(Row) error
	Name() string
}

// QualityIssue describes a rejected row.
type QualityIssue struct {
	Rule      string    `json:"rule"`
	Row       int       `json:"row"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// CleaningStats aggregates the outcome of Clean calls.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// DataCleaner applies an ordered list of rules and drops offending rows.
type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger

	stats     CleaningStats
	statsLock sync.RWMutex
}

// NewDataCleaner creates a cleaner with the given rules.
func NewDataCleaner(logger *zap.Logger, rules ...CleaningRule) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataCleaner{
		rules:  rules,
		logger: logger,
		stats: CleaningStats{
			Issues: make(map[string]int64),
		},
	}
}

// AddRule appends a rule.
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean returns a new frame without the rejected rows, plus one issue per
// failed rule.
func (dc *DataCleaner) Clean(frame *Frame) (*Frame, []QualityIssue) {
	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	var issues []QualityIssue
	kept := make([][]string, 0, frame.Len())
	for i := 0; i < frame.Len(); i++ {
		dc.stats.TotalProcessed++
		row := frame.Row(i)

		rejected := false
		for _, rule := range dc.rules {
			if err := rule.Apply(row); err != nil {
				issues = append(issues, QualityIssue{
					Rule:      rule.Name(),
					Row:       i,
					Message:   err.Error(),
					Timestamp: time.Now(),
				})
				dc.stats.Issues[rule.Name()]++
				rejected = true
			}
		}
		if rejected {
			dc.stats.Rejected++
			continue
		}
		dc.stats.Passed++
		kept = append(kept, row.values)
	}
	dc.stats.LastClean = time.Now()

	if len(issues) > 0 {
		dc.logger.Warn("rows rejected during cleaning",
			zap.Int("rejected", frame.Len()-len(kept)),
			zap.Int("kept", len(kept)),
		)
	}
	return frame.withRows(kept), issues
}

// GetStats returns a snapshot of the cleaning statistics.
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	snapshot := dc.stats
	snapshot.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		snapshot.Issues[k] = v
	}
	return snapshot
}

// NumericRule requires the listed columns to parse as numbers.
type NumericRule struct {
	Columns []string
}

func NewNumericRule(cols ...string) *NumericRule {
	return &NumericRule{Columns: cols}
}

func (r *NumericRule) Name() string {
	return "numeric"
}

func (r *NumericRule) Apply(row Row) error {
	for _, col := range r.Columns {
		if _, err := row.Float(col); err != nil {
			return fmt.Errorf("%s: %w", col, err)
		}
	}
	return nil
}

// NonNegativeRule rejects negative values in the listed columns. Cells that
// are not numbers are left to NumericRule.
type NonNegativeRule struct {
	Columns []string
}

func NewNonNegativeRule(cols ...string) *NonNegativeRule {
	return &NonNegativeRule{Columns: cols}
}

func (r *NonNegativeRule) Name() string {
	return "non_negative"
}

func (r *NonNegativeRule) Apply(row Row) error {
	for _, col := range r.Columns {
		v, err := row.Float(col)
		if err != nil {
			continue
		}
		if v < 0 {
			return fmt.Errorf("%s is negative: %g", col, v)
		}
	}
	return nil
}

// PriceValidationRule checks the internal consistency of an OHLC bar.
type PriceValidationRule struct {
	Open, High, Low, Close string
	MinPrice               float64
}

func NewPriceValidationRule() *PriceValidationRule {
	return &PriceValidationRule{
		Open:     "Open",
		High:     "High",
		Low:      "Low",
		Close:    "Close",
		MinPrice: 0.01,
	}
}

func (r *PriceValidationRule) Name() string {
	return "price_validation"
}

func (r *PriceValidationRule) Apply(row Row) error {
	open, err := row.Float(r.Open)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Open, err)
	}
	high, err := row.Float(r.High)
	if err != nil {
		return fmt.Errorf("%s: %w", r.High, err)
	}
	low, err := row.Float(r.Low)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Low, err)
	}
	closePrice, err := row.Float(r.Close)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Close, err)
	}

	if closePrice < r.MinPrice {
		return fmt.Errorf("close price %.2f below %.2f", closePrice, r.MinPrice)
	}
	if high < low {
		return fmt.Errorf("high price %.2f less than low price %.2f", high, low)
	}
	if closePrice < low || closePrice > high {
		return fmt.Errorf("close price %.2f outside range [%.2f, %.2f]", closePrice, low, high)
	}
	if open < low || open > high {
		return fmt.Errorf("open price %.2f outside range [%.2f, %.2f]", open, low, high)
	}
	return nil
}
