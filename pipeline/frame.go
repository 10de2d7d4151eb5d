// Package pipeline holds the tabular preparation steps shared by every trainer:
// CSV loading, column renames and derivations, ordinal mapping, one-hot encoding
// and row cleaning.
package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrColumnNotFound is returned when an operation references an unknown column.
var ErrColumnNotFound = errors.New("column not found")

// Frame is a small row-oriented table of string cells. Values are converted to
// numbers only when a matrix is requested.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// Row is a read-only view of one frame row.
type Row struct {
	frame  *Frame
	values []string
}

// Get returns the cell for col, or "" when the column does not exist.
func (r Row) Get(col string) string {
	idx, ok := r.frame.index[col]
	if !ok {
		return ""
	}
	return r.values[idx]
}

// Float parses the cell for col.
func (r Row) Float(col string) (float64, error) {
	return parseFloat(r.Get(col))
}

// NewFrame builds a frame from a header and rows. Every row must have one cell
// per column.
func NewFrame(columns []string, rows [][]string) (*Frame, error) {
	f := &Frame{
		columns: append([]string(nil), columns...),
		rows:    make([][]string, 0, len(rows)),
	}
	f.reindex()
	if len(f.index) != len(f.columns) {
		return nil, errors.New("duplicate column names")
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(columns))
		}
		f.rows = append(f.rows, append([]string(nil), row...))
	}
	return f, nil
}

// ReadCSV loads a comma separated file whose first record is the header.
// A missing file yields an error wrapping fs.ErrNotExist.
func ReadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer file.Close()
	return DecodeCSV(file)
}

// DecodeCSV reads a header plus records from r.
func DecodeCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return NewFrame(header, records)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// Has reports whether col exists.
func (f *Frame) Has(col string) bool {
	_, ok := f.index[col]
	return ok
}

// Row returns the i-th row.
func (f *Frame) Row(i int) Row {
	return Row{frame: f, values: f.rows[i]}
}

// Tail returns a frame holding the last n rows.
func (f *Frame) Tail(n int) *Frame {
	if n > len(f.rows) {
		n = len(f.rows)
	}
	if n < 0 {
		n = 0
	}
	return f.withRows(f.rows[len(f.rows)-n:])
}

// Records returns the rows as column-keyed maps, in frame order.
func (f *Frame) Records() []map[string]string {
	out := make([]map[string]string, len(f.rows))
	for i, row := range f.rows {
		record := make(map[string]string, len(f.columns))
		for j, col := range f.columns {
			record[col] = row[j]
		}
		out[i] = record
	}
	return out
}

// Rename renames columns present in mapping. Unknown source names are ignored.
func (f *Frame) Rename(mapping map[string]string) error {
	for i, col := range f.columns {
		if to, ok := mapping[col]; ok {
			f.columns[i] = to
		}
	}
	f.reindex()
	if len(f.index) != len(f.columns) {
		return errors.New("rename produced duplicate column names")
	}
	return nil
}

// Derive computes a column from every row. An existing column is overwritten.
func (f *Frame) Derive(name string, fn func(Row) (string, error)) error {
	values := make([]string, len(f.rows))
	for i := range f.rows {
		v, err := fn(f.Row(i))
		if err != nil {
			return fmt.Errorf("derive %s row %d: %w", name, i, err)
		}
		values[i] = v
	}
	f.setColumn(name, values)
	return nil
}

// Drop removes the named columns.
func (f *Frame) Drop(cols ...string) error {
	remove := make(map[int]bool, len(cols))
	for _, col := range cols {
		idx, ok := f.index[col]
		if !ok {
			return fmt.Errorf("drop %s: %w", col, ErrColumnNotFound)
		}
		remove[idx] = true
	}

	columns := make([]string, 0, len(f.columns)-len(remove))
	for i, col := range f.columns {
		if !remove[i] {
			columns = append(columns, col)
		}
	}
	for r, row := range f.rows {
		kept := make([]string, 0, len(columns))
		for i, v := range row {
			if !remove[i] {
				kept = append(kept, v)
			}
		}
		f.rows[r] = kept
	}
	f.columns = columns
	f.reindex()
	return nil
}

// Keep drops every column not named in cols. Names in cols that do not exist
// are ignored, so optional columns can be listed.
func (f *Frame) Keep(cols ...string) error {
	keep := make(map[string]bool, len(cols))
	for _, col := range cols {
		keep[col] = true
	}
	var drop []string
	for _, col := range f.columns {
		if !keep[col] {
			drop = append(drop, col)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	return f.Drop(drop...)
}

// MapOrdinal replaces the categories in col with their integer rank. Values
// missing from mapping get fallback instead of failing.
func (f *Frame) MapOrdinal(col string, mapping map[string]int, fallback int) error {
	idx, ok := f.index[col]
	if !ok {
		return fmt.Errorf("map %s: %w", col, ErrColumnNotFound)
	}
	for _, row := range f.rows {
		rank, ok := mapping[strings.TrimSpace(row[idx])]
		if !ok {
			rank = fallback
		}
		row[idx] = strconv.Itoa(rank)
	}
	return nil
}

// OneHot replaces each categorical column with indicator columns named
// "<col>_<level>", levels in lexical order. With dropFirst the first level of
// every column is left out as the reference. The returned map holds every
// observed level per column, reference included.
func (f *Frame) OneHot(cols []string, dropFirst bool) (map[string][]string, error) {
	levels := make(map[string][]string, len(cols))
	for _, col := range cols {
		idx, ok := f.index[col]
		if !ok {
			return nil, fmt.Errorf("one-hot %s: %w", col, ErrColumnNotFound)
		}

		seen := make(map[string]bool)
		for _, row := range f.rows {
			if v := row[idx]; !IsMissing(v) {
				seen[v] = true
			}
		}
		colLevels := make([]string, 0, len(seen))
		for v := range seen {
			colLevels = append(colLevels, v)
		}
		sort.Strings(colLevels)
		levels[col] = colLevels

		encoded := colLevels
		if dropFirst && len(encoded) > 0 {
			encoded = encoded[1:]
		}
		for _, level := range encoded {
			values := make([]string, len(f.rows))
			for r, row := range f.rows {
				if row[idx] == level {
					values[r] = "1"
				} else {
					values[r] = "0"
				}
			}
			f.setColumn(col+"_"+level, values)
		}
	}
	if err := f.Drop(cols...); err != nil {
		return nil, err
	}
	return levels, nil
}

// DropNA removes rows with a missing value in any of cols, or in any column
// when cols is empty.
func (f *Frame) DropNA(cols ...string) error {
	idxs, err := f.indexes(cols)
	if err != nil {
		return err
	}
	kept := f.rows[:0]
	for _, row := range f.rows {
		missing := false
		for _, idx := range idxs {
			if IsMissing(row[idx]) {
				missing = true
				break
			}
		}
		if !missing {
			kept = append(kept, row)
		}
	}
	f.rows = kept
	return nil
}

// FillNAMedian replaces missing cells of col with the median of the present ones.
func (f *Frame) FillNAMedian(col string) error {
	idx, ok := f.index[col]
	if !ok {
		return fmt.Errorf("fill %s: %w", col, ErrColumnNotFound)
	}
	values := make([]float64, 0, len(f.rows))
	for _, row := range f.rows {
		if IsMissing(row[idx]) {
			continue
		}
		v, err := parseFloat(row[idx])
		if err != nil {
			return fmt.Errorf("fill %s: %w", col, err)
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return fmt.Errorf("fill %s: no values present", col)
	}
	median := strconv.FormatFloat(Median(values), 'f', -1, 64)
	for _, row := range f.rows {
		if IsMissing(row[idx]) {
			row[idx] = median
		}
	}
	return nil
}

// SortBy stably orders rows by the key computed from col.
func (f *Frame) SortBy(col string, key func(string) (float64, error)) error {
	idx, ok := f.index[col]
	if !ok {
		return fmt.Errorf("sort %s: %w", col, ErrColumnNotFound)
	}
	keys := make([]float64, len(f.rows))
	for i, row := range f.rows {
		k, err := key(row[idx])
		if err != nil {
			return fmt.Errorf("sort %s row %d: %w", col, i, err)
		}
		keys[i] = k
	}
	order := make([]int, len(f.rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })

	sorted := make([][]string, len(f.rows))
	for i, o := range order {
		sorted[i] = f.rows[o]
	}
	f.rows = sorted
	return nil
}

// Shift writes src moved by periods rows into dst, leaving the vacated cells
// empty. Shift(col, dst, -1) puts the next row's value on the current row.
func (f *Frame) Shift(src, dst string, periods int) error {
	idx, ok := f.index[src]
	if !ok {
		return fmt.Errorf("shift %s: %w", src, ErrColumnNotFound)
	}
	values := make([]string, len(f.rows))
	for i := range f.rows {
		j := i - periods
		if j >= 0 && j < len(f.rows) {
			values[i] = f.rows[j][idx]
		}
	}
	f.setColumn(dst, values)
	return nil
}

// Floats returns col as numbers.
func (f *Frame) Floats(col string) ([]float64, error) {
	idx, ok := f.index[col]
	if !ok {
		return nil, fmt.Errorf("floats %s: %w", col, ErrColumnNotFound)
	}
	out := make([]float64, len(f.rows))
	for i, row := range f.rows {
		v, err := parseFloat(row[idx])
		if err != nil {
			return nil, fmt.Errorf("column %s row %d: %w", col, i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Matrix returns the rows projected onto cols as numbers, in cols order.
func (f *Frame) Matrix(cols []string) ([][]float64, error) {
	idxs, err := f.indexes(cols)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(f.rows))
	for i, row := range f.rows {
		vector := make([]float64, len(idxs))
		for j, idx := range idxs {
			v, err := parseFloat(row[idx])
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", f.columns[idx], i, err)
			}
			vector[j] = v
		}
		out[i] = vector
	}
	return out, nil
}

// IsMissing reports whether a cell counts as a missing value.
func IsMissing(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "na", "nan", "null", "none":
		return true
	}
	return false
}

// Median returns the middle value of values, averaging the two central values
// for even lengths.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func parseFloat(s string) (float64, error) {
	if IsMissing(s) {
		return math.NaN(), fmt.Errorf("missing value")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}

func (f *Frame) setColumn(name string, values []string) {
	if idx, ok := f.index[name]; ok {
		for i, row := range f.rows {
			row[idx] = values[i]
		}
		return
	}
	f.columns = append(f.columns, name)
	f.index[name] = len(f.columns) - 1
	for i := range f.rows {
		f.rows[i] = append(f.rows[i], values[i])
	}
}

func (f *Frame) indexes(cols []string) ([]int, error) {
	if len(cols) == 0 {
		idxs := make([]int, len(f.columns))
		for i := range idxs {
			idxs[i] = i
		}
		return idxs, nil
	}
	idxs := make([]int, len(cols))
	for i, col := range cols {
		idx, ok := f.index[col]
		if !ok {
			return nil, fmt.Errorf("%s: %w", col, ErrColumnNotFound)
		}
		idxs[i] = idx
	}
	return idxs, nil
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.columns))
	for i, col := range f.columns {
		f.index[col] = i
	}
}

func (f *Frame) withRows(rows [][]string) *Frame {
	out := &Frame{columns: append([]string(nil), f.columns...)}
	out.reindex()
	out.rows = make([][]string, len(rows))
	for i, row := range rows {
		out.rows[i] = append([]string(nil), row...)
	}
	return out
}
