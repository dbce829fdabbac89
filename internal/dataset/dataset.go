// Package dataset provides the tabular dataset consumed by the analytics
// engines: ordered named columns over dynamically typed cells, with file
// loading and a conservative cleaning pass.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// A cell holds one of: nil (missing), string, float64, or time.Time.
// The cleaning pass in Clean establishes this invariant for loaded data.

// Dataset is a column-oriented table. Columns keep their load order.
type Dataset struct {
	names []string
	index map[string]int
	cols  [][]any
	rows  int
}

// New creates an empty dataset with the given number of rows.
func New(rows int) *Dataset {
	return &Dataset{index: make(map[string]int), rows: rows}
}

// FromRecords builds a dataset from CSV-style string records. Every cell
// starts as a string; call Clean to coerce types.
func FromRecords(headers []string, records [][]string) *Dataset {
	ds := New(len(records))
	for ci, name := range headers {
		col := make([]any, len(records))
		for ri, rec := range records {
			if ci < len(rec) {
				col[ri] = rec[ci]
			}
		}
		ds.AddColumn(name, col)
	}
	return ds
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int { return d.rows }

// Columns returns the column names in load order.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Has reports whether the named column exists.
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Column returns the cell slice for name, or nil if absent. The slice is
// shared; callers must not mutate it.
func (d *Dataset) Column(name string) []any {
	i, ok := d.index[name]
	if !ok {
		return nil
	}
	return d.cols[i]
}

// AddColumn appends a column. Short columns are padded with nil; a column
// longer than the dataset grows the row count.
func (d *Dataset) AddColumn(name string, values []any) {
	if len(values) > d.rows {
		d.rows = len(values)
	}
	if len(values) < d.rows {
		padded := make([]any, d.rows)
		copy(padded, values)
		values = padded
	}
	if i, ok := d.index[name]; ok {
		d.cols[i] = values
		return
	}
	d.index[name] = len(d.names)
	d.names = append(d.names, name)
	d.cols = append(d.cols, values)
}

// AsFloat coerces a cell to float64. Strings are parsed; time and nil cells
// do not coerce. Non-finite floats are rejected.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsTime coerces a cell to a timestamp. Strings are parsed against the
// layouts the cleaner recognises.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return parseTime(t)
	default:
		return time.Time{}, false
	}
}

// Label renders a cell as a category label. Timestamps use a date-only form;
// floats drop insignificant trailing zeros.
func Label(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Floats returns the coerced numeric values of a column, dropping cells that
// do not parse.
func (d *Dataset) Floats(name string) []float64 {
	var out []float64
	for _, v := range d.Column(name) {
		if f, ok := AsFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}

// CountNonNull returns the number of non-nil cells in a column.
func (d *Dataset) CountNonNull(name string) int {
	n := 0
	for _, v := range d.Column(name) {
		if v != nil {
			n++
		}
	}
	return n
}

// DistinctLabels returns up to limit distinct non-null labels of a column in
// first-seen row order. A limit <= 0 means no limit.
func (d *Dataset) DistinctLabels(name string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range d.Column(name) {
		if v == nil {
			continue
		}
		lbl := Label(v)
		if seen[lbl] {
			continue
		}
		seen[lbl] = true
		out = append(out, lbl)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
