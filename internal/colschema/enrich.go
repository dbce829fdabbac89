package colschema

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/plotline-ai/plotline/internal/dataset"
)

// durationKeywords flag columns that already carry a duration/lag measure.
// These are ranked first among key numeric columns.
var durationKeywords = []string{
	"lag", "duration", "days", "elapsed", "delay", "lead time", "leadtime",
	"turnaround", "time spent", "cycle time", "aging", "overdue",
}

var startKeywords = []string{"start", "begin", "open", "create", "join", "launch", "birth"}
var endKeywords = []string{"end", "finish", "close", "complete", "target", "deadline", "due", "expire"}

// Enrich materializes derived columns into the dataset and fills the
// suggested-hue, key-numeric, and key-categorical rankings. It runs upstream
// of the core engines; the dataset is read-only after this point.
func Enrich(ds *dataset.Dataset, s *Schema) {
	deriveDurations(ds, s)
	deriveMonths(ds, s)

	// Hue candidates: categorical columns with 2-8 distinct values, ranked by
	// proximity to 3 (cleaner grouped charts). Key categorical: 2-20 values.
	type hueCand struct {
		name string
		dist int
	}
	var hues []hueCand
	var keyCat []string
	for _, c := range s.Categorical {
		n := len(ds.DistinctLabels(c, 0))
		if n >= 2 && n <= 8 {
			hues = append(hues, hueCand{c, n})
		}
		if n >= 2 && n <= 20 {
			keyCat = append(keyCat, c)
		}
	}
	sort.SliceStable(hues, func(i, j int) bool {
		return abs(hues[i].dist-3) < abs(hues[j].dist-3)
	})
	s.SuggestedHueColumns = nil
	for _, h := range hues {
		s.SuggestedHueColumns = append(s.SuggestedHueColumns, h.name)
	}
	if len(s.SuggestedHueColumns) > 5 {
		s.SuggestedHueColumns = s.SuggestedHueColumns[:5]
	}
	s.KeyCategoricalColumns = keyCat
	if len(s.KeyCategoricalColumns) > 8 {
		s.KeyCategoricalColumns = s.KeyCategoricalColumns[:8]
	}

	// Key numeric columns: non-zero variance, duration-like first, otherwise
	// schema order. Identifiers were already stripped from s.Numeric.
	var durations, others []string
	for _, c := range s.Numeric {
		vals := ds.Floats(c)
		if len(vals) == 0 || stat.Variance(vals, nil) == 0 {
			continue
		}
		if hasKeyword(c, durationKeywords) {
			durations = append(durations, c)
		} else {
			others = append(others, c)
		}
	}
	s.KeyNumericColumns = append(durations, others...)
	if len(s.KeyNumericColumns) > 8 {
		s.KeyNumericColumns = s.KeyNumericColumns[:8]
	}

	deriveBins(ds, s)
}

// binKeywords flag duration/age-like measures worth bucketing into quartile
// groups for categorical analysis.
var binKeywords = []string{"day", "duration", "lag", "age", "tenure", "month"}

var binLabels = [4]string{"Low", "Medium-Low", "Medium-High", "High"}

// deriveBins adds a quartile-bin categorical column for duration/age-like
// key numeric columns with enough spread, and offers it as a hue candidate.
// Columns whose quartile edges collapse are skipped: four distinct bins or
// nothing.
func deriveBins(ds *dataset.Dataset, s *Schema) {
	limit := 5
	if len(s.KeyNumericColumns) < limit {
		limit = len(s.KeyNumericColumns)
	}
	for _, col := range s.KeyNumericColumns[:limit] {
		if !hasKeyword(col, binKeywords) {
			continue
		}
		name := col + "_group"
		if ds.Has(name) {
			continue
		}
		vals := ds.Floats(col)
		if len(vals) <= 15 || distinctFloats(vals) <= 5 {
			continue
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		edges := [5]float64{
			sorted[0],
			quantileSorted(sorted, 0.25),
			quantileSorted(sorted, 0.5),
			quantileSorted(sorted, 0.75),
			sorted[len(sorted)-1],
		}
		collapsed := false
		for i := 1; i < len(edges); i++ {
			if edges[i] <= edges[i-1] {
				collapsed = true
				break
			}
		}
		if collapsed {
			continue
		}

		src := ds.Column(col)
		binned := make([]any, ds.NumRows())
		for i, v := range src {
			if f, ok := dataset.AsFloat(v); ok {
				binned[i] = binLabels[binIndex(edges, f)]
			}
		}
		ds.AddColumn(name, binned)
		s.Categorical = append(s.Categorical, name)
		s.SuggestedHueColumns = append(s.SuggestedHueColumns, name)
		s.DerivedColumns = append(s.DerivedColumns, DerivedColumn{
			Name:    name,
			Formula: fmt.Sprintf("quartile_bins(%s)", col),
			Kind:    "binned",
		})
	}
}

// binIndex places v into the quartile interval (edge, next]; the lowest bin
// absorbs everything at or below its upper edge.
func binIndex(edges [5]float64, v float64) int {
	for i := 1; i < 4; i++ {
		if v <= edges[i] {
			return i - 1
		}
	}
	return 3
}

// quantileSorted interpolates the q-th quantile linearly between order
// statistics, the convention the aggregation quartiles also follow.
func quantileSorted(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func distinctFloats(vals []float64) int {
	seen := make(map[float64]struct{}, len(vals))
	for _, v := range vals {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// deriveDurations finds (start, end) date column pairs by name and adds a
// day-count column when at least 20% of rows yield a value. Skipped entirely
// when the data already carries a duration column.
func deriveDurations(ds *dataset.Dataset, s *Schema) {
	for _, c := range ds.Columns() {
		if hasKeyword(c, durationKeywords) {
			return // pre-existing duration column, nothing to derive
		}
	}
	used := make(map[string]bool)
	for _, startCol := range s.Datetime {
		if !hasKeyword(startCol, startKeywords) || used[startCol] {
			continue
		}
		for _, endCol := range s.Datetime {
			if endCol == startCol || used[endCol] || !hasKeyword(endCol, endKeywords) {
				continue
			}
			name := durationName(startCol)
			if ds.Has(name) {
				continue
			}
			starts := ds.Column(startCol)
			ends := ds.Column(endCol)
			col := make([]any, ds.NumRows())
			n := 0
			for i := range col {
				st, okS := dataset.AsTime(starts[i])
				en, okE := dataset.AsTime(ends[i])
				if okS && okE {
					col[i] = en.Sub(st).Hours() / 24
					n++
				}
			}
			if float64(n) < float64(ds.NumRows())*0.2 {
				continue
			}
			ds.AddColumn(name, col)
			s.Numeric = append(s.Numeric, name)
			s.DerivedColumns = append(s.DerivedColumns, DerivedColumn{
				Name:    name,
				Formula: fmt.Sprintf("days(%s - %s)", endCol, startCol),
				Kind:    "duration",
			})
			used[startCol], used[endCol] = true, true
			break
		}
	}
}

// deriveMonths adds a year-month categorical column for up to three datetime
// columns, when at least 40% of their rows carry a timestamp.
func deriveMonths(ds *dataset.Dataset, s *Schema) {
	count := 0
	for _, dc := range s.Datetime {
		if count == 3 {
			break
		}
		count++
		name := dc + "_month"
		if ds.Has(name) {
			continue
		}
		src := ds.Column(dc)
		col := make([]any, ds.NumRows())
		n := 0
		for i, v := range src {
			if t, ok := dataset.AsTime(v); ok {
				col[i] = t.Format("2006-01")
				n++
			}
		}
		if float64(n) < float64(ds.NumRows())*0.4 {
			continue
		}
		ds.AddColumn(name, col)
		s.Categorical = append(s.Categorical, name)
		s.DerivedColumns = append(s.DerivedColumns, DerivedColumn{
			Name:    name,
			Formula: fmt.Sprintf("month_of(%s)", dc),
			Kind:    "time_extract",
		})
	}
}

func durationName(startCol string) string {
	base := strings.ToLower(startCol)
	for _, kw := range append(append([]string{}, startKeywords...), "date", "_", " ") {
		base = strings.ReplaceAll(base, kw, "")
	}
	base = strings.TrimSpace(base)
	if base == "" {
		return "calc_duration_days"
	}
	return base + "_duration_days"
}

func hasKeyword(name string, kws []string) bool {
	lower := strings.ToLower(name)
	for _, kw := range kws {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
