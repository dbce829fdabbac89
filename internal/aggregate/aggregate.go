package aggregate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/plotline-ai/plotline/internal/colschema"
	"github.com/plotline-ai/plotline/internal/dataset"
	"github.com/plotline-ai/plotline/internal/plan"
)

// chartFunc computes the result for one chart. Implementations are pure over
// the (read-only) dataset and must degrade to an error result rather than
// fail.
type chartFunc func(ds *dataset.Dataset, c plan.Chart, s colschema.Schema) Result

// chartFuncs dispatches chart types to their algorithms. Types without an
// entry (bar, line, pie, area) use the standard grouped reduction.
var chartFuncs = map[string]chartFunc{
	"scatter":   scatterChart,
	"boxplot":   boxplotChart,
	"histogram": histogramChart,
	"radar":     radarChart,
	"gauge":     gaugeChart,
	"heatmap":   heatmapChart,
	"treemap":   treemapChart,
	"funnel":    funnelChart,
}

// Run executes every KPI and chart of the plan. A failure in one item
// degrades that item alone; siblings are always computed.
func Run(ds *dataset.Dataset, p plan.Plan, s colschema.Schema) Output {
	out := Output{Results: make(map[string]Result, len(p.Charts))}
	for _, k := range p.KPIs {
		out.KPIs = append(out.KPIs, evalKPI(ds, k))
	}
	for _, c := range p.Charts {
		out.Results[c.ID] = runChart(ds, c, s)
	}
	return out
}

func runChart(ds *dataset.Dataset, c plan.Chart, s colschema.Schema) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = errResult(fmt.Sprintf("chart %s: %v", c.ID, r))
		}
	}()

	if missing := missingColumns(ds, c); missing != "" {
		return errResult("missing column: " + missing)
	}
	if fn, ok := chartFuncs[c.Type]; ok {
		return fn(ds, c, s)
	}
	if c.Y.Aggregation == plan.AggRaw {
		return scatterChart(ds, c, s)
	}
	rows := groupReduce(ds, c.X, c.Hue, c.Y)
	return Result{Rows: rows}
}

func missingColumns(ds *dataset.Dataset, c plan.Chart) string {
	if !ds.Has(c.X) {
		return c.X
	}
	if c.Y.Column != "" && !ds.Has(c.Y.Column) {
		return c.Y.Column
	}
	if c.Hue != "" && !ds.Has(c.Hue) {
		return c.Hue
	}
	return ""
}

// ── KPI evaluation ────────────────────────────────────────────────────────────

func evalKPI(ds *dataset.Dataset, k plan.KPI) (kv KPIValue) {
	kv.Name = k.Name
	defer func() {
		if r := recover(); r != nil {
			kv.Value = nil
			kv.Error = fmt.Sprintf("%v", r)
		}
	}()

	col := k.Metric.Column
	if !ds.Has(col) {
		kv.Error = fmt.Sprintf("column %q not found", col)
		return kv
	}
	if k.Metric.Aggregation == plan.AggCount {
		kv.Value = scrub(float64(ds.CountNonNull(col)))
		return kv
	}
	vals := ds.Floats(col)
	if v, ok := reduce(vals, k.Metric.Aggregation); ok {
		kv.Value = scrub(v)
	}
	return kv
}

// ── Grouped reduction ─────────────────────────────────────────────────────────

// groupReduce performs the standard grouped reduction over x (and hue when
// present). Count aggregation counts rows per group; all other kinds coerce
// y values to numeric and drop groups that end up empty. Group order is
// first-seen row order.
func groupReduce(ds *dataset.Dataset, x, hue string, y plan.Metric) []GroupRow {
	type groupKey struct{ key, hue string }
	xCol := ds.Column(x)
	yCol := ds.Column(y.Column)
	var hueCol []any
	if hue != "" {
		hueCol = ds.Column(hue)
	}

	var order []groupKey
	groups := make(map[groupKey][]float64)
	counts := make(map[groupKey]int)
	for i, xv := range xCol {
		if xv == nil {
			continue
		}
		gk := groupKey{key: dataset.Label(xv)}
		if hueCol != nil {
			if hueCol[i] == nil {
				continue
			}
			gk.hue = dataset.Label(hueCol[i])
		}
		if _, seen := counts[gk]; !seen {
			order = append(order, gk)
		}
		counts[gk]++
		if yCol != nil && i < len(yCol) {
			if f, ok := dataset.AsFloat(yCol[i]); ok {
				groups[gk] = append(groups[gk], f)
			}
		}
	}

	var rows []GroupRow
	for _, gk := range order {
		var v float64
		if y.Aggregation == plan.AggCount {
			v = float64(counts[gk])
		} else {
			reduced, ok := reduce(groups[gk], y.Aggregation)
			if !ok {
				continue
			}
			v = reduced
		}
		rv := scrub(v)
		if rv == nil {
			continue
		}
		rows = append(rows, GroupRow{Key: gk.key, Hue: gk.hue, Value: *rv})
	}
	return rows
}

// ── Numeric helpers ───────────────────────────────────────────────────────────

// reduce applies an aggregation kind to a value slice. Returns false for an
// empty slice or an unknown kind.
func reduce(vals []float64, agg string) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	switch agg {
	case plan.AggSum:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum, true
	case plan.AggMean:
		return stat.Mean(vals, nil), true
	case plan.AggCount:
		return float64(len(vals)), true
	case plan.AggMin:
		m := vals[0]
		for _, v := range vals[1:] {
			if v < m {
				m = v
			}
		}
		return m, true
	case plan.AggMax:
		m := vals[0]
		for _, v := range vals[1:] {
			if v > m {
				m = v
			}
		}
		return m, true
	case plan.AggMedian:
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		return quantile(sorted, 0.5), true
	default:
		return stat.Mean(vals, nil), true
	}
}

// quantile computes the q-th quantile of sorted values with linear
// interpolation between order statistics, matching the quartile method the
// boxplot contract expects (Q1 of [1,2,3,4,5,100] is 2.25).
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// scrub normalizes a value for output: non-finite values become nil (never a
// literal NaN/Infinity downstream), everything else is rounded to two
// decimals.
func scrub(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := round2(v)
	return &r
}
