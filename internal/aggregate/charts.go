package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/plotline-ai/plotline/internal/colschema"
	"github.com/plotline-ai/plotline/internal/dataset"
	"github.com/plotline-ai/plotline/internal/plan"
)

const (
	maxScatterPoints     = 500
	maxBoxplotCategories = 15
	maxOutliersPerBox    = 20
	maxHueGroups         = 8
	maxRadarCategories   = 8
	maxRadarMetrics      = 6
	maxHeatmapCategories = 15
	maxFunnelGroups      = 10
	gaugeDefaultHeadroom = 1.2
)

// scatterChart emits row-level (x, y) numeric pairs, dropping rows where
// either value is missing or non-numeric.
func scatterChart(ds *dataset.Dataset, c plan.Chart, _ colschema.Schema) Result {
	xCol := ds.Column(c.X)
	yCol := ds.Column(c.Y.Column)
	var points [][2]float64
	for i := range xCol {
		xf, ok := dataset.AsFloat(xCol[i])
		if !ok {
			continue
		}
		yf, ok := dataset.AsFloat(yCol[i])
		if !ok {
			continue
		}
		points = append(points, [2]float64{round2(xf), round2(yf)})
		if len(points) == maxScatterPoints {
			break
		}
	}
	return Result{Points: points}
}

// boxplotChart computes a five-number summary per category with 1.5×IQR
// whiskers clipped to the observed range; values beyond the whisker fences
// are reported as (category index, value) outliers.
func boxplotChart(ds *dataset.Dataset, c plan.Chart, _ colschema.Schema) Result {
	xCol := ds.Column(c.X)
	yCol := ds.Column(c.Y.Column)

	categories := ds.DistinctLabels(c.X, maxBoxplotCategories)
	byCategory := make(map[string][]float64, len(categories))
	for i, xv := range xCol {
		if xv == nil {
			continue
		}
		if f, ok := dataset.AsFloat(yCol[i]); ok {
			lbl := dataset.Label(xv)
			byCategory[lbl] = append(byCategory[lbl], f)
		}
	}

	box := &Boxplot{}
	for _, cat := range categories {
		vals := byCategory[cat]
		if len(vals) < 2 {
			continue
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		q1 := quantile(sorted, 0.25)
		median := quantile(sorted, 0.5)
		q3 := quantile(sorted, 0.75)
		iqr := q3 - q1
		loFence := q1 - 1.5*iqr
		hiFence := q3 + 1.5*iqr
		lower := math.Max(sorted[0], loFence)
		upper := math.Min(sorted[len(sorted)-1], hiFence)

		idx := len(box.Categories)
		box.Categories = append(box.Categories, cat)
		box.Boxes = append(box.Boxes, [5]float64{
			round2(lower), round2(q1), round2(median), round2(q3), round2(upper),
		})

		outliers := 0
		for _, v := range sorted {
			if v >= loFence && v <= hiFence {
				continue
			}
			box.Outliers = append(box.Outliers, [2]float64{float64(idx), round2(v)})
			outliers++
			if outliers == maxOutliersPerBox {
				break
			}
		}
	}
	if len(box.Categories) == 0 {
		return errResult("no category with enough observations for boxplot")
	}
	return Result{Boxplot: box}
}

// histogramChart bins the numeric y column. Bin edges are computed once from
// the whole series and reused for every hue subgroup.
func histogramChart(ds *dataset.Dataset, c plan.Chart, _ colschema.Schema) Result {
	series := ds.Floats(c.Y.Column)
	if len(series) == 0 {
		return errResult("no numeric data for histogram")
	}

	bins := c.Bins
	if bins <= 0 {
		bins = defaultBinCount(len(series))
	}
	edges := binEdges(series, bins)
	h := &Histogram{Counts: binCounts(series, edges)}
	for i := 0; i+1 < len(edges); i++ {
		h.Bins = append(h.Bins, fmt.Sprintf("%s-%s",
			strconv.FormatFloat(round1(edges[i]), 'f', -1, 64),
			strconv.FormatFloat(round1(edges[i+1]), 'f', -1, 64)))
	}

	if c.Hue != "" && ds.Has(c.Hue) {
		hueVals := ds.DistinctLabels(c.Hue, maxHueGroups)
		hueCol := ds.Column(c.Hue)
		yCol := ds.Column(c.Y.Column)
		h.HueCounts = make(map[string][]int, len(hueVals))
		for _, hv := range hueVals {
			var subset []float64
			for i, v := range hueCol {
				if v == nil || dataset.Label(v) != hv {
					continue
				}
				if f, ok := dataset.AsFloat(yCol[i]); ok {
					subset = append(subset, f)
				}
			}
			h.HueCounts[hv] = binCounts(subset, edges)
		}
	}
	return Result{Histogram: h}
}

// defaultBinCount is round(sqrt(n)) clamped to [5, 20].
func defaultBinCount(n int) int {
	b := int(math.Round(math.Sqrt(float64(n))))
	if b < 5 {
		return 5
	}
	if b > 20 {
		return 20
	}
	return b
}

// binEdges returns bins+1 equal-width edges over the observed range. A
// degenerate range is widened by 0.5 on each side so every value lands in a
// bin.
func binEdges(vals []float64, bins int) []float64 {
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	edges := make([]float64, bins+1)
	width := (hi - lo) / float64(bins)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[bins] = hi // avoid float drift on the last edge
	return edges
}

// binCounts counts values into the half-open bins defined by edges; the last
// bin includes its upper edge.
func binCounts(vals []float64, edges []float64) []int {
	counts := make([]int, len(edges)-1)
	lo := edges[0]
	hi := edges[len(edges)-1]
	width := (hi - lo) / float64(len(counts))
	for _, v := range vals {
		if v < lo || v > hi {
			continue
		}
		idx := int((v - lo) / width)
		if idx >= len(counts) {
			idx = len(counts) - 1
		}
		counts[idx]++
	}
	return counts
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// radarChart averages up to six numeric metrics for up to eight categories.
// Metrics default to the schema's numeric columns when not requested
// explicitly; a category missing a metric scores 0.
func radarChart(ds *dataset.Dataset, c plan.Chart, s colschema.Schema) Result {
	metrics := c.RadarMetrics
	if len(metrics) == 0 {
		for _, col := range s.Numeric {
			if ds.Has(col) {
				metrics = append(metrics, col)
			}
		}
	}
	if len(metrics) > maxRadarMetrics {
		metrics = metrics[:maxRadarMetrics]
	}
	if len(metrics) == 0 {
		return errResult("no numeric columns for radar")
	}

	xCol := ds.Column(c.X)
	categories := ds.DistinctLabels(c.X, maxRadarCategories)
	radar := &Radar{Metrics: metrics}
	for _, cat := range categories {
		row := RadarRow{Category: cat, Values: make(map[string]float64, len(metrics))}
		for _, metric := range metrics {
			mCol := ds.Column(metric)
			var vals []float64
			for i, xv := range xCol {
				if xv == nil || dataset.Label(xv) != cat {
					continue
				}
				if mCol != nil {
					if f, ok := dataset.AsFloat(mCol[i]); ok {
						vals = append(vals, f)
					}
				}
			}
			if v := scrub(stat.Mean(vals, nil)); v != nil && len(vals) > 0 {
				row.Values[metric] = *v
			} else {
				row.Values[metric] = 0
			}
		}
		radar.Rows = append(radar.Rows, row)
	}
	return Result{Radar: radar}
}

// gaugeChart reduces the y column to one value. Without an explicit maximum
// the observed maximum gets 20% headroom.
func gaugeChart(ds *dataset.Dataset, c plan.Chart, _ colschema.Schema) Result {
	series := ds.Floats(c.Y.Column)
	if len(series) == 0 {
		return errResult("no numeric data for gauge")
	}
	var value float64
	if c.Y.Aggregation == plan.AggCount {
		value = float64(len(series))
	} else if v, ok := reduce(series, c.Y.Aggregation); ok {
		value = v
	}
	maxVal := c.MaxValue
	if maxVal == 0 {
		observedMax, _ := reduce(series, plan.AggMax)
		maxVal = observedMax * gaugeDefaultHeadroom
	}
	return Result{Gauge: &Gauge{Value: scrub(value), Max: round2(maxVal)}}
}

// heatmapChart computes a value for every (x, hue) category pair, defaulting
// missing cells to 0. A heatmap without a hue column cannot be computed.
func heatmapChart(ds *dataset.Dataset, c plan.Chart, _ colschema.Schema) Result {
	if c.Hue == "" {
		return errResult("heatmap requires a hue column")
	}
	xCats := ds.DistinctLabels(c.X, maxHeatmapCategories)
	yCats := ds.DistinctLabels(c.Hue, maxHeatmapCategories)

	xCol := ds.Column(c.X)
	hueCol := ds.Column(c.Hue)
	yCol := ds.Column(c.Y.Column)

	type cellKey struct{ x, y string }
	counts := make(map[cellKey]int)
	sums := make(map[cellKey][]float64)
	for i, xv := range xCol {
		if xv == nil || hueCol[i] == nil {
			continue
		}
		ck := cellKey{dataset.Label(xv), dataset.Label(hueCol[i])}
		counts[ck]++
		if yCol != nil {
			if f, ok := dataset.AsFloat(yCol[i]); ok {
				sums[ck] = append(sums[ck], f)
			}
		}
	}

	hm := &Heatmap{X: xCats, Y: yCats}
	for xi, xc := range xCats {
		for yi, yc := range yCats {
			ck := cellKey{xc, yc}
			var val float64
			if c.Y.Aggregation == plan.AggCount {
				val = float64(counts[ck])
			} else if v, ok := reduce(sums[ck], c.Y.Aggregation); ok {
				if s := scrub(v); s != nil {
					val = *s
				}
			}
			hm.Cells = append(hm.Cells, [3]float64{float64(xi), float64(yi), round2(val)})
		}
	}
	return Result{Heatmap: hm}
}

// treemapChart is a grouped reduction, nesting children under hue categories
// when a hue is present.
func treemapChart(ds *dataset.Dataset, c plan.Chart, _ colschema.Schema) Result {
	if c.Hue == "" {
		rows := groupReduce(ds, c.X, "", c.Y)
		var nodes []TreeNode
		for _, r := range rows {
			nodes = append(nodes, TreeNode{Name: r.Key, Value: r.Value})
		}
		return Result{Tree: nodes}
	}

	rows := groupReduce(ds, c.X, c.Hue, c.Y)
	var order []string
	children := make(map[string][]TreeNode)
	totals := make(map[string]float64)
	for _, r := range rows {
		if _, seen := children[r.Key]; !seen {
			order = append(order, r.Key)
		}
		children[r.Key] = append(children[r.Key], TreeNode{Name: r.Hue, Value: r.Value})
		totals[r.Key] += r.Value
	}
	var nodes []TreeNode
	for _, key := range order {
		nodes = append(nodes, TreeNode{
			Name:     key,
			Value:    round2(totals[key]),
			Children: children[key],
		})
	}
	return Result{Tree: nodes}
}

// funnelChart is a grouped reduction over x only, sorted descending and
// truncated to the top groups.
func funnelChart(ds *dataset.Dataset, c plan.Chart, _ colschema.Schema) Result {
	rows := groupReduce(ds, c.X, "", c.Y)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Value > rows[j].Value })
	if len(rows) > maxFunnelGroups {
		rows = rows[:maxFunnelGroups]
	}
	return Result{Rows: rows}
}
