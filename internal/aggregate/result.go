// Package aggregate executes a validated analysis plan against a dataset,
// producing per-chart numeric results with chart-type-specific algorithms.
package aggregate

// GroupRow is one row of a grouped reduction: a group key, an optional hue
// key, and the reduced value.
type GroupRow struct {
	Key   string  `json:"key"`
	Hue   string  `json:"hue,omitempty"`
	Value float64 `json:"value"`
}

// Boxplot is the five-number summary per category plus outlier points.
// Each box is [lower whisker, Q1, median, Q3, upper whisker]; outliers are
// (category index, value) pairs indexed into Categories.
type Boxplot struct {
	Categories []string     `json:"categories"`
	Boxes      [][5]float64 `json:"boxes"`
	Outliers   [][2]float64 `json:"outliers"`
}

// Histogram is a binned frequency distribution. When split by hue, every
// subgroup shares the same bin edges so the histograms stay comparable.
type Histogram struct {
	Bins      []string         `json:"bins"`
	Counts    []int            `json:"counts"`
	HueCounts map[string][]int `json:"hue_counts,omitempty"`
}

// RadarRow is the per-category metric averages of a radar chart.
type RadarRow struct {
	Category string             `json:"category"`
	Values   map[string]float64 `json:"values"`
}

// Radar is a category × metric matrix.
type Radar struct {
	Metrics []string   `json:"metrics"`
	Rows    []RadarRow `json:"rows"`
}

// Gauge is a single reduced value against a maximum.
type Gauge struct {
	Value *float64 `json:"value"`
	Max   float64  `json:"max"`
}

// Heatmap is an (x index, y index, value) triple list over two category axes.
type Heatmap struct {
	X     []string     `json:"x"`
	Y     []string     `json:"y"`
	Cells [][3]float64 `json:"cells"`
}

// TreeNode is one treemap node; Children is populated when the chart nests
// under a hue column.
type TreeNode struct {
	Name     string     `json:"name"`
	Value    float64    `json:"value"`
	Children []TreeNode `json:"children,omitempty"`
}

// Result is the computed output for a single chart: exactly one of the shape
// fields is populated, or Error carries the reason the chart degraded.
// Results are created fresh per request and never mutated after being handed
// downstream.
type Result struct {
	Rows      []GroupRow   `json:"rows,omitempty"`
	Points    [][2]float64 `json:"points,omitempty"`
	Boxplot   *Boxplot     `json:"boxplot,omitempty"`
	Histogram *Histogram   `json:"histogram,omitempty"`
	Radar     *Radar       `json:"radar,omitempty"`
	Gauge     *Gauge       `json:"gauge,omitempty"`
	Heatmap   *Heatmap     `json:"heatmap,omitempty"`
	Tree      []TreeNode   `json:"tree,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// errResult degrades a single chart without affecting its siblings.
func errResult(reason string) Result { return Result{Error: reason} }

// KPIValue is one evaluated KPI. Value is nil when the computation produced
// no number; Error explains a degraded evaluation.
type KPIValue struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
	Error string   `json:"error,omitempty"`
}

// Output is the full aggregation result: evaluated KPIs in plan order and
// chart results keyed by chart id.
type Output struct {
	KPIs    []KPIValue        `json:"kpis"`
	Results map[string]Result `json:"results"`
}
